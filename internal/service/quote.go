package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/pkg/logger"
)

// ─── Collaborators ──────────────────────────────────────────

// Resolver resolves a route to miles. Implemented by DistanceResolver.
type Resolver interface {
	Resolve(ctx context.Context, origin, destination model.Location) (model.Resolution, error)
}

// RateReader returns the active rate snapshot. Implemented by RateBook.
type RateReader interface {
	Current() *model.RateTable
}

// PromoValidator applies a promo code to a price. Implemented by PromoService.
type PromoValidator interface {
	Validate(ctx context.Context, code string, basePrice decimal.Decimal) (model.Discount, error)
}

// ─── Requests ───────────────────────────────────────────────

// QuoteRequest asks for the full vehicle×service matrix.
type QuoteRequest struct {
	Pickup         string
	Delivery       string
	CollectionTime *time.Time // nil = now
	DeliveryTime   *time.Time
	BusinessCredit bool
}

// RecalcRequest re-prices a single vehicle/service. A positive ClientMiles
// is trusted in place of a fresh resolution.
type RecalcRequest struct {
	VehicleID      string
	ServiceID      string
	Pickup         string
	Delivery       string
	CollectionTime *time.Time
	DeliveryTime   *time.Time
	BusinessCredit bool
	ClientMiles    float64
	PromoCode      string
}

// ─── QuoteService ───────────────────────────────────────────

// QuoteService resolves distance once per request and prices every
// combination against that single figure.
type QuoteService struct {
	resolver Resolver
	rates    RateReader
	promos   PromoValidator
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewQuoteService creates the quote orchestrator. promos may be nil, in which
// case any supplied promo code fails with ErrPromoUnavailable.
func NewQuoteService(resolver Resolver, rates RateReader, promos PromoValidator, loc *time.Location, log *zap.Logger) *QuoteService {
	if loc == nil {
		loc = time.UTC
	}
	return &QuoteService{
		resolver: resolver,
		rates:    rates,
		promos:   promos,
		loc:      loc,
		logger:   logger.OrNop(log).Named("quote"),
		now:      time.Now,
	}
}

// BuildQuote produces the full quote matrix.
//
// Flow:
//  1. Validate and normalise both locations.
//  2. Resolve the distance exactly once.
//  3. Price every active vehicle × active service twice: with the caller's
//     timing, and with a 23:00 collection for the night reference price.
//  4. Add alias keys so either name of a tier finds the same quote.
//
// On a hard resolution error the matrix carries only the resolution
// metadata and is returned together with the error.
func (s *QuoteService) BuildQuote(ctx context.Context, req QuoteRequest) (*model.QuoteMatrix, error) {
	// ── Step 1: Validate ────────────────────────────────
	origin, err := ParseLocation("pickup_location", req.Pickup)
	if err != nil {
		return nil, err
	}
	destination, err := ParseLocation("delivery_location", req.Delivery)
	if err != nil {
		return nil, err
	}
	collection, err := s.timing(req.CollectionTime, req.DeliveryTime)
	if err != nil {
		return nil, err
	}

	matrix := &model.QuoteMatrix{
		ID:        uuid.NewString(),
		Quotes:    make(map[model.QuoteKey]model.Quote),
		CreatedAt: s.now().UTC(),
	}

	// ── Step 2: Resolve once ────────────────────────────
	res, err := s.resolver.Resolve(ctx, origin, destination)
	matrix.Resolution = res
	if err != nil {
		if matrix.Resolution.Error == "" {
			matrix.Resolution.Error = err.Error()
		}
		return matrix, err
	}

	// ── Step 3: Price the matrix ────────────────────────
	table := s.rates.Current()
	calc := NewCalculator(table.Night, s.loc)
	nightRef := NightReferenceTime(collection, s.loc)
	vat := decimal.NewFromFloat(table.VATRate)

	for _, v := range table.ActiveVehicles() {
		vehicle := v
		for _, svc := range table.Services.Active() {
			service := svc

			b := calc.Calculate(PriceInput{
				DistanceMiles:  res.DistanceMiles,
				Vehicle:        &vehicle,
				Service:        &service,
				CollectionTime: collection,
				DeliveryTime:   req.DeliveryTime,
				BusinessCredit: req.BusinessCredit,
			})
			ref := calc.Calculate(PriceInput{
				DistanceMiles:  res.DistanceMiles,
				Vehicle:        &vehicle,
				Service:        &service,
				CollectionTime: nightRef,
				BusinessCredit: req.BusinessCredit,
			})

			q := model.Quote{
				VehicleID:           vehicle.ID,
				ServiceID:           string(service.ID),
				CanonicalServiceID:  service.ID,
				Price:               b.FinalPrice,
				NightReferencePrice: ref.FinalPrice,
				VATRate:             vat,
				Breakdown:           b,
			}

			// ── Step 4: Canonical key, then aliases ─────
			key := model.QuoteKey{VehicleID: vehicle.ID, ServiceID: string(service.ID)}
			matrix.Quotes[key] = q
			matrix.Order = append(matrix.Order, key)

			for _, alias := range table.Services.AliasesOf(service.ID) {
				aq := q
				aq.ServiceID = alias
				aliasKey := model.QuoteKey{VehicleID: vehicle.ID, ServiceID: alias}
				matrix.Quotes[aliasKey] = aq
				matrix.Order = append(matrix.Order, aliasKey)
			}
		}
	}

	s.logger.Info("quote built",
		zap.String("quote_id", matrix.ID),
		zap.String("origin", origin.Key),
		zap.String("destination", destination.Key),
		zap.Float64("miles", res.DistanceMiles),
		zap.String("provider", res.Provider),
		zap.Bool("fallback_used", res.FallbackUsed),
		zap.Int("quotes", len(matrix.Order)),
	)
	return matrix, nil
}

// Recalculate re-prices one vehicle/service, optionally applying a promo
// code, and computes VAT on the discounted total.
//
// On a hard resolution error the result carries only the resolution
// metadata and is returned together with the error.
func (s *QuoteService) Recalculate(ctx context.Context, req RecalcRequest) (*model.Recalculation, error) {
	origin, err := ParseLocation("pickup_location", req.Pickup)
	if err != nil {
		return nil, err
	}
	destination, err := ParseLocation("delivery_location", req.Delivery)
	if err != nil {
		return nil, err
	}
	collection, err := s.timing(req.CollectionTime, req.DeliveryTime)
	if err != nil {
		return nil, err
	}
	if req.ClientMiles < 0 {
		return nil, validationError("distance_miles must not be negative")
	}

	table := s.rates.Current()
	if v, ok := table.Vehicle(req.VehicleID); !ok || !v.Active {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVehicle, req.VehicleID)
	}

	// ── Distance: client override or fresh resolution ───
	var res model.Resolution
	if req.ClientMiles > 0 {
		res = model.Resolution{DistanceMiles: req.ClientMiles, Provider: model.ProviderClient}
	} else {
		res, err = s.resolver.Resolve(ctx, origin, destination)
		if err != nil {
			if res.Error == "" {
				res.Error = err.Error()
			}
			return &model.Recalculation{Resolution: res}, err
		}
	}

	calc := NewCalculator(table.Night, s.loc)
	b := calc.CalculateByID(table, req.VehicleID, req.ServiceID, PriceInput{
		DistanceMiles:  res.DistanceMiles,
		CollectionTime: collection,
		DeliveryTime:   req.DeliveryTime,
		BusinessCredit: req.BusinessCredit,
	})
	if !b.Priced {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVehicle, req.VehicleID)
	}

	rec := &model.Recalculation{
		Breakdown:  b,
		Resolution: res,
		Total:      b.FinalPrice,
		VATRate:    decimal.NewFromFloat(table.VATRate),
	}

	// ── Promo ───────────────────────────────────────────
	if req.PromoCode != "" {
		if s.promos == nil {
			return nil, ErrPromoUnavailable
		}
		d, err := s.promos.Validate(ctx, req.PromoCode, b.FinalPrice)
		if err != nil {
			return nil, err
		}
		rec.Discount = &d
		rec.Total = b.FinalPrice.Sub(d.Amount)
	}

	// ── VAT ─────────────────────────────────────────────
	rec.VATAmount = rec.Total.Mul(rec.VATRate).Div(decimal.NewFromInt(100)).Round(2)
	rec.TotalIncVAT = rec.Total.Add(rec.VATAmount)

	return rec, nil
}

// timing defaults the collection time to now and rejects a delivery before
// collection.
func (s *QuoteService) timing(collection, delivery *time.Time) (time.Time, error) {
	c := s.now()
	if collection != nil && !collection.IsZero() {
		c = *collection
	}
	if delivery != nil && !delivery.IsZero() && delivery.Before(c) {
		return time.Time{}, validationError("delivery_time is before collection_time")
	}
	return c, nil
}
