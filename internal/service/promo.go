package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/internal/repository"
)

// ─── Promo Errors ───────────────────────────────────────────

var (
	ErrPromoInvalidCode = errors.New("promo code is invalid")
	ErrPromoInactive    = errors.New("promo code is not active")
	ErrPromoExpired     = errors.New("promo code has expired")
	ErrPromoMaxUses     = errors.New("promo code has reached its usage limit")

	// ErrPromoUnavailable is returned when a code is supplied but no promo
	// store is configured.
	ErrPromoUnavailable = errors.New("promo codes are not available")
)

// PromoErrorKind returns the API error code for a promo error, or "" when
// err is not one.
func PromoErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrPromoInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrPromoInactive):
		return "inactive_code"
	case errors.Is(err, ErrPromoExpired):
		return "expired_code"
	case errors.Is(err, ErrPromoMaxUses):
		return "max_uses_reached"
	case errors.Is(err, ErrPromoUnavailable):
		return "promo_unavailable"
	}
	return ""
}

// PromoStore looks promo codes up. Implemented by repository.PromoRepository.
type PromoStore interface {
	GetByCode(ctx context.Context, code string) (*model.PromoCode, error)
}

// ─── PromoService ───────────────────────────────────────────

// PromoService validates promo codes against a price. It never records
// redemptions; that happens when a booking is confirmed elsewhere.
type PromoService struct {
	store PromoStore
	now   func() time.Time
}

// NewPromoService creates a promo service backed by store.
func NewPromoService(store PromoStore) *PromoService {
	return &PromoService{store: store, now: time.Now}
}

// Validate checks code and computes the discount against basePrice. The
// discount is rounded to 2 decimals and never exceeds basePrice.
func (s *PromoService) Validate(ctx context.Context, code string, basePrice decimal.Decimal) (model.Discount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return model.Discount{}, ErrPromoInvalidCode
	}
	if s == nil || s.store == nil {
		return model.Discount{}, ErrPromoUnavailable
	}

	p, err := s.store.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrPromoNotFound) {
		return model.Discount{}, ErrPromoInvalidCode
	}
	if err != nil {
		return model.Discount{}, fmt.Errorf("promo lookup: %w", err)
	}

	switch {
	case !p.Active:
		return model.Discount{}, ErrPromoInactive
	case p.ExpiresAt != nil && !s.now().Before(*p.ExpiresAt):
		return model.Discount{}, ErrPromoExpired
	case p.MaxUses > 0 && p.UsedCount >= p.MaxUses:
		return model.Discount{}, ErrPromoMaxUses
	}

	var amount decimal.Decimal
	switch p.Type {
	case model.DiscountPercent:
		amount = basePrice.Mul(p.Value).Div(decimal.NewFromInt(100)).Round(2)
	case model.DiscountFixed:
		amount = p.Value.Round(2)
	default:
		return model.Discount{}, fmt.Errorf("%w: unknown discount type %q", ErrPromoInvalidCode, p.Type)
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(basePrice) {
		amount = basePrice
	}

	return model.Discount{
		Code:   p.Code,
		Amount: amount,
		Type:   p.Type,
		Value:  p.Value,
	}, nil
}
