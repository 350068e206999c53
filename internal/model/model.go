// Package model contains domain models for the courier quoting system.
// Rate tables map to the courier_vehicles / courier_services / courier_night_rate
// tables owned by the settings application; the quoting core only reads them.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Enums ──────────────────────────────────────────────────

// ServiceTier is the canonical identity of a service level.
type ServiceTier string

const (
	TierStandard ServiceTier = "standard"
	TierPriority ServiceTier = "priority"
	TierDirect   ServiceTier = "direct"
)

// NightApplyMode controls which timestamps are tested against the night window.
type NightApplyMode string

const (
	NightCollectionOnly NightApplyMode = "collection_only"
	NightEither         NightApplyMode = "either"
	NightBoth           NightApplyMode = "both"
)

// Valid reports whether m is one of the known apply modes.
func (m NightApplyMode) Valid() bool {
	switch m {
	case NightCollectionOnly, NightEither, NightBoth:
		return true
	}
	return false
}

// ─── Location ───────────────────────────────────────────────

// Location is a free-text address or postcode together with its normalised
// key. Construct it with service.ParseLocation; it is never mutated afterwards.
type Location struct {
	Raw string `json:"raw"`
	Key string `json:"key"`
}

// ─── Rate Configuration ─────────────────────────────────────

// Vehicle is a vehicle class with its per-mile tariff.
type Vehicle struct {
	ID          string  `json:"id" mapstructure:"id"`
	Name        string  `json:"name" mapstructure:"name"`
	RatePerMile float64 `json:"rate_per_mile" mapstructure:"rate_per_mile"`
	AdminFee    float64 `json:"admin_fee" mapstructure:"admin_fee"`
	MinCharge   float64 `json:"min_charge" mapstructure:"min_charge"`
	Active      bool    `json:"active" mapstructure:"active"`
}

// Service is a service level. Aliases are alternative ids that denote the
// same tier (e.g. "timed" for priority).
type Service struct {
	ID         ServiceTier `json:"id" mapstructure:"id"`
	Name       string      `json:"name" mapstructure:"name"`
	Multiplier float64     `json:"multiplier" mapstructure:"multiplier"`
	Active     bool        `json:"active" mapstructure:"active"`
	Aliases    []string    `json:"aliases,omitempty" mapstructure:"aliases"`
}

// NightRateConfig describes the night window. Hours are 0-23; a window with
// StartHour > EndHour wraps midnight.
type NightRateConfig struct {
	Enabled    bool           `json:"enabled"`
	StartHour  int            `json:"start_hour"`
	EndHour    int            `json:"end_hour"`
	Multiplier float64        `json:"multiplier"`
	ApplyMode  NightApplyMode `json:"apply_mode"`
}

// ─── Pricing ────────────────────────────────────────────────

// PriceBreakdown records every intermediate value of one calculation.
// Priced is false when the vehicle was unknown or inactive; all money
// fields are then zero and the breakdown must not be offered as a quote.
type PriceBreakdown struct {
	VehicleID          string          `json:"vehicle_id"`
	ServiceID          ServiceTier     `json:"service_id"`
	Priced             bool            `json:"priced"`
	DistanceMiles      float64         `json:"distance_miles"`
	RatePerMileBase    decimal.Decimal `json:"rate_per_mile_base"`
	RatePerMileApplied decimal.Decimal `json:"rate_per_mile_applied"`
	DistanceCost       decimal.Decimal `json:"distance_cost"`
	ChargeableCost     decimal.Decimal `json:"chargeable_cost"`
	ServiceMultiplier  decimal.Decimal `json:"service_multiplier"`
	AdminFee           decimal.Decimal `json:"admin_fee"`
	MinCharge          decimal.Decimal `json:"min_charge"`
	NightApplied       bool            `json:"night_applied"`
	BasePrice          decimal.Decimal `json:"base_price"`
	NightSurcharge     decimal.Decimal `json:"night_surcharge"`
	FinalPrice         decimal.Decimal `json:"final_price"`
}

// ─── Distance resolution ────────────────────────────────────

// Provider names reported in resolution metadata.
const (
	ProviderCache     = "cache"
	ProviderFallback  = "fallback"
	ProviderClient    = "client"
	ProviderGoogle    = "google"
	ProviderOpenRoute = "openroute"
)

// DistanceCacheEntry is the cached outcome of a successful resolution.
type DistanceCacheEntry struct {
	Miles      float64   `json:"miles"`
	ResolvedAt time.Time `json:"resolved_at"`
	Provider   string    `json:"provider"`
	IsFallback bool      `json:"is_fallback"`
}

// Resolution is the metadata attached to every quote so callers can tell a
// price based on a measured distance from one based on the fallback.
type Resolution struct {
	DistanceMiles float64 `json:"distance_miles"`
	Provider      string  `json:"provider"`
	FallbackUsed  bool    `json:"fallback_used"`
	CacheHit      bool    `json:"cache_hit"`
	Error         string  `json:"error,omitempty"`
}

// ─── Quotes ─────────────────────────────────────────────────

// QuoteKey addresses one cell of the quote matrix.
type QuoteKey struct {
	VehicleID string
	ServiceID string
}

// Quote is one vehicle×service cell.
type Quote struct {
	VehicleID           string          `json:"vehicle_id"`
	ServiceID           string          `json:"service_id"`
	CanonicalServiceID  ServiceTier     `json:"canonical_service_id"`
	Price               decimal.Decimal `json:"price"`
	NightReferencePrice decimal.Decimal `json:"night_reference_price"`
	VATRate             decimal.Decimal `json:"vat_rate"`
	Breakdown           PriceBreakdown  `json:"breakdown"`
}

// QuoteMatrix is the full set of quotes for one resolved distance.
// Quotes holds canonical and alias keys; Order lists every key in display
// order, each canonical key followed by its aliases.
type QuoteMatrix struct {
	ID         string
	Quotes     map[QuoteKey]Quote
	Order      []QuoteKey
	Resolution Resolution
	CreatedAt  time.Time
}

// MarshalJSON renders the matrix as vehicle_id → list of quotes.
func (m QuoteMatrix) MarshalJSON() ([]byte, error) {
	byVehicle := make(map[string][]Quote)
	for _, k := range m.Order {
		if q, ok := m.Quotes[k]; ok {
			byVehicle[k.VehicleID] = append(byVehicle[k.VehicleID], q)
		}
	}
	return json.Marshal(struct {
		ID        string             `json:"id,omitempty"`
		Quotes    map[string][]Quote `json:"quotes"`
		Debug     Resolution         `json:"debug"`
		CreatedAt time.Time          `json:"created_at"`
	}{
		ID:        m.ID,
		Quotes:    byVehicle,
		Debug:     m.Resolution,
		CreatedAt: m.CreatedAt,
	})
}

// Lookup returns the quote for a vehicle and any name of a service tier.
func (m *QuoteMatrix) Lookup(vehicleID, serviceID string) (Quote, bool) {
	if m == nil || m.Quotes == nil {
		return Quote{}, false
	}
	q, ok := m.Quotes[QuoteKey{VehicleID: vehicleID, ServiceID: serviceID}]
	return q, ok
}

// ─── Promotions ─────────────────────────────────────────────

// DiscountType is how a promo value is applied.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// PromoCode maps to the `promo_codes` table.
type PromoCode struct {
	Code      string
	Type      DiscountType
	Value     decimal.Decimal
	Active    bool
	ExpiresAt *time.Time
	MaxUses   int // 0 = unlimited
	UsedCount int
}

// Discount is the outcome of validating a promo code against a price.
type Discount struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
	Type   DiscountType    `json:"type"`
	Value  decimal.Decimal `json:"value"`
}

// Recalculation is the response to a single vehicle/service re-price.
type Recalculation struct {
	Breakdown   PriceBreakdown  `json:"breakdown"`
	Resolution  Resolution      `json:"debug"`
	Discount    *Discount       `json:"discount,omitempty"`
	Total       decimal.Decimal `json:"total"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
	TotalIncVAT decimal.Decimal `json:"total_inc_vat"`
}
