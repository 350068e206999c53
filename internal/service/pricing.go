package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiva/courierquote/internal/model"
)

// ─── Reference Timing ───────────────────────────────────────

// NightReferenceHour is the collection hour used for the "typical night
// price" shown next to every quote.
const NightReferenceHour = 23

var one = decimal.NewFromInt(1)

// ─── PriceInput ─────────────────────────────────────────────

// PriceInput is everything one calculation needs. A nil Vehicle means the
// vehicle is unknown; a nil Service means the service is unknown.
type PriceInput struct {
	DistanceMiles  float64
	Vehicle        *model.Vehicle
	Service        *model.Service
	CollectionTime time.Time
	DeliveryTime   *time.Time
	BusinessCredit bool
}

// ─── Calculator ─────────────────────────────────────────────

// Calculator prices a single vehicle/service combination. It is pure and
// safe for concurrent use.
//
// Order of operations:
//
//	rate         = rate_per_mile × (night ? night_multiplier : 1)
//	distanceCost = round2(miles × rate)
//	chargeable   = round2(max(distanceCost, min_charge))
//	chargeable   = round2(chargeable × service_multiplier)   if multiplier ≠ 1
//	final        = round2(chargeable + admin_fee)            admin_fee = 0 on business credit
//
// The admin fee is added last and is never scaled; the night multiplier
// touches only the per-mile rate.
type Calculator struct {
	night model.NightRateConfig
	loc   *time.Location
}

// NewCalculator creates a calculator for the given night window. Hours are
// read in loc; a nil loc uses each timestamp's own location.
func NewCalculator(night model.NightRateConfig, loc *time.Location) *Calculator {
	return &Calculator{night: night, loc: loc}
}

// Calculate runs the full pricing sequence. An unknown or inactive vehicle
// yields a zero breakdown with Priced=false.
func (c *Calculator) Calculate(in PriceInput) model.PriceBreakdown {
	b := model.PriceBreakdown{DistanceMiles: in.DistanceMiles}
	if in.Service != nil {
		b.ServiceID = in.Service.ID
	}
	if in.Vehicle == nil {
		return b
	}
	b.VehicleID = in.Vehicle.ID
	if !in.Vehicle.Active {
		return b
	}
	v := in.Vehicle
	b.Priced = true

	// ── Step 1: Night window ────────────────────────────
	b.NightApplied = c.NightApplies(in.CollectionTime, in.DeliveryTime)

	multiplier := one
	if in.Service != nil && in.Service.Multiplier > 0 {
		multiplier = decimal.NewFromFloat(in.Service.Multiplier)
	}
	adminFee := decimal.NewFromFloat(v.AdminFee)
	if in.BusinessCredit {
		adminFee = decimal.Zero
	}

	b.RatePerMileBase = decimal.NewFromFloat(v.RatePerMile)
	b.MinCharge = decimal.NewFromFloat(v.MinCharge)
	b.ServiceMultiplier = multiplier
	b.AdminFee = adminFee

	// ── Steps 2-6: Rate, distance cost, floor, multiplier, fee ──
	t := c.tariff(in.DistanceMiles, b.RatePerMileBase, b.MinCharge, multiplier, adminFee, b.NightApplied)
	b.RatePerMileApplied = t.rate
	b.DistanceCost = t.distanceCost
	b.ChargeableCost = t.chargeable
	b.FinalPrice = t.final

	// ── Step 7: Day reference price ─────────────────────
	b.BasePrice = b.FinalPrice
	if b.NightApplied {
		day := c.tariff(in.DistanceMiles, b.RatePerMileBase, b.MinCharge, multiplier, adminFee, false)
		b.BasePrice = day.final
	}
	b.NightSurcharge = b.FinalPrice.Sub(b.BasePrice)

	return b
}

// CalculateByID looks the vehicle and service up in table (service aliases
// resolve to their canonical tier) and prices them with the table's night
// window. The caller's Vehicle and Service fields are ignored.
func (c *Calculator) CalculateByID(table *model.RateTable, vehicleID, serviceID string, in PriceInput) model.PriceBreakdown {
	in.Vehicle, in.Service = nil, nil
	if v, ok := table.Vehicle(vehicleID); ok {
		in.Vehicle = &v
	}
	if s, ok := table.Services.Get(serviceID); ok {
		in.Service = &s
	}

	b := c.Calculate(in)
	if in.Vehicle == nil {
		b.VehicleID = model.NormalizeID(vehicleID)
	}
	if in.Service == nil {
		b.ServiceID = model.ServiceTier(model.NormalizeID(serviceID))
	}
	return b
}

type tariffResult struct {
	rate         decimal.Decimal
	distanceCost decimal.Decimal
	chargeable   decimal.Decimal
	final        decimal.Decimal
}

func (c *Calculator) tariff(miles float64, rate, minCharge, multiplier, adminFee decimal.Decimal, night bool) tariffResult {
	var t tariffResult

	t.rate = rate
	if night {
		t.rate = rate.Mul(decimal.NewFromFloat(c.night.Multiplier))
	}

	t.distanceCost = decimal.NewFromFloat(miles).Mul(t.rate).Round(2)

	t.chargeable = decimal.Max(t.distanceCost, minCharge).Round(2)

	if !multiplier.Equal(one) {
		t.chargeable = t.chargeable.Mul(multiplier).Round(2)
	}

	t.final = t.chargeable.Add(adminFee).Round(2)
	return t
}

// ─── Night Window ───────────────────────────────────────────

// NightApplies reports whether the night rate applies to a job. Collection
// is always tested; delivery is tested too under apply modes "either" and
// "both" when collection is not already in the window. A zero collection
// time carries no timing information and never applies the night rate.
func (c *Calculator) NightApplies(collection time.Time, delivery *time.Time) bool {
	if !c.night.Enabled || collection.IsZero() {
		return false
	}
	if InNightWindow(c.hour(collection), c.night.StartHour, c.night.EndHour) {
		return true
	}
	switch c.night.ApplyMode {
	case model.NightEither, model.NightBoth:
		if delivery != nil && !delivery.IsZero() {
			return InNightWindow(c.hour(*delivery), c.night.StartHour, c.night.EndHour)
		}
	}
	return false
}

// InNightWindow tests an hour against [start, end). A window with
// start > end wraps midnight: 22→6 covers 22:00-05:59.
func InNightWindow(hour, start, end int) bool {
	if start > end {
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}

func (c *Calculator) hour(t time.Time) int {
	if c.loc != nil {
		t = t.In(c.loc)
	}
	return t.Hour()
}

// NightReferenceTime returns 23:00 on the collection date in loc.
func NightReferenceTime(collection time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = collection.Location()
	}
	local := collection.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), NightReferenceHour, 0, 0, 0, loc)
}
