package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/courierquote/internal/model"
)

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), msgAndArgs...)
}

func at(hour int) time.Time {
	return time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC)
}

var (
	smallVan = model.Vehicle{ID: "small_van", Name: "Small Van", RatePerMile: 1.35, AdminFee: 15, MinCharge: 45, Active: true}
	standard = model.Service{ID: model.TierStandard, Multiplier: 1.0, Active: true}
	timed    = model.Service{ID: model.TierPriority, Multiplier: 1.5, Active: true, Aliases: []string{"timed"}}
)

func nightConfig(multiplier float64, mode model.NightApplyMode) model.NightRateConfig {
	return model.NightRateConfig{Enabled: true, StartHour: 22, EndHour: 6, Multiplier: multiplier, ApplyMode: mode}
}

// ─── Worked scenarios ───────────────────────────────────────

func TestCalculate_Scenarios(t *testing.T) {
	calc := NewCalculator(nightConfig(2.0, model.NightCollectionOnly), time.UTC)

	tests := []struct {
		name         string
		miles        float64
		service      model.Service
		collection   time.Time
		distanceCost string
		chargeable   string
		final        string
		base         string
		surcharge    string
		night        bool
	}{
		{
			name: "A: short job floored to minimum charge", miles: 10, service: standard, collection: at(12),
			distanceCost: "13.50", chargeable: "45.00", final: "60.00", base: "60.00", surcharge: "0.00",
		},
		{
			name: "B: distance cost above minimum", miles: 40, service: standard, collection: at(12),
			distanceCost: "54.00", chargeable: "54.00", final: "69.00", base: "69.00", surcharge: "0.00",
		},
		{
			name: "C: night doubles the per-mile rate only", miles: 40, service: standard, collection: at(23),
			distanceCost: "108.00", chargeable: "108.00", final: "123.00", base: "69.00", surcharge: "54.00", night: true,
		},
		{
			name: "D: service multiplier scales chargeable cost, not admin fee", miles: 40, service: timed, collection: at(12),
			distanceCost: "54.00", chargeable: "81.00", final: "96.00", base: "96.00", surcharge: "0.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, s := smallVan, tt.service
			b := calc.Calculate(PriceInput{DistanceMiles: tt.miles, Vehicle: &v, Service: &s, CollectionTime: tt.collection})

			require.True(t, b.Priced)
			assert.Equal(t, tt.night, b.NightApplied)
			assertMoney(t, tt.distanceCost, b.DistanceCost, "distance_cost")
			assertMoney(t, tt.chargeable, b.ChargeableCost, "chargeable_cost")
			assertMoney(t, tt.final, b.FinalPrice, "final_price")
			assertMoney(t, tt.base, b.BasePrice, "base_price")
			assertMoney(t, tt.surcharge, b.NightSurcharge, "night_surcharge")
			assertMoney(t, "15.00", b.AdminFee)
		})
	}
}

func TestCalculate_NightRateOnAppliedRate(t *testing.T) {
	calc := NewCalculator(nightConfig(2.0, model.NightCollectionOnly), time.UTC)
	v, s := smallVan, standard

	b := calc.Calculate(PriceInput{DistanceMiles: 40, Vehicle: &v, Service: &s, CollectionTime: at(23)})
	assertMoney(t, "1.35", b.RatePerMileBase)
	assertMoney(t, "2.70", b.RatePerMileApplied)
}

// ─── Properties ─────────────────────────────────────────────

func TestCalculate_AdminFeeIsAdditiveOnly(t *testing.T) {
	calc := NewCalculator(nightConfig(1.5, model.NightEither), time.UTC)
	services := []model.Service{standard, timed, {ID: model.TierDirect, Multiplier: 2.0, Active: true}}

	for _, miles := range []float64{0, 1.2, 10, 33.3, 40, 187.6} {
		for _, s := range services {
			for _, hour := range []int{3, 12, 23} {
				for _, credit := range []bool{false, true} {
					v, svc := smallVan, s
					b := calc.Calculate(PriceInput{
						DistanceMiles:  miles,
						Vehicle:        &v,
						Service:        &svc,
						CollectionTime: at(hour),
						BusinessCredit: credit,
					})

					assert.True(t, b.FinalPrice.Sub(b.ChargeableCost).Equal(b.AdminFee),
						"final-chargeable must equal admin fee (miles=%v service=%s hour=%d)", miles, s.ID, hour)
					if credit {
						assert.True(t, b.AdminFee.IsZero())
					}
					// chargeable ≥ min_charge × multiplier since the floor precedes the multiplier
					assert.True(t, b.ChargeableCost.GreaterThanOrEqual(b.MinCharge.Mul(b.ServiceMultiplier).Round(2)))
				}
			}
		}
	}
}

func TestCalculate_DistanceCostRoundsToPence(t *testing.T) {
	calc := NewCalculator(model.NightRateConfig{}, time.UTC)
	v := smallVan
	v.MinCharge = 0

	for _, miles := range []float64{0.1, 2.5, 7.3, 19.9, 123.4} {
		b := calc.Calculate(PriceInput{DistanceMiles: miles, Vehicle: &v, CollectionTime: at(12)})
		want := decimal.NewFromFloat(miles).Mul(decimal.NewFromFloat(1.35)).Round(2)
		assert.True(t, want.Equal(b.DistanceCost), "miles=%v want=%s got=%s", miles, want, b.DistanceCost)
	}
}

func TestCalculate_FloorIndependentOfDistance(t *testing.T) {
	calc := NewCalculator(model.NightRateConfig{}, time.UTC)
	v, s := smallVan, standard

	for _, miles := range []float64{0, 1, 5, 33.3} {
		b := calc.Calculate(PriceInput{DistanceMiles: miles, Vehicle: &v, Service: &s, CollectionTime: at(12)})
		assertMoney(t, "45.00", b.ChargeableCost, "miles=%v", miles)
	}
}

func TestCalculate_BusinessCreditWaivesAdminFee(t *testing.T) {
	calc := NewCalculator(model.NightRateConfig{}, time.UTC)
	v, s := smallVan, standard

	b := calc.Calculate(PriceInput{DistanceMiles: 40, Vehicle: &v, Service: &s, CollectionTime: at(12), BusinessCredit: true})
	assertMoney(t, "0.00", b.AdminFee)
	assertMoney(t, "54.00", b.FinalPrice)
}

// ─── Sentinels and lookups ──────────────────────────────────

func TestCalculate_UnknownOrInactiveVehicle(t *testing.T) {
	calc := NewCalculator(model.NightRateConfig{}, time.UTC)
	s := standard

	b := calc.Calculate(PriceInput{DistanceMiles: 40, Service: &s, CollectionTime: at(12)})
	assert.False(t, b.Priced)
	assert.True(t, b.FinalPrice.IsZero())

	inactive := smallVan
	inactive.Active = false
	b = calc.Calculate(PriceInput{DistanceMiles: 40, Vehicle: &inactive, Service: &s, CollectionTime: at(12)})
	assert.False(t, b.Priced)
	assert.True(t, b.FinalPrice.IsZero())
	assert.Equal(t, "small_van", b.VehicleID)
}

func TestCalculate_UnknownServiceUsesMultiplierOne(t *testing.T) {
	calc := NewCalculator(model.NightRateConfig{}, time.UTC)
	v := smallVan

	b := calc.Calculate(PriceInput{DistanceMiles: 40, Vehicle: &v, CollectionTime: at(12)})
	assertMoney(t, "1.00", b.ServiceMultiplier)
	assertMoney(t, "69.00", b.FinalPrice)
}

func TestCalculateByID_AliasesPriceIdentically(t *testing.T) {
	catalog, err := model.NewServiceCatalog(DefaultServices())
	require.NoError(t, err)
	table := &model.RateTable{Vehicles: DefaultVehicles(), Services: catalog, Night: nightConfig(1.5, model.NightCollectionOnly)}
	calc := NewCalculator(table.Night, time.UTC)

	in := PriceInput{DistanceMiles: 40, CollectionTime: at(12)}
	priority := calc.CalculateByID(table, "small_van", "priority", in)
	timed := calc.CalculateByID(table, "Small_Van", "TIMED", in)
	direct := calc.CalculateByID(table, "small_van", "direct", in)
	dedicated := calc.CalculateByID(table, "small_van", "dedicated", in)

	assert.Equal(t, model.TierPriority, timed.ServiceID)
	assert.True(t, priority.FinalPrice.Equal(timed.FinalPrice))
	assert.True(t, direct.FinalPrice.Equal(dedicated.FinalPrice))
	assertMoney(t, "96.00", timed.FinalPrice)

	unknown := calc.CalculateByID(table, "bicycle", "standard", in)
	assert.False(t, unknown.Priced)
	assert.Equal(t, "bicycle", unknown.VehicleID)
}

// ─── Night window ───────────────────────────────────────────

func TestInNightWindow_WrapAround(t *testing.T) {
	cases := map[int]bool{23: true, 5: true, 12: false, 22: true, 6: false, 0: true, 21: false}
	for hour, want := range cases {
		assert.Equal(t, want, InNightWindow(hour, 22, 6), "hour %d", hour)
	}
}

func TestInNightWindow_NonWrapping(t *testing.T) {
	assert.True(t, InNightWindow(1, 0, 5))
	assert.True(t, InNightWindow(0, 0, 5))
	assert.False(t, InNightWindow(5, 0, 5))
	assert.False(t, InNightWindow(12, 0, 5))
	assert.False(t, InNightWindow(3, 3, 3), "empty window")
}

func TestNightApplies_ApplyModes(t *testing.T) {
	delivery := at(23)

	tests := []struct {
		mode       model.NightApplyMode
		collection time.Time
		delivery   *time.Time
		want       bool
	}{
		{model.NightCollectionOnly, at(12), &delivery, false},
		{model.NightCollectionOnly, at(23), nil, true},
		{model.NightEither, at(12), &delivery, true},
		{model.NightEither, at(12), nil, false},
		{model.NightBoth, at(12), &delivery, true},
		{model.NightBoth, at(2), nil, true},
	}
	for _, tt := range tests {
		calc := NewCalculator(nightConfig(1.5, tt.mode), time.UTC)
		assert.Equal(t, tt.want, calc.NightApplies(tt.collection, tt.delivery), "mode=%s collection=%s", tt.mode, tt.collection.Format("15:04"))
	}
}

func TestNightApplies_DisabledAndZeroTime(t *testing.T) {
	cfg := nightConfig(1.5, model.NightEither)
	cfg.Enabled = false
	assert.False(t, NewCalculator(cfg, time.UTC).NightApplies(at(23), nil))

	assert.False(t, NewCalculator(nightConfig(1.5, model.NightEither), time.UTC).NightApplies(time.Time{}, nil))
}

func TestNightApplies_UsesPricingTimezone(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	calc := NewCalculator(nightConfig(1.5, model.NightCollectionOnly), london)

	// 21:30 UTC in July is 22:30 BST.
	summer := time.Date(2026, 7, 1, 21, 30, 0, 0, time.UTC)
	assert.True(t, calc.NightApplies(summer, nil))
}

func TestNightReferenceTime(t *testing.T) {
	collection := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)
	ref := NightReferenceTime(collection, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC), ref)
}
