package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shiva/courierquote/config"
	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/pkg/logger"
)

// ─── Default Rate Tables ────────────────────────────────────

// DefaultVehicles returns the built-in vehicle tariffs.
func DefaultVehicles() []model.Vehicle {
	return []model.Vehicle{
		{ID: "small_van", Name: "Small Van", RatePerMile: 1.35, AdminFee: 15, MinCharge: 45, Active: true},
		{ID: "medium_van", Name: "Medium Van", RatePerMile: 1.55, AdminFee: 15, MinCharge: 55, Active: true},
		{ID: "large_van", Name: "Large Van", RatePerMile: 1.75, AdminFee: 15, MinCharge: 65, Active: true},
		{ID: "luton_van", Name: "Luton Van", RatePerMile: 2.10, AdminFee: 20, MinCharge: 85, Active: true},
	}
}

// DefaultServices returns the built-in service tiers with their aliases.
func DefaultServices() []model.Service {
	return []model.Service{
		{ID: model.TierStandard, Name: "Standard", Multiplier: 1.0, Active: true},
		{ID: model.TierPriority, Name: "Priority", Multiplier: 1.5, Active: true, Aliases: []string{"timed"}},
		{ID: model.TierDirect, Name: "Direct", Multiplier: 2.0, Active: true, Aliases: []string{"dedicated"}},
	}
}

// RateSource reads admin-edited rate rows. It is implemented by
// repository.RateRepository.
type RateSource interface {
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	NightRate(ctx context.Context) (*model.NightRateConfig, error)
}

// ─── RateBook ───────────────────────────────────────────────

// RateBook holds the current rate snapshot. Readers call Current and never
// see a partially merged table; Reload builds a new snapshot and swaps it in.
//
// Merge order, later wins:
//  1. code defaults and the night/VAT settings from config
//  2. RATES_FILE, field by field per id
//  3. database rows, whole rows per id
type RateBook struct {
	current atomic.Pointer[model.RateTable]

	pricing       config.PricingConfig
	fallbackMiles float64
	source        RateSource
	logger        *zap.Logger
}

// NewRateBook creates a rate book seeded with the defaults. source may be nil.
func NewRateBook(cfg *config.Config, source RateSource, log *zap.Logger) (*RateBook, error) {
	b := &RateBook{
		pricing:       cfg.Pricing,
		fallbackMiles: cfg.Distance.FallbackMiles,
		source:        source,
		logger:        logger.OrNop(log).Named("rates"),
	}

	table, err := b.defaults()
	if err != nil {
		return nil, err
	}
	b.current.Store(table)
	return b, nil
}

// Current returns the active snapshot.
func (b *RateBook) Current() *model.RateTable {
	return b.current.Load()
}

// Reload rebuilds the snapshot from all sources. On error the previous
// snapshot stays active.
func (b *RateBook) Reload(ctx context.Context) error {
	table, err := b.build(ctx)
	if err != nil {
		b.logger.Error("rate reload failed; keeping previous tables", zap.Error(err))
		return err
	}
	b.current.Store(table)
	b.logger.Info("rate tables loaded",
		zap.Int("vehicles", len(table.Vehicles)),
		zap.Int("services", len(table.Services.All())),
		zap.Bool("night_enabled", table.Night.Enabled),
	)
	return nil
}

func (b *RateBook) defaults() (*model.RateTable, error) {
	return b.assemble(DefaultVehicles(), DefaultServices(), b.pricing.Night())
}

func (b *RateBook) build(ctx context.Context) (*model.RateTable, error) {
	vehicles := DefaultVehicles()
	services := DefaultServices()
	night := b.pricing.Night()

	// ── File overrides ──────────────────────────────────
	if b.pricing.RatesFile != "" {
		rf, err := readRatesFile(b.pricing.RatesFile)
		if err != nil {
			return nil, err
		}
		vehicles = rf.applyVehicles(vehicles)
		services = rf.applyServices(services)
		night = rf.applyNight(night)
	}

	// ── Database rows ───────────────────────────────────
	if b.source != nil && b.pricing.RatesFromDB {
		dbVehicles, err := b.source.ListVehicles(ctx)
		if err != nil {
			return nil, fmt.Errorf("rates: %w", err)
		}
		dbServices, err := b.source.ListServices(ctx)
		if err != nil {
			return nil, fmt.Errorf("rates: %w", err)
		}
		dbNight, err := b.source.NightRate(ctx)
		if err != nil {
			return nil, fmt.Errorf("rates: %w", err)
		}

		vehicles = mergeVehicles(vehicles, dbVehicles)
		services = mergeServices(services, dbServices)
		if dbNight != nil {
			night = *dbNight
		}
	}

	return b.assemble(vehicles, services, night)
}

func (b *RateBook) assemble(vehicles []model.Vehicle, services []model.Service, night model.NightRateConfig) (*model.RateTable, error) {
	for i := range vehicles {
		vehicles[i].ID = model.NormalizeID(vehicles[i].ID)
	}
	catalog, err := model.NewServiceCatalog(services)
	if err != nil {
		return nil, err
	}
	table := &model.RateTable{
		Vehicles:      vehicles,
		Services:      catalog,
		Night:         night,
		VATRate:       b.pricing.VATRate,
		FallbackMiles: b.fallbackMiles,
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// ─── Merging ────────────────────────────────────────────────

func mergeVehicles(base, rows []model.Vehicle) []model.Vehicle {
	index := make(map[string]int, len(base))
	for i, v := range base {
		index[model.NormalizeID(v.ID)] = i
	}
	for _, row := range rows {
		row.ID = model.NormalizeID(row.ID)
		if i, ok := index[row.ID]; ok {
			base[i] = row
			continue
		}
		index[row.ID] = len(base)
		base = append(base, row)
	}
	return base
}

func mergeServices(base, rows []model.Service) []model.Service {
	index := make(map[model.ServiceTier]int, len(base))
	for i, s := range base {
		index[model.ServiceTier(model.NormalizeID(string(s.ID)))] = i
	}
	for _, row := range rows {
		row.ID = model.ServiceTier(model.NormalizeID(string(row.ID)))
		if i, ok := index[row.ID]; ok {
			if len(row.Aliases) == 0 {
				row.Aliases = base[i].Aliases
			}
			base[i] = row
			continue
		}
		index[row.ID] = len(base)
		base = append(base, row)
	}
	return base
}

// ─── Rates File ─────────────────────────────────────────────

type vehicleOverride struct {
	ID          string   `mapstructure:"id"`
	Name        *string  `mapstructure:"name"`
	RatePerMile *float64 `mapstructure:"rate_per_mile"`
	AdminFee    *float64 `mapstructure:"admin_fee"`
	MinCharge   *float64 `mapstructure:"min_charge"`
	Active      *bool    `mapstructure:"active"`
}

type serviceOverride struct {
	ID         string   `mapstructure:"id"`
	Name       *string  `mapstructure:"name"`
	Multiplier *float64 `mapstructure:"multiplier"`
	Active     *bool    `mapstructure:"active"`
	Aliases    []string `mapstructure:"aliases"`
}

type nightOverride struct {
	Enabled    *bool    `mapstructure:"enabled"`
	StartHour  *int     `mapstructure:"start_hour"`
	EndHour    *int     `mapstructure:"end_hour"`
	Multiplier *float64 `mapstructure:"multiplier"`
	ApplyMode  *string  `mapstructure:"apply_mode"`
}

type ratesFile struct {
	Vehicles []vehicleOverride `mapstructure:"vehicles"`
	Services []serviceOverride `mapstructure:"services"`
	Night    *nightOverride    `mapstructure:"night"`
}

// readRatesFile loads a YAML, JSON or TOML rates file; the format follows
// the extension.
func readRatesFile(path string) (*ratesFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("rates: read %s: %w", path, err)
	}
	rf := &ratesFile{}
	if err := v.Unmarshal(rf); err != nil {
		return nil, fmt.Errorf("rates: decode %s: %w", path, err)
	}
	return rf, nil
}

func (rf *ratesFile) applyVehicles(base []model.Vehicle) []model.Vehicle {
	index := make(map[string]int, len(base))
	for i, v := range base {
		index[v.ID] = i
	}
	for _, o := range rf.Vehicles {
		id := model.NormalizeID(o.ID)
		if id == "" {
			continue
		}
		i, ok := index[id]
		if !ok {
			i = len(base)
			index[id] = i
			base = append(base, model.Vehicle{ID: id, Name: id, Active: true})
		}
		v := &base[i]
		if o.Name != nil {
			v.Name = *o.Name
		}
		if o.RatePerMile != nil {
			v.RatePerMile = *o.RatePerMile
		}
		if o.AdminFee != nil {
			v.AdminFee = *o.AdminFee
		}
		if o.MinCharge != nil {
			v.MinCharge = *o.MinCharge
		}
		if o.Active != nil {
			v.Active = *o.Active
		}
	}
	return base
}

func (rf *ratesFile) applyServices(base []model.Service) []model.Service {
	index := make(map[model.ServiceTier]int, len(base))
	for i, s := range base {
		index[s.ID] = i
	}
	for _, o := range rf.Services {
		id := model.ServiceTier(model.NormalizeID(o.ID))
		if id == "" {
			continue
		}
		i, ok := index[id]
		if !ok {
			i = len(base)
			index[id] = i
			base = append(base, model.Service{ID: id, Name: string(id), Multiplier: 1.0, Active: true})
		}
		s := &base[i]
		if o.Name != nil {
			s.Name = *o.Name
		}
		if o.Multiplier != nil {
			s.Multiplier = *o.Multiplier
		}
		if o.Active != nil {
			s.Active = *o.Active
		}
		if o.Aliases != nil {
			s.Aliases = o.Aliases
		}
	}
	return base
}

func (rf *ratesFile) applyNight(n model.NightRateConfig) model.NightRateConfig {
	o := rf.Night
	if o == nil {
		return n
	}
	if o.Enabled != nil {
		n.Enabled = *o.Enabled
	}
	if o.StartHour != nil {
		n.StartHour = *o.StartHour
	}
	if o.EndHour != nil {
		n.EndHour = *o.EndHour
	}
	if o.Multiplier != nil {
		n.Multiplier = *o.Multiplier
	}
	if o.ApplyMode != nil {
		n.ApplyMode = model.NightApplyMode(model.NormalizeID(*o.ApplyMode))
	}
	return n
}
