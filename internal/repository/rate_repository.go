package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/pkg/db"
)

// RateRepository reads the admin-editable rate tables. The tables belong to
// the settings application; nothing here writes to them.
type RateRepository struct {
	pool db.Querier
}

// NewRateRepository creates a new rate repository.
func NewRateRepository(pool db.Querier) *RateRepository {
	return &RateRepository{pool: pool}
}

// ListVehicles returns every vehicle row in display order.
func (r *RateRepository) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	query := `
		SELECT id, name,
		       rate_per_mile::float8, admin_fee::float8, min_charge::float8,
		       active
		FROM courier_vehicles
		ORDER BY sort_order, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []model.Vehicle
	for rows.Next() {
		var v model.Vehicle
		if err := rows.Scan(&v.ID, &v.Name, &v.RatePerMile, &v.AdminFee, &v.MinCharge, &v.Active); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		v.ID = model.NormalizeID(v.ID)
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicles: %w", err)
	}
	return vehicles, nil
}

// ListServices returns every service row with its alias list.
func (r *RateRepository) ListServices(ctx context.Context) ([]model.Service, error) {
	query := `
		SELECT id, name, multiplier::float8, active,
		       COALESCE(aliases, '{}')
		FROM courier_services
		ORDER BY sort_order, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var (
			s  model.Service
			id string
		)
		if err := rows.Scan(&id, &s.Name, &s.Multiplier, &s.Active, &s.Aliases); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		s.ID = model.ServiceTier(model.NormalizeID(id))
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return services, nil
}

// NightRate returns the most recently updated night-rate row, or nil when the
// table is empty.
func (r *RateRepository) NightRate(ctx context.Context) (*model.NightRateConfig, error) {
	query := `
		SELECT enabled, start_hour, end_hour, multiplier::float8, apply_mode
		FROM courier_night_rate
		ORDER BY updated_at DESC
		LIMIT 1`

	var (
		n    model.NightRateConfig
		mode string
	)
	err := r.pool.QueryRow(ctx, query).Scan(&n.Enabled, &n.StartHour, &n.EndHour, &n.Multiplier, &mode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get night rate: %w", err)
	}
	n.ApplyMode = model.NightApplyMode(model.NormalizeID(mode))
	return &n, nil
}
