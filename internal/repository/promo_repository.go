package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/pkg/db"
)

// ErrPromoNotFound is returned when no promo code matches.
var ErrPromoNotFound = errors.New("promo code not found")

// PromoRepository reads promo codes. Creating and editing codes happens in
// the settings application.
type PromoRepository struct {
	pool db.Querier
}

// NewPromoRepository creates a new promo repository.
func NewPromoRepository(pool db.Querier) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// GetByCode fetches a promo code, matching case-insensitively.
func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	query := `
		SELECT code, discount_type, value::text, active,
		       expires_at, COALESCE(max_uses, 0), used_count
		FROM promo_codes
		WHERE upper(code) = $1`

	p := &model.PromoCode{}
	var discountType string

	err := r.pool.QueryRow(ctx, query, strings.ToUpper(strings.TrimSpace(code))).Scan(
		&p.Code, &discountType, &p.Value, &p.Active,
		&p.ExpiresAt, &p.MaxUses, &p.UsedCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPromoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get promo code %q: %w", code, err)
	}

	p.Type = model.DiscountType(strings.ToLower(discountType))
	return p, nil
}
