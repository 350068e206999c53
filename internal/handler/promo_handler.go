package handler

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shiva/courierquote/internal/service"
	"github.com/shiva/courierquote/pkg/logger"
)

// PromoRequest is the JSON body for POST /api/v1/promos/validate.
type PromoRequest struct {
	Code      string          `json:"code"`
	BasePrice decimal.Decimal `json:"base_price"`
}

// PromoHandler checks promo codes without pricing a job.
type PromoHandler struct {
	promos service.PromoValidator
	logger *zap.Logger
}

// NewPromoHandler creates a new promo handler.
func NewPromoHandler(promos service.PromoValidator, log *zap.Logger) *PromoHandler {
	return &PromoHandler{promos: promos, logger: logger.OrNop(log).Named("http")}
}

// Validate handles POST /api/v1/promos/validate
//
//	{"code": "SPRING10", "base_price": "69.00"}
//
// Response: {"code", "amount", "type", "value"}, or 422 with one of
// invalid_code, inactive_code, expired_code, max_uses_reached.
func (h *PromoHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req PromoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.BasePrice.IsNegative() {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: "base_price must not be negative",
		})
		return
	}
	if h.promos == nil {
		writeServiceError(w, h.logger, service.ErrPromoUnavailable, nil)
		return
	}

	d, err := h.promos.Validate(r.Context(), req.Code, req.BasePrice)
	if err != nil {
		writeServiceError(w, h.logger, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, d)
}
