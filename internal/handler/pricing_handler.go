package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/courierquote/internal/service"
	"github.com/shiva/courierquote/pkg/logger"
)

// RecalculateRequest is the JSON body for POST /api/v1/quotes/recalculate.
type RecalculateRequest struct {
	VehicleID        string     `json:"vehicle_id"`
	ServiceID        string     `json:"service_id"`
	PickupLocation   string     `json:"pickup_location"`
	DeliveryLocation string     `json:"delivery_location"`
	CollectionTime   *time.Time `json:"collection_time,omitempty"`
	DeliveryTime     *time.Time `json:"delivery_time,omitempty"`
	BusinessCredit   bool       `json:"business_credit"`
	DistanceMiles    float64    `json:"distance_miles,omitempty"`
	PromoCode        string     `json:"promo_code,omitempty"`
}

// PricingHandler re-prices a single vehicle/service selection.
type PricingHandler struct {
	quotes *service.QuoteService
	logger *zap.Logger
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(quotes *service.QuoteService, log *zap.Logger) *PricingHandler {
	return &PricingHandler{quotes: quotes, logger: logger.OrNop(log).Named("http")}
}

// Recalculate handles POST /api/v1/quotes/recalculate
//
// Request body:
//
//	{
//	  "vehicle_id": "small_van", "service_id": "timed",
//	  "pickup_location": "SW1A 1AA", "delivery_location": "M1 1AE",
//	  "collection_time": "2026-03-10T09:00:00Z",
//	  "distance_miles": 198.4,
//	  "promo_code": "SPRING10"
//	}
//
// A positive distance_miles is used as-is without contacting the provider.
// Response: breakdown, optional discount, total, VAT, and debug metadata.
// A provider or configuration failure returns 502/503 with the debug object.
func (h *PricingHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.VehicleID == "" || req.ServiceID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: "vehicle_id and service_id are required",
		})
		return
	}

	rec, err := h.quotes.Recalculate(r.Context(), service.RecalcRequest{
		VehicleID:      req.VehicleID,
		ServiceID:      req.ServiceID,
		Pickup:         req.PickupLocation,
		Delivery:       req.DeliveryLocation,
		CollectionTime: req.CollectionTime,
		DeliveryTime:   req.DeliveryTime,
		BusinessCredit: req.BusinessCredit,
		ClientMiles:    req.DistanceMiles,
		PromoCode:      req.PromoCode,
	})
	if err != nil {
		if rec != nil {
			writeServiceError(w, h.logger, err, &rec.Resolution)
			return
		}
		writeServiceError(w, h.logger, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
