package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/courierquote/internal/service"
	"github.com/shiva/courierquote/pkg/logger"
)

// QuoteRequest is the JSON body for POST /api/v1/quotes.
type QuoteRequest struct {
	PickupLocation   string     `json:"pickup_location"`
	DeliveryLocation string     `json:"delivery_location"`
	CollectionTime   *time.Time `json:"collection_time,omitempty"`
	DeliveryTime     *time.Time `json:"delivery_time,omitempty"`
	BusinessCredit   bool       `json:"business_credit"`
}

// QuoteHandler serves the full quote matrix.
type QuoteHandler struct {
	quotes *service.QuoteService
	logger *zap.Logger
}

// NewQuoteHandler creates a new quote handler.
func NewQuoteHandler(quotes *service.QuoteService, log *zap.Logger) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, logger: logger.OrNop(log).Named("http")}
}

// CreateQuote handles POST /api/v1/quotes
//
// Request body:
//
//	{
//	  "pickup_location": "SW1A 1AA",
//	  "delivery_location": "M1 1AE",
//	  "collection_time": "2026-03-10T09:00:00Z",
//	  "business_credit": false
//	}
//
// Response: quotes keyed by vehicle_id, plus a "debug" object saying which
// provider produced the distance and whether the fallback was used.
// A provider or configuration failure returns 502/503 with the debug object.
func (h *QuoteHandler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	matrix, err := h.quotes.BuildQuote(r.Context(), service.QuoteRequest{
		Pickup:         req.PickupLocation,
		Delivery:       req.DeliveryLocation,
		CollectionTime: req.CollectionTime,
		DeliveryTime:   req.DeliveryTime,
		BusinessCredit: req.BusinessCredit,
	})
	if err != nil {
		if matrix != nil {
			writeServiceError(w, h.logger, err, &matrix.Resolution)
			return
		}
		writeServiceError(w, h.logger, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, matrix)
}
