// Package handler contains HTTP request handlers for the courier quoting API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/internal/service"
)

// maxBodyBytes bounds request bodies; quote requests are a few hundred bytes.
const maxBodyBytes = 64 << 10

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Debug   *model.Resolution `json:"debug,omitempty"`
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_json",
			Message: err.Error(),
		})
		return false
	}
	return true
}

// writeServiceError maps a service error to its HTTP status.
//
//	validation          → 400
//	unknown vehicle     → 404
//	promo errors        → 422 (503 when no promo store is configured)
//	provider error      → 502
//	configuration error → 503
//	caller cancelled    → 503, not logged as a failure
//	anything else       → 500
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, debug *model.Resolution) {
	resp := errorResponse{Message: err.Error(), Debug: debug}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, service.ErrValidation):
		status, resp.Error = http.StatusBadRequest, "validation_error"
	case errors.Is(err, service.ErrUnknownVehicle):
		status, resp.Error = http.StatusNotFound, "unknown_vehicle"
	case errors.Is(err, service.ErrPromoUnavailable):
		status, resp.Error = http.StatusServiceUnavailable, "promo_unavailable"
	case service.PromoErrorKind(err) != "":
		status, resp.Error = http.StatusUnprocessableEntity, service.PromoErrorKind(err)
	case errors.Is(err, service.ErrProvider):
		status, resp.Error = http.StatusBadGateway, "provider_error"
	case errors.Is(err, service.ErrConfiguration):
		status, resp.Error = http.StatusServiceUnavailable, "configuration_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, resp.Error = http.StatusServiceUnavailable, "request_cancelled"
		logger.Debug("request cancelled by caller")
	default:
		logger.Error("unhandled service error", zap.Error(err))
		resp.Error, resp.Message = "internal_error", ""
	}

	writeJSON(w, status, resp)
}

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
