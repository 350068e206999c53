// Package provider contains the routing/geocoding back ends the distance
// resolver can query.
//
// Every provider reports failures as one of two types so the resolver can
// apply its policy without knowing provider details:
//
//	*StatusError     the provider answered with an explicit failure (quota,
//	                 billing, invalid key, no route, unknown postcode)
//	*TransportError  the provider could not be reached or did not answer in time
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/shiva/courierquote/config"
	"github.com/shiva/courierquote/internal/model"
)

// DistanceProvider returns the driving distance between two locations in metres.
type DistanceProvider interface {
	Name() string
	DistanceMeters(ctx context.Context, origin, destination model.Location) (float64, error)
}

// ErrMissingAPIKey is returned by Select when a provider is chosen explicitly
// but its credentials are absent.
var ErrMissingAPIKey = errors.New("distance provider api key missing")

// StatusError is an explicit failure reported by the provider.
type StatusError struct {
	Provider string
	Status   string
	Message  string
	// Location is the offending input when the failure is tied to one side
	// of the route (e.g. a postcode that did not geocode).
	Location string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: status %s", e.Provider, e.Status)
	if e.Location != "" {
		msg += fmt.Sprintf(" for %q", e.Location)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// TransportError wraps a network or timeout failure talking to the provider.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a network-level failure: a timeout,
// cancellation, DNS or connection error.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.As(err, &urlErr) ||
		errors.As(err, &netErr)
}

// Select builds the provider named in cfg.
//
//	explicit provider, key present  → that provider
//	explicit provider, key missing  → ErrMissingAPIKey
//	no provider named               → first provider with a key
//	no provider named, no keys      → nil, nil (fallback-only mode)
func Select(cfg config.DistanceConfig, httpClient *http.Client) (DistanceProvider, error) {
	switch cfg.Provider {
	case model.ProviderGoogle:
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("%w: GOOGLE_MAPS_API_KEY is required for provider %q", ErrMissingAPIKey, cfg.Provider)
		}
		return NewGoogle(cfg.GoogleAPIKey, httpClient)
	case model.ProviderOpenRoute:
		if cfg.OpenRouteAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENROUTE_API_KEY is required for provider %q", ErrMissingAPIKey, cfg.Provider)
		}
		return NewOpenRoute(cfg.OpenRouteAPIKey, cfg.OpenRouteBaseURL, httpClient), nil
	case "":
		switch {
		case cfg.GoogleAPIKey != "":
			return NewGoogle(cfg.GoogleAPIKey, httpClient)
		case cfg.OpenRouteAPIKey != "":
			return NewOpenRoute(cfg.OpenRouteAPIKey, cfg.OpenRouteBaseURL, httpClient), nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown distance provider %q", cfg.Provider)
	}
}
