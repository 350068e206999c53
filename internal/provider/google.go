package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/pkg/geo"
)

// Google resolves distances with a single Distance Matrix call.
type Google struct {
	client *maps.Client
}

// NewGoogle creates a Google provider with the given API key. Extra client
// options (base URL, rate limit) are appended after the key.
func NewGoogle(apiKey string, httpClient *http.Client, opts ...maps.ClientOption) (*Google, error) {
	all := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if httpClient != nil {
		all = append(all, maps.WithHTTPClient(httpClient))
	}
	all = append(all, opts...)

	client, err := maps.NewClient(all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Google{client: client}, nil
}

// Name implements DistanceProvider.
func (g *Google) Name() string { return model.ProviderGoogle }

// DistanceMeters implements DistanceProvider. The request carries both
// locations; a non-OK top-level or element status is a StatusError.
func (g *Google) DistanceMeters(ctx context.Context, origin, destination model.Location) (float64, error) {
	r := &maps.DistanceMatrixRequest{
		Origins:      []string{queryText(origin)},
		Destinations: []string{queryText(destination)},
		Mode:         maps.TravelModeDriving,
		Units:        maps.UnitsImperial,
		Language:     "en-GB",
	}

	resp, err := g.client.DistanceMatrix(ctx, r)
	if err != nil {
		if IsTransport(err) {
			return 0, &TransportError{Provider: g.Name(), Err: err}
		}
		return 0, googleStatusError(err)
	}

	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 || resp.Rows[0].Elements[0] == nil {
		return 0, &StatusError{Provider: g.Name(), Status: "EMPTY_RESPONSE", Message: "distance matrix returned no elements"}
	}

	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, &StatusError{
			Provider: g.Name(),
			Status:   el.Status,
			Message:  fmt.Sprintf("no route from %s to %s", origin.Key, destination.Key),
		}
	}
	return float64(el.Distance.Meters), nil
}

// googleStatusError turns "maps: REQUEST_DENIED - The provided API key is
// invalid." into a StatusError.
func googleStatusError(err error) *StatusError {
	text := strings.TrimPrefix(err.Error(), "maps: ")
	status, msg, found := strings.Cut(text, " - ")
	if !found || status == "" || strings.ContainsAny(status, " :") {
		return &StatusError{Provider: model.ProviderGoogle, Status: "INVALID_RESPONSE", Message: err.Error()}
	}
	return &StatusError{Provider: model.ProviderGoogle, Status: status, Message: msg}
}

func queryText(loc model.Location) string {
	return geo.FormatPostcode(loc.Key)
}
