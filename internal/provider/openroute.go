package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/pkg/geo"
)

// OpenRoute resolves distances in two steps: geocode both ends, then ask the
// driving matrix endpoint for the distance between the two points.
type OpenRoute struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenRoute creates an OpenRouteService provider. A nil client uses
// http.DefaultClient; the resolver bounds every call with its own deadline.
func NewOpenRoute(apiKey, baseURL string, client *http.Client) *OpenRoute {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = "https://api.openrouteservice.org"
	}
	return &OpenRoute{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Name implements DistanceProvider.
func (o *OpenRoute) Name() string { return model.ProviderOpenRoute }

// DistanceMeters implements DistanceProvider.
func (o *OpenRoute) DistanceMeters(ctx context.Context, origin, destination model.Location) (float64, error) {
	from, err := o.Geocode(ctx, origin)
	if err != nil {
		return 0, err
	}
	to, err := o.Geocode(ctx, destination)
	if err != nil {
		return 0, err
	}
	return o.matrix(ctx, from, to)
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Geocode returns the best match for loc, restricted to Great Britain.
func (o *OpenRoute) Geocode(ctx context.Context, loc model.Location) (geo.Point, error) {
	q := url.Values{}
	q.Set("api_key", o.apiKey)
	q.Set("text", geo.FormatPostcode(loc.Key))
	q.Set("size", "1")
	q.Set("boundary.country", "GB")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/geocode/search?"+q.Encode(), nil)
	if err != nil {
		return geo.Point{}, &StatusError{Provider: o.Name(), Status: "BAD_REQUEST", Message: err.Error(), Location: loc.Key}
	}
	req.Header.Set("Accept", "application/json")

	var body geocodeResponse
	if err := o.do(req, loc.Key, &body); err != nil {
		return geo.Point{}, err
	}

	if len(body.Features) == 0 || len(body.Features[0].Geometry.Coordinates) < 2 {
		return geo.Point{}, &StatusError{Provider: o.Name(), Status: "NOT_FOUND", Message: "location could not be geocoded", Location: loc.Key}
	}
	c := body.Features[0].Geometry.Coordinates
	return geo.Point{Lon: c[0], Lat: c[1]}, nil
}

type matrixRequest struct {
	Locations    [][2]float64 `json:"locations"`
	Sources      []int        `json:"sources"`
	Destinations []int        `json:"destinations"`
	Metrics      []string     `json:"metrics"`
	Units        string       `json:"units"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
}

func (o *OpenRoute) matrix(ctx context.Context, from, to geo.Point) (float64, error) {
	payload, err := json.Marshal(matrixRequest{
		Locations:    [][2]float64{from.LonLat(), to.LonLat()},
		Sources:      []int{0},
		Destinations: []int{1},
		Metrics:      []string{"distance"},
		Units:        "m",
	})
	if err != nil {
		return 0, fmt.Errorf("encode matrix request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v2/matrix/driving-car", bytes.NewReader(payload))
	if err != nil {
		return 0, &StatusError{Provider: o.Name(), Status: "BAD_REQUEST", Message: err.Error()}
	}
	req.Header.Set("Authorization", o.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var body matrixResponse
	if err := o.do(req, "", &body); err != nil {
		return 0, err
	}

	if len(body.Distances) == 0 || len(body.Distances[0]) == 0 || body.Distances[0][0] == nil {
		return 0, &StatusError{Provider: o.Name(), Status: "NO_ROUTE", Message: "matrix returned no distance"}
	}
	return *body.Distances[0][0], nil
}

// do sends req and decodes a 200 response into out. Non-200 answers become
// StatusErrors; anything that fails before a response arrives is transport.
func (o *OpenRoute) do(req *http.Request, location string, out any) error {
	resp, err := o.client.Do(req)
	if err != nil {
		return &TransportError{Provider: o.Name(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransportError{Provider: o.Name(), Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		// The service itself was not reached.
		return &TransportError{
			Provider: o.Name(),
			Err:      fmt.Errorf("gateway status %d: %s", resp.StatusCode, openRouteMessage(raw)),
		}
	default:
		return &StatusError{
			Provider: o.Name(),
			Status:   strconv.Itoa(resp.StatusCode),
			Message:  openRouteMessage(raw),
			Location: location,
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &StatusError{Provider: o.Name(), Status: "INVALID_RESPONSE", Message: err.Error(), Location: location}
	}
	return nil
}

// openRouteMessage extracts the message from either error shape the API uses:
// {"error":"text"} or {"error":{"code":2010,"message":"text"}}.
func openRouteMessage(raw []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Error) == 0 {
		return strings.TrimSpace(string(raw))
	}

	var text string
	if err := json.Unmarshal(envelope.Error, &text); err == nil {
		return text
	}
	var detail struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil && detail.Message != "" {
		return detail.Message
	}
	return string(envelope.Error)
}
