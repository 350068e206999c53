// Package geo provides location normalisation and unit helpers for distance
// resolution.
//
// Keys produced by Normalize are used both as cache keys and as the text sent
// to routing providers, so two spellings of the same postcode share one entry.
package geo

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// MilesPerMeter converts provider distances (metres) to miles.
	MilesPerMeter = 0.000621371

	// MaxLocationLength bounds free-text input.
	MaxLocationLength = 200
)

// ukPostcode matches full UK postcodes once spaces are removed,
// e.g. SW1A1AA, M11AE, EC1A1BB.
var ukPostcode = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]?[0-9][A-Z]{2}$`)

// ─── Normalisation ──────────────────────────────────────────

// Normalize returns the lookup key for a free-text location.
//
// Postcode-like input is upper-cased with every non-alphanumeric removed
// ("sw1a 1aa" → "SW1A1AA"). Anything else is upper-cased, trimmed and has
// internal whitespace collapsed to single spaces.
func Normalize(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return ""
	}
	if compact := alphanumeric(upper); IsPostcode(compact) {
		return compact
	}
	return strings.Join(strings.Fields(upper), " ")
}

// IsPostcode reports whether s (already compacted and upper-cased) has the
// shape of a UK postcode.
func IsPostcode(s string) bool {
	return ukPostcode.MatchString(s)
}

// FormatPostcode re-inserts the space before the inward code ("SW1A1AA" →
// "SW1A 1AA"). Non-postcodes are returned unchanged.
func FormatPostcode(key string) string {
	if !IsPostcode(key) {
		return key
	}
	return key[:len(key)-3] + " " + key[len(key)-3:]
}

func alphanumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ─── Units ──────────────────────────────────────────────────

// MetersToMiles converts metres to miles rounded to one decimal place.
func MetersToMiles(meters float64) float64 {
	return decimal.NewFromFloat(meters).
		Mul(decimal.NewFromFloat(MilesPerMeter)).
		Round(1).
		InexactFloat64()
}

// Point is a WGS-84 coordinate returned by geocoding.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LonLat returns the point in GeoJSON order.
func (p Point) LonLat() [2]float64 {
	return [2]float64{p.Lon, p.Lat}
}
