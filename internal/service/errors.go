package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/pkg/geo"
)

// ─── Quote Errors ───────────────────────────────────────────

var (
	// ErrValidation marks malformed input. It is returned before any
	// distance resolution is attempted.
	ErrValidation = errors.New("invalid request")

	// ErrConfiguration is returned when a provider was selected but its
	// credentials are missing. It is never replaced by the fallback distance.
	ErrConfiguration = errors.New("distance provider misconfigured")

	// ErrProvider is returned when the routing provider answered with an
	// explicit failure status (quota, billing, invalid key, no route).
	ErrProvider = errors.New("distance provider error")

	// ErrUnknownVehicle is returned when a recalculation names a vehicle that
	// does not exist or is inactive.
	ErrUnknownVehicle = errors.New("unknown or inactive vehicle")
)

// ResolveError is a request-failing distance resolution error. Kind is
// ErrConfiguration or ErrProvider; Err is the underlying cause.
type ResolveError struct {
	Kind     error
	Provider string
	// Location is set when the provider rejected one side of the route.
	Location string
	Err      error
}

func (e *ResolveError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Provider != "" {
		fmt.Fprintf(&b, " (%s)", e.Provider)
	}
	if e.Location != "" {
		fmt.Fprintf(&b, " for %q", e.Location)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *ResolveError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ─── Locations ──────────────────────────────────────────────

// ParseLocation validates free-text input and builds its normalised key.
// field names the request field in error messages.
func ParseLocation(field, raw string) (model.Location, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return model.Location{}, validationError("%s is required", field)
	case len(trimmed) > geo.MaxLocationLength:
		return model.Location{}, validationError("%s exceeds %d characters", field, geo.MaxLocationLength)
	case !strings.ContainsFunc(trimmed, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }):
		return model.Location{}, validationError("%s must contain letters or digits", field)
	}
	return model.Location{Raw: trimmed, Key: geo.Normalize(trimmed)}, nil
}
