package model

import (
	"fmt"
	"strings"
)

// ─── Service catalog ────────────────────────────────────────

// ServiceCatalog resolves every service id, canonical or alias, to a single
// Service record. It is built once per rate snapshot.
type ServiceCatalog struct {
	services map[ServiceTier]Service
	order    []ServiceTier
	aliases  map[string]ServiceTier
}

// NewServiceCatalog indexes services and their aliases. An alias that
// collides with another tier's id or alias is rejected.
func NewServiceCatalog(services []Service) (*ServiceCatalog, error) {
	c := &ServiceCatalog{
		services: make(map[ServiceTier]Service, len(services)),
		aliases:  make(map[string]ServiceTier),
	}
	for _, s := range services {
		id := ServiceTier(normalizeID(string(s.ID)))
		if id == "" {
			return nil, fmt.Errorf("service catalog: empty service id")
		}
		if _, dup := c.services[id]; dup {
			return nil, fmt.Errorf("service catalog: duplicate service %q", id)
		}
		s.ID = id
		c.services[id] = s
		c.order = append(c.order, id)
	}
	for _, s := range c.services {
		c.aliases[string(s.ID)] = s.ID
	}
	for _, id := range c.order {
		for _, alias := range c.services[id].Aliases {
			a := normalizeID(alias)
			if a == "" {
				continue
			}
			if owner, taken := c.aliases[a]; taken && owner != id {
				return nil, fmt.Errorf("service catalog: alias %q of %q already names %q", a, id, owner)
			}
			c.aliases[a] = id
		}
	}
	return c, nil
}

// Resolve maps any service id to its canonical tier.
func (c *ServiceCatalog) Resolve(id string) (ServiceTier, bool) {
	if c == nil {
		return "", false
	}
	tier, ok := c.aliases[normalizeID(id)]
	return tier, ok
}

// Get returns the Service record for any id, canonical or alias.
func (c *ServiceCatalog) Get(id string) (Service, bool) {
	tier, ok := c.Resolve(id)
	if !ok {
		return Service{}, false
	}
	s, ok := c.services[tier]
	return s, ok
}

// Active returns the active services in configuration order.
func (c *ServiceCatalog) Active() []Service {
	if c == nil {
		return nil
	}
	out := make([]Service, 0, len(c.order))
	for _, id := range c.order {
		if s := c.services[id]; s.Active {
			out = append(out, s)
		}
	}
	return out
}

// All returns every service in configuration order.
func (c *ServiceCatalog) All() []Service {
	if c == nil {
		return nil
	}
	out := make([]Service, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.services[id])
	}
	return out
}

// AliasesOf lists the non-canonical names of a tier.
func (c *ServiceCatalog) AliasesOf(tier ServiceTier) []string {
	s, ok := c.services[tier]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(s.Aliases))
	for _, a := range s.Aliases {
		if n := normalizeID(a); n != "" && n != string(tier) {
			out = append(out, n)
		}
	}
	return out
}

// ─── Rate table ─────────────────────────────────────────────

// RateTable is an immutable snapshot of everything the pricing core reads.
type RateTable struct {
	Vehicles      []Vehicle
	Services      *ServiceCatalog
	Night         NightRateConfig
	VATRate       float64
	FallbackMiles float64
}

// Vehicle looks up a vehicle by id.
func (t *RateTable) Vehicle(id string) (Vehicle, bool) {
	if t == nil {
		return Vehicle{}, false
	}
	id = normalizeID(id)
	for _, v := range t.Vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return Vehicle{}, false
}

// ActiveVehicles returns the active vehicles in configuration order.
func (t *RateTable) ActiveVehicles() []Vehicle {
	out := make([]Vehicle, 0, len(t.Vehicles))
	for _, v := range t.Vehicles {
		if v.Active {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks the invariants the calculator relies on.
func (t *RateTable) Validate() error {
	seen := make(map[string]bool, len(t.Vehicles))
	for _, v := range t.Vehicles {
		switch {
		case v.ID == "":
			return fmt.Errorf("rates: vehicle with empty id")
		case seen[v.ID]:
			return fmt.Errorf("rates: duplicate vehicle %q", v.ID)
		case v.RatePerMile < 0 || v.AdminFee < 0 || v.MinCharge < 0:
			return fmt.Errorf("rates: vehicle %q has a negative tariff", v.ID)
		}
		seen[v.ID] = true
	}
	if t.Services == nil {
		return fmt.Errorf("rates: no service catalog")
	}
	for _, s := range t.Services.All() {
		if s.Multiplier < 0 {
			return fmt.Errorf("rates: service %q has a negative multiplier", s.ID)
		}
	}
	n := t.Night
	if n.StartHour < 0 || n.StartHour > 23 || n.EndHour < 0 || n.EndHour > 23 {
		return fmt.Errorf("rates: night window hours must be 0-23, got %d-%d", n.StartHour, n.EndHour)
	}
	if n.Enabled && n.Multiplier <= 0 {
		return fmt.Errorf("rates: night multiplier must be positive, got %v", n.Multiplier)
	}
	if !n.ApplyMode.Valid() {
		return fmt.Errorf("rates: unknown night apply mode %q", n.ApplyMode)
	}
	if t.FallbackMiles < 0 {
		return fmt.Errorf("rates: fallback distance must not be negative")
	}
	return nil
}

// NormalizeID lower-cases and trims an identifier.
func NormalizeID(id string) string {
	return normalizeID(id)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
