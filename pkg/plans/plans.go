// Package plans lists the subscription plans sold through checkout and granted by payment webhooks.
package plans

import (
	"strings"
	"time"
)

// Plan identifiers understood by checkout and webhook processing.
const (
	Monthly   = "monthly"
	Quarterly = "quarterly"
	Annual    = "annual"
)

// Plan describes a purchasable access period.
type Plan struct {
	ID         string
	Name       string
	PriceCents int64
	months     int
	years      int
}

var catalog = map[string]Plan{
	Monthly:   {ID: Monthly, Name: "Mensal", PriceCents: 2990, months: 1},
	Quarterly: {ID: Quarterly, Name: "Trimestral", PriceCents: 6600, months: 3},
	Annual:    {ID: Annual, Name: "Anual", PriceCents: 21600, years: 1},
}

// Lookup returns the plan registered under id.
func Lookup(id string) (Plan, bool) {
	plan, ok := catalog[strings.ToLower(strings.TrimSpace(id))]
	return plan, ok
}

// All returns the catalog ordered by price.
func All() []Plan {
	return []Plan{catalog[Monthly], catalog[Quarterly], catalog[Annual]}
}

// AccessUntil returns the end of the access period that starts at from.
func (plan Plan) AccessUntil(from time.Time) time.Time {
	return from.AddDate(plan.years, plan.months, 0)
}
