// Package catalog holds the static plan catalog and action cost table.
// Both are read-only at runtime; changing them is a config change and a
// deploy, never a runtime write.
package catalog

import (
	"fmt"

	"github.com/newsroom-hq/creditledger/internal/domain"
)

// Plan describes a subscription plan and its feature limits.
type Plan struct {
	ID                string
	MonthlyCredits    int64
	PriceCents        int64
	MaxJournalists    int
	MaxArticlesPerDay int
}

// Catalog is an immutable plan + cost lookup built once at startup.
type Catalog struct {
	plans map[string]Plan
	costs map[string]int64
}

// New builds a catalog from explicit tables. Empty tables fall back to
// the built-in defaults.
func New(plans []Plan, costs map[string]int64) *Catalog {
	c := &Catalog{
		plans: make(map[string]Plan, len(plans)),
		costs: make(map[string]int64, len(costs)),
	}
	if len(plans) == 0 {
		plans = defaultPlans
	}
	for _, p := range plans {
		c.plans[p.ID] = p
	}
	if len(costs) == 0 {
		costs = defaultCosts
	}
	for action, cost := range costs {
		c.costs[action] = cost
	}
	return c
}

// Default returns a catalog with the built-in plan and cost tables.
func Default() *Catalog {
	return New(nil, nil)
}

// Plan returns the plan definition for id.
func (c *Catalog) Plan(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("plan %q: %w", id, domain.ErrUnknownPlan)
	}
	return p, nil
}

// Cost returns the credit cost of one unit of action.
func (c *Catalog) Cost(action string) (int64, error) {
	cost, ok := c.costs[action]
	if !ok {
		return 0, fmt.Errorf("action %q: %w", action, domain.ErrUnknownAction)
	}
	return cost, nil
}

// Validate checks the tables for nonsensical values.
func (c *Catalog) Validate() error {
	for id, p := range c.plans {
		if p.MonthlyCredits < 0 || p.PriceCents < 0 {
			return fmt.Errorf("plan %q has negative credits or price", id)
		}
	}
	for action, cost := range c.costs {
		if cost <= 0 {
			return fmt.Errorf("action %q must cost at least 1 credit", action)
		}
	}
	return nil
}

var defaultPlans = []Plan{
	{ID: "trial", MonthlyCredits: 60, PriceCents: 0, MaxJournalists: 1, MaxArticlesPerDay: 2},
	{ID: "starter", MonthlyCredits: 150, PriceCents: 2900, MaxJournalists: 1, MaxArticlesPerDay: 5},
	{ID: "growth", MonthlyCredits: 575, PriceCents: 9900, MaxJournalists: 3, MaxArticlesPerDay: 20},
	{ID: "scale", MonthlyCredits: 2400, PriceCents: 34900, MaxJournalists: 10, MaxArticlesPerDay: 100},
}

var defaultCosts = map[string]int64{
	"article_generation": 5,
	"article_research":   3,
	"image_generation":   2,
	"social_post":        1,
	"seo_optimization":   1,
	"translation":        2,
}
