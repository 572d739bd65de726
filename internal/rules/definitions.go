package rules

import (
	"context"
	"strings"

	"fraud-workbench/internal/api"
)

// Definition is a rule as listed by the backend's /rules endpoint.
type Definition struct {
	ID          int    `json:"id"`
	Key         string `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Enabled     bool   `json:"enabled"`
}

// FetchDefinitions lists rule definitions for the rule selector. On failure
// it returns the built-in catalog rows alongside the error so the selector
// can still be populated.
func FetchDefinitions(ctx context.Context, t api.Transport, c *Catalog) ([]Definition, error) {
	body, err := t.Get(ctx, "/rules", nil)
	if err == nil {
		var defs []Definition
		if err = api.DecodeJSON("GET /rules", body, &defs); err == nil {
			for i := range defs {
				if _, rerr := c.Resolve(defs[i].Name); rerr == nil {
					defs[i].Key = strings.ToUpper(defs[i].Name)
				}
			}
			return defs, nil
		}
	}
	return c.Definitions(), err
}

// Definitions renders the catalog as selector entries.
func (c *Catalog) Definitions() []Definition {
	rows := c.Rules()
	defs := make([]Definition, 0, len(rows))
	for _, r := range rows {
		defs = append(defs, Definition{Key: r.Key, Name: r.Name, Enabled: true})
	}
	return defs
}
