// Package rules describes the detection rule families the workbench can
// query: their endpoints, parameter shapes and the anchor kind they produce.
package rules

import (
	"strconv"
	"strings"

	"fraud-workbench/internal/anchor"
	wberrors "fraud-workbench/internal/errors"
)

// Rule keys.
const (
	R1  = "R1"
	R2  = "R2"
	R3  = "R3"
	R7  = "R7"
	R8  = "R8"
	R9  = "R9"
	R10 = "R10"
	All = "ALL"
)

// Parameter names as the backend expects them.
const (
	ParamRiskThreshold     = "riskThreshold"
	ParamHighRiskThreshold = "highRiskThreshold"
	ParamMinRiskyAccounts  = "minRiskyAccounts"
	ParamTemporalWindow    = "temporalWindow"
	ParamDuration          = "duration"
	ParamAmount            = "amount"
	ParamMinAmount         = "minAmount"
	ParamLimit             = "limit"
)

// Defaults applied when the caller leaves a value empty or out of range.
const (
	DefaultLimit            = 50
	DefaultMinRiskyAccounts = 2
	DefaultRiskThreshold    = 0.8
)

// Rule is one catalog row.
type Rule struct {
	Key        string
	Name       string
	Endpoint   string
	AnchorKind anchor.Kind // empty for ALL, where each alert carries its own
	Required   []string
	Optional   []string
}

// Temporal reports whether the rule takes the R8-R10 temporal parameters.
func (r Rule) Temporal() bool {
	return len(r.Optional) > 0
}

var temporalParams = []string{ParamTemporalWindow, ParamDuration, ParamAmount, ParamMinAmount}

var builtin = []Rule{
	{Key: R1, Name: "High-risk account", Endpoint: "/neo-alerts/r1", AnchorKind: anchor.KindAccount,
		Required: []string{ParamRiskThreshold}},
	{Key: R2, Name: "Shared device", Endpoint: "/neo-alerts/r2", AnchorKind: anchor.KindDevice,
		Required: []string{ParamHighRiskThreshold, ParamMinRiskyAccounts}},
	{Key: R3, Name: "Fraud ring", Endpoint: "/neo-alerts/r3", AnchorKind: anchor.KindAccount,
		Required: []string{ParamRiskThreshold, ParamMinRiskyAccounts}},
	{Key: R7, Name: "Mule collector", Endpoint: "/neo-alerts/r7", AnchorKind: anchor.KindAccount,
		Required: []string{ParamRiskThreshold, ParamMinRiskyAccounts}},
	{Key: R8, Name: "Rapid pass-through", Endpoint: "/neo-alerts/r8", AnchorKind: anchor.KindAccount,
		Optional: temporalParams},
	{Key: R9, Name: "Layered chain", Endpoint: "/neo-alerts/r9", AnchorKind: anchor.KindAccount,
		Optional: temporalParams},
	{Key: R10, Name: "Structured amounts", Endpoint: "/neo-alerts/r10", AnchorKind: anchor.KindAccount,
		Optional: temporalParams},
	{Key: All, Name: "All rules", Endpoint: "/neo-alerts/search",
		Required: []string{ParamRiskThreshold, ParamMinRiskyAccounts}},
}

// Catalog is an immutable lookup table of rule families.
type Catalog struct {
	rules map[string]Rule
	order []string
}

// NewCatalog builds a catalog from rows. Later rows replace earlier rows with
// the same key.
func NewCatalog(rows ...Rule) *Catalog {
	c := &Catalog{rules: make(map[string]Rule, len(rows))}
	for _, r := range rows {
		r.Key = strings.ToUpper(r.Key)
		if _, exists := c.rules[r.Key]; !exists {
			c.order = append(c.order, r.Key)
		}
		c.rules[r.Key] = r
	}
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return NewCatalog(builtin...)
}

// Resolve returns the rule row for ruleKey.
func (c *Catalog) Resolve(ruleKey string) (Rule, error) {
	r, ok := c.rules[strings.ToUpper(strings.TrimSpace(ruleKey))]
	if !ok {
		return Rule{}, wberrors.Validation("rules.Resolve", "unknown rule "+strconv.Quote(ruleKey))
	}
	return r, nil
}

// AnchorKind returns the anchor kind produced by ruleKey, or "" when the
// rule is unknown or does not fix one.
func (c *Catalog) AnchorKind(ruleKey string) anchor.Kind {
	r, err := c.Resolve(ruleKey)
	if err != nil {
		return ""
	}
	return r.AnchorKind
}

// Keys returns the rule keys in catalog order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Rules returns the rows in catalog order.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.rules[k])
	}
	return out
}

// IsGraphRule reports whether key names an R-family rule evaluated against
// the graph (R followed by digits). Those alerts are synthetic and have no
// database row behind them.
func IsGraphRule(key string) bool {
	key = strings.ToUpper(strings.TrimSpace(key))
	if len(key) < 2 || key[0] != 'R' {
		return false
	}
	for _, ch := range key[1:] {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
