package rules

import (
	"strconv"
	"strings"

	"fraud-workbench/internal/api"
	wberrors "fraud-workbench/internal/errors"
)

// Params holds raw parameter input keyed by backend parameter name, exactly
// as typed by the investigator. Missing keys take the configured defaults.
type Params map[string]string

// Defaults controls how empty or out-of-range parameters are filled.
type Defaults struct {
	RiskThreshold     float64
	HighRiskThreshold float64
	MinRiskyAccounts  int
	Limit             int
	// SendTemporal forwards R8-R10 temporal parameters. When false the
	// server-side defaults apply.
	SendTemporal bool
}

// DefaultDefaults returns the stock parameter defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		RiskThreshold:     DefaultRiskThreshold,
		HighRiskThreshold: DefaultRiskThreshold,
		MinRiskyAccounts:  DefaultMinRiskyAccounts,
		Limit:             DefaultLimit,
	}
}

// BuildQuery renders the query for rule from params. Parameters appear in
// catalog order and limit is always last.
func BuildQuery(rule Rule, params Params, d Defaults) (api.Query, error) {
	if d.Limit < 1 {
		d.Limit = DefaultLimit
	}
	if d.MinRiskyAccounts < 1 {
		d.MinRiskyAccounts = DefaultMinRiskyAccounts
	}

	q := make(api.Query, 0, len(rule.Required)+len(rule.Optional)+1)
	for _, name := range rule.Required {
		raw := strings.TrimSpace(params[name])
		switch name {
		case ParamRiskThreshold, ParamHighRiskThreshold:
			def := d.RiskThreshold
			if name == ParamHighRiskThreshold && d.HighRiskThreshold > 0 {
				def = d.HighRiskThreshold
			}
			v, err := parseThreshold(name, raw, def)
			if err != nil {
				return nil, err
			}
			q = q.Add(name, formatFloat(v))
		case ParamMinRiskyAccounts:
			q = q.Add(name, strconv.Itoa(ClampInt(raw, d.MinRiskyAccounts)))
		default:
			if raw == "" {
				return nil, wberrors.Validation("rules.BuildQuery", name+" is required for "+rule.Key)
			}
			q = q.Add(name, raw)
		}
	}

	if d.SendTemporal {
		for _, name := range rule.Optional {
			if raw := strings.TrimSpace(params[name]); raw != "" {
				q = q.Add(name, raw)
			}
		}
	}

	q = q.Add(ParamLimit, strconv.Itoa(ClampLimit(params[ParamLimit], d.Limit)))
	return q, nil
}

// Path joins the rule endpoint and query: "/neo-alerts/r1?riskThreshold=0.8&limit=50".
func Path(rule Rule, q api.Query) string {
	if len(q) == 0 {
		return rule.Endpoint
	}
	return rule.Endpoint + "?" + q.Encode()
}

// ClampLimit parses a limit. Empty, non-numeric and values below 1 yield def
// (or DefaultLimit when def is not positive).
func ClampLimit(raw string, def int) int {
	if def < 1 {
		def = DefaultLimit
	}
	return ClampInt(raw, def)
}

// ClampInt parses a positive integer, falling back to def.
func ClampInt(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func parseThreshold(name, raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, wberrors.Validation("rules.BuildQuery", name+" must be a number")
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
