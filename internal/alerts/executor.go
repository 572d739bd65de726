package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"fraud-workbench/internal/api"
	"fraud-workbench/internal/rules"
)

// Result is one completed alert query.
type Result struct {
	RuleKey string
	Params  rules.Params
	Path    string
	Alerts  []Alert
}

// Executor builds and runs alert queries and keeps the last good result set.
type Executor struct {
	transport api.Transport
	catalog   *rules.Catalog
	defaults  rules.Defaults
	logger    *slog.Logger

	mu      sync.RWMutex
	current *Result
}

// NewExecutor creates an executor.
func NewExecutor(t api.Transport, catalog *rules.Catalog, defaults rules.Defaults, logger *slog.Logger) *Executor {
	if catalog == nil {
		catalog = rules.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		transport: t,
		catalog:   catalog,
		defaults:  defaults,
		logger:    logger,
	}
}

// Catalog returns the rule catalog used for resolution.
func (e *Executor) Catalog() *rules.Catalog {
	return e.catalog
}

// Fetch runs the query for ruleKey without touching the stored result set.
func (e *Executor) Fetch(ctx context.Context, ruleKey string, params rules.Params) (*Result, error) {
	rule, err := e.catalog.Resolve(ruleKey)
	if err != nil {
		return nil, err
	}
	q, err := rules.BuildQuery(rule, params, e.defaults)
	if err != nil {
		return nil, err
	}

	body, err := e.transport.Get(ctx, rule.Endpoint, q)
	if err != nil {
		return nil, err
	}

	return &Result{
		RuleKey: rule.Key,
		Params:  copyParams(params),
		Path:    rules.Path(rule, q),
		Alerts:  e.decode(rule.Endpoint, body),
	}, nil
}

// FetchFamily fetches persisted alerts of a rule family (e.g. FAF).
func (e *Executor) FetchFamily(ctx context.Context, family string) (*Result, error) {
	family = strings.ToUpper(strings.TrimSpace(family))
	q := api.Query{}.Add("family", family)
	body, err := e.transport.Get(ctx, "/alerts", q)
	if err != nil {
		return nil, err
	}
	return &Result{
		RuleKey: family,
		Path:    "/alerts?" + q.Encode(),
		Alerts:  e.decode("/alerts", body),
	}, nil
}

// Store makes res the current result set.
func (e *Executor) Store(res *Result) {
	if res == nil {
		return
	}
	e.mu.Lock()
	e.current = res
	e.mu.Unlock()
}

// FetchAlerts fetches and stores the result. On error the previous result
// set is left as it was.
func (e *Executor) FetchAlerts(ctx context.Context, ruleKey string, params rules.Params) ([]Alert, error) {
	res, err := e.Fetch(ctx, ruleKey, params)
	if err != nil {
		return nil, err
	}
	e.Store(res)
	return res.Alerts, nil
}

// Current returns the last stored alerts.
func (e *Executor) Current() []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return nil
	}
	return e.current.Alerts
}

// Last returns the rule key and params of the last stored result.
func (e *Executor) Last() (string, rules.Params, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return "", nil, false
	}
	return e.current.RuleKey, copyParams(e.current.Params), true
}

type refreshRequest struct {
	RuleID string `json:"rule_id,omitempty"`
}

// Refresh asks the backend to recompute alerts and returns how many were
// generated. ruleID may be empty to refresh every rule.
func (e *Executor) Refresh(ctx context.Context, ruleID string) (int, error) {
	var out struct {
		Status    string `json:"status"`
		Generated int    `json:"generated_alerts"`
	}
	if err := api.PostJSONTo(ctx, e.transport, "/alerts/refresh", refreshRequest{RuleID: ruleID}, &out); err != nil {
		return 0, err
	}
	return out.Generated, nil
}

// decode parses an alert array. Anything other than an array yields an
// empty list; elements that fail to decode are skipped.
func (e *Executor) decode(endpoint string, body []byte) []Alert {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		if len(body) > 0 {
			e.logger.Warn("alert response is not an array", "endpoint", endpoint)
		}
		return []Alert{}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		e.logger.Warn("failed to decode alert response", "endpoint", endpoint, "error", err)
		return []Alert{}
	}

	out := make([]Alert, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		var a Alert
		if err := json.Unmarshal(r, &a); err != nil {
			skipped++
			continue
		}
		out = append(out, a)
	}
	if skipped > 0 {
		e.logger.Warn("skipped malformed alerts", "endpoint", endpoint, "skipped", skipped)
	}
	return out
}

func copyParams(p rules.Params) rules.Params {
	if p == nil {
		return nil
	}
	out := make(rules.Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
