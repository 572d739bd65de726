// Package analytics fetches the investigator dashboard aggregates and caches
// them for a short TTL.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"fraud-workbench/internal/api"
)

// DefaultTTL matches the backend's own dashboard cache.
const DefaultTTL = 10 * time.Second

// Filter selects the dashboard slice. Empty fields take the backend
// defaults: 24h, all, all.
type Filter struct {
	TimeRange string
	Severity  string
	RuleID    string
}

// Normalize fills defaults and lower-cases the severity.
func (f Filter) Normalize() Filter {
	if f.TimeRange == "" {
		f.TimeRange = "24h"
	}
	f.Severity = strings.ToLower(f.Severity)
	if f.Severity == "" {
		f.Severity = "all"
	}
	if f.RuleID == "" {
		f.RuleID = "all"
	}
	return f
}

// CacheKey is "{time_range}|{severity}|{rule_id}" of the normalized filter.
func (f Filter) CacheKey() string {
	n := f.Normalize()
	return n.TimeRange + "|" + n.Severity + "|" + n.RuleID
}

func (f Filter) query() api.Query {
	n := f.Normalize()
	return api.Query{}.
		Add("time_range", n.TimeRange).
		Add("severity", n.Severity).
		Add("rule_id", n.RuleID)
}

// Label is a string the backend may send as a JSON number.
type Label string

// UnmarshalJSON accepts strings, numbers and null.
func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	}
	*l = Label(data)
	return nil
}

// KPIs are the headline counters.
type KPIs struct {
	AlertsTotal     int `json:"alerts_total"`
	AlertsOpen      int `json:"alerts_open"`
	CasesOpen       int `json:"cases_open"`
	SuspectsFlagged int `json:"suspects_flagged"`
}

// HourBucket is one point of the alerts-by-hour series.
type HourBucket struct {
	TS    string `json:"ts"`
	Count int    `json:"count"`
}

// SeverityCount is one slice of the severity distribution.
type SeverityCount struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// RuleHit counts alerts per rule.
type RuleHit struct {
	RuleID Label `json:"rule_id"`
	Count  int   `json:"count"`
}

// Charts groups the dashboard series.
type Charts struct {
	AlertsByHour     []HourBucket    `json:"alerts_by_hour"`
	AlertsBySeverity []SeverityCount `json:"alerts_by_severity"`
	RuleHits         []RuleHit       `json:"rule_hits"`
}

// Suspect is one row of the top suspects table.
type Suspect struct {
	ID        Label   `json:"id"`
	RiskScore float64 `json:"risk_score"`
	Flags     int     `json:"flags"`
	Degree    int     `json:"degree"`
	LastSeen  string  `json:"last_seen"`
}

// Tables groups the dashboard tables.
type Tables struct {
	TopSuspects []Suspect `json:"top_suspects"`
}

// Dashboard is the /analytics/dashboard response.
type Dashboard struct {
	KPIs   KPIs   `json:"kpis"`
	Charts Charts `json:"charts"`
	Tables Tables `json:"tables"`
}

// Cache stores encoded dashboards.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Client reads the dashboard through an optional cache.
type Client struct {
	t      api.Transport
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewClient creates a Client. A nil cache disables caching; a non-positive
// ttl means DefaultTTL.
func NewClient(t api.Transport, cache Cache, ttl time.Duration, logger *slog.Logger) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{t: t, cache: cache, ttl: ttl, logger: logger}
}

// Dashboard returns the dashboard for f. Cache failures fall through to the
// backend and are only logged.
func (c *Client) Dashboard(ctx context.Context, f Filter) (Dashboard, bool, error) {
	const op = "analytics.Dashboard"
	key := f.CacheKey()

	if c.cache != nil {
		data, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("analytics cache read failed", "key", key, "error", err)
		case ok:
			var d Dashboard
			if err := json.Unmarshal(data, &d); err == nil {
				return d, true, nil
			}
			c.logger.Warn("analytics cache entry unreadable", "key", key)
		}
	}

	body, err := c.t.Get(ctx, "/analytics/dashboard", f.query())
	if err != nil {
		return Dashboard{}, false, err
	}

	var d Dashboard
	if err := api.DecodeJSON(op, body, &d); err != nil {
		return Dashboard{}, false, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, body, c.ttl); err != nil {
			c.logger.Warn("analytics cache write failed", "key", key, "error", err)
		}
	}
	return d, false, nil
}
