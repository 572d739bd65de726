package dispute

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"fraud-workbench/internal/alerts"
	"fraud-workbench/internal/api"
	wberrors "fraud-workbench/internal/errors"
)

type afasaServer struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
	status int
}

func (s *afasaServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.paths = append(s.paths, r.Method+" "+r.URL.Path)
		s.bodies = append(s.bodies, body)
		status := s.status
		s.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			io.WriteString(w, `{"description":"Dispute is not on hold"}`)
			return
		}
		switch {
		case r.URL.Path == "/afasa/disputes":
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"id":9,"alert_id":42,"status":"PENDING_HOLD","reason_category":"FMS_DETECTED","suspicion_type":"MONEY_MULE"}`)
		case strings.HasSuffix(r.URL.Path, "/hold"):
			io.WriteString(w, `{"id":9,"status":"HELD","hold_start_at":"2025-03-01T10:00:00"}`)
		case strings.HasSuffix(r.URL.Path, "/release"):
			io.WriteString(w, `{"id":9,"status":"RELEASED"}`)
		case r.URL.Path == "/afasa/reports/summary":
			io.WriteString(w, `{"total_disputes":3,"by_status":{"HELD":2,"RELEASED":1},"by_suspicion":{"MONEY_MULE":3}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}
}

func newClient(t *testing.T) (*Client, *afasaServer) {
	t.Helper()
	as := &afasaServer{}
	srv := httptest.NewServer(as.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(api.NewClient(srv.URL), "analyst1"), as
}

func TestCreateRejectsGraphRuleAlerts(t *testing.T) {
	c, as := newClient(t)

	tests := []alerts.Alert{
		{ID: "R1-1", RuleKey: "R1"},
		{ID: "17", RuleKey: "R7"},
		{ID: "R3-5"},
		{ID: "no-digits", RuleKey: "FAF"},
	}
	for _, a := range tests {
		_, err := c.Create(context.Background(), a, CreateOptions{})
		if !wberrors.Is(err, wberrors.ErrIneligibleAlert) {
			t.Errorf("Create(%+v): expected IneligibleAlert, got %v", a, err)
		}
	}
	if len(as.paths) != 0 {
		t.Errorf("ineligible alerts must not reach the backend: %v", as.paths)
	}
	if _, state, ok := c.Active(); ok || state != NoDispute {
		t.Error("no dispute should be active")
	}
}

func TestCreatePostsNumericAlertID(t *testing.T) {
	c, as := newClient(t)
	score := 0.7
	a := alerts.Alert{ID: "42", RuleKey: "FAF", TxID: "TX-1", AfasaRiskScore: &score}

	d, err := c.Create(context.Background(), a, CreateOptions{})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if d.ID != 9 || d.Status != "PENDING_HOLD" {
		t.Errorf("dispute = %+v", d)
	}
	body := as.bodies[0]
	if body["alert_id"] != float64(42) {
		t.Errorf("alert_id = %v (%T)", body["alert_id"], body["alert_id"])
	}
	if body["tx_id"] != "TX-1" || body["reason_category"] != "FMS_DETECTED" ||
		body["suspicion_type"] != "MONEY_MULE" || body["initiated_by"] != "analyst1" {
		t.Errorf("unexpected body %v", body)
	}
	if _, state, _ := c.Active(); state != Created {
		t.Errorf("state = %v", state)
	}
}

func TestCreateUsesAlertSuspicionType(t *testing.T) {
	c, as := newClient(t)
	a := alerts.Alert{ID: "5", RuleKey: "FAF", AfasaSuspicionType: "ACCOUNT_TAKEOVER"}
	if _, err := c.Create(context.Background(), a, CreateOptions{ReasonCategory: "CUSTOMER_REPORTED"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if as.bodies[0]["suspicion_type"] != "ACCOUNT_TAKEOVER" || as.bodies[0]["reason_category"] != "CUSTOMER_REPORTED" {
		t.Errorf("unexpected body %v", as.bodies[0])
	}
}

func TestLifecycle(t *testing.T) {
	c, as := newClient(t)
	ctx := context.Background()

	if _, err := c.Create(ctx, alerts.Alert{ID: "42", RuleKey: "FAF"}, CreateOptions{}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	d, err := c.Hold(ctx)
	if err != nil {
		t.Fatalf("Hold() error: %v", err)
	}
	if d.Status != "HELD" || d.HoldStartAt == "" || d.SuspicionType != "MONEY_MULE" {
		t.Errorf("held dispute = %+v", d)
	}
	if _, state, _ := c.Active(); state != OnHold {
		t.Errorf("state = %v", state)
	}

	// Repeated holds are forwarded unchanged.
	if _, err := c.Hold(ctx); err != nil {
		t.Fatalf("second Hold() error: %v", err)
	}

	d, err = c.Release(ctx, "restitution", "customer refunded")
	if err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if d.Status != "RELEASED" {
		t.Errorf("released dispute = %+v", d)
	}
	if _, state, _ := c.Active(); state != Released {
		t.Errorf("state = %v", state)
	}

	want := []string{
		"POST /afasa/disputes",
		"POST /afasa/disputes/9/hold",
		"POST /afasa/disputes/9/hold",
		"POST /afasa/disputes/9/release",
	}
	if strings.Join(as.paths, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v", as.paths)
	}
	if as.bodies[1]["actor"] != "analyst1" {
		t.Errorf("hold body = %v", as.bodies[1])
	}
	rel := as.bodies[3]
	if rel["decision"] != "RESTITUTION" || rel["notes"] != "customer refunded" || rel["actor"] != "analyst1" {
		t.Errorf("release body = %v", rel)
	}
}

func TestReleaseDefaultDecision(t *testing.T) {
	c, as := newClient(t)
	ctx := context.Background()
	c.Create(ctx, alerts.Alert{ID: "42"}, CreateOptions{})
	if _, err := c.Release(ctx, "", ""); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if as.bodies[1]["decision"] != DefaultDecision {
		t.Errorf("decision = %v", as.bodies[1]["decision"])
	}
}

func TestNoActiveDispute(t *testing.T) {
	c, as := newClient(t)
	ctx := context.Background()
	if _, err := c.Hold(ctx); !wberrors.Is(err, wberrors.ErrNoActiveDispute) {
		t.Errorf("Hold(): expected NoActiveDispute, got %v", err)
	}
	if _, err := c.Release(ctx, "RELEASE", ""); !wberrors.Is(err, wberrors.ErrNoActiveDispute) {
		t.Errorf("Release(): expected NoActiveDispute, got %v", err)
	}
	if len(as.paths) != 0 {
		t.Errorf("no request expected, got %v", as.paths)
	}
}

func TestTransitionFailureKeepsState(t *testing.T) {
	c, as := newClient(t)
	ctx := context.Background()
	c.Create(ctx, alerts.Alert{ID: "42"}, CreateOptions{})

	as.mu.Lock()
	as.status = http.StatusBadRequest
	as.mu.Unlock()

	_, err := c.Release(ctx, "RELEASE", "")
	if !wberrors.Is(err, wberrors.ErrServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if wberrors.SafeMessage(err) != "Server error: Dispute is not on hold" {
		t.Errorf("SafeMessage = %q", wberrors.SafeMessage(err))
	}
	if _, state, _ := c.Active(); state != Created {
		t.Errorf("state = %v, want created", state)
	}
}

func TestReset(t *testing.T) {
	c, _ := newClient(t)
	c.Create(context.Background(), alerts.Alert{ID: "42"}, CreateOptions{})
	c.Reset()
	if _, _, ok := c.Active(); ok {
		t.Error("Reset should clear the active dispute")
	}
}

func TestFetchSummary(t *testing.T) {
	c, _ := newClient(t)
	s, err := c.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary() error: %v", err)
	}
	if s.Total != 3 || s.ByStatus["HELD"] != 2 || s.BySuspicion["MONEY_MULE"] != 3 {
		t.Errorf("summary = %+v", s)
	}
}
