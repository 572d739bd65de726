package alerts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"fraud-workbench/internal/anchor"
	"fraud-workbench/internal/api"
	wberrors "fraud-workbench/internal/errors"
	"fraud-workbench/internal/rules"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newExecutor(url string) *Executor {
	return NewExecutor(api.NewClient(url), rules.Default(), rules.DefaultDefaults(), quietLogger())
}

func TestAlertIDAcceptsNumberAndString(t *testing.T) {
	var alerts []Alert
	body := `[{"id":7,"ruleKey":"R1"},{"id":"R2-3","ruleKey":"R2"},{"id":null}]`
	if err := json.Unmarshal([]byte(body), &alerts); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if alerts[0].ID != "7" || alerts[1].ID != "R2-3" || alerts[2].ID != "" {
		t.Errorf("unexpected ids: %q %q %q", alerts[0].ID, alerts[1].ID, alerts[2].ID)
	}
}

func TestAlertFieldSpellings(t *testing.T) {
	var a Alert
	body := `{"id":42,"rule_name":"FAF-MULE","created_at":"2025-03-01T10:00:00","anchor_type":"IDENTIFIER","anchor_id":"dev-9","severity":"Critical","afasa_suspicion_type":"MONEY_MULE","afasa_risk_score":0.91}`
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if a.RuleKey != "FAF-MULE" {
		t.Errorf("RuleKey = %q", a.RuleKey)
	}
	if a.Created != "2025-03-01T10:00:00" {
		t.Errorf("Created = %q", a.Created)
	}
	if a.AnchorKind != anchor.KindDevice || a.AnchorID != "dev-9" {
		t.Errorf("anchor = %q %q", a.AnchorKind, a.AnchorID)
	}
	if a.Severity != SeverityCritical {
		t.Errorf("Severity = %q", a.Severity)
	}
	if _, ok := a.CreatedTime(); !ok {
		t.Error("CreatedTime should parse naive ISO timestamps")
	}
	if a.AfasaRiskScore == nil || *a.AfasaRiskScore != 0.91 {
		t.Errorf("AfasaRiskScore = %v", a.AfasaRiskScore)
	}
}

func TestNumericID(t *testing.T) {
	tests := []struct {
		id   ID
		want int64
		ok   bool
	}{
		{"42", 42, true},
		{"ALERT-0017", 17, true},
		{"R1-1", 11, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := Alert{ID: tt.id}.NumericID()
		if got != tt.want || ok != tt.ok {
			t.Errorf("NumericID(%q) = %d, %v; want %d, %v", tt.id, got, ok, tt.want, tt.ok)
		}
	}
}

func TestContextLines(t *testing.T) {
	risky, total := 3, 5
	a := Alert{Rule: "Shared device", RiskyAccounts: &risky, TotalAccounts: &total}
	lines := a.ContextLines(rules.R2)
	want := []string{"Rule: Shared device", "Risky accounts: 3", "Total accounts: 5"}
	if len(lines) != len(want) {
		t.Fatalf("got %v", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	lines = Alert{}.ContextLines(rules.R1)
	if lines[0] != "Rule: R1" || lines[1] != "Risk: -" || lines[2] != "is_fraud: -" {
		t.Errorf("missing values should render as dashes: %v", lines)
	}
}

func TestFetchAlertsScenario(t *testing.T) {
	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
		w.Write([]byte(`[{"id":7,"ruleKey":"R1","accountId":"1000000000001","severity":"HIGH","riskScore":0.93}]`))
	}))
	defer srv.Close()

	e := newExecutor(srv.URL)
	got, err := e.FetchAlerts(context.Background(), rules.R1, rules.Params{rules.ParamRiskThreshold: "0.8", rules.ParamLimit: "50"})
	if err != nil {
		t.Fatalf("FetchAlerts() error: %v", err)
	}
	if gotURI != "/neo-alerts/r1?riskThreshold=0.8&limit=50" {
		t.Errorf("request URI = %q", gotURI)
	}
	if len(got) != 1 || got[0].AccountID != "1000000000001" || got[0].ID != "7" {
		t.Fatalf("unexpected alerts: %+v", got)
	}
	if len(e.Current()) != 1 {
		t.Error("result should be stored")
	}
	key, params, ok := e.Last()
	if !ok || key != rules.R1 || params[rules.ParamRiskThreshold] != "0.8" {
		t.Errorf("Last() = %q %v %v", key, params, ok)
	}
}

func TestFetchAlertsFailureKeepsPriorResult(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","message":"Neo4j driver not configured"}`))
			return
		}
		w.Write([]byte(`[{"id":1,"accountId":"A1"},{"id":2,"accountId":"A2"}]`))
	}))
	defer srv.Close()

	e := newExecutor(srv.URL)
	if _, err := e.FetchAlerts(context.Background(), rules.R1, nil); err != nil {
		t.Fatalf("first fetch error: %v", err)
	}

	fail.Store(true)
	_, err := e.FetchAlerts(context.Background(), rules.R3, nil)
	if !wberrors.Is(err, wberrors.ErrServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	cur := e.Current()
	if len(cur) != 2 || cur[0].AccountID != "A1" {
		t.Errorf("prior alerts should be kept, got %+v", cur)
	}
	if key, _, _ := e.Last(); key != rules.R1 {
		t.Errorf("Last rule = %q, want R1", key)
	}
}

func TestFetchLenientDecode(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", 0},
		{"object body", `{"status":"ok"}`, 0},
		{"null", "null", 0},
		{"malformed element skipped", `[{"id":1},{"id":{}}]`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			res, err := newExecutor(srv.URL).Fetch(context.Background(), rules.All, nil)
			if err != nil {
				t.Fatalf("Fetch() error: %v", err)
			}
			if res.Alerts == nil || len(res.Alerts) != tt.want {
				t.Errorf("got %d alerts (nil=%v), want %d", len(res.Alerts), res.Alerts == nil, tt.want)
			}
		})
	}
}

func TestFetchUnknownRuleMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := newExecutor(srv.URL).Fetch(context.Background(), "R42", nil)
	if !wberrors.Is(err, wberrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("no request should be sent for an unknown rule")
	}
}

func TestFetchFamily(t *testing.T) {
	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
		w.Write([]byte(`[{"id":42,"ruleKey":"FAF","accountId":"1000000000002"}]`))
	}))
	defer srv.Close()

	res, err := newExecutor(srv.URL).FetchFamily(context.Background(), "faf")
	if err != nil {
		t.Fatalf("FetchFamily() error: %v", err)
	}
	if gotURI != "/alerts?family=FAF" {
		t.Errorf("request URI = %q", gotURI)
	}
	if res.RuleKey != "FAF" || len(res.Alerts) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRefresh(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/alerts/refresh" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status":"ok","generated_alerts":6}`))
	}))
	defer srv.Close()

	n, err := newExecutor(srv.URL).Refresh(context.Background(), "3")
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if n != 6 {
		t.Errorf("generated = %d, want 6", n)
	}
	if gotBody["rule_id"] != "3" {
		t.Errorf("rule_id = %v", gotBody["rule_id"])
	}
}
