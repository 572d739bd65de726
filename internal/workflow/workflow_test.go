package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fraud-workbench/internal/analytics"
	"fraud-workbench/internal/api"
	"fraud-workbench/internal/audit"
	"fraud-workbench/internal/cases"
	"fraud-workbench/internal/dispute"
	wberrors "fraud-workbench/internal/errors"
	"fraud-workbench/internal/export"
	"fraud-workbench/internal/graph"
	"fraud-workbench/internal/metrics"
	"fraud-workbench/internal/rules"
	"fraud-workbench/internal/selection"
	s3store "fraud-workbench/internal/storage/s3"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// backend is a fake of the detection, graph, investigator and AFASA APIs.
type backend struct {
	t   *testing.T
	mux *http.ServeMux

	mu          sync.Mutex
	alertFetch  map[string]int
	notes       []map[string]any
	flags       []string
	alertsBody  map[string]string
	alertsError map[string]int
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{
		t:           t,
		mux:         http.NewServeMux(),
		alertFetch:  make(map[string]int),
		alertsBody:  make(map[string]string),
		alertsError: make(map[string]int),
	}
	b.alertsBody["/neo-alerts/r1"] = `[{"id":"R1-1","ruleKey":"R1","severity":"HIGH","accountId":"A1"},{"id":"R1-2","ruleKey":"R1","accountId":"A2"}]`
	b.alertsBody["/neo-alerts/search"] = `[{"id":"R2-9","ruleKey":"R2","severity":"CRITICAL","deviceId":"dev-9"}]`
	b.alertsBody["/alerts"] = `[{"id":42,"rule_name":"FAF-01","severity":"HIGH","accountId":"A7","tx_id":"TX-1"}]`

	alerts := func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.alertFetch[r.URL.Path]++
		status := b.alertsError[r.URL.Path]
		body := b.alertsBody[r.URL.Path]
		b.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			io.WriteString(w, `{"message":"detector offline"}`)
			return
		}
		io.WriteString(w, body)
	}
	b.mux.HandleFunc("/neo-alerts/", alerts)
	b.mux.HandleFunc("/alerts", alerts)

	b.mux.HandleFunc("/neo4j/graph/account/A1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"nodes":[{"id":"A1","type":"Account"},{"id":"dev-1","type":"Device"}],"edges":[{"source":"A1","target":"dev-1","type":"USES"}]}`)
	})
	b.mux.HandleFunc("/neo4j/graph/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message":"no such node"}`)
	})
	b.mux.HandleFunc("/neo4j/flag/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.flags = append(b.flags, r.URL.Path)
		b.mu.Unlock()
		io.WriteString(w, `{"status":"ok"}`)
	})
	b.mux.HandleFunc("/investigator/notes", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode note: %v", err)
		}
		b.mu.Lock()
		b.notes = append(b.notes, body)
		b.mu.Unlock()
		io.WriteString(w, `{"status":"ok","id":1,"created_at":"2026-01-02T03:04:05Z"}`)
	})
	b.mux.HandleFunc("/investigator/actions", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok","id":2}`)
	})
	b.mux.HandleFunc("/alerts/refresh", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok","generated_alerts":5}`)
	})
	b.mux.HandleFunc("/afasa/disputes", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":11,"alert_id":42,"status":"OPEN","reason_category":"FMS_DETECTED","suspicion_type":"MONEY_MULE"}`)
	})
	b.mux.HandleFunc("/afasa/disputes/11/hold", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":11,"alert_id":42,"status":"ON_HOLD"}`)
	})
	b.mux.HandleFunc("/afasa/disputes/11/release", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":11,"alert_id":42,"status":"RELEASED"}`)
	})

	b.mux.HandleFunc("/analytics/dashboard", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"kpis":{"alerts_total":12,"alerts_open":4,"cases_open":3,"suspects_flagged":1},"charts":{},"tables":{}}`)
	})

	srv := httptest.NewServer(b.mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *backend) fetches(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alertFetch[path]
}

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureSink) Record(_ context.Context, e audit.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) types() []audit.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.Type, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

func newWorkbench(t *testing.T, srv *httptest.Server, mutate func(*Config)) (*Workbench, *captureSink, *metrics.Metrics) {
	t.Helper()
	sink := &captureSink{}
	m := metrics.New()
	cfg := Config{
		Transport: api.NewClient(srv.URL, api.WithLogger(quietLogger()), api.WithObserver(m.ObserveRequest)),
		Defaults:  rules.DefaultDefaults(),
		AuditSink: sink,
		Metrics:   m,
		Actor:     "analyst",
		Logger:    quietLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, sink, m
}

func TestNewRequiresTransport(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without transport")
	}
}

func TestNewRejectsUnknownInitialRule(t *testing.T) {
	_, srv := newBackend(t)
	_, err := New(Config{Transport: api.NewClient(srv.URL), InitialRule: "R99", Logger: quietLogger()})
	if !wberrors.Is(err, wberrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestLoadAlertsSelectsFirstAndLoadsGraph(t *testing.T) {
	_, srv := newBackend(t)
	w, sink, m := newWorkbench(t, srv, nil)
	ctx := context.Background()

	snap, err := w.LoadAlerts(ctx, rules.Params{"riskThreshold": "0.8"})
	if err != nil {
		t.Fatalf("LoadAlerts: %v", err)
	}
	if snap.State != selection.AlertSelected || snap.Anchor.ID != "A1" || snap.AnchorKey != "R1:A1" {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(w.Alerts()) != 2 {
		t.Errorf("expected 2 alerts, got %d", len(w.Alerts()))
	}
	if w.Status() != "Loaded 2 alerts for R1." {
		t.Errorf("status = %q", w.Status())
	}

	g, err := w.LoadGraph(ctx)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	subject, ok := g.Subject()
	if !ok || subject.ID != "A1" {
		t.Errorf("subject = %+v, %v", subject, ok)
	}
	if w.Graph() != g {
		t.Error("graph not kept on the workbench")
	}
	if got := testutil.ToFloat64(m.GraphLoads.WithLabelValues("account", "ok")); got != 1 {
		t.Errorf("graph loads = %v", got)
	}
	if types := sink.types(); len(types) != 1 || types[0] != audit.TypeAnchorSelected {
		t.Errorf("audit types = %v", types)
	}
}

func TestLoadGraphNotFound(t *testing.T) {
	_, srv := newBackend(t)
	w, _, m := newWorkbench(t, srv, nil)
	ctx := context.Background()

	if _, err := w.LoadGraph(ctx); !wberrors.Is(err, wberrors.ErrNoSelection) {
		t.Errorf("expected NoSelection without anchor, got %v", err)
	}

	if _, err := w.Lookup(ctx, "dev-unknown"); err != nil {
		// The fake has no resolver route, so the 404 fallback applies.
		t.Fatalf("Lookup: %v", err)
	}
	_, err := w.LoadGraph(ctx)
	if !wberrors.Is(err, wberrors.ErrGraphNotFound) {
		t.Fatalf("expected GraphNotFound, got %v", err)
	}
	if !strings.HasPrefix(w.Status(), "Graph not found") {
		t.Errorf("status = %q", w.Status())
	}
	if w.Graph() != nil {
		t.Error("failed load should clear the graph")
	}
	if got := testutil.ToFloat64(m.GraphLoads.WithLabelValues("none", "graph_not_found")); got != 1 {
		t.Errorf("graph failures = %v", got)
	}
}

func TestStaleAlertsResponseDropped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			io.WriteString(w, `[{"id":"old","ruleKey":"R1","accountId":"OLD"}]`)
			return
		}
		io.WriteString(w, `[{"id":"new","ruleKey":"R1","accountId":"NEW"}]`)
	}))
	defer srv.Close()

	w, _, m := newWorkbench(t, srv, nil)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := w.LoadAlerts(ctx, nil)
		errc <- err
	}()
	<-started

	snap, err := w.LoadAlerts(ctx, nil)
	if err != nil {
		t.Fatalf("second LoadAlerts: %v", err)
	}
	if snap.Anchor.ID != "NEW" {
		t.Errorf("anchor = %s", snap.Anchor.ID)
	}

	close(release)
	if err := <-errc; !errors.Is(err, ErrStale) {
		t.Errorf("expected ErrStale for first request, got %v", err)
	}
	if got := w.Selection().Anchor.ID; got != "NEW" {
		t.Errorf("stale response overwrote selection: %s", got)
	}
	if got := w.Alerts()[0].ID; got != "new" {
		t.Errorf("stale response overwrote alerts: %s", got)
	}
	if got := testutil.ToFloat64(m.StaleResponsesDropped.WithLabelValues("alerts")); got != 1 {
		t.Errorf("stale count = %v", got)
	}
}

// gatedServer serves alert and lookup responses. The first request to the
// gated path blocks until release is closed.
func gatedServer(t *testing.T, gated string) (srv *httptest.Server, started, release chan struct{}) {
	t.Helper()
	started = make(chan struct{})
	release = make(chan struct{})
	var once sync.Once
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == gated {
			first := false
			once.Do(func() { first = true })
			if first {
				close(started)
				<-release
			}
		}
		switch r.URL.Path {
		case "/neo-alerts/r1":
			io.WriteString(w, `[{"id":"R1-1","ruleKey":"R1","accountId":"FROM_ALERTS"}]`)
		case "/neo4j/resolve":
			io.WriteString(w, `[{"label":"Account","anchorId":"LOOKED_UP"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, started, release
}

func TestSlowAlertsDoNotOverrideLookup(t *testing.T) {
	srv, started, release := gatedServer(t, "/neo-alerts/r1")
	w, _, m := newWorkbench(t, srv, nil)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := w.LoadAlerts(ctx, nil)
		errc <- err
	}()
	<-started

	snap, err := w.Lookup(ctx, "LOOKED_UP")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if snap.Anchor.ID != "LOOKED_UP" {
		t.Fatalf("anchor after lookup = %s", snap.Anchor.ID)
	}

	close(release)
	if err := <-errc; !errors.Is(err, ErrStale) {
		t.Errorf("expected ErrStale for the alert load, got %v", err)
	}
	if got := w.Selection().Anchor.ID; got != "LOOKED_UP" {
		t.Errorf("alert load overwrote lookup selection: %s", got)
	}
	if got := testutil.ToFloat64(m.StaleResponsesDropped.WithLabelValues("alerts")); got != 1 {
		t.Errorf("stale count = %v", got)
	}
}

func TestSlowLookupDoesNotOverrideRowClick(t *testing.T) {
	srv, started, release := gatedServer(t, "/neo4j/resolve")
	w, _, m := newWorkbench(t, srv, nil)
	ctx := context.Background()

	if _, err := w.LoadAlerts(ctx, nil); err != nil {
		t.Fatalf("LoadAlerts: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := w.Lookup(ctx, "LOOKED_UP")
		errc <- err
	}()
	<-started

	snap := w.SelectAlert(ctx, w.Alerts()[0])
	if snap.Anchor.ID != "FROM_ALERTS" {
		t.Fatalf("anchor after click = %s", snap.Anchor.ID)
	}

	close(release)
	if err := <-errc; !errors.Is(err, ErrStale) {
		t.Errorf("expected ErrStale for the lookup, got %v", err)
	}
	if got := w.Selection().Anchor.ID; got != "FROM_ALERTS" {
		t.Errorf("lookup overwrote row click: %s", got)
	}
	if got := testutil.ToFloat64(m.StaleResponsesDropped.WithLabelValues("lookup")); got != 1 {
		t.Errorf("stale count = %v", got)
	}
}

func TestRuleChangeDropsPendingLookup(t *testing.T) {
	srv, started, release := gatedServer(t, "/neo4j/resolve")
	w, _, _ := newWorkbench(t, srv, nil)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := w.Lookup(ctx, "LOOKED_UP")
		errc <- err
	}()
	<-started

	if _, err := w.SetRule(rules.R2); err != nil {
		t.Fatalf("SetRule: %v", err)
	}
	close(release)
	if err := <-errc; !errors.Is(err, ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}
	if a := w.Selection().Anchor; !a.IsZero() {
		t.Errorf("lookup applied after rule change: %+v", a)
	}
}

func TestFailedFetchKeepsPriorAlertsAndReportsStatus(t *testing.T) {
	b, srv := newBackend(t)
	w, _, _ := newWorkbench(t, srv, nil)
	ctx := context.Background()

	if _, err := w.LoadAlerts(ctx, nil); err != nil {
		t.Fatal(err)
	}

	b.mu.Lock()
	b.alertsError["/neo-alerts/r1"] = http.StatusBadGateway
	b.mu.Unlock()

	_, err := w.LoadAlerts(ctx, nil)
	if !wberrors.Is(err, wberrors.ErrServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if w.Status() != "Server error: detector offline" {
		t.Errorf("status = %q", w.Status())
	}
	if len(w.Alerts()) != 2 {
		t.Errorf("prior alerts lost: %d", len(w.Alerts()))
	}
	if w.Selection().Anchor.ID != "A1" {
		t.Errorf("selection changed on failure: %+v", w.Selection().Anchor)
	}
}

func TestSetRuleClearsSelection(t *testing.T) {
	b, srv := newBackend(t)
	w, _, _ := newWorkbench(t, srv, nil)
	ctx := context.Background()

	if _, err := w.LoadAlerts(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := w.LoadGraph(ctx); err != nil {
		t.Fatal(err)
	}

	snap, err := w.SetRule("all")
	if err != nil {
		t.Fatalf("SetRule: %v", err)
	}
	if snap.State != selection.NoSelection || snap.ActiveRule != rules.All {
		t.Errorf("snapshot = %+v", snap)
	}
	if w.Graph() != nil {
		t.Error("graph should be cleared")
	}
	if b.fetches("/neo-alerts/search") != 0 {
		t.Error("rule change must not refetch")
	}

	if _, err := w.SetRule("R77"); !wberrors.Is(err, wberrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCaseActionsFollowPolicy(t *testing.T) {
	b, srv := newBackend(t)
	w, sink, m := newWorkbench(t, srv, nil)
	ctx := context.Background()

	if _, err := w.LoadAlerts(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := w.AddNote(ctx, "called customer"); !wberrors.Is(err, wberrors.ErrValidation) {
		t.Fatalf("expected policy rejection outside ALL, got %v", err)
	}
	if !strings.Contains(w.Status(), "ALL search mode") {
		t.Errorf("status = %q", w.Status())
	}

	if _, err := w.SetRule(rules.All); err != nil {
		t.Fatal(err)
	}
	snap, err := w.LoadAlerts(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if snap.AnchorKey != "R2:dev-9" || !snap.ActionsPermitted {
		t.Fatalf("snapshot = %+v", snap)
	}

	n, err := w.AddNote(ctx, "called customer")
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if n.Pending || !n.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("note = %+v", n)
	}
	act, err := w.RecordAction(ctx, "escalate")
	if err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	if act.Status != cases.StatusInProgress {
		t.Errorf("status = %s", act.Status)
	}

	view, ok := w.Case()
	if !ok || view.Status != cases.StatusInProgress || len(view.Notes) != 1 || view.Action == nil {
		t.Errorf("case view = %+v", view)
	}

	b.mu.Lock()
	if len(b.notes) != 1 || b.notes[0]["anchor_type"] != "DEVICE" || b.notes[0]["anchor_id"] != "dev-9" {
		t.Errorf("note request = %v", b.notes)
	}
	b.mu.Unlock()

	if got := testutil.ToFloat64(m.CaseSubmissions.WithLabelValues("note", "ok")); got != 1 {
		t.Errorf("note submissions = %v", got)
	}
	types := sink.types()
	if types[len(types)-2] != audit.TypeNoteAdded || types[len(types)-1] != audit.TypeActionRecorded {
		t.Errorf("audit types = %v", types)
	}
}

func TestFlagRerunsLastQuery(t *testing.T) {
	b, srv := newBackend(t)
	w, sink, _ := newWorkbench(t, srv, func(c *Config) {
		c.Selection.Policy = selection.PolicyAnySelection
	})
	ctx := context.Background()

	if _, err := w.LoadAlerts(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := w.Flag(ctx); err != nil {
		t.Fatalf("Flag: %v", err)
	}
	if b.fetches("/neo-alerts/r1") != 2 {
		t.Errorf("expected re-fetch after flag, got %d fetches", b.fetches("/neo-alerts/r1"))
	}
	b.mu.Lock()
	if len(b.flags) != 1 || b.flags[0] != "/neo4j/flag/account/A1" {
		t.Errorf("flags = %v", b.flags)
	}
	b.mu.Unlock()
	if w.Status() != "Flagged account A1." {
		t.Errorf("status = %q", w.Status())
	}

	found := false
	for _, typ := range sink.types() {
		if typ == audit.TypeAnchorFlagged {
			found = true
		}
	}
	if !found {
		t.Error("flag was not audited")
	}
}

func TestRefreshRerunsFamilyQuery(t *testing.T) {
	b, srv := newBackend(t)
	w, _, _ := newWorkbench(t, srv, nil)
	ctx := context.Background()

	if _, err := w.LoadFamily(ctx, "faf"); err != nil {
		t.Fatal(err)
	}
	n, err := w.Refresh(ctx, "")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n != 5 {
		t.Errorf("generated = %d", n)
	}
	if b.fetches("/alerts") != 2 {
		t.Errorf("expected family re-fetch, got %d", b.fetches("/alerts"))
	}
	if w.Status() != "Refresh generated 5 alerts." {
		t.Errorf("status = %q", w.Status())
	}
}

func TestDisputeLifecycle(t *testing.T) {
	_, srv := newBackend(t)
	w, sink, _ := newWorkbench(t, srv, nil)
	ctx := context.Background()

	if _, err := w.CreateDispute(ctx, dispute.CreateOptions{}); !wberrors.Is(err, wberrors.ErrNoSelection) {
		t.Errorf("expected NoSelection, got %v", err)
	}
	if _, err := w.HoldDispute(ctx); !wberrors.Is(err, wberrors.ErrNoActiveDispute) {
		t.Errorf("expected NoActiveDispute, got %v", err)
	}

	// Graph rule alerts cannot be disputed.
	if _, err := w.LoadAlerts(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := w.CreateDispute(ctx, dispute.CreateOptions{}); !wberrors.Is(err, wberrors.ErrIneligibleAlert) {
		t.Errorf("expected IneligibleAlert, got %v", err)
	}

	if _, err := w.LoadFamily(ctx, "FAF"); err != nil {
		t.Fatal(err)
	}
	d, err := w.CreateDispute(ctx, dispute.CreateOptions{})
	if err != nil {
		t.Fatalf("CreateDispute: %v", err)
	}
	if d.ID != 11 || w.Status() != "Dispute #11 created (OPEN)." {
		t.Errorf("dispute = %+v, status %q", d, w.Status())
	}
	if _, err := w.HoldDispute(ctx); err != nil {
		t.Fatalf("HoldDispute: %v", err)
	}
	d, err = w.ReleaseDispute(ctx, "", "")
	if err != nil {
		t.Fatalf("ReleaseDispute: %v", err)
	}
	if d.Status != "RELEASED" {
		t.Errorf("status = %s", d.Status)
	}

	types := sink.types()
	want := []audit.Type{audit.TypeDisputeCreated, audit.TypeDisputeHeld, audit.TypeDisputeReleased}
	got := types[len(types)-3:]
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("audit[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

type captureUploader struct {
	in *s3store.UploadInput
}

func (c *captureUploader) Upload(_ context.Context, in *s3store.UploadInput) (*s3store.UploadOutput, error) {
	c.in = in
	return &s3store.UploadOutput{Key: in.Key, Location: "s3://exports/" + in.Key}, nil
}

func TestExport(t *testing.T) {
	_, srv := newBackend(t)
	up := &captureUploader{}
	w, _, _ := newWorkbench(t, srv, func(c *Config) {
		c.Exporter = export.NewExporter(up, false)
		c.Now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }
	})
	ctx := context.Background()

	if _, err := w.Export(ctx); !wberrors.Is(err, wberrors.ErrNoSelection) {
		t.Errorf("expected NoSelection, got %v", err)
	}

	if _, err := w.LoadAlerts(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := w.LoadGraph(ctx); err != nil {
		t.Fatal(err)
	}
	loc, err := w.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasPrefix(loc, "s3://exports/R1/A1/20260203T040506Z-") {
		t.Errorf("location = %s", loc)
	}

	var b export.Bundle
	if err := json.Unmarshal(up.in.Body, &b); err != nil {
		t.Fatal(err)
	}
	if b.Alert == nil || string(b.Alert.ID) != "R1-1" || b.GraphNodes["Device"] != 1 {
		t.Errorf("bundle = %+v", b)
	}
}

func TestExportNotConfigured(t *testing.T) {
	_, srv := newBackend(t)
	w, _, _ := newWorkbench(t, srv, nil)
	if _, err := w.Export(context.Background()); !wberrors.Is(err, wberrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSelectNode(t *testing.T) {
	_, srv := newBackend(t)
	w, _, _ := newWorkbench(t, srv, nil)
	ctx := context.Background()

	if _, err := w.LoadAlerts(ctx, nil); err != nil {
		t.Fatal(err)
	}
	g, err := w.LoadGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	dev, _ := g.Node("dev-1")
	snap, ok := w.SelectNode(ctx, dev)
	if !ok || snap.AnchorKey != "R2:dev-1" {
		t.Errorf("snapshot = %+v, %v", snap, ok)
	}
	if _, ok := w.SelectNode(ctx, graph.Node{ID: "tx-1", Type: "Transaction"}); ok {
		t.Error("transaction nodes are not anchors")
	}
}

func TestDashboard(t *testing.T) {
	_, srv := newBackend(t)
	w, _, _ := newWorkbench(t, srv, func(c *Config) {
		c.Analytics = analytics.NewClient(c.Transport, analytics.NewMemoryCache(), time.Minute, quietLogger())
	})
	ctx := context.Background()

	d, err := w.Dashboard(ctx, analytics.Filter{})
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.KPIs.AlertsTotal != 12 || w.Status() != "Dashboard: 12 alerts, 3 open cases (live)." {
		t.Errorf("dashboard = %+v, status %q", d.KPIs, w.Status())
	}
	if _, err := w.Dashboard(ctx, analytics.Filter{}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(w.Status(), "(cached).") {
		t.Errorf("second read should be cached, status %q", w.Status())
	}
}
