// Package workflow wires the workbench components into the investigator
// workflow. Every operation updates a single status line; results of
// superseded requests are dropped.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"fraud-workbench/internal/alerts"
	"fraud-workbench/internal/analytics"
	"fraud-workbench/internal/anchor"
	"fraud-workbench/internal/api"
	"fraud-workbench/internal/audit"
	"fraud-workbench/internal/cases"
	"fraud-workbench/internal/dispute"
	wberrors "fraud-workbench/internal/errors"
	"fraud-workbench/internal/export"
	"fraud-workbench/internal/generation"
	"fraud-workbench/internal/graph"
	"fraud-workbench/internal/logging"
	"fraud-workbench/internal/metrics"
	"fraud-workbench/internal/rules"
	"fraud-workbench/internal/selection"
)

// ErrStale is returned when a newer request of the same category was issued
// before this one completed. The result has been discarded.
var ErrStale = errors.New("workflow: response superseded")

// Config holds the collaborators of a Workbench. Only Transport is
// required.
type Config struct {
	Transport   api.Transport
	Catalog     *rules.Catalog
	Defaults    rules.Defaults
	Selection   selection.Config
	InitialRule string

	GraphSource graph.Source  // Defaults to the HTTP graph endpoints
	CaseBackend cases.Backend // Defaults to the HTTP investigator endpoints
	CaseOptions []cases.Option
	Actor       string
	AuditSink   audit.Sink
	Exporter    *export.Exporter
	Analytics   *analytics.Client
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

// Workbench is the investigator session.
type Workbench struct {
	transport api.Transport
	catalog   *rules.Catalog
	actor     string
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics

	gen       *generation.Tracker
	executor  *alerts.Executor
	machine   *selection.Machine
	loader    *graph.Loader
	store     *cases.Store
	disputes  *dispute.Client
	recorder  *audit.Recorder
	exporter  *export.Exporter
	analytics *analytics.Client

	mu     sync.RWMutex
	graph  *graph.Graph
	status string
}

// New creates a Workbench from cfg.
func New(cfg Config) (*Workbench, error) {
	if cfg.Transport == nil {
		return nil, errors.New("workflow: transport is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = rules.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Actor == "" {
		cfg.Actor = "investigator"
	}
	if cfg.InitialRule == "" {
		cfg.InitialRule = rules.R1
	}
	if _, err := cfg.Catalog.Resolve(cfg.InitialRule); err != nil {
		return nil, err
	}
	if cfg.GraphSource == nil {
		cfg.GraphSource = graph.NewHTTPSource(cfg.Transport)
	}
	if cfg.CaseBackend == nil {
		cfg.CaseBackend = cases.NewHTTPBackend(cfg.Transport)
	}
	if cfg.Selection.Catalog == nil {
		cfg.Selection.Catalog = cfg.Catalog
	}
	if cfg.Selection.Logger == nil {
		cfg.Selection.Logger = cfg.Logger
	}

	w := &Workbench{
		transport: cfg.Transport,
		catalog:   cfg.Catalog,
		actor:     cfg.Actor,
		now:       cfg.Now,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		gen:       generation.NewTracker(),
		executor:  alerts.NewExecutor(cfg.Transport, cfg.Catalog, cfg.Defaults, cfg.Logger),
		machine:   selection.New(cfg.Selection, cfg.InitialRule),
		loader:    graph.NewLoader(cfg.GraphSource, cfg.Logger),
		store:     cases.NewStore(cfg.CaseBackend, cfg.Logger, cfg.CaseOptions...),
		disputes:  dispute.NewClient(cfg.Transport, cfg.Actor),
		exporter:  cfg.Exporter,
		analytics: cfg.Analytics,
		status:    "Ready.",
	}
	w.recorder = audit.NewRecorder(w.countingSink(cfg.AuditSink), cfg.Actor, cfg.Logger)
	return w, nil
}

// countingSink counts sink failures in metrics before the recorder logs them.
func (w *Workbench) countingSink(sink audit.Sink) audit.Sink {
	if sink == nil {
		return nil
	}
	return audit.SinkFunc(func(ctx context.Context, e audit.Event) error {
		err := sink.Record(ctx, e)
		if err != nil && w.metrics != nil {
			w.metrics.AuditFailures.Inc()
		}
		return err
	})
}

// Subscribe registers an observer of selection snapshots.
func (w *Workbench) Subscribe(o selection.Observer) {
	w.machine.Subscribe(o)
}

// Catalog returns the rule catalog.
func (w *Workbench) Catalog() *rules.Catalog {
	return w.catalog
}

// Selection returns the current selection snapshot.
func (w *Workbench) Selection() selection.Snapshot {
	return w.machine.Snapshot()
}

// Alerts returns the last good alert list.
func (w *Workbench) Alerts() []alerts.Alert {
	return w.executor.Current()
}

// Graph returns the loaded graph of the current anchor, or nil.
func (w *Workbench) Graph() *graph.Graph {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.graph
}

// Status returns the current status line.
func (w *Workbench) Status() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *Workbench) setStatus(s string) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

// fail converts err into the status line and returns it unchanged.
func (w *Workbench) fail(err error) error {
	w.setStatus(wberrors.SafeMessage(err))
	w.logger.Debug("workflow operation failed", "kind", wberrors.KindOf(err), "error", err)
	return err
}

// stale records a dropped response of the named request kind.
func (w *Workbench) stale(kind string) error {
	if w.metrics != nil {
		w.metrics.RecordStale(kind)
	}
	w.logger.Debug("dropped stale response", "kind", kind)
	return ErrStale
}

// SetRule switches the active rule. The selection and graph are cleared,
// in-flight results are discarded and nothing is refetched.
func (w *Workbench) SetRule(rule string) (selection.Snapshot, error) {
	r, err := w.catalog.Resolve(rule)
	if err != nil {
		return w.machine.Snapshot(), w.fail(err)
	}
	var snap selection.Snapshot
	w.gen.Supersede(func() bool {
		w.clearGraph()
		snap = w.machine.OnRuleChanged(r.Key)
		return true
	}, generation.Selection, generation.Graph)
	w.setStatus(fmt.Sprintf("Rule %s selected. Run the query to load alerts.", r.Key))
	return snap, nil
}

func describe(a anchor.Anchor) string {
	return a.Kind.Noun() + " " + a.ID
}

func (w *Workbench) clearGraph() {
	w.mu.Lock()
	w.graph = nil
	w.mu.Unlock()
}

// LoadAlerts runs the active rule's query and selects the first alert.
func (w *Workbench) LoadAlerts(ctx context.Context, params rules.Params) (selection.Snapshot, error) {
	return w.runQuery(ctx, func(ctx context.Context) (*alerts.Result, error) {
		return w.executor.Fetch(ctx, w.machine.ActiveRule(), params)
	})
}

// LoadFamily loads persisted alerts of a rule family such as FAF.
func (w *Workbench) LoadFamily(ctx context.Context, family string) (selection.Snapshot, error) {
	return w.runQuery(ctx, func(ctx context.Context) (*alerts.Result, error) {
		return w.executor.FetchFamily(ctx, family)
	})
}

func (w *Workbench) runQuery(ctx context.Context, fetch func(context.Context) (*alerts.Result, error)) (selection.Snapshot, error) {
	stamp := w.gen.Next(generation.Selection)
	w.setStatus("Loading alerts...")

	res, err := fetch(ctx)
	var snap selection.Snapshot
	applied := w.gen.Apply(stamp, func() {
		if err != nil {
			w.fail(err)
			return
		}
		w.executor.Store(res)
		w.clearGraph()
		snap = w.machine.OnAlertsLoaded(res.Alerts)
		if len(res.Alerts) == 0 {
			w.setStatus("No alerts returned for " + res.RuleKey + ".")
		} else {
			w.setStatus(fmt.Sprintf("Loaded %d alerts for %s.", len(res.Alerts), res.RuleKey))
		}
	}, generation.Graph)
	if !applied {
		return w.machine.Snapshot(), w.stale("alerts")
	}
	if err != nil {
		return w.machine.Snapshot(), err
	}
	w.anchorSelected(ctx, snap, "alerts_loaded")
	return snap, nil
}

// SelectAlert selects the anchor of a clicked alert row.
func (w *Workbench) SelectAlert(ctx context.Context, a alerts.Alert) selection.Snapshot {
	var snap selection.Snapshot
	w.gen.Supersede(func() bool {
		w.clearGraph()
		snap = w.machine.OnAlertRowClicked(a)
		if snap.Notice != "" {
			w.setStatus(snap.Notice)
		} else {
			w.setStatus(snap.Label + ".")
		}
		return true
	}, generation.Selection, generation.Graph)
	w.anchorSelected(ctx, snap, "alert_row")
	return snap
}

// SelectNode selects a clicked graph node when it is an account or an
// identifier. The current graph stays on screen until the next load.
func (w *Workbench) SelectNode(ctx context.Context, n graph.Node) (selection.Snapshot, bool) {
	var snap selection.Snapshot
	var ok bool
	w.gen.Supersede(func() bool {
		snap, ok = w.machine.OnGraphNodeClicked(n)
		if ok {
			w.setStatus(snap.Label + ".")
		}
		return ok
	}, generation.Selection, generation.Graph)
	if !ok {
		return snap, false
	}
	w.anchorSelected(ctx, snap, "graph_node")
	return snap, true
}

// Lookup resolves free text and selects the first match.
func (w *Workbench) Lookup(ctx context.Context, query string) (selection.Snapshot, error) {
	stamp := w.gen.Next(generation.Selection)
	res, err := selection.Lookup(ctx, w.transport, query)
	var snap selection.Snapshot
	applied := w.gen.Apply(stamp, func() {
		if err != nil {
			w.fail(err)
			return
		}
		w.clearGraph()
		snap = w.machine.ApplyLookup(res)
		w.setStatus(res.Notice())
	}, generation.Graph)
	if !applied {
		return w.machine.Snapshot(), w.stale("lookup")
	}
	if err != nil {
		return w.machine.Snapshot(), err
	}
	w.anchorSelected(ctx, snap, "lookup")
	return snap, nil
}

// anchorSelected audits a new selection and loads mirrored case state.
func (w *Workbench) anchorSelected(ctx context.Context, snap selection.Snapshot, via string) {
	if snap.Anchor.IsZero() {
		return
	}
	w.recorder.Emit(ctx, audit.TypeAnchorSelected, snap.Anchor, map[string]string{"via": via})
	w.logger.Debug("anchor selected",
		"kind", snap.Anchor.Kind,
		"id", logging.MaskAccountID(snap.Anchor.ID),
		"rule", snap.Anchor.RuleKey,
		"via", via,
	)

	stamp := w.gen.Next(generation.Notes)
	if err := w.store.Hydrate(ctx, snap.AnchorKey); err != nil && w.gen.IsLatest(stamp) {
		w.logger.Warn("case hydrate failed", "anchor_key", snap.AnchorKey, "error", err)
	}
}

// LoadGraph loads the neighborhood of the current anchor.
func (w *Workbench) LoadGraph(ctx context.Context) (*graph.Graph, error) {
	a, err := w.machine.RequireAnchor("workflow.LoadGraph")
	if err != nil {
		return nil, w.fail(err)
	}

	stamp := w.gen.Next(generation.Graph)
	w.setStatus("Loading graph for " + describe(a) + "...")

	g, err := w.loader.Load(ctx, a)
	applied := w.gen.Apply(stamp, func() {
		if err != nil {
			w.clearGraph()
			w.fail(err)
			return
		}
		w.mu.Lock()
		w.graph = g
		w.mu.Unlock()
		w.setStatus(fmt.Sprintf("Graph loaded: %d nodes, %d edges.", len(g.Nodes), len(g.Edges)))
	})
	if !applied {
		return nil, w.stale("graph")
	}
	if w.metrics != nil {
		endpoint := "none"
		if g != nil {
			endpoint = string(g.Endpoint)
		}
		w.metrics.RecordGraphLoad(endpoint, err)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// CaseView is the case state of one anchor key.
type CaseView struct {
	Key    anchor.Key
	Status string
	Action *cases.Action
	Notes  []cases.Note
}

// Case returns the case state of the current anchor.
func (w *Workbench) Case() (CaseView, bool) {
	snap := w.machine.Snapshot()
	if snap.Anchor.IsZero() {
		return CaseView{}, false
	}
	return w.CaseFor(snap.AnchorKey), true
}

// CaseFor returns the case state of key.
func (w *Workbench) CaseFor(key anchor.Key) CaseView {
	v := CaseView{
		Key:    key,
		Status: w.store.Status(key),
		Notes:  w.store.Notes(key),
	}
	if act, ok := w.store.Action(key); ok {
		v.Action = &act
	}
	return v
}

// AddNote saves a note on the current anchor.
func (w *Workbench) AddNote(ctx context.Context, text string) (cases.Note, error) {
	a, err := w.machine.RequireAction("workflow.AddNote")
	if err != nil {
		return cases.Note{}, w.fail(err)
	}

	n, err := w.store.AddNote(ctx, a, text)
	if w.metrics != nil {
		w.metrics.RecordCaseSubmission("note", err)
	}
	if err != nil {
		return cases.Note{}, w.fail(err)
	}

	w.recorder.Emit(ctx, audit.TypeNoteAdded, a, map[string]string{"length": strconv.Itoa(len(n.Text))})
	w.setStatus("Note saved for " + describe(a) + ".")
	return n, nil
}

// RecordAction records a case action on the current anchor.
func (w *Workbench) RecordAction(ctx context.Context, action string) (cases.Action, error) {
	a, err := w.machine.RequireAction("workflow.RecordAction")
	if err != nil {
		return cases.Action{}, w.fail(err)
	}

	act, err := w.store.RecordAction(ctx, a, action)
	if w.metrics != nil {
		w.metrics.RecordCaseSubmission("action", err)
	}
	if err != nil {
		return cases.Action{}, w.fail(err)
	}

	w.recorder.Emit(ctx, audit.TypeActionRecorded, a, map[string]string{
		"action": act.LastAction,
		"status": act.Status,
	})
	w.setStatus(fmt.Sprintf("%s recorded. Case status: %s.", act.LastAction, act.Status))
	return act, nil
}

// Flag marks the current anchor in the graph and reruns the last alert
// query so the flag shows up in the results.
func (w *Workbench) Flag(ctx context.Context) error {
	a, err := w.machine.RequireAction("workflow.Flag")
	if err != nil {
		return w.fail(err)
	}
	if err := graph.Flag(ctx, w.transport, a); err != nil {
		return w.fail(err)
	}
	w.recorder.Emit(ctx, audit.TypeAnchorFlagged, a, nil)

	if err := w.rerun(ctx); err != nil && !errors.Is(err, ErrStale) {
		return err
	}
	w.setStatus("Flagged " + describe(a) + ".")
	return nil
}

// Refresh asks the backend to regenerate alerts, then reruns the last
// query.
func (w *Workbench) Refresh(ctx context.Context, ruleID string) (int, error) {
	n, err := w.executor.Refresh(ctx, ruleID)
	if err != nil {
		return 0, w.fail(err)
	}
	w.recorder.Emit(ctx, audit.TypeAlertsRefreshed, anchor.Anchor{}, map[string]string{
		"rule_id":   ruleID,
		"generated": strconv.Itoa(n),
	})

	if err := w.rerun(ctx); err != nil && !errors.Is(err, ErrStale) {
		return n, err
	}
	w.setStatus(fmt.Sprintf("Refresh generated %d alerts.", n))
	return n, nil
}

// rerun repeats the last successful alert query, if there was one.
func (w *Workbench) rerun(ctx context.Context) error {
	rule, params, ok := w.executor.Last()
	if !ok {
		return nil
	}
	_, err := w.runQuery(ctx, func(ctx context.Context) (*alerts.Result, error) {
		if _, err := w.catalog.Resolve(rule); err != nil {
			// Families such as FAF are not catalog rules.
			return w.executor.FetchFamily(ctx, rule)
		}
		return w.executor.Fetch(ctx, rule, params)
	})
	return err
}

// Rules lists rule definitions for the selector, falling back to the
// built-in catalog.
func (w *Workbench) Rules(ctx context.Context) []rules.Definition {
	defs, err := rules.FetchDefinitions(ctx, w.transport, w.catalog)
	if err != nil {
		w.logger.Warn("rule listing unavailable, using built-in catalog", "error", err)
	}
	return defs
}

// Health checks the graph backend.
func (w *Workbench) Health(ctx context.Context) (graph.Health, error) {
	h, err := graph.CheckHealth(ctx, w.transport)
	if err != nil {
		return h, w.fail(err)
	}
	if h.OK() {
		w.setStatus("Graph backend healthy.")
	} else {
		w.setStatus("Graph backend reports " + h.Status + ".")
	}
	return h, nil
}
