package graph

import (
	"context"
	"log/slog"

	"fraud-workbench/internal/anchor"
	wberrors "fraud-workbench/internal/errors"
)

// EndpointKind selects one of the graph endpoints.
type EndpointKind string

const (
	EndpointAccount    EndpointKind = "account"
	EndpointIdentifier EndpointKind = "identifier"
	EndpointDevice     EndpointKind = "device"
)

// Source fetches a neighborhood from one endpoint kind.
type Source interface {
	Fetch(ctx context.Context, kind EndpointKind, id string) (*Graph, error)
}

// Order returns the endpoints tried for an anchor kind: the declared kind
// first, then identifier and device style, then account.
func Order(kind anchor.Kind) []EndpointKind {
	if kind == anchor.KindDevice {
		return []EndpointKind{EndpointIdentifier, EndpointDevice, EndpointAccount}
	}
	return []EndpointKind{EndpointAccount, EndpointIdentifier, EndpointDevice}
}

// Loader resolves an anchor's graph with endpoint fallback.
type Loader struct {
	source Source
	logger *slog.Logger
}

// NewLoader creates a loader over source.
func NewLoader(source Source, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, logger: logger}
}

// Load fetches the neighborhood of a. A rejected response moves on to the
// next endpoint; network failures and timeouts are returned immediately.
func (l *Loader) Load(ctx context.Context, a anchor.Anchor) (*Graph, error) {
	if a.IsZero() {
		return nil, wberrors.New("graph.Load", wberrors.KindNoSelection, "no anchor selected")
	}

	var lastErr error
	for _, kind := range Order(a.Kind) {
		g, err := l.source.Fetch(ctx, kind, a.ID)
		if err == nil {
			g.Endpoint = kind
			g.MarkSubject(a.ID)
			if kind != Order(a.Kind)[0] {
				l.logger.Info("graph resolved by fallback endpoint", "anchor", a.String(), "endpoint", kind)
			}
			return g, nil
		}
		if !fallsThrough(err) {
			return nil, err
		}
		l.logger.Debug("graph endpoint rejected", "anchor", a.String(), "endpoint", kind, "error", err)
		lastErr = err
	}

	return nil, &wberrors.Error{
		Op:      "graph.Load",
		Kind:    wberrors.KindGraphNotFound,
		Message: "no graph for " + a.String(),
		Err:     lastErr,
	}
}

func fallsThrough(err error) bool {
	switch wberrors.KindOf(err) {
	case wberrors.KindServer, wberrors.KindNotFound:
		return true
	}
	return false
}
