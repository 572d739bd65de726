package graph

import (
	"context"

	"fraud-workbench/internal/anchor"
	"fraud-workbench/internal/api"
)

// HTTPSource reads graphs from the /neo4j/graph endpoints.
type HTTPSource struct {
	transport api.Transport
}

// NewHTTPSource creates a source over the API transport.
func NewHTTPSource(t api.Transport) *HTTPSource {
	return &HTTPSource{transport: t}
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, kind EndpointKind, id string) (*Graph, error) {
	path := "/neo4j/graph/" + string(kind) + "/" + api.PathEscape(id)
	var g Graph
	if err := api.GetJSONFrom(ctx, s.transport, path, nil, &g); err != nil {
		return nil, err
	}
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	return &g, nil
}

// FlagPath returns the flag endpoint for a.
func FlagPath(a anchor.Anchor) string {
	kind := "account"
	if a.Kind == anchor.KindDevice {
		kind = "device"
	}
	return "/neo4j/flag/" + kind + "/" + api.PathEscape(a.ID)
}

// Flag marks the anchor entity as flagged in the graph.
func Flag(ctx context.Context, t api.Transport, a anchor.Anchor) error {
	_, err := t.Post(ctx, FlagPath(a), nil)
	return err
}

// Health is the graph backend health report.
type Health struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the backend said "ok".
func (h Health) OK() bool {
	return h.Status == "ok"
}

// CheckHealth queries /neo4j/health. A 5xx with a body still yields the
// reported status alongside the error.
func CheckHealth(ctx context.Context, t api.Transport) (Health, error) {
	var h Health
	if err := api.GetJSONFrom(ctx, t, "/neo4j/health", nil, &h); err != nil {
		return Health{Status: "error", Message: err.Error()}, err
	}
	return h, nil
}
