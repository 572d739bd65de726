package selection

import (
	"context"
	"fmt"
	"strings"

	"fraud-workbench/internal/anchor"
	"fraud-workbench/internal/api"
	wberrors "fraud-workbench/internal/errors"
	"fraud-workbench/internal/graph"
	"fraud-workbench/internal/rules"
)

// Match is one entity-resolution candidate.
type Match struct {
	Label    string         `json:"label"`
	AnchorID string         `json:"anchorId,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
}

// LookupResult is the outcome of a manual lookup.
type LookupResult struct {
	Query  string
	Anchor anchor.Anchor
	Total  int
	// Fallback is set when the resolver was unavailable and the query text
	// was taken as a device id.
	Fallback bool
}

// Notice renders the lookup outcome for the status line.
func (r LookupResult) Notice() string {
	switch {
	case r.Fallback:
		return fmt.Sprintf("Resolver unavailable; treating %q as an identifier.", r.Query)
	case r.Total > 1:
		return fmt.Sprintf("%d matches for %q; showing the first.", r.Total, r.Query)
	default:
		return fmt.Sprintf("Found %s %s.", r.Anchor.Kind.Noun(), r.Anchor.ID)
	}
}

var deviceProps = []string{"device_id", "deviceId", "device_type", "deviceType", "identifier"}

// Lookup resolves free text against /neo4j/resolve. It does not change any
// selection; apply the result with ApplyLookup.
func Lookup(ctx context.Context, t api.Transport, query string) (LookupResult, error) {
	const op = "selection.Lookup"
	query = strings.TrimSpace(query)
	if query == "" {
		return LookupResult{}, wberrors.Validation(op, "enter an account or identifier to search")
	}

	var matches []Match
	err := api.GetJSONFrom(ctx, t, "/neo4j/resolve", api.Query{}.Add("q", query), &matches)
	if wberrors.IsNotFoundStatus(err) {
		return LookupResult{
			Query:    query,
			Anchor:   anchor.Anchor{Kind: anchor.KindDevice, ID: query, RuleKey: DeviceRuleKey},
			Total:    1,
			Fallback: true,
		}, nil
	}
	if err != nil {
		return LookupResult{}, err
	}
	if len(matches) == 0 {
		return LookupResult{}, wberrors.New(op, wberrors.KindNotFound, "no match for "+query)
	}

	first := matches[0]
	a := anchor.Anchor{Kind: anchor.KindAccount, RuleKey: rules.R1}
	if first.deviceLike() {
		a.Kind = anchor.KindDevice
		a.RuleKey = DeviceRuleKey
	}
	a.ID = first.anchorID(a.Kind, query)

	return LookupResult{Query: query, Anchor: a, Total: len(matches)}, nil
}

// ApplyLookup selects the anchor found by a lookup.
func (m *Machine) ApplyLookup(r LookupResult) Snapshot {
	return m.SelectAnchor(r.Anchor, r.Notice())
}

// OnManualLookup resolves query and selects the first match.
func (m *Machine) OnManualLookup(ctx context.Context, t api.Transport, query string) (LookupResult, Snapshot, error) {
	r, err := Lookup(ctx, t, query)
	if err != nil {
		return LookupResult{}, m.Snapshot(), err
	}
	return r, m.ApplyLookup(r), nil
}

func (mt Match) deviceLike() bool {
	label := strings.TrimPrefix(mt.Label, ":")
	if (graph.Node{Type: label}).IsDeviceLike() {
		return true
	}
	for _, key := range deviceProps {
		if v, ok := mt.Props[key]; ok && v != nil && v != "" {
			return true
		}
	}
	return false
}

func (mt Match) anchorID(kind anchor.Kind, query string) string {
	if mt.AnchorID != "" {
		return mt.AnchorID
	}
	keys := []string{"account_number", "accountId", "id"}
	if kind == anchor.KindDevice {
		keys = []string{"device_id", "deviceId", "identifier", "id"}
	}
	for _, k := range keys {
		if v, ok := mt.Props[k]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return query
}
