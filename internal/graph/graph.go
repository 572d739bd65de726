// Package graph loads the relationship neighborhood of an anchor and acts on
// graph entities (flagging, health).
package graph

import "strings"

// Node types as returned by the graph API.
const (
	TypeAccount     = "Account"
	TypeDevice      = "Device"
	TypeIdentifier  = "Identifier"
	TypeTransaction = "Transaction"
)

// deviceTypes are node types investigated as DEVICE anchors.
var deviceTypes = map[string]bool{
	"device":     true,
	"identifier": true,
	"email":      true,
	"phone":      true,
	"ssn":        true,
}

// Node is a vertex in an anchor's neighborhood.
type Node struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Label        string   `json:"label"`
	IsSubject    bool     `json:"isSubject,omitempty"`
	IsFlagged    bool     `json:"isFlagged,omitempty"`
	DeviceType   string   `json:"deviceType,omitempty"`
	CustomerName string   `json:"customerName,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
	Tags         any      `json:"tags,omitempty"`
}

// IsAccount reports whether the node is an account.
func (n Node) IsAccount() bool {
	return strings.EqualFold(n.Type, TypeAccount)
}

// IsDeviceLike reports whether the node is a device or identifier-style
// entity (device, identifier, email, phone, SSN).
func (n Node) IsDeviceLike() bool {
	return deviceTypes[strings.ToLower(n.Type)]
}

// DisplayLabel returns the label, falling back to the id.
func (n Node) DisplayLabel() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// Edge connects two nodes by id.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Label  string `json:"label,omitempty"`
}

// Graph is one loaded neighborhood.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// Endpoint is the endpoint kind that produced the graph.
	Endpoint EndpointKind `json:"-"`
}

// MarkSubject sets IsSubject on the node whose id equals id. The backend's
// own subject flag is not relied on.
func (g *Graph) MarkSubject(id string) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			g.Nodes[i].IsSubject = true
		}
	}
}

// Subject returns the subject node, if any.
func (g *Graph) Subject() (Node, bool) {
	for _, n := range g.Nodes {
		if n.IsSubject {
			return n, true
		}
	}
	return Node{}, false
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Neighbors returns the nodes directly connected to id, in edge order.
func (g *Graph) Neighbors(id string) []Node {
	seen := make(map[string]bool)
	var out []Node
	for _, e := range g.Edges {
		var other string
		switch id {
		case e.Source:
			other = e.Target
		case e.Target:
			other = e.Source
		default:
			continue
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		if n, ok := g.Node(other); ok {
			out = append(out, n)
		}
	}
	return out
}

// CountByType tallies nodes per type.
func (g *Graph) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, n := range g.Nodes {
		counts[n.Type]++
	}
	return counts
}
