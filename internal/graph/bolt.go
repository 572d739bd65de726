package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	wberrors "fraud-workbench/internal/errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const accountNeighborhood = `
MATCH (a:Account {account_number: $id})
OPTIONAL MATCH (a)-[:USES]->(d)
WHERE d:Device OR d:Identifier
OPTIONAL MATCH (d)<-[:USES]-(devAcc:Account)
OPTIONAL MATCH (a)-[:PERFORMS]->(txOut:Transaction)-[:TO]->(dst:Account)
OPTIONAL MATCH (src:Account)-[:PERFORMS]->(txIn:Transaction)-[:TO]->(a)
RETURN a AS subject,
       collect(DISTINCT d) AS devices,
       collect(DISTINCT devAcc) AS accounts,
       collect(DISTINCT {tx: txOut, from: a, to: dst}) + collect(DISTINCT {tx: txIn, from: src, to: a}) AS transfers
`

// deviceNeighborhood is formatted with the subject label (Device or Identifier).
const deviceNeighborhood = `
MATCH (d:%s {device_id: $id})
OPTIONAL MATCH (d)<-[:USES]-(a:Account)
OPTIONAL MATCH (a)-[:PERFORMS]->(txOut:Transaction)-[:TO]->(dst:Account)
OPTIONAL MATCH (src:Account)-[:PERFORMS]->(txIn:Transaction)-[:TO]->(a)
RETURN d AS subject,
       [] AS devices,
       collect(DISTINCT a) AS accounts,
       collect(DISTINCT {tx: txOut, from: a, to: dst}) + collect(DISTINCT {tx: txIn, from: src, to: a}) AS transfers
`

// BoltConfig configures a direct graph database connection.
type BoltConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// BoltSource reads neighborhoods straight from Neo4j over Bolt.
type BoltSource struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewBoltSource connects to the graph database.
func NewBoltSource(cfg BoltConfig, logger *slog.Logger) (*BoltSource, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &BoltSource{
		driver:   driver,
		database: cfg.Database,
		logger:   logger,
	}, nil
}

// Close closes the driver.
func (s *BoltSource) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// CheckHealth verifies connectivity to the database.
func (s *BoltSource) CheckHealth(ctx context.Context) (Health, error) {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return Health{Status: "error", Message: err.Error()}, wberrors.Wrap("graph.CheckHealth", wberrors.KindNetwork, err)
	}
	return Health{Status: "ok"}, nil
}

// Fetch implements Source.
func (s *BoltSource) Fetch(ctx context.Context, kind EndpointKind, id string) (*Graph, error) {
	op := "graph.Fetch " + string(kind)

	var cypher string
	switch kind {
	case EndpointAccount:
		cypher = accountNeighborhood
	case EndpointIdentifier:
		cypher = fmt.Sprintf(deviceNeighborhood, "Identifier")
	case EndpointDevice:
		cypher = fmt.Sprintf(deviceNeighborhood, "Device")
	default:
		return nil, wberrors.Validation(op, "unknown endpoint "+string(kind))
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		record := res.Record()
		subject, _ := record.Get("subject")
		devices, _ := record.Get("devices")
		accounts, _ := record.Get("accounts")
		transfers, _ := record.Get("transfers")

		node, ok := subject.(neo4j.Node)
		if !ok {
			return nil, nil
		}
		return buildNeighborhood(node, asList(devices), asList(accounts), asList(transfers)), nil
	})
	if err != nil {
		s.logger.Debug("graph query failed", "endpoint", kind, "error", err)
		if ctx.Err() != nil {
			return nil, wberrors.Wrap(op, wberrors.KindTimeout, err)
		}
		return nil, wberrors.Wrap(op, wberrors.KindNetwork, err)
	}
	if result == nil {
		return nil, wberrors.New(op, wberrors.KindNotFound, "no "+string(kind)+" "+id)
	}
	return result.(*Graph), nil
}

// neighborhood accumulates nodes once each, in first-seen order.
type neighborhood struct {
	g    *Graph
	seen map[string]bool
}

func (n *neighborhood) add(node Node) {
	if node.ID == "" || n.seen[node.ID] {
		return
	}
	n.seen[node.ID] = true
	n.g.Nodes = append(n.g.Nodes, node)
}

func (n *neighborhood) link(source, target, typ, label string) {
	if source == "" || target == "" {
		return
	}
	n.g.Edges = append(n.g.Edges, Edge{Source: source, Target: target, Type: typ, Label: label})
}

func buildNeighborhood(subject neo4j.Node, devices, accounts, transfers []any) *Graph {
	nb := &neighborhood{g: &Graph{Nodes: []Node{}, Edges: []Edge{}}, seen: make(map[string]bool)}

	root := nodeFromDB(subject)
	root.IsSubject = true
	nb.add(root)

	for _, v := range devices {
		if d, ok := v.(neo4j.Node); ok {
			dev := nodeFromDB(d)
			nb.add(dev)
			nb.link(root.ID, dev.ID, "USES", "")
		}
	}

	for _, v := range accounts {
		acc, ok := v.(neo4j.Node)
		if !ok {
			continue
		}
		an := nodeFromDB(acc)
		if an.ID == root.ID {
			continue
		}
		nb.add(an)
		if root.IsAccount() {
			nb.link(an.ID, root.ID, "SHARES_DEVICE", "")
		} else {
			nb.link(an.ID, root.ID, "USES", "")
		}
	}

	for _, v := range transfers {
		item, ok := v.(map[string]any)
		if !ok {
			continue
		}
		txNode, ok := item["tx"].(neo4j.Node)
		if !ok {
			continue
		}
		from, okFrom := item["from"].(neo4j.Node)
		to, okTo := item["to"].(neo4j.Node)
		if !okFrom || !okTo {
			continue
		}
		tx := nodeFromDB(txNode)
		src, dst := nodeFromDB(from), nodeFromDB(to)
		nb.add(tx)
		nb.add(src)
		nb.add(dst)
		nb.link(src.ID, tx.ID, "PERFORMS", edgeLabel(tx))
		nb.link(tx.ID, dst.ID, "TO", "")
	}

	return nb.g
}

// nodeFromDB maps a database node by its label set and properties.
func nodeFromDB(n neo4j.Node) Node {
	props := n.Props
	out := Node{IsFlagged: propBool(props, "flagged")}

	switch {
	case hasLabel(n, "Transaction"):
		out.Type = TypeTransaction
		out.ID = propString(props, "tx_ref")
		if amt, ok := propFloat(props, "amount"); ok {
			out.Amount = &amt
		}
		out.Tags = props["tags"]
	case hasLabel(n, "Account"):
		out.Type = TypeAccount
		out.ID = propString(props, "account_number")
		out.CustomerName = propString(props, "customer_name")
	case hasLabel(n, "Identifier"):
		out.Type = TypeIdentifier
		out.ID = propString(props, "device_id")
		out.DeviceType = propString(props, "device_type")
	default:
		out.Type = TypeDevice
		out.ID = propString(props, "device_id")
		out.DeviceType = propString(props, "device_type")
	}
	out.Label = out.ID
	return out
}

func edgeLabel(tx Node) string {
	var parts []string
	if tx.Amount != nil {
		parts = append(parts, strconv.FormatFloat(*tx.Amount, 'f', -1, 64))
	}
	if tx.Tags != nil {
		if s := fmt.Sprint(tx.Tags); s != "" && s != "[]" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " / ")
}

func hasLabel(n neo4j.Node, label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func propString(props map[string]any, key string) string {
	switch v := props[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func propFloat(props map[string]any, key string) (float64, bool) {
	switch v := props[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func propBool(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}
