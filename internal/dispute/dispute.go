// Package dispute drives the AFASA dispute lifecycle for the selected alert.
package dispute

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"fraud-workbench/internal/alerts"
	"fraud-workbench/internal/api"
	wberrors "fraud-workbench/internal/errors"
	"fraud-workbench/internal/rules"
)

// State is the client-side lifecycle of the active dispute.
type State int

const (
	NoDispute State = iota
	Created
	OnHold
	Released
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case OnHold:
		return "on_hold"
	case Released:
		return "released"
	default:
		return "none"
	}
}

// Defaults for dispute creation.
const (
	DefaultReasonCategory = "FMS_DETECTED"
	DefaultSuspicionType  = "MONEY_MULE"
	DefaultDecision       = "RELEASE"
)

// Release decisions understood by the backend. Anything else escalates.
const (
	DecisionRelease     = "RELEASE"
	DecisionRestitution = "RESTITUTION"
	DecisionEscalate    = "ESCALATE"
)

// syntheticID matches ids minted by graph rules, e.g. "R1-1".
var syntheticID = regexp.MustCompile(`(?i)^R\d+-`)

// Dispute is the server's view of a disputed transaction.
type Dispute struct {
	ID             int      `json:"id"`
	AlertID        int64    `json:"alert_id"`
	OriginalTxID   string   `json:"original_tx_id,omitempty"`
	Amount         *float64 `json:"amount,omitempty"`
	Currency       string   `json:"currency,omitempty"`
	ReasonCategory string   `json:"reason_category"`
	SuspicionType  string   `json:"suspicion_type"`
	Status         string   `json:"status"`
	HoldStartAt    string   `json:"hold_start_at,omitempty"`
	HoldEndAt      string   `json:"hold_end_at,omitempty"`
	MaxHoldUntil   string   `json:"max_hold_until,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

// CreateOptions overrides the defaults sent on creation.
type CreateOptions struct {
	TxID           string
	ReasonCategory string
	SuspicionType  string
	InitiatedBy    string
}

type createRequest struct {
	AlertID        int64  `json:"alert_id" validate:"required"`
	TxID           string `json:"tx_id,omitempty"`
	ReasonCategory string `json:"reason_category" validate:"required"`
	SuspicionType  string `json:"suspicion_type" validate:"required"`
	InitiatedBy    string `json:"initiated_by" validate:"required"`
}

type holdRequest struct {
	Actor string `json:"actor" validate:"required"`
}

type releaseRequest struct {
	Decision string `json:"decision" validate:"required"`
	Notes    string `json:"notes,omitempty"`
	Actor    string `json:"actor" validate:"required"`
}

// Client tracks at most one active dispute, tied to the last alert a
// dispute was created for.
type Client struct {
	transport api.Transport
	actor     string

	mu     sync.Mutex
	active *Dispute
	state  State
}

// NewClient creates a client acting as actor.
func NewClient(t api.Transport, actor string) *Client {
	if actor == "" {
		actor = "investigator"
	}
	return &Client{transport: t, actor: actor}
}

// Eligible returns the numeric alert id a dispute would be filed against.
// Alerts produced by graph rules have no database row and are rejected.
func Eligible(a alerts.Alert) (int64, error) {
	const op = "dispute.Create"
	if rules.IsGraphRule(a.RuleKey) || syntheticID.MatchString(string(a.ID)) {
		return 0, wberrors.New(op, wberrors.KindIneligibleAlert, "alerts from graph rules are not persisted")
	}
	id, ok := a.NumericID()
	if !ok {
		return 0, wberrors.New(op, wberrors.KindIneligibleAlert, "alert id "+strconv.Quote(string(a.ID))+" is not numeric")
	}
	return id, nil
}

// Create files a dispute for alert a and makes it the active dispute.
func (c *Client) Create(ctx context.Context, a alerts.Alert, opts CreateOptions) (Dispute, error) {
	alertID, err := Eligible(a)
	if err != nil {
		return Dispute{}, err
	}

	req := createRequest{
		AlertID:        alertID,
		TxID:           firstNonEmpty(opts.TxID, a.TxID),
		ReasonCategory: firstNonEmpty(opts.ReasonCategory, DefaultReasonCategory),
		SuspicionType:  firstNonEmpty(opts.SuspicionType, a.AfasaSuspicionType, DefaultSuspicionType),
		InitiatedBy:    firstNonEmpty(opts.InitiatedBy, c.actor),
	}

	var d Dispute
	if err := api.PostJSONTo(ctx, c.transport, "/afasa/disputes", req, &d); err != nil {
		return Dispute{}, err
	}
	if d.ID == 0 {
		return Dispute{}, wberrors.New("dispute.Create", wberrors.KindServer, "response carried no dispute id")
	}

	c.mu.Lock()
	c.active = &d
	c.state = Created
	c.mu.Unlock()
	return d, nil
}

// Hold places a temporary hold on the active dispute.
func (c *Client) Hold(ctx context.Context) (Dispute, error) {
	id, err := c.activeID("dispute.Hold")
	if err != nil {
		return Dispute{}, err
	}

	var d Dispute
	path := "/afasa/disputes/" + strconv.Itoa(id) + "/hold"
	if err := api.PostJSONTo(ctx, c.transport, path, holdRequest{Actor: c.actor}, &d); err != nil {
		return Dispute{}, err
	}
	c.update(id, d, OnHold)
	return c.current(), nil
}

// Release releases or restitutes the held funds. An empty decision means
// RELEASE.
func (c *Client) Release(ctx context.Context, decision, notes string) (Dispute, error) {
	id, err := c.activeID("dispute.Release")
	if err != nil {
		return Dispute{}, err
	}
	decision = strings.ToUpper(strings.TrimSpace(decision))
	if decision == "" {
		decision = DefaultDecision
	}

	var d Dispute
	path := "/afasa/disputes/" + strconv.Itoa(id) + "/release"
	req := releaseRequest{Decision: decision, Notes: notes, Actor: c.actor}
	if err := api.PostJSONTo(ctx, c.transport, path, req, &d); err != nil {
		return Dispute{}, err
	}
	c.update(id, d, Released)
	return c.current(), nil
}

// Active returns the active dispute and its lifecycle state.
func (c *Client) Active() (Dispute, State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Dispute{}, NoDispute, false
	}
	return *c.active, c.state, true
}

// Reset forgets the active dispute.
func (c *Client) Reset() {
	c.mu.Lock()
	c.active = nil
	c.state = NoDispute
	c.mu.Unlock()
}

func (c *Client) activeID(op string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.ID == 0 {
		return 0, wberrors.New(op, wberrors.KindNoActiveDispute, "create a dispute first")
	}
	return c.active.ID, nil
}

// update merges a transition response. Responses only echo some fields,
// so empty values keep what is known.
func (c *Client) update(id int, d Dispute, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.ID != id {
		return
	}
	if d.Status != "" {
		c.active.Status = d.Status
	}
	if d.HoldStartAt != "" {
		c.active.HoldStartAt = d.HoldStartAt
	}
	if d.HoldEndAt != "" {
		c.active.HoldEndAt = d.HoldEndAt
	}
	if d.MaxHoldUntil != "" {
		c.active.MaxHoldUntil = d.MaxHoldUntil
	}
	c.state = state
}

func (c *Client) current() Dispute {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Dispute{}
	}
	return *c.active
}

// Summary is the AFASA report summary.
type Summary struct {
	Total       int            `json:"total_disputes"`
	ByStatus    map[string]int `json:"by_status"`
	BySuspicion map[string]int `json:"by_suspicion"`
}

// FetchSummary reads /afasa/reports/summary.
func (c *Client) FetchSummary(ctx context.Context) (Summary, error) {
	var s Summary
	err := api.GetJSONFrom(ctx, c.transport, "/afasa/reports/summary", nil, &s)
	return s, err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
