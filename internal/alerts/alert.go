// Package alerts models detection alerts and fetches them from the
// rule endpoints.
package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fraud-workbench/internal/anchor"
	"fraud-workbench/internal/api"
	"fraud-workbench/internal/rules"
)

// Severity levels.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// ID is an alert id. The backend sends integers for persisted alerts and
// strings such as "R1-1" for graph rule output.
type ID string

// UnmarshalJSON accepts a JSON number or string.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("alert id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Alert is one detection result. Rule-specific fields are nil when the rule
// does not produce them.
type Alert struct {
	ID           ID          `json:"id"`
	RuleKey      string      `json:"ruleKey,omitempty"`
	Rule         string      `json:"rule,omitempty"`
	Severity     string      `json:"severity"`
	Summary      string      `json:"summary"`
	Status       string      `json:"status"`
	Created      string      `json:"created,omitempty"`
	AccountID    string      `json:"accountId,omitempty"`
	DeviceID     string      `json:"deviceId,omitempty"`
	AnchorID     string      `json:"anchor_id,omitempty"`
	AnchorKind   anchor.Kind `json:"anchorKind,omitempty"`
	CustomerName string      `json:"customerName,omitempty"`
	TxID         string      `json:"tx_id,omitempty"`

	RiskScore     *float64 `json:"riskScore,omitempty"`
	IsFraud       *bool    `json:"isFraud,omitempty"`
	RiskyAccounts *int     `json:"riskyAccounts,omitempty"`
	TotalAccounts *int     `json:"totalAccounts,omitempty"`
	RingSize      *int     `json:"ringSize,omitempty"`
	RiskySenders  *int     `json:"riskySenders,omitempty"`
	TxCount       *int     `json:"txCount,omitempty"`
	PathLength    *int     `json:"pathLength,omitempty"`
	MaxAmount     *float64 `json:"maxAmount,omitempty"`

	AfasaRiskScore     *float64 `json:"afasa_risk_score,omitempty"`
	AfasaSuspicionType string   `json:"afasa_suspicion_type,omitempty"`
}

// UnmarshalJSON decodes an alert, accepting the field spellings used by the
// different backend routes (created/created_at, ruleKey/rule_name,
// anchorKind/anchor_type).
func (a *Alert) UnmarshalJSON(data []byte) error {
	type plain Alert
	var aux struct {
		plain
		CreatedAt  string `json:"created_at"`
		RuleName   string `json:"rule_name"`
		AnchorType string `json:"anchor_type"`
		AnchorKind string `json:"anchorKind"`
		TxIDCamel  string `json:"txId"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*a = Alert(aux.plain)
	if a.Created == "" {
		a.Created = aux.CreatedAt
	}
	if a.RuleKey == "" && aux.RuleName != "" {
		a.RuleKey = aux.RuleName
	}
	if a.TxID == "" {
		a.TxID = aux.TxIDCamel
	}
	a.AnchorKind = ""
	for _, raw := range []string{aux.AnchorKind, aux.AnchorType} {
		if k, ok := anchor.ParseKind(raw); ok {
			a.AnchorKind = k
			break
		}
	}
	a.Severity = strings.ToUpper(strings.TrimSpace(a.Severity))
	return nil
}

// CreatedTime parses Created.
func (a Alert) CreatedTime() (time.Time, bool) {
	return api.ParseTime(a.Created)
}

// NumericID returns the digits of the alert id as an integer. ok is false
// when the id contains no digits.
func (a Alert) NumericID() (int64, bool) {
	var b strings.Builder
	for _, ch := range string(a.ID) {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ContextLines renders the rule-specific facts shown next to the selection.
// ruleKey is the effective rule (the alert's own or the active one).
func (a Alert) ContextLines(ruleKey string) []string {
	label := a.Rule
	if label == "" {
		label = ruleKey
	}
	lines := []string{"Rule: " + label}
	switch strings.ToUpper(ruleKey) {
	case rules.R1:
		lines = append(lines, "Risk: "+floatOrDash(a.RiskScore), "is_fraud: "+boolOrDash(a.IsFraud))
	case rules.R2:
		lines = append(lines, "Risky accounts: "+intOrDash(a.RiskyAccounts), "Total accounts: "+intOrDash(a.TotalAccounts))
	case rules.R3:
		lines = append(lines, "Ring size: "+intOrDash(a.RingSize), "Risk: "+floatOrDash(a.RiskScore))
	case rules.R7:
		lines = append(lines, "Risky senders: "+intOrDash(a.RiskySenders), "Tx count: "+intOrDash(a.TxCount), "Risk: "+floatOrDash(a.RiskScore))
	case rules.R8, rules.R9, rules.R10:
		lines = append(lines, "Path length: "+intOrDash(a.PathLength), "Max amount: "+floatOrDash(a.MaxAmount))
	}
	if a.AfasaSuspicionType != "" {
		lines = append(lines, "AFASA: "+a.AfasaSuspicionType+" ("+floatOrDash(a.AfasaRiskScore)+")")
	}
	return lines
}

func floatOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func boolOrDash(v *bool) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatBool(*v)
}
