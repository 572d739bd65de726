// Package audit records investigator actions taken against an anchor and
// fans them out to Kafka and ClickHouse.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fraud-workbench/internal/anchor"
	"fraud-workbench/internal/storage"

	"github.com/google/uuid"
)

// Type names an audited investigator action.
type Type string

const (
	TypeAnchorSelected  Type = "anchor_selected"
	TypeNoteAdded       Type = "note_added"
	TypeActionRecorded  Type = "action_recorded"
	TypeAnchorFlagged   Type = "anchor_flagged"
	TypeDisputeCreated  Type = "dispute_created"
	TypeDisputeHeld     Type = "dispute_held"
	TypeDisputeReleased Type = "dispute_released"
	TypeCaseExported    Type = "case_exported"
	TypeAlertsRefreshed Type = "alerts_refreshed"
)

// Event is one audit record.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Actor      string            `json:"actor"`
	AnchorKind anchor.Kind       `json:"anchor_kind,omitempty"`
	AnchorID   string            `json:"anchor_id,omitempty"`
	RuleKey    string            `json:"rule_key,omitempty"`
	AnchorKey  anchor.Key        `json:"anchor_key,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

// Record implements Sink.
func (f SinkFunc) Record(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards events.
var Nop Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Publisher is the producer side of the Kafka sink.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, value any, headers map[string]string) error
}

// KafkaSink publishes events keyed by anchor key.
type KafkaSink struct {
	pub Publisher
}

// NewKafkaSink creates a KafkaSink.
func NewKafkaSink(pub Publisher) *KafkaSink {
	return &KafkaSink{pub: pub}
}

// Record implements Sink.
func (s *KafkaSink) Record(ctx context.Context, e Event) error {
	key := string(e.AnchorKey)
	if key == "" {
		key = e.Actor
	}
	return s.pub.PublishJSON(ctx, key, e, map[string]string{"event_type": string(e.Type)})
}

// RowWriter is the batch writer side of the ClickHouse sink.
type RowWriter interface {
	Write(row storage.AuditRow) error
}

// ClickHouseSink buffers events into the audit_events table.
type ClickHouseSink struct {
	w RowWriter
}

// NewClickHouseSink creates a ClickHouseSink.
func NewClickHouseSink(w RowWriter) *ClickHouseSink {
	return &ClickHouseSink{w: w}
}

// Record implements Sink.
func (s *ClickHouseSink) Record(_ context.Context, e Event) error {
	row, err := ToRow(e)
	if err != nil {
		return err
	}
	return s.w.Write(row)
}

// ToRow converts an event to its audit_events row.
func ToRow(e Event) (storage.AuditRow, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return storage.AuditRow{}, err
	}
	detail := "{}"
	if len(e.Detail) > 0 {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			return storage.AuditRow{}, err
		}
		detail = string(b)
	}
	return storage.AuditRow{
		EventID:    id,
		Type:       string(e.Type),
		Actor:      e.Actor,
		AnchorKind: string(e.AnchorKind),
		AnchorID:   e.AnchorID,
		RuleKey:    e.RuleKey,
		AnchorKey:  string(e.AnchorKey),
		Detail:     detail,
		OccurredAt: e.OccurredAt,
	}, nil
}

// Multi records to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, e Event) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Record(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Recorder stamps events and sends them to a sink. Sink failures are logged
// and never reach the caller.
type Recorder struct {
	sink   Sink
	actor  string
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	failed int
}

// NewRecorder creates a Recorder. A nil sink records nothing.
func NewRecorder(sink Sink, actor string, logger *slog.Logger) *Recorder {
	if sink == nil {
		sink = Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, actor: actor, logger: logger, now: time.Now}
}

// Emit records an event of type t about a (which may be zero).
func (r *Recorder) Emit(ctx context.Context, t Type, a anchor.Anchor, detail map[string]string) Event {
	e := Event{
		ID:         uuid.NewString(),
		Type:       t,
		Actor:      r.actor,
		AnchorKind: a.Kind,
		AnchorID:   a.ID,
		RuleKey:    a.RuleKey,
		AnchorKey:  a.Key(),
		Detail:     detail,
		OccurredAt: r.now().UTC(),
	}
	if err := r.sink.Record(ctx, e); err != nil {
		r.mu.Lock()
		r.failed++
		r.mu.Unlock()
		r.logger.Warn("audit record failed", "type", t, "anchor_key", e.AnchorKey, "error", err)
	}
	return e
}

// Failed returns how many events failed to record.
func (r *Recorder) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}
