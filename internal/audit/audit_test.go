package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fraud-workbench/internal/anchor"
	"fraud-workbench/internal/storage"
)

type capturePublisher struct {
	key     string
	value   any
	headers map[string]string
	err     error
}

func (c *capturePublisher) PublishJSON(_ context.Context, key string, value any, headers map[string]string) error {
	c.key, c.value, c.headers = key, value, headers
	return c.err
}

type captureWriter struct {
	rows []storage.AuditRow
}

func (c *captureWriter) Write(row storage.AuditRow) error {
	c.rows = append(c.rows, row)
	return nil
}

var testAnchor = anchor.Anchor{Kind: anchor.KindAccount, ID: "1234567890123", RuleKey: "R1"}

func TestRecorderFansOut(t *testing.T) {
	pub := &capturePublisher{}
	rows := &captureWriter{}
	rec := NewRecorder(Multi(NewKafkaSink(pub), NewClickHouseSink(rows)), "analyst-7", nil)
	rec.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	e := rec.Emit(context.Background(), TypeActionRecorded, testAnchor, map[string]string{"action": "BLOCK"})

	if e.AnchorKey != "R1:1234567890123" || e.Actor != "analyst-7" {
		t.Errorf("event = %+v", e)
	}
	if pub.key != "R1:1234567890123" || pub.headers["event_type"] != "action_recorded" {
		t.Errorf("kafka key %q headers %v", pub.key, pub.headers)
	}
	if len(rows.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows.rows))
	}
	row := rows.rows[0]
	if row.EventID.String() != e.ID || row.AnchorKind != "ACCOUNT" || row.RuleKey != "R1" {
		t.Errorf("row = %+v", row)
	}
	var detail map[string]string
	if err := json.Unmarshal([]byte(row.Detail), &detail); err != nil || detail["action"] != "BLOCK" {
		t.Errorf("detail = %s (%v)", row.Detail, err)
	}
	if rec.Failed() != 0 {
		t.Errorf("Failed() = %d", rec.Failed())
	}
}

func TestRecorderSwallowsSinkErrors(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	rows := &captureWriter{}
	rec := NewRecorder(Multi(NewKafkaSink(pub), NewClickHouseSink(rows)), "analyst", nil)

	rec.Emit(context.Background(), TypeNoteAdded, testAnchor, nil)

	if rec.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", rec.Failed())
	}
	if len(rows.rows) != 1 {
		t.Error("clickhouse sink skipped after kafka failure")
	}
	if rows.rows[0].Detail != "{}" {
		t.Errorf("empty detail = %q", rows.rows[0].Detail)
	}
}

func TestKafkaSinkKeyWithoutAnchor(t *testing.T) {
	pub := &capturePublisher{}
	rec := NewRecorder(NewKafkaSink(pub), "analyst", nil)
	rec.Emit(context.Background(), TypeAlertsRefreshed, anchor.Anchor{}, nil)
	if pub.key != "analyst" {
		t.Errorf("key = %q, want actor", pub.key)
	}
}

func TestToRowRejectsBadID(t *testing.T) {
	if _, err := ToRow(Event{ID: "not-a-uuid"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNilSinkRecordsNothing(t *testing.T) {
	rec := NewRecorder(nil, "analyst", nil)
	e := rec.Emit(context.Background(), TypeAnchorFlagged, testAnchor, nil)
	if e.ID == "" || rec.Failed() != 0 {
		t.Errorf("event = %+v failed = %d", e, rec.Failed())
	}
}
