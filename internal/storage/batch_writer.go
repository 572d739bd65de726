package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const auditTable = "audit_events"

// AuditRow is one row of the audit_events table.
type AuditRow struct {
	EventID    uuid.UUID
	Type       string
	Actor      string
	AnchorKind string
	AnchorID   string
	RuleKey    string
	AnchorKey  string
	Detail     string // JSON object
	OccurredAt time.Time
}

// BatchWriterConfig holds configuration for the batch writer.
type BatchWriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// DefaultBatchWriterConfig returns the default batch writer configuration.
// Investigator actions are sparse, so batches are small and flushed often.
func DefaultBatchWriterConfig() BatchWriterConfig {
	return BatchWriterConfig{
		BatchSize:     50,
		FlushInterval: 2 * time.Second,
		MaxRetries:    2,
		RetryDelay:    500 * time.Millisecond,
	}
}

// BatchWriter buffers audit rows and inserts them into ClickHouse.
type BatchWriter struct {
	client *ClickHouseClient
	config BatchWriterConfig
	logger *slog.Logger

	buffer []AuditRow
	mu     sync.Mutex

	flushTimer *time.Timer
	closed     bool

	totalWritten uint64
	totalFailed  uint64
	batchCount   uint64
}

// NewBatchWriter creates a new BatchWriter.
func NewBatchWriter(client *ClickHouseClient, cfg BatchWriterConfig, logger *slog.Logger) *BatchWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchWriterConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultBatchWriterConfig().FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	bw := &BatchWriter{
		client: client,
		config: cfg,
		logger: logger,
		buffer: make([]AuditRow, 0, cfg.BatchSize),
	}
	bw.flushTimer = time.AfterFunc(cfg.FlushInterval, bw.timerFlush)
	return bw
}

// Write adds a row to the batch, flushing when the batch is full.
func (bw *BatchWriter) Write(row AuditRow) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.closed {
		return ErrWriterClosed
	}

	bw.buffer = append(bw.buffer, row)
	if len(bw.buffer) >= bw.config.BatchSize {
		return bw.flushLocked()
	}
	return nil
}

func (bw *BatchWriter) timerFlush() {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.closed {
		return
	}
	if len(bw.buffer) > 0 {
		if err := bw.flushLocked(); err != nil {
			bw.logger.Error("audit timer flush failed", "error", err)
		}
	}
	bw.flushTimer.Reset(bw.config.FlushInterval)
}

// flushLocked flushes the buffer. Caller must hold the lock.
func (bw *BatchWriter) flushLocked() error {
	if len(bw.buffer) == 0 {
		return nil
	}

	rows := bw.buffer
	bw.buffer = make([]AuditRow, 0, bw.config.BatchSize)

	var lastErr error
	for attempt := 0; attempt <= bw.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(bw.config.RetryDelay * time.Duration(attempt))
		}

		if err := bw.insertBatch(rows); err != nil {
			lastErr = err
			bw.logger.Warn("audit batch insert failed",
				"attempt", attempt+1,
				"max_retries", bw.config.MaxRetries,
				"error", err,
			)
			continue
		}

		atomic.AddUint64(&bw.totalWritten, uint64(len(rows)))
		atomic.AddUint64(&bw.batchCount, 1)
		return nil
	}

	atomic.AddUint64(&bw.totalFailed, uint64(len(rows)))
	return insertError(auditTable, bw.config.MaxRetries, lastErr)
}

func (bw *BatchWriter) insertBatch(rows []AuditRow) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	batch, err := bw.client.PrepareBatch(ctx, `
		INSERT INTO audit_events (
			event_id, event_type, actor, anchor_kind, anchor_id,
			rule_key, anchor_key, detail, occurred_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, r := range rows {
		detail := r.Detail
		if detail == "" {
			detail = "{}"
		}
		if err := batch.Append(
			r.EventID,
			r.Type,
			r.Actor,
			r.AnchorKind,
			r.AnchorID,
			r.RuleKey,
			r.AnchorKey,
			detail,
			r.OccurredAt,
		); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	bw.logger.Debug("audit batch inserted", "count", len(rows))
	return nil
}

// Flush forces a flush of the current buffer.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.flushLocked()
}

// Close stops the timer and flushes whatever is buffered.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return nil
	}
	bw.closed = true
	bw.flushTimer.Stop()
	err := bw.flushLocked()
	bw.mu.Unlock()
	return err
}

// Metrics returns batch writer statistics.
func (bw *BatchWriter) Metrics() BatchWriterMetrics {
	bw.mu.Lock()
	pending := len(bw.buffer)
	bw.mu.Unlock()
	return BatchWriterMetrics{
		Written: atomic.LoadUint64(&bw.totalWritten),
		Failed:  atomic.LoadUint64(&bw.totalFailed),
		Batches: atomic.LoadUint64(&bw.batchCount),
		Pending: pending,
	}
}

// BatchWriterMetrics holds batch writer statistics.
type BatchWriterMetrics struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Batches uint64 `json:"batches"`
	Pending int    `json:"pending"`
}
