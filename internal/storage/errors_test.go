package storage

import (
	"errors"
	"strings"
	"testing"

	wberrors "fraud-workbench/internal/errors"
)

func TestStorageErrorKinds(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:9000: connection refused")

	tests := []struct {
		name     string
		err      error
		kind     wberrors.Kind
		sentinel error
		text     string
	}{
		{"connection", connectionError("Ping", cause), wberrors.KindNetwork, ErrConnectionFailed, "storage.Ping: "},
		{"query", queryError("RecentAudit", auditTable, cause), wberrors.KindPersistence, ErrQueryFailed, "storage.RecentAudit(" + auditTable + "): "},
		{"insert", insertError(auditTable, 3, cause), wberrors.KindPersistence, ErrBatchInsertFailed, "after 3 retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wberrors.KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %q, want %q", got, tt.kind)
			}
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			var se *StorageError
			if !errors.As(tt.err, &se) {
				t.Fatalf("no StorageError in %v", tt.err)
			}
			if got := se.Error(); !strings.Contains(got, tt.text) {
				t.Errorf("StorageError = %q, want it to contain %q", got, tt.text)
			}
		})
	}
}

func TestStorageErrorSafeMessage(t *testing.T) {
	err := connectionError("Open", errors.New("connection refused"))
	if got := wberrors.SafeMessage(err); got != "Backend unreachable: audit database unreachable" {
		t.Errorf("SafeMessage() = %q", got)
	}
	if !IsConnectionError(err) {
		t.Error("IsConnectionError() = false")
	}
	if IsConnectionError(queryError("RecentAudit", auditTable, errors.New("x"))) {
		t.Error("query error reported as connection error")
	}
}
