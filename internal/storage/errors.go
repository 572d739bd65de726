package storage

import (
	"errors"
	"fmt"

	wberrors "fraud-workbench/internal/errors"
)

// Storage failures reach callers as workbench errors: an unreachable
// database is a network error, anything else a persistence error. The
// *StorageError underneath keeps the table and retry count.

var (
	ErrConnectionFailed  = errors.New("storage: connection failed")
	ErrQueryFailed       = errors.New("storage: query failed")
	ErrBatchInsertFailed = errors.New("storage: batch insert failed")

	// ErrWriterClosed is returned by writes after Close.
	ErrWriterClosed = errors.New("storage: batch writer is closed")
)

// StorageError records where a storage operation failed.
type StorageError struct {
	Op      string // Open, Ping, Insert, RecentAudit, ApplyRetention
	Table   string
	Retries int
	Err     error
}

func (e *StorageError) Error() string {
	where := "storage." + e.Op
	if e.Table != "" {
		where += "(" + e.Table + ")"
	}
	if e.Retries > 0 {
		return fmt.Sprintf("%s after %d retries: %v", where, e.Retries, e.Err)
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err came from an unreachable database.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

func connectionError(op string, err error) error {
	return &wberrors.Error{
		Op:      "storage." + op,
		Kind:    wberrors.KindNetwork,
		Message: "audit database unreachable",
		Err:     &StorageError{Op: op, Err: fmt.Errorf("%w: %v", ErrConnectionFailed, err)},
	}
}

func queryError(op, table string, err error) error {
	return &wberrors.Error{
		Op:      "storage." + op,
		Kind:    wberrors.KindPersistence,
		Message: "audit query failed",
		Err:     &StorageError{Op: op, Table: table, Err: fmt.Errorf("%w: %v", ErrQueryFailed, err)},
	}
}

func insertError(table string, retries int, err error) error {
	return &wberrors.Error{
		Op:      "storage.Insert",
		Kind:    wberrors.KindPersistence,
		Message: "audit write failed",
		Err: &StorageError{
			Op:      "Insert",
			Table:   table,
			Retries: retries,
			Err:     fmt.Errorf("%w: %v", ErrBatchInsertFailed, err),
		},
	}
}
