package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ApplyAuditRetention sets the TTL on audit_events. A non-positive ttl leaves
// the table untouched.
func ApplyAuditRetention(ctx context.Context, client *ClickHouseClient, ttl time.Duration, logger *slog.Logger) error {
	stmt, ok := retentionStatement(auditTable, "occurred_at", ttl)
	if !ok {
		return nil
	}
	if err := client.Exec(ctx, stmt); err != nil {
		return queryError("ApplyRetention", auditTable, err)
	}
	if logger != nil {
		logger.Info("applied audit retention", "table", auditTable, "ttl", ttl)
	}
	return nil
}

func retentionStatement(table, column string, ttl time.Duration) (string, bool) {
	if ttl <= 0 {
		return "", false
	}
	days := int(ttl.Hours() / 24)
	if days < 1 {
		days = 1
	}
	return fmt.Sprintf("ALTER TABLE %s MODIFY TTL toDateTime(%s) + INTERVAL %d DAY DELETE",
		sanitizeTableName(table), sanitizeTableName(column), days), true
}

// sanitizeTableName keeps only identifier-safe characters.
func sanitizeTableName(name string) string {
	var result []byte
	for _, b := range []byte(name) {
		if (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') ||
			(b >= '0' && b <= '9') || b == '_' {
			result = append(result, b)
		}
	}
	return string(result)
}
