package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"shipfilter/internal/audit"
	"shipfilter/internal/filterspec"
)

var auditCols = []string{
	"id", "session_id", "action", "status", "code", "spec_hash", "compiled_hash",
	"schema_signature", "dictionary_version", "dialect", "row_count", "duration_ms", "created_at",
}

// InsertAuditEvents writes a batch of events in one transaction.
func (s *Store) InsertAuditEvents(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	var placeholders []string
	var args []any
	for i, e := range events {
		offset := i * len(auditCols)
		ph := make([]string, len(auditCols))
		for j := range auditCols {
			ph[j] = s.Dialect.Placeholder(offset + j + 1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
		args = append(args, e.ID, e.SessionID, string(e.Action), e.Status, string(e.Code), e.SpecHash, e.CompiledHash,
			e.SchemaSignature, e.DictionaryVersion, e.Dialect, e.RowCount, e.DurationMs, s.Dialect.TimeValue(e.CreatedAt))
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit begin tx: %w", err)
	}
	sqlStr := fmt.Sprintf("INSERT INTO _audit_events (%s) VALUES %s", strings.Join(auditCols, ","), strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("audit insert: %w", s.Dialect.MapError(err))
	}
	return tx.Commit()
}

// DeleteAuditEventsBefore removes events created before cutoff.
func (s *Store) DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.exec(ctx,
		fmt.Sprintf("DELETE FROM _audit_events WHERE created_at < %s", s.Dialect.Placeholder(1)),
		s.Dialect.TimeValue(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return n, nil
}

// ListAuditEvents returns the newest events first.
func (s *Store) ListAuditEvents(ctx context.Context, q audit.Query) ([]audit.Event, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if q.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("session_id = %s", s.Dialect.Placeholder(argIdx)))
		args = append(args, q.SessionID)
		argIdx++
	}
	if q.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = %s", s.Dialect.Placeholder(argIdx)))
		args = append(args, string(q.Action))
		argIdx++
	}
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	sqlStr := "SELECT " + strings.Join(auditCols, ", ") + " FROM _audit_events"
	if len(conditions) > 0 {
		sqlStr += " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlStr += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %s", s.Dialect.Placeholder(argIdx))
	args = append(args, limit)

	rows, err := s.query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	events := make([]audit.Event, len(rows))
	for i, row := range rows {
		events[i] = audit.Event{
			ID:                cast.ToString(row["id"]),
			SessionID:         cast.ToString(row["session_id"]),
			Action:            audit.Action(cast.ToString(row["action"])),
			Status:            cast.ToString(row["status"]),
			Code:              filterspec.ErrorCode(cast.ToString(row["code"])),
			SpecHash:          cast.ToString(row["spec_hash"]),
			CompiledHash:      cast.ToString(row["compiled_hash"]),
			SchemaSignature:   cast.ToString(row["schema_signature"]),
			DictionaryVersion: cast.ToString(row["dictionary_version"]),
			Dialect:           cast.ToString(row["dialect"]),
			RowCount:          cast.ToInt64(row["row_count"]),
			DurationMs:        cast.ToFloat64(row["duration_ms"]),
			CreatedAt:         cast.ToTime(row["created_at"]).UTC(),
		}
	}
	return events, nil
}

var (
	_ audit.Writer = (*Store)(nil)
	_ audit.Pruner = (*Store)(nil)
)
