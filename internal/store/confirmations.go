package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"shipfilter/internal/filterspec"
)

var confirmationCols = []string{"session_id", "expansion_hash", "canonical_key", "expansion", "confirmed_at"}

// RecordConfirmations stores confirmations for a session. Re-confirming an
// expansion keeps the original timestamp.
func (s *Store) RecordConfirmations(ctx context.Context, sessionID string, confirmations []filterspec.Confirmation) error {
	if len(confirmations) == 0 {
		return nil
	}
	var placeholders []string
	var args []any
	for i, c := range confirmations {
		offset := i * len(confirmationCols)
		ph := make([]string, len(confirmationCols))
		for j := range confirmationCols {
			ph[j] = s.Dialect.Placeholder(offset + j + 1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args, sessionID, c.ExpansionHash, c.CanonicalKey, c.Expansion, s.Dialect.TimeValue(c.ConfirmedAt))
	}
	sqlStr := s.Dialect.InsertIgnore("_confirmations", confirmationCols, strings.Join(placeholders, ", "))
	if _, err := s.exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("record confirmations: %w", err)
	}
	return nil
}

// Confirmations returns everything confirmed within a session.
func (s *Store) Confirmations(ctx context.Context, sessionID string) (filterspec.Confirmations, error) {
	rows, err := s.query(ctx,
		fmt.Sprintf("SELECT expansion_hash, canonical_key, expansion, confirmed_at FROM _confirmations WHERE session_id = %s",
			s.Dialect.Placeholder(1)),
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load confirmations: %w", err)
	}
	out := make(filterspec.Confirmations, len(rows))
	for _, row := range rows {
		c := filterspec.Confirmation{
			ExpansionHash: cast.ToString(row["expansion_hash"]),
			CanonicalKey:  cast.ToString(row["canonical_key"]),
			Expansion:     cast.ToString(row["expansion"]),
			ConfirmedAt:   cast.ToTime(row["confirmed_at"]).UTC(),
		}
		out[c.ExpansionHash] = c
	}
	return out, nil
}
