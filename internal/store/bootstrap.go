package store

import (
	"context"
	"fmt"
	"strings"
)

// Bootstrap creates the confirmation and audit tables if they are missing.
// Statements run one at a time since not every driver accepts a batch.
func (s *Store) Bootstrap(ctx context.Context) error {
	for _, stmt := range strings.Split(s.Dialect.SystemTablesSQL(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap system tables: %w", err)
		}
	}
	return nil
}
