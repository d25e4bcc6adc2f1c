package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CleanupOldEvents deletes events older than retentionDays.
func CleanupOldEvents(ctx context.Context, p Pruner, retentionDays int, now time.Time, logger *zap.Logger) (int64, error) {
	cutoff := now.UTC().AddDate(0, 0, -retentionDays)
	n, err := p.DeleteAuditEventsBefore(ctx, cutoff)
	if err != nil {
		logger.Error("audit cleanup failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		logger.Info("audit cleanup", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// RunCleanup prunes once immediately and then on every interval until ctx
// is cancelled. Failures are logged and retried on the next tick.
func RunCleanup(ctx context.Context, p Pruner, retentionDays int, interval time.Duration, logger *zap.Logger) error {
	if retentionDays <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, _ = CleanupOldEvents(ctx, p, retentionDays, time.Now(), logger)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
