package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/saturn/pkg/usage"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain usage records.
	// 0 means keep records forever (no age-based pruning).
	RetentionDays int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM). Empty disables the
	// scheduler; Prune can still be called directly.
	PruneSchedule string

	// MaxRecords is the maximum number of records to keep.
	// 0 means unlimited.
	MaxRecords int64
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 30,
		PruneSchedule: "0 3 * * *",
		MaxRecords:    0,
	}
}

// Pruner enforces retention limits on the usage ledger.
type Pruner struct {
	store     usage.Store
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a new retention pruner over the given store.
func NewPruner(store usage.Store, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pruner{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "usage.retention"),
	}
	p.scheduler = NewScheduler(p)

	return p
}

// Prune deletes usage records older than the retention period and, when
// MaxRecords is set, trims the ledger down to that count. Both limits
// can apply in the same run. Returns the total number of records
// deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var totalDeleted int64

	if p.config.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -p.config.RetentionDays)

		deleted, err := p.store.DeleteBefore(ctx, cutoff)
		if err != nil {
			return totalDeleted, usage.NewRetentionError(p.config.RetentionDays, err)
		}
		totalDeleted += deleted

		if deleted > 0 {
			p.logger.Info("pruned usage records by age",
				"deleted_count", deleted,
				"retention_days", p.config.RetentionDays,
			)
		}
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return totalDeleted, err
		}
		totalDeleted += deleted
	}

	if totalDeleted == 0 {
		p.logger.Debug("no usage records pruned",
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	} else {
		p.logger.Info("usage pruning completed", "total_deleted", totalDeleted)
	}

	return totalDeleted, nil
}

// pruneByCount deletes the oldest records when the total exceeds
// MaxRecords.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage records: %w", err)
	}

	excess := count - p.config.MaxRecords
	if excess <= 0 {
		return 0, nil
	}

	deleted, err := p.store.DeleteOldest(ctx, excess)
	if err != nil {
		return 0, fmt.Errorf("failed to delete oldest usage records: %w", err)
	}

	p.logger.Info("pruned usage records by count",
		"deleted_count", deleted,
		"max_records", p.config.MaxRecords,
	)

	return deleted, nil
}

// Start starts the automatic pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning, or nil
// when the scheduler is not running.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
