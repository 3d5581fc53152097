package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type NotificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner periodically removes read notifications older than the retention.
type Cleaner struct {
	cron      *cron.Cron
	purger    NotificationPurger
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewCleaner(purger NotificationPurger, retentionDays int, logger *slog.Logger) *Cleaner {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{
		cron:      cron.New(),
		purger:    purger,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
}

// Start registers the purge job with a standard five-field cron spec.
func (c *Cleaner) Start(spec string) error {
	_, err := c.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := c.Run(ctx); err != nil {
			c.logger.Error("notification cleanup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cleanup %q: %w", spec, err)
	}
	c.cron.Start()
	c.logger.Info("Notification cleanup scheduled", "spec", spec)
	return nil
}

// Stop waits for a running purge to finish.
func (c *Cleaner) Stop() {
	<-c.cron.Stop().Done()
}

func (c *Cleaner) Run(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.retention)
	n, err := c.purger.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.logger.Info("Deleted old notifications", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
