package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sekolahku/backend/internal/services"
	"github.com/sekolahku/backend/pkg/logger"
)

const defaultSchedule = "@daily"

// Cleaner runs the scheduled retention job that purges notifications older
// than the configured window. Deleting a notification cascades to its
// per-user delivery rows, so the feed shrinks with the catalog.
type Cleaner struct {
	notifications *services.NotificationService
	cron          *cron.Cron
	log           *zap.Logger

	schedule      string
	retentionDays int
	now           func() time.Time
}

// Option customises a Cleaner.
type Option func(*Cleaner)

// WithCron swaps the cron runner, used by tests to avoid background timers.
func WithCron(c *cron.Cron) Option {
	return func(cl *Cleaner) {
		cl.cron = c
	}
}

// WithNow overrides the clock used to compute the retention cutoff.
func WithNow(now func() time.Time) Option {
	return func(cl *Cleaner) {
		if now != nil {
			cl.now = now
		}
	}
}

// WithSchedule sets the cron expression for the purge job.
func WithSchedule(schedule string) Option {
	return func(cl *Cleaner) {
		if schedule != "" {
			cl.schedule = schedule
		}
	}
}

// WithRetentionDays sets how many days of notifications survive a purge.
func WithRetentionDays(days int) Option {
	return func(cl *Cleaner) {
		if days > 0 {
			cl.retentionDays = days
		}
	}
}

// NewCleaner wires a retention cleaner over the notification catalog.
func NewCleaner(db *gorm.DB, opts ...Option) (*Cleaner, error) {
	notifications, err := services.NewNotificationService(db)
	if err != nil {
		return nil, err
	}

	cl := &Cleaner{
		notifications: notifications,
		cron:          cron.New(cron.WithLogger(cron.DiscardLogger)),
		log:           logger.WithModule("maintenance"),
		schedule:      defaultSchedule,
		retentionDays: 365,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl, nil
}

// Start registers the purge job and launches the scheduler.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Error("scheduled purge failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("maintenance: register purge job: %w", err)
	}

	c.cron.Start()
	c.log.Info("retention cleaner started",
		zap.String("schedule", c.schedule),
		zap.Int("retention_days", c.retentionDays),
	)
	return nil
}

// Stop halts the scheduler and waits for any in-flight run to finish.
func (c *Cleaner) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// RunOnce executes a single purge pass immediately.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	cutoff := c.now().UTC().AddDate(0, 0, -c.retentionDays)

	removed, err := c.notifications.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return multierr.Append(fmt.Errorf("maintenance: purge notifications before %s", cutoff.Format(time.RFC3339)), err)
	}

	if removed > 0 {
		c.log.Info("purged expired notifications",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}
