// Package maintenance runs background housekeeping for the onboarding
// pipeline: purging expired invitation and password reset tokens.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/proserveapp/proserve/internal/services"
	"github.com/proserveapp/proserve/pkg/logger"
)

const defaultTokenSpec = "@daily"

// Cleaner coordinates the scheduled token purges. Any nil dependency results
// in the corresponding job being skipped.
type Cleaner struct {
	invitations *services.InvitationService
	resetTokens *services.PasswordResetService
	cron        *cron.Cron
	log         *zap.Logger

	tokenSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithTokenSchedule overrides the cron specification for token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(invitations *services.InvitationService, resetTokens *services.PasswordResetService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		invitations:   invitations,
		resetTokens:   resetTokens,
		tokenSchedule: defaultTokenSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the purge job with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.invitations == nil && c.resetTokens == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("token cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes the purge routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	start := time.Now()

	if c.invitations != nil {
		if purged, err := c.invitations.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		} else if purged > 0 {
			c.log.Info("purged expired invitation tokens", zap.Int64("count", purged))
		}
	}

	if c.resetTokens != nil {
		if purged, err := c.resetTokens.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		} else if purged > 0 {
			c.log.Info("purged password reset tokens", zap.Int64("count", purged))
		}
	}

	if errs == nil {
		c.log.Debug("token cleanup complete", zap.Duration("took", time.Since(start)))
	}

	return errs
}
