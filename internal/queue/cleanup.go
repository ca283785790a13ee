package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grishkovelli/proxytools/internal/store"
)

// CleanupWorker periodically releases proxies stuck in TESTING and
// deletes chronically failing proxies (spec 4.2: "The cleanup worker
// periodically scans for (a) proxies stuck in TESTING ... and (b)
// long-window failing proxies"), holding the distributed lock around
// each pass.
type CleanupWorker struct {
	store     store.Store
	token     string
	interrupt *Interrupt
	log       *zap.Logger

	StuckAfter     time.Duration
	FailAge        time.Duration
	FailMinTests   int
	FailRate       float64
	FailBatchLimit int
}

func NewCleanupWorker(s store.Store, token string, interrupt *Interrupt, log *zap.Logger) *CleanupWorker {
	return &CleanupWorker{
		store:          s,
		token:          token,
		interrupt:      interrupt,
		log:            log,
		StuckAfter:     10 * time.Minute,
		FailAge:        14 * 24 * time.Hour,
		FailMinTests:   20,
		FailRate:       0.9,
		FailBatchLimit: 100,
	}
}

// Run sleeps interval between passes, exiting once the interrupt fires.
func (c *CleanupWorker) Run(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		if c.interrupt.IsSet() {
			return
		}
		c.pass(ctx)
	}
}

func (c *CleanupWorker) pass(ctx context.Context) {
	_, err := store.WithDatabaseLock(ctx, c.store, c.token, func() error {
		n, err := c.store.UnlockStuck(ctx, c.StuckAfter)
		if err != nil {
			return err
		}
		if n > 0 {
			c.log.Info("cleanup: released stuck proxies", zap.Int64("count", n))
		}

		deleted, err := c.store.DeleteFailed(ctx, c.FailAge, c.FailMinTests, c.FailRate, c.FailBatchLimit)
		if err != nil {
			return err
		}
		if len(deleted) > 0 {
			c.log.Info("cleanup: deleted chronically failing proxies", zap.Int("count", len(deleted)))
		}
		return nil
	})
	if err != nil {
		c.log.Warn("cleanup pass failed", zap.Error(err))
	}
}
