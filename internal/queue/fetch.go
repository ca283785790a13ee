package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/store"
)

// FetchQueue is the fetch-for-test pipe (spec 4.2 table row 1): capacity
// 2x testers, filled by periodically calling need_scan+bulk_lock under
// the distributed lock, drained by testers via GetProxy.
type FetchQueue struct {
	ch        chan model.Proxy
	store     store.Store
	token     string
	protocols []model.Protocol
	scanAge   time.Duration
	interrupt *Interrupt
	log       *zap.Logger

	held []int64 // claimed ids not yet handed to a tester, for shutdown unlock
}

func NewFetchQueue(capacity int, s store.Store, token string, protocols []model.Protocol, scanAge time.Duration, interrupt *Interrupt, log *zap.Logger) *FetchQueue {
	return &FetchQueue{
		ch:        make(chan model.Proxy, capacity),
		store:     s,
		token:     token,
		protocols: protocols,
		scanAge:   scanAge,
		interrupt: interrupt,
		log:       log,
	}
}

// Run periodically tops up the pipe. It holds the distributed lock only
// for the duration of the need_scan+bulk_lock pair (spec 4.2: "The fetch
// worker additionally holds the distributed lock while calling need_scan
// + bulk_lock; this prevents two fetch workers across processes from
// issuing overlapping batches").
func (q *FetchQueue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.releaseHeld(context.Background())
			return
		case <-ticker.C:
		}
		if q.interrupt.IsSet() {
			q.releaseHeld(context.Background())
			return
		}
		q.fill(ctx)
	}
}

func (q *FetchQueue) fill(ctx context.Context) {
	free := cap(q.ch) - len(q.ch)
	if free <= 0 {
		return
	}
	acquired, err := store.WithDatabaseLock(ctx, q.store, q.token, func() error {
		candidates, err := q.store.NeedScan(ctx, free, q.scanAge, q.protocols)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}
		ids := make([]int64, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		locked, err := q.store.BulkLock(ctx, ids)
		if err != nil {
			return err
		}
		lockedSet := make(map[int64]bool, len(locked))
		for _, id := range locked {
			lockedSet[id] = true
		}
		for _, c := range candidates {
			if !lockedSet[c.ID] {
				continue
			}
			c.Status = model.TESTING
			select {
			case q.ch <- c:
				// handed to the channel; ownership transfers to whoever receives it
			default:
				q.held = append(q.held, c.ID)
			}
		}
		return nil
	})
	if err != nil {
		q.log.Warn("fetch queue fill failed", zap.Error(err))
		return
	}
	if !acquired {
		q.log.Debug("fetch queue: distributed lock held elsewhere, skipping this tick")
	}
}

// GetProxy is the tester-facing pull: receive with a 1-second timeout,
// per spec 4.5 step 2.
func (q *FetchQueue) GetProxy(ctx context.Context) (*model.Proxy, bool) {
	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	select {
	case p := <-q.ch:
		return &p, true
	case <-tctx.Done():
		return nil, false
	}
}

func (q *FetchQueue) releaseHeld(ctx context.Context) {
	// Drain anything still sitting in the channel too: it was claimed but
	// never handed to a tester.
	for {
		select {
		case p := <-q.ch:
			q.held = append(q.held, p.ID)
		default:
			if len(q.held) == 0 {
				return
			}
			if err := q.store.BulkUnlock(ctx, q.held); err != nil {
				q.log.Warn("fetch queue: failed to release held proxies on shutdown", zap.Error(err))
			}
			q.held = nil
			return
		}
	}
}
