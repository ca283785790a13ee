// Package queue implements spec section 4.2: five bounded pipes, each
// with a dedicated worker that owns an internal backlog, flushes in
// batches, retries storage failures with linear backoff, and escalates
// to a process-wide interrupt after four consecutive failures.
package queue

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Interrupt is the single process-wide flag observed at every loop head
// and before every queue send/receive (spec section 5).
type Interrupt struct {
	flag atomic.Bool
}

func (i *Interrupt) Set()       { i.flag.Store(true) }
func (i *Interrupt) IsSet() bool { return i.flag.Load() }

// maxConsecutiveFailures is the escalation threshold spec 4.2 step 3
// names ("up to four consecutive failures").
const maxConsecutiveFailures = 4

// FlushFunc persists one batch. Implementations are the Store methods
// (InsertBulk, UpdateProxies, InsertProxyTests).
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// BoundedQueue is the generic shape shared by the insert-new-proxy,
// update-proxy and insert-proxytest pipes: a bounded channel, an internal
// backlog for failed flushes, and a threshold-triggered batched flush.
type BoundedQueue[T any] struct {
	name      string
	ch        chan T
	threshold int
	batchSize int
	flush     FlushFunc[T]
	interrupt *Interrupt
	log       *zap.Logger

	backlog []T
}

// New builds a bounded queue. capacity is the channel bound from spec's
// capacity table; threshold triggers a flush attempt once the backlog
// reaches it; batchSize caps each storage transaction (spec: "batches of
// 250 rows").
func New[T any](name string, capacity, threshold, batchSize int, flush FlushFunc[T], interrupt *Interrupt, log *zap.Logger) *BoundedQueue[T] {
	return &BoundedQueue[T]{
		name:      name,
		ch:        make(chan T, capacity),
		threshold: threshold,
		batchSize: batchSize,
		flush:     flush,
		interrupt: interrupt,
		log:       log,
	}
}

// Push enqueues item, blocking up to timeout if the pipe is full.
// Returns false if the push timed out or the queue was interrupted.
func (q *BoundedQueue[T]) Push(ctx context.Context, item T, timeout time.Duration) bool {
	if q.interrupt.IsSet() {
		return false
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case q.ch <- item:
		return true
	case <-tctx.Done():
		return false
	}
}

// Run drives the drain-threshold-flush loop described in spec 4.2 until
// ctx is cancelled or the interrupt fires, at which point it flushes
// whatever remains regardless of threshold and returns.
func (q *BoundedQueue[T]) Run(ctx context.Context, drainInterval time.Duration) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	for {
		select {
		case item := <-q.ch:
			q.backlog = append(q.backlog, item)
		case <-ticker.C:
			// fall through to threshold check below
		case <-ctx.Done():
			q.drainChannel()
			q.flushAll(ctx)
			return
		}

		if q.interrupt.IsSet() {
			q.drainChannel()
			q.flushAll(ctx)
			return
		}

		if len(q.backlog) < q.threshold {
			continue
		}

		if err := q.flushBatches(ctx); err != nil {
			consecutiveFailures++
			q.log.Warn("queue flush failed", zap.String("queue", q.name), zap.Error(err), zap.Int("consecutive_failures", consecutiveFailures))
			if consecutiveFailures >= maxConsecutiveFailures {
				q.log.Error("queue escalating to process interrupt", zap.String("queue", q.name))
				q.interrupt.Set()
			} else {
				backoff := time.Duration(consecutiveFailures) * 200 * time.Millisecond
				time.Sleep(backoff)
			}
		} else {
			consecutiveFailures = 0
		}
	}
}

// drainChannel empties whatever is immediately available in ch into the
// backlog without blocking, used before a final flush on shutdown.
func (q *BoundedQueue[T]) drainChannel() {
	for {
		select {
		case item := <-q.ch:
			q.backlog = append(q.backlog, item)
		default:
			return
		}
	}
}

func (q *BoundedQueue[T]) flushAll(ctx context.Context) {
	for len(q.backlog) > 0 {
		if err := q.flushBatches(ctx); err != nil {
			q.log.Error("queue final flush failed, dropping backlog", zap.String("queue", q.name), zap.Error(err))
			return
		}
	}
}

// flushBatches persists the backlog in batchSize chunks, removing
// successfully-flushed items; it returns the first error encountered,
// leaving any un-flushed tail in the backlog for the next attempt.
func (q *BoundedQueue[T]) flushBatches(ctx context.Context) error {
	for len(q.backlog) > 0 {
		n := q.batchSize
		if n > len(q.backlog) {
			n = len(q.backlog)
		}
		batch := q.backlog[:n]
		if err := q.flush(ctx, batch); err != nil {
			return err
		}
		q.backlog = q.backlog[n:]
	}
	return nil
}

// Backlog returns the current backlog length, for stats/tests.
func (q *BoundedQueue[T]) Backlog() int { return len(q.backlog) }
