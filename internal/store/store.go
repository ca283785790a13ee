// Package store implements spec section 4.1: the Proxy/ProxyTest storage
// model, the per-proxy claim protocol (lock_for_testing) and the coarse
// distributed lock (DBConfig.read_lock) that serializes batch-claim and
// cleanup passes across processes.
package store

import (
	"context"
	"time"

	"github.com/grishkovelli/proxytools/internal/model"
)

// Store is the storage interface every queue worker and tester depends
// on. internal/store/postgres.go is the production implementation;
// internal/store/memory.go backs unit tests without a live database.
type Store interface {
	// NeedScan returns up to limit proxies whose modified is older than
	// maxAge and whose status is not TESTING, ordered by status ascending
	// then modified ascending (spec 4.1 need_scan).
	NeedScan(ctx context.Context, limit int, maxAge time.Duration, protocols []model.Protocol) ([]model.Proxy, error)

	// GetForScan returns one proxy matching the same predicate as
	// NeedScan but in random order, to reduce lock contention (spec 4.1
	// get_for_scan).
	GetForScan(ctx context.Context, maxAge time.Duration, protocols []model.Protocol) (*model.Proxy, error)

	// LockForTesting performs the conditional update: status -> TESTING,
	// modified -> now, only if the row still holds fromStatus. Returns
	// true iff the caller won the claim.
	LockForTesting(ctx context.Context, id int64, fromStatus model.Status) (bool, error)

	// BulkLock claims many proxies in one statement (queue prefetch).
	// Returns the subset of ids actually claimed.
	BulkLock(ctx context.Context, ids []int64) ([]int64, error)

	// BulkUnlock releases claimed-but-never-tested proxies back to
	// UNKNOWN, used on shutdown by the fetch worker.
	BulkUnlock(ctx context.Context, ids []int64) error

	// UnlockStuck transitions to ERROR any row stuck in TESTING past
	// maxAge; a crash-recovery sweep. Returns the number of rows touched.
	UnlockStuck(ctx context.Context, maxAge time.Duration) (int64, error)

	// GetValid returns recent OK proxies for output/export.
	GetValid(ctx context.Context, limit int, maxAge time.Duration, protocols []model.Protocol, excludeCountries []string) ([]model.Proxy, error)

	// DeleteFailed drops chronically failing proxies (cascading their
	// ProxyTest rows) and returns the ids removed. See SPEC_FULL.md
	// section 13 item 2 for why this is a genuine delete, not a select.
	DeleteFailed(ctx context.Context, minAge time.Duration, minTests int, failRate float64, limit int) ([]int64, error)

	// DeleteProxy drops a single proxy row (cascading its ProxyTest rows),
	// the tester worker's per-claim fast path (spec 4.5 step 3) for a
	// proxy that already fails the cleanup predicate, no probe run.
	DeleteProxy(ctx context.Context, id int64) error

	// InsertBulk upserts proxies on the (ip, port) unique index, preserving
	// username/password/protocol/modified on conflict.
	InsertBulk(ctx context.Context, proxies []model.Proxy) error

	// UpdateProxies batch-updates status/latency/counters/country/modified.
	UpdateProxies(ctx context.Context, proxies []model.Proxy) error

	// InsertProxyTests batch-inserts ProxyTest rows.
	InsertProxyTests(ctx context.Context, tests []model.ProxyTest) error

	// Proxy fetches one proxy by id (status service).
	Proxy(ctx context.Context, id int64) (*model.Proxy, error)

	// CountByStatus is used by the status service's "/" HTML summary.
	CountByStatus(ctx context.Context) (map[model.Status]int, error)

	// LockDatabase and UnlockDatabase implement the DBConfig.read_lock
	// coarse distributed lock (spec 4.1 "Distributed lock").
	LockDatabase(ctx context.Context, token string) (bool, error)
	UnlockDatabase(ctx context.Context, token string) error

	Close() error
}
