// Package tester implements spec 4.5/4.6: a pool of workers that each
// claim one proxy at a time from the fetch pipe, run the configured
// probe pipeline against it, and push the resulting proxy update and
// proxy-test rows into their respective queues.
//
// Grounded on the teacher's handleServer/processTarget dispatch loop
// (worker.go), generalized from "forward a caller's request through the
// best proxy" to "classify one candidate proxy at a time".
package tester

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/probe"
	"github.com/grishkovelli/proxytools/internal/queue"
	"github.com/grishkovelli/proxytools/internal/store"
)

// GeoLookup resolves a proxy's own IP to a country code, implemented by
// *geoip.Table. A nil GeoLookup leaves every proxy's country unset.
type GeoLookup interface {
	Lookup(ip string) string
}

// Stats is a snapshot of pool-wide counters, served by the /metrics and
// /ws endpoints (spec 6: web interface shows live tester throughput).
type Stats struct {
	Tested  int64
	OK      int64
	Failed  int64
	Started time.Time
}

// Pool runs N tester goroutines against a shared FetchQueue, pushing
// results into the update/insert-test queues.
type Pool struct {
	Workers    int
	Store      store.Store
	Fetch      *queue.FetchQueue
	Pipeline   *probe.Pipeline
	Updates    *queue.BoundedQueue[model.Proxy]
	Tests      *queue.BoundedQueue[model.ProxyTest]
	PushWait   time.Duration
	Interrupt  *queue.Interrupt
	Log        *zap.Logger

	// GeoIP resolves a proxy's own IP to a country, best-effort. Nil
	// leaves Country untouched.
	GeoIP GeoLookup

	// Per-claim cleanup predicate (spec 4.5 step 3): a proxy claimed off
	// the fetch queue that is already old enough, tested enough times,
	// and failing often enough gets deleted instead of probed again.
	// Mirrors queue.CleanupWorker's batch-sweep thresholds.
	FailAge      time.Duration
	FailMinTests int
	FailRate     float64

	mu    sync.Mutex
	stats Stats
}

func NewPool(workers int, s store.Store, fetch *queue.FetchQueue, pipeline *probe.Pipeline, updates *queue.BoundedQueue[model.Proxy], tests *queue.BoundedQueue[model.ProxyTest], pushWait time.Duration, geo GeoLookup, interrupt *queue.Interrupt, log *zap.Logger) *Pool {
	return &Pool{
		Workers:      workers,
		Store:        s,
		Fetch:        fetch,
		Pipeline:     pipeline,
		Updates:      updates,
		Tests:        tests,
		PushWait:     pushWait,
		GeoIP:        geo,
		Interrupt:    interrupt,
		Log:          log,
		FailAge:      14 * 24 * time.Hour,
		FailMinTests: 20,
		FailRate:     0.9,
		stats:        Stats{Started: time.Time{}},
	}
}

// Run launches Workers goroutines and blocks until ctx is cancelled or
// the interrupt fires, at which point all workers finish their current
// proxy and return.
func (p *Pool) Run(ctx context.Context) {
	p.mu.Lock()
	p.stats.Started = time.Now()
	p.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < p.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	log := p.Log.With(zap.Int("worker", id))
	for {
		if ctx.Err() != nil || p.Interrupt.IsSet() {
			return
		}

		proxy, ok := p.Fetch.GetProxy(ctx)
		if !ok {
			continue
		}

		if p.shouldDelete(proxy) {
			if err := p.Store.DeleteProxy(ctx, proxy.ID); err != nil {
				log.Warn("failed to delete chronically failing proxy", zap.Int64("id", proxy.ID), zap.Error(err))
			}
			continue
		}

		results := p.Pipeline.Run(ctx, proxy)
		p.classify(proxy, results)

		for _, t := range results {
			if !p.Tests.Push(ctx, t, p.PushWait) {
				log.Warn("dropped proxy-test row, insert-proxytest pipe interrupted or full")
			}
		}
		if !p.Updates.Push(ctx, *proxy, p.PushWait) {
			log.Warn("dropped proxy update, update-proxy pipe interrupted or full")
		}

		p.record(proxy.Status)
	}
}

// shouldDelete evaluates spec 4.5 step 3's cleanup predicate against a
// single just-claimed proxy: old enough, tested enough times, and its
// lifetime fail ratio at or above threshold.
func (p *Pool) shouldDelete(proxy *model.Proxy) bool {
	if proxy.TestCount < p.FailMinTests {
		return false
	}
	if time.Since(proxy.Created) < p.FailAge {
		return false
	}
	return float64(proxy.FailCount)/float64(proxy.TestCount) >= p.FailRate
}

// classify folds the pipeline's results onto the proxy record itself:
// the last test's status becomes the proxy's own (spec 4.5: "the proxy
// row is updated once per test cycle, not once per probe"), its latency
// is the arithmetic mean of every probe's latency (spec 4.4: "The
// proxy's final status is the last executed probe's status; its latency
// is the arithmetic mean of probe latencies"), and the counters advance
// exactly once per tested proxy.
func (p *Pool) classify(proxy *model.Proxy, results []model.ProxyTest) {
	proxy.TestCount++
	last := results[len(results)-1]
	proxy.Status = last.Status
	proxy.Latency = meanLatency(results)
	if last.Status != model.OK {
		proxy.FailCount++
	}
	proxy.Modified = time.Now()

	if socksResult, reclassified := socksReclassification(results); reclassified {
		proxy.Protocol = socksResult
	}

	if proxy.Country == "" && p.GeoIP != nil {
		proxy.Country = p.GeoIP.Lookup(proxy.IP)
	}
}

func meanLatency(results []model.ProxyTest) int {
	sum := 0
	for _, t := range results {
		sum += t.Latency
	}
	return sum / len(results)
}

// socksReclassification looks for a socks-version probe result among the
// pipeline's rows and, if present, returns the protocol it implies.
func socksReclassification(results []model.ProxyTest) (model.Protocol, bool) {
	for _, t := range results {
		switch t.Info {
		case "SOCKS5 handshake accepted", "SOCKS4 handshake accepted", "SOCKS handshake rejected, demoting to HTTP":
			return probe.Reclassify(t), true
		}
	}
	return 0, false
}

func (p *Pool) record(status model.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Tested++
	if status == model.OK {
		p.stats.OK++
	} else {
		p.stats.Failed++
	}
}

// Snapshot returns a copy of the current stats, safe for concurrent use.
func (p *Pool) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
