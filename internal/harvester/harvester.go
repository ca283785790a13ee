// Package harvester runs the registered scrapers as a bounded-concurrency
// pool on a periodic tick, streaming results straight into the
// insert-new-proxy queue without ever accumulating a full-run batch in
// memory (spec 4.8).
//
// Grounded on the teacher's fetchAndCheck ticker loop (worker.go),
// generalized from one synchronous `fetchProxies` call to N independent
// scrapers run concurrently and bounded via golang.org/x/sync/errgroup.
package harvester

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"

	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/queue"
	"github.com/grishkovelli/proxytools/internal/scraper"
)

// Entry pairs a scraper with the protocol its lines default to when a
// line carries no explicit scheme.
type Entry struct {
	Scraper          scraper.Scraper
	DefaultProtocol  model.Protocol
}

// Pool runs every registered scraper on each tick, bounded to
// MaxConcurrency simultaneous scrapers.
type Pool struct {
	Entries        []Entry
	MaxConcurrency int
	Inserts        *queue.BoundedQueue[model.Proxy]
	PushWait       time.Duration
	Interrupt      *queue.Interrupt
	Log            *zap.Logger
}

func New(entries []Entry, maxConcurrency int, inserts *queue.BoundedQueue[model.Proxy], pushWait time.Duration, interrupt *queue.Interrupt, log *zap.Logger) *Pool {
	return &Pool{
		Entries:        entries,
		MaxConcurrency: maxConcurrency,
		Inserts:        inserts,
		PushWait:       pushWait,
		Interrupt:      interrupt,
		Log:            log,
	}
}

// Run ticks every interval until ctx is cancelled or the interrupt
// fires, running one full harvest pass per tick.
func (p *Pool) Run(ctx context.Context, interval time.Duration) {
	p.pass(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if p.Interrupt.IsSet() {
			return
		}
		p.pass(ctx)
	}
}

func (p *Pool) pass(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.MaxConcurrency)

	for _, entry := range p.Entries {
		entry := entry
		g.Go(func() error {
			p.harvestOne(gctx, entry)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pool) harvestOne(ctx context.Context, entry Entry) {
	name := entry.Scraper.Name()
	lines, err := entry.Scraper.Scrape(ctx)
	if err != nil {
		p.Log.Warn("scraper failed", zap.String("source", name), zap.Error(err))
		return
	}

	proxies := scraper.Parse(name, lines, entry.DefaultProtocol)
	p.Log.Info("scraper finished", zap.String("source", name), zap.Int("raw_lines", len(lines)), zap.Int("parsed", len(proxies)))

	for _, proxy := range proxies {
		if p.Interrupt.IsSet() {
			return
		}
		proxy.Status = model.UNKNOWN
		proxy.Created = time.Now()
		proxy.Modified = time.Now()
		if !p.Inserts.Push(ctx, proxy, p.PushWait) {
			p.Log.Warn("dropped scraped proxy, insert-new pipe interrupted or full", zap.String("source", name))
		}
	}
}
