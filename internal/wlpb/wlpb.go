// Package wlpb selects the scraper's own outbound upstream proxy from
// the pool of already-validated proxies in storage (spec 4.7: a
// scraper may route its own requests through a proxy rather than
// scraping directly).
//
// Directly adapted from the teacher's pkg/wlpb/wlpb.go Balancer/Server:
// the same latency-weighted selection and positive/negative failure
// bookkeeping, repurposed so the candidate pool comes from
// store.GetValid instead of a freshly scraped list, and so it serves
// the scraper's own requests rather than an arbitrary caller's target.
package wlpb

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/store"
)

// server tracks one candidate's recent reliability, mirroring the
// teacher's Server.Positive/Negative bookkeeping.
type server struct {
	proxy    model.Proxy
	url      *url.URL
	positive int
	negative int
}

// Pool periodically refreshes its candidate list from storage and
// hands out one candidate, chosen by latency, on each Next() call.
type Pool struct {
	Store     store.Store
	Protocols []model.Protocol
	MaxAge    time.Duration
	Limit     int

	mu      sync.RWMutex
	alive   []*server
	toggle  int32
}

func New(s store.Store, protocols []model.Protocol, maxAge time.Duration, limit int) *Pool {
	return &Pool{Store: s, Protocols: protocols, MaxAge: maxAge, Limit: limit}
}

// Run refreshes the candidate pool on a tick until ctx is cancelled.
func (p *Pool) Run(ctx context.Context, interval time.Duration) {
	p.refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Pool) refresh(ctx context.Context) {
	candidates, err := p.Store.GetValid(ctx, p.Limit, p.MaxAge, p.Protocols, nil)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	servers := make([]*server, 0, len(candidates))
	for _, c := range candidates {
		u, err := c.ProxyURL()
		if err != nil {
			continue
		}
		servers = append(servers, &server{proxy: c, url: u})
	}
	p.alive = merge(p.alive, servers)
}

// merge preserves positive/negative bookkeeping for candidates still
// present in the refreshed set, mirroring the teacher's Balancer.merge.
func merge(old, fresh []*server) []*server {
	byAddr := make(map[string]*server, len(old))
	for _, s := range old {
		byAddr[s.proxy.Addr()] = s
	}
	for _, s := range fresh {
		if prior, ok := byAddr[s.proxy.Addr()]; ok {
			s.positive = prior.positive
			s.negative = prior.negative
		}
	}
	return fresh
}

// Next alternates sort direction each call the way the teacher's
// sortAliveProxies does: it returns the lowest-latency candidate on one
// call and the highest-latency candidate on the next, so the single best
// proxy is not used for every request.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.alive) == 0 {
		return nil
	}

	ascending := atomic.AddInt32(&p.toggle, 1)%2 == 0
	sorted := append([]*server(nil), p.alive...)
	sort.Slice(sorted, func(i, j int) bool {
		if ascending {
			return sorted[i].proxy.Latency < sorted[j].proxy.Latency
		}
		return sorted[i].proxy.Latency > sorted[j].proxy.Latency
	})
	return sorted[0].url
}

// Report records a request outcome, demoting (removing) a candidate
// whose negative/positive ratio crosses 3x, matching the teacher's
// Balancer.Analyze threshold.
func (p *Pool) Report(u *url.URL, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, s := range p.alive {
		if s.url.Host == u.Host {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	s := p.alive[idx]
	if ok {
		s.positive++
		return
	}
	s.negative++

	demote := (s.positive == 0 && s.negative >= 3) || (s.positive > 0 && s.negative/s.positive >= 3)
	if demote {
		p.alive = append(p.alive[:idx], p.alive[idx+1:]...)
	}
}
