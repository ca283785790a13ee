package store

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/grishkovelli/proxytools/internal/model"
)

// Memory is an in-memory Store used by unit tests of the store, tester,
// exporter and wlpb packages in place of a live Postgres instance.
type Memory struct {
	mu        sync.Mutex
	proxies   map[int64]*model.Proxy
	tests     []model.ProxyTest
	nextID    int64
	nextTest  int64
	lockValue string
	lockAt    time.Time
}

func NewMemory() *Memory {
	return &Memory{proxies: map[int64]*model.Proxy{}}
}

func (m *Memory) Close() error { return nil }

// Seed inserts a proxy with an explicit id, bypassing InsertBulk's upsert
// semantics, for test setup.
func (m *Memory) Seed(p model.Proxy) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	if p.Created.IsZero() {
		p.Created = time.Now()
	}
	if p.Modified.IsZero() {
		p.Modified = time.Now()
	}
	m.proxies[p.ID] = &p
	return p.ID
}

func matchesProtocol(p model.Protocol, protocols []model.Protocol) bool {
	if len(protocols) == 0 {
		return true
	}
	for _, want := range protocols {
		if p == want {
			return true
		}
	}
	return false
}

func (m *Memory) NeedScan(ctx context.Context, limit int, maxAge time.Duration, protocols []model.Protocol) ([]model.Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var out []model.Proxy
	for _, p := range m.proxies {
		if p.Status == model.TESTING || !matchesProtocol(p.Protocol, protocols) {
			continue
		}
		if p.Modified.After(cutoff) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status < out[j].Status
		}
		return out[i].Modified.Before(out[j].Modified)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetForScan(ctx context.Context, maxAge time.Duration, protocols []model.Protocol) (*model.Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var candidates []model.Proxy
	for _, p := range m.proxies {
		if !matchesProtocol(p.Protocol, protocols) {
			continue
		}
		if p.Status != model.TESTING && p.Modified.Before(cutoff) {
			candidates = append(candidates, *p)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	pick := candidates[rand.Intn(len(candidates))]
	return &pick, nil
}

func (m *Memory) LockForTesting(ctx context.Context, id int64, fromStatus model.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[id]
	if !ok || p.Status != fromStatus {
		return false, nil
	}
	p.Status = model.TESTING
	p.Modified = time.Now()
	return true, nil
}

func (m *Memory) BulkLock(ctx context.Context, ids []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var locked []int64
	for _, id := range ids {
		p, ok := m.proxies[id]
		if !ok || p.Status == model.TESTING {
			continue
		}
		p.Status = model.TESTING
		p.Modified = time.Now()
		locked = append(locked, id)
	}
	return locked, nil
}

func (m *Memory) BulkUnlock(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if p, ok := m.proxies[id]; ok && p.Status == model.TESTING {
			p.Status = model.UNKNOWN
			p.Modified = time.Now()
		}
	}
	return nil
}

func (m *Memory) UnlockStuck(ctx context.Context, maxAge time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var n int64
	for _, p := range m.proxies {
		if p.Status == model.TESTING && p.Modified.Before(cutoff) {
			p.Status = model.ERROR
			p.Modified = time.Now()
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetValid(ctx context.Context, limit int, maxAge time.Duration, protocols []model.Protocol, excludeCountries []string) ([]model.Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	excluded := map[string]bool{}
	for _, c := range excludeCountries {
		excluded[c] = true
	}
	var out []model.Proxy
	for _, p := range m.proxies {
		if p.Status != model.OK || p.Modified.Before(cutoff) || !matchesProtocol(p.Protocol, protocols) {
			continue
		}
		if excluded[p.Country] {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteFailed(ctx context.Context, minAge time.Duration, minTests int, failRate float64, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-minAge)
	var deleted []int64
	for id, p := range m.proxies {
		if len(deleted) >= limit {
			break
		}
		if p.Created.After(cutoff) || p.TestCount < minTests {
			continue
		}
		if float64(p.FailCount)/float64(p.TestCount) < failRate {
			continue
		}
		deleted = append(deleted, id)
	}
	for _, id := range deleted {
		delete(m.proxies, id)
	}
	return deleted, nil
}

func (m *Memory) DeleteProxy(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.proxies, id)
	return nil
}

func (m *Memory) InsertBulk(ctx context.Context, proxies []model.Proxy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, np := range proxies {
		var existing *model.Proxy
		for _, p := range m.proxies {
			if p.IP == np.IP && p.Port == np.Port {
				existing = p
				break
			}
		}
		if existing != nil {
			// Conflict on (ip, port) is a no-op: credentials/protocol/modified
			// survive a re-scrape untouched (spec 4.1).
			continue
		}
		m.nextID++
		np.ID = m.nextID
		np.Status = model.UNKNOWN
		np.Created = now
		np.Modified = now
		cp := np
		m.proxies[cp.ID] = &cp
	}
	return nil
}

func (m *Memory) UpdateProxies(ctx context.Context, proxies []model.Proxy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, up := range proxies {
		if p, ok := m.proxies[up.ID]; ok {
			p.Status = up.Status
			p.Latency = up.Latency
			p.TestCount = up.TestCount
			p.FailCount = up.FailCount
			p.Country = up.Country
			p.Modified = up.Modified
		}
	}
	return nil
}

func (m *Memory) InsertProxyTests(ctx context.Context, tests []model.ProxyTest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tests {
		m.nextTest++
		t.ID = m.nextTest
		m.tests = append(m.tests, t)
	}
	return nil
}

func (m *Memory) Proxy(ctx context.Context, id int64) (*model.Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.Status]int{}
	for _, p := range m.proxies {
		out[p.Status]++
	}
	return out, nil
}

func (m *Memory) LockDatabase(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockValue == "" || time.Since(m.lockAt) > model.LockLease {
		m.lockValue = token
		m.lockAt = time.Now()
		return true, nil
	}
	return false, nil
}

func (m *Memory) UnlockDatabase(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockValue == token {
		m.lockValue = ""
	}
	return nil
}

// Tests returns a snapshot of every inserted ProxyTest, for assertions.
func (m *Memory) Tests() []model.ProxyTest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ProxyTest, len(m.tests))
	copy(out, m.tests)
	return out
}
