package tester_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/probe"
	"github.com/grishkovelli/proxytools/internal/queue"
	"github.com/grishkovelli/proxytools/internal/store"
	"github.com/grishkovelli/proxytools/internal/tester"
)

func TestTester(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tester Suite")
}

// stubProbe always reports OK without doing any network I/O, so the
// pool's dispatch/bookkeeping can be exercised without real sockets.
type stubProbe struct{ status model.Status }

func (s *stubProbe) Name() string                     { return "stub" }
func (s *stubProbe) AppliesTo(proxy *model.Proxy) bool { return true }
func (s *stubProbe) Validate(ctx context.Context) error { return nil }
func (s *stubProbe) Execute(ctx context.Context, proxy *model.Proxy) model.ProxyTest {
	return model.ProxyTest{Status: s.status, Info: "stub result"}
}

var _ = Describe("Pool", func() {
	It("claims proxies, runs the pipeline, and pushes updates and tests", func() {
		mem := store.NewMemory()
		mem.Seed(model.Proxy{IP: "1.2.3.4", Port: 8080, Protocol: model.HTTP, Status: model.UNKNOWN, Modified: time.Now().Add(-2 * time.Hour)})

		interrupt := &queue.Interrupt{}
		log := zap.NewNop()

		fetch := queue.NewFetchQueue(4, mem, "token", []model.Protocol{model.HTTP}, time.Hour, interrupt, log)
		updates := queue.New("updates", 4, 1, 10, func(ctx context.Context, batch []model.Proxy) error {
			return mem.UpdateProxies(ctx, batch)
		}, interrupt, log)
		tests := queue.New("tests", 4, 1, 10, func(ctx context.Context, batch []model.ProxyTest) error {
			return mem.InsertProxyTests(ctx, batch)
		}, interrupt, log)

		pipeline := &probe.Pipeline{Probes: []probe.Probe{&stubProbe{status: model.OK}}}
		pool := tester.NewPool(1, mem, fetch, pipeline, updates, tests, time.Second, nil, interrupt, log)

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		go fetch.Run(ctx, 10*time.Millisecond)
		go updates.Run(ctx, 10*time.Millisecond)
		go tests.Run(ctx, 10*time.Millisecond)
		pool.Run(ctx)

		Eventually(func() []model.ProxyTest { return mem.Tests() }).ShouldNot(BeEmpty())
		snap := pool.Snapshot()
		Expect(snap.Tested).To(BeNumerically(">=", 1))
		Expect(snap.OK).To(BeNumerically(">=", 1))
	})

	It("fills in a proxy's country from GeoIP when it was unset", func() {
		mem := store.NewMemory()
		id := mem.Seed(model.Proxy{IP: "1.2.3.4", Port: 8080, Protocol: model.HTTP, Status: model.UNKNOWN, Modified: time.Now().Add(-2 * time.Hour)})

		interrupt := &queue.Interrupt{}
		log := zap.NewNop()

		fetch := queue.NewFetchQueue(4, mem, "token", []model.Protocol{model.HTTP}, time.Hour, interrupt, log)
		updates := queue.New("updates", 4, 1, 10, func(ctx context.Context, batch []model.Proxy) error {
			return mem.UpdateProxies(ctx, batch)
		}, interrupt, log)
		tests := queue.New("tests", 4, 1, 10, func(ctx context.Context, batch []model.ProxyTest) error {
			return mem.InsertProxyTests(ctx, batch)
		}, interrupt, log)

		pipeline := &probe.Pipeline{Probes: []probe.Probe{&stubProbe{status: model.OK}}}
		pool := tester.NewPool(1, mem, fetch, pipeline, updates, tests, time.Second, stubGeo{"1.2.3.4": "AU"}, interrupt, log)

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		go fetch.Run(ctx, 10*time.Millisecond)
		go updates.Run(ctx, 10*time.Millisecond)
		go tests.Run(ctx, 10*time.Millisecond)
		pool.Run(ctx)

		Eventually(func() string {
			p, err := mem.Proxy(context.Background(), id)
			if err != nil || p == nil {
				return ""
			}
			return p.Country
		}).Should(Equal("AU"))
	})

	It("deletes a chronically failing proxy on claim instead of probing it", func() {
		mem := store.NewMemory()
		id := mem.Seed(model.Proxy{
			IP: "9.9.9.9", Port: 1080, Protocol: model.HTTP, Status: model.UNKNOWN,
			Created:   time.Now().Add(-30 * 24 * time.Hour),
			Modified:  time.Now().Add(-2 * time.Hour),
			TestCount: 25,
			FailCount: 24,
		})

		interrupt := &queue.Interrupt{}
		log := zap.NewNop()

		fetch := queue.NewFetchQueue(4, mem, "token", []model.Protocol{model.HTTP}, time.Hour, interrupt, log)
		updates := queue.New("updates", 4, 1, 10, func(ctx context.Context, batch []model.Proxy) error {
			return mem.UpdateProxies(ctx, batch)
		}, interrupt, log)
		tests := queue.New("tests", 4, 1, 10, func(ctx context.Context, batch []model.ProxyTest) error {
			return mem.InsertProxyTests(ctx, batch)
		}, interrupt, log)

		pipeline := &probe.Pipeline{Probes: []probe.Probe{&stubProbe{status: model.OK}}}
		pool := tester.NewPool(1, mem, fetch, pipeline, updates, tests, time.Second, nil, interrupt, log)

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		go fetch.Run(ctx, 10*time.Millisecond)
		pool.Run(ctx)

		Eventually(func() (*model.Proxy, error) { return mem.Proxy(context.Background(), id) }).Should(BeNil())
		Expect(mem.Tests()).To(BeEmpty())
	})
})

// stubGeo resolves a fixed set of IPs, letting the GeoIP-fill-in path be
// exercised without a real CSV table.
type stubGeo map[string]string

func (g stubGeo) Lookup(ip string) string { return g[ip] }
