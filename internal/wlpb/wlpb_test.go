package wlpb_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/store"
	"github.com/grishkovelli/proxytools/internal/wlpb"
)

func TestWlpb(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Wlpb Suite")
}

var _ = Describe("Pool", func() {
	It("hands out a candidate after refreshing from storage", func() {
		mem := store.NewMemory()
		mem.Seed(model.Proxy{IP: "1.2.3.4", Port: 8080, Protocol: model.HTTP, Status: model.OK, Latency: 100})
		mem.Seed(model.Proxy{IP: "5.6.7.8", Port: 3128, Protocol: model.HTTP, Status: model.OK, Latency: 50})

		pool := wlpb.New(mem, []model.Protocol{model.HTTP}, time.Hour, 10)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		// A single tick-interval far longer than the test keeps Run's initial
		// synchronous refresh as the only one that runs.
		go pool.Run(ctx, time.Hour)

		Eventually(pool.Next).ShouldNot(BeNil())
	})

	It("demotes a candidate after repeated failures", func() {
		mem := store.NewMemory()
		mem.Seed(model.Proxy{IP: "1.2.3.4", Port: 8080, Protocol: model.HTTP, Status: model.OK, Latency: 100})

		pool := wlpb.New(mem, []model.Protocol{model.HTTP}, time.Hour, 10)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go pool.Run(ctx, time.Hour)

		Eventually(pool.Next).ShouldNot(BeNil())

		u := pool.Next()
		for i := 0; i < 3; i++ {
			pool.Report(u, false)
		}

		Eventually(pool.Next).Should(BeNil())
	})
})
