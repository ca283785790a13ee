package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/store"
)

func TestStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Store Suite")
}

var _ = Describe("Memory", func() {
	var (
		ctx context.Context
		mem *store.Memory
	)

	BeforeEach(func() {
		ctx = context.Background()
		mem = store.NewMemory()
	})

	It("claims a proxy idempotently under contention (exactly one winner of K callers)", func() {
		id := mem.Seed(model.Proxy{IP: "1.2.3.4", Port: 80, Status: model.UNKNOWN})

		var wg sync.WaitGroup
		wins := make(chan bool, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := mem.LockForTesting(ctx, id, model.UNKNOWN)
				Expect(err).NotTo(HaveOccurred())
				wins <- ok
			}()
		}
		wg.Wait()
		close(wins)

		winCount := 0
		for ok := range wins {
			if ok {
				winCount++
			}
		}
		Expect(winCount).To(Equal(1))
	})

	It("merges duplicate (ip, port) inserts without duplicating rows, preserving the existing row on conflict", func() {
		err := mem.InsertBulk(ctx, []model.Proxy{{IP: "1.2.3.4", Port: 8080, Protocol: model.HTTP}})
		Expect(err).NotTo(HaveOccurred())
		err = mem.InsertBulk(ctx, []model.Proxy{{IP: "1.2.3.4", Port: 8080, Protocol: model.SOCKS5, Username: "u"}})
		Expect(err).NotTo(HaveOccurred())

		valid, err := mem.NeedScan(ctx, 10, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(valid).To(HaveLen(1))
		Expect(valid[0].Protocol).To(Equal(model.HTTP))
		Expect(valid[0].Username).To(Equal(""))
	})

	It("transitions a stuck TESTING proxy to ERROR", func() {
		id := mem.Seed(model.Proxy{IP: "1.1.1.1", Port: 80, Status: model.TESTING, Modified: time.Now().Add(-time.Hour)})
		n, err := mem.UnlockStuck(ctx, 10*time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
		p, err := mem.Proxy(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Status).To(Equal(model.ERROR))
	})

	It("deletes a chronically failing proxy (seeded scenario 4)", func() {
		mem.Seed(model.Proxy{
			IP: "2.2.2.2", Port: 80, Status: model.ERROR,
			TestCount: 25, FailCount: 23,
			Created: time.Now().Add(-20 * 24 * time.Hour),
		})
		deleted, err := mem.DeleteFailed(ctx, 14*24*time.Hour, 20, 0.9, 100)
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted).To(HaveLen(1))
	})

	It("grants the distributed lock to exactly one of two racing processes", func() {
		okA, errA := mem.LockDatabase(ctx, "token-a")
		okB, errB := mem.LockDatabase(ctx, "token-b")
		Expect(errA).NotTo(HaveOccurred())
		Expect(errB).NotTo(HaveOccurred())
		Expect(okA).To(BeTrue())
		Expect(okB).To(BeFalse())
	})

	It("releases only a lock held by the same token", func() {
		mem.LockDatabase(ctx, "token-a")
		Expect(mem.UnlockDatabase(ctx, "token-b")).To(Succeed())
		okA, _ := mem.LockDatabase(ctx, "token-a")
		Expect(okA).To(BeFalse(), "lock should still be held by token-a")
	})
})
