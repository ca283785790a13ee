package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/grishkovelli/proxytools/internal/queue"
)

func TestQueue(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Queue Suite")
}

var _ = Describe("BoundedQueue", func() {
	It("flushes the backlog once it reaches the threshold", func() {
		var flushed [][]int
		var mu sync.Mutex
		q := queue.New[int]("test", 10, 3, 2, func(ctx context.Context, batch []int) error {
			mu.Lock()
			cp := append([]int(nil), batch...)
			flushed = append(flushed, cp)
			mu.Unlock()
			return nil
		}, &queue.Interrupt{}, zap.NewNop())

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		go q.Run(ctx, 10*time.Millisecond)

		for i := 0; i < 5; i++ {
			q.Push(context.Background(), i, time.Second)
		}

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			total := 0
			for _, b := range flushed {
				total += len(b)
			}
			return total
		}, time.Second).Should(Equal(5))
	})

	It("escalates to the process interrupt after repeated flush failures", func() {
		interrupt := &queue.Interrupt{}
		q := queue.New[int]("test", 10, 1, 2, func(ctx context.Context, batch []int) error {
			return errAlways
		}, interrupt, zap.NewNop())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		go q.Run(ctx, 5*time.Millisecond)

		q.Push(context.Background(), 1, time.Second)

		Eventually(interrupt.IsSet, 2*time.Second).Should(BeTrue())
	})
})

var errAlways = &staticError{"flush always fails"}

type staticError struct{ msg string }

func (e *staticError) Error() string { return e.msg }
