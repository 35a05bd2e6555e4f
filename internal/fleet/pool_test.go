package fleet

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsAllTasks(t *testing.T) {
	pool := NewPool(4)

	var count int64
	for i := 0; i < 100; i++ {
		pool.Submit(func() {
			atomic.AddInt64(&count, 1)
		})
	}
	pool.Wait()

	assert.Equal(t, int64(100), count)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(3)

	var (
		mu      sync.Mutex
		active  int
		highest int
	)
	for i := 0; i < 30; i++ {
		pool.Submit(func() {
			mu.Lock()
			active++
			if active > highest {
				highest = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		})
	}
	pool.Wait()

	assert.LessOrEqual(t, highest, 3)
	assert.Equal(t, 3, pool.Size())
}

func TestPoolSubmitNeverBlocks(t *testing.T) {
	pool := NewPool(1)
	release := make(chan struct{})

	pool.Submit(func() { <-release })

	done := make(chan struct{})
	go func() {
		// 10 more submissions than slots must not block the caller
		for i := 0; i < 10; i++ {
			pool.Submit(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked the caller")
	}

	close(release)
	pool.Wait()
}

func TestPoolMinimumSize(t *testing.T) {
	assert.Equal(t, 1, NewPool(0).Size())
	assert.Equal(t, 1, NewPool(-5).Size())
}
