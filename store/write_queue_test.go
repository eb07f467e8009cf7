package store

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteQueueFIFOOrdering(t *testing.T) {
	q := NewWriteQueue()

	const n = 20
	order := make([]int32, 0, n)
	var mu sync.Mutex
	var started sync.WaitGroup
	var done sync.WaitGroup
	started.Add(n)
	done.Add(n)

	// Serialize entry into the queue so Wait calls happen in a known
	// order; FIFO then guarantees they're released in that same order.
	var enqueued sync.Mutex
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer done.Done()
			enqueued.Lock()
			g := q.Wait(i)
			started.Done()
			enqueued.Unlock()

			mu.Lock()
			order = append(order, int32(i))
			mu.Unlock()

			g.Release()
		}()
		// Give the goroutine a chance to actually call Wait before the
		// next one starts racing for the enqueue lock.
		time.Sleep(time.Millisecond)
	}
	done.Wait()

	require.Len(t, order, n)
	for i := 0; i < n; i++ {
		require.Equal(t, int32(i), order[i], "writers must be released in FIFO order")
	}
}

func TestWriteQueueProcessOnlyTrueForHead(t *testing.T) {
	q := NewWriteQueue()

	gA := q.Wait("A")
	_, okA := q.Process("A")
	require.True(t, okA)

	_, okB := q.Process("B")
	require.False(t, okB, "B enqueued behind A must not be head yet")
	require.True(t, q.Contains("B"))

	gA.Release()

	gB, okB2 := q.Process("B")
	require.True(t, okB2)
	gB.Release()
}

func TestWriteQueueStopReleasesWaiters(t *testing.T) {
	q := NewWriteQueue()
	g := q.Wait("holder")

	var unblocked int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Wait("blocked").Release()
		atomic.StoreInt32(&unblocked, 1)
	}()

	time.Sleep(10 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&unblocked))

	q.Stop()
	wg.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&unblocked))

	g.Release()

	// Wait after Stop returns immediately.
	done := make(chan struct{})
	go func() {
		q.Wait("after-stop").Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait after Stop should not block")
	}
}

func TestWriteQueuePop(t *testing.T) {
	q := NewWriteQueue()
	require.Nil(t, q.Pop())

	q.Wait("A").Release() // enqueue then release immediately leaves it empty
	require.Equal(t, 0, q.Len())

	// Re-enqueue without releasing so Pop has something to grab.
	elemGuard := q.Wait("B")
	g := q.Pop()
	require.NotNil(t, g)
	g.Release()
	elemGuard.Release()
}
