package medialoop_test

import (
	"sync"
	"testing"
	"time"

	"github.com/ethan/mediabridge/pkg/medialoop"
	"github.com/stretchr/testify/require"
)

func TestTasksRunFIFOOnOneGoroutine(t *testing.T) {
	loop := medialoop.New(16)
	defer loop.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, loop.Schedule(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, loop.RunSync(func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRunSyncBlocksUntilTaskHasRun(t *testing.T) {
	loop := medialoop.New(1)
	defer loop.Close()

	ran := false
	require.NoError(t, loop.RunSync(func() {
		time.Sleep(10 * time.Millisecond)
		ran = true
	}))
	require.True(t, ran, "RunSync must not return before the task has executed")
}

func TestScheduleAfterCloseReturnsErrClosed(t *testing.T) {
	loop := medialoop.New(1)
	loop.Close()

	require.ErrorIs(t, loop.Schedule(func() {}), medialoop.ErrClosed)
	require.ErrorIs(t, loop.RunSync(func() {}), medialoop.ErrClosed)
}

func TestCloseRunsAlreadyQueuedTasks(t *testing.T) {
	loop := medialoop.New(16)

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 8; i++ {
		require.NoError(t, loop.Schedule(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}

	loop.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 8, ran, "tasks queued before Close must still run")
}

func TestCloseIsIdempotent(t *testing.T) {
	loop := medialoop.New(1)
	loop.Close()
	loop.Close()
}
