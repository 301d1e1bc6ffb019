package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTest = errors.New("reconnect failed")

func TestUrgentLaneRunsBeforeDeferredLane(t *testing.T) {
	q := NewReconnectQueue(6000, nil)

	var mu sync.Mutex
	var order []string
	record := func(tag string) func() error {
		return func() error {
			mu.Lock()
			order = append(order, tag)
			mu.Unlock()
			return nil
		}
	}

	// Admit both attempts before the executor starts; the urgent one must
	// run first even though the deferred one was admitted earlier.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = q.SubmitBackoff("b", 1, record("deferred"))
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		_ = q.SubmitImmediate("a", record("urgent"))
	}()
	time.Sleep(20 * time.Millisecond)

	q.Start()
	wg.Wait()
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"urgent", "deferred"}, order)
}

func TestDuplicateAttemptForSameBridgeIsCoalesced(t *testing.T) {
	q := NewReconnectQueue(6000, nil)
	q.Start()
	defer q.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.SubmitImmediate("cam-1", func() error {
			close(started)
			<-release
			return nil
		})
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first attempt never started")
	}

	// A second attempt for the same bridge while the first is in flight
	// must be rejected, not queued behind it.
	require.ErrorIs(t, q.SubmitBackoff("cam-1", 1, func() error { return nil }), ErrAttemptPending)

	close(release)
	require.NoError(t, <-errCh)

	// Once the first attempt settles, the bridge may be admitted again.
	require.NoError(t, q.SubmitImmediate("cam-1", func() error { return nil }))

	require.EqualValues(t, 1, q.Stats().TotalCoalesced)
}

func TestStopReleasesBlockedSubmitters(t *testing.T) {
	q := NewReconnectQueue(6000, nil)
	// Never started: the attempt stays admitted until Stop cancels it.

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.SubmitImmediate("a", func() error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	q.Stop()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("pending submit never returned after Stop")
	}
}

func TestStatsTrackEnqueueAndExecution(t *testing.T) {
	q := NewReconnectQueue(6000, nil)
	q.Start()
	defer q.Stop()

	require.NoError(t, q.SubmitImmediate("a", func() error { return nil }))
	require.ErrorIs(t, q.SubmitImmediate("b", func() error { return errTest }), errTest)

	stats := q.Stats()
	require.EqualValues(t, 2, stats.TotalEnqueued)
	require.EqualValues(t, 2, stats.TotalExecuted)
	require.EqualValues(t, 1, stats.TotalFailed)
	require.EqualValues(t, 0, stats.TotalCoalesced)
}
