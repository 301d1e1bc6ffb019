// Package supervisor manages a set of independent bridges (one per logical
// device). Reconnect attempts flow through a shared scheduler that admits at
// most one attempt per bridge at a time, prefers operator-requested retries
// over automatic backoff retries, and rate-limits execution globally so a
// fleet-wide outage doesn't hammer the worker backend all at once.
package supervisor

import (
	"context"
	"errors"
	"sync"

	"github.com/ethan/mediabridge/pkg/logger"
	"golang.org/x/time/rate"
)

// ErrAttemptPending is returned by Submit* when the bridge already has a
// reconnect attempt admitted but not yet finished. The caller should treat
// the in-flight attempt as its own: a bridge never benefits from two
// concurrent reconnects.
var ErrAttemptPending = errors.New("supervisor: reconnect already pending for bridge")

// attempt is one admitted reconnect. The submitter blocks on done until the
// scheduler has run fn (or the scheduler shut down).
type attempt struct {
	bridgeID string
	urgent   bool
	fn       func() error
	done     chan error
}

// ReconnectQueue schedules reconnect attempts across every bridge a
// Supervisor manages. Two lanes feed a single executor goroutine: the
// urgent lane (initial bring-up, operator retry) is always drained before
// the deferred lane (automatic backoff recovery). Admission is keyed by
// bridge ID so repeated failures of one bridge collapse into a single
// pending attempt instead of piling up behind the limiter.
type ReconnectQueue struct {
	log     *logger.Logger
	limiter *rate.Limiter

	urgent   chan *attempt
	deferred chan *attempt

	mu      sync.Mutex
	pending map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.RWMutex
	stats   QueueStats
}

// QueueStats summarizes reconnect activity.
type QueueStats struct {
	QueueDepth     int
	TotalEnqueued  int64
	TotalExecuted  int64
	TotalFailed    int64
	TotalCoalesced int64
}

// NewReconnectQueue creates a scheduler allowing at most qpm reconnect
// attempts per minute across all bridges. A small burst is allowed so a
// short fleet-wide blip can recover a handful of bridges back-to-back
// before the sustained rate takes over.
func NewReconnectQueue(qpm float64, log *logger.Logger) *ReconnectQueue {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ReconnectQueue{
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(qpm/60.0), 3),
		urgent:   make(chan *attempt, 64),
		deferred: make(chan *attempt, 64),
		pending:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the executor goroutine.
func (q *ReconnectQueue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Stop shuts the executor down. Submitters still blocked on an unexecuted
// attempt are released with context.Canceled.
func (q *ReconnectQueue) Stop() {
	q.cancel()
	q.wg.Wait()
}

// SubmitImmediate admits an urgent reconnect for bridgeID and blocks until
// it has run. Returns ErrAttemptPending if an attempt for this bridge is
// already admitted.
func (q *ReconnectQueue) SubmitImmediate(bridgeID string, fn func() error) error {
	return q.submit(bridgeID, true, fn)
}

// SubmitBackoff admits a deferred (backoff-scheduled) reconnect for
// bridgeID and blocks until it has run. attemptNo is recorded for logging
// only.
func (q *ReconnectQueue) SubmitBackoff(bridgeID string, attemptNo int, fn func() error) error {
	q.log.DebugReconnect("backoff attempt", "bridge_id", bridgeID, "attempt", attemptNo)
	return q.submit(bridgeID, false, fn)
}

func (q *ReconnectQueue) submit(bridgeID string, urgent bool, fn func() error) error {
	q.mu.Lock()
	if q.pending[bridgeID] {
		q.mu.Unlock()
		q.statsMu.Lock()
		q.stats.TotalCoalesced++
		q.statsMu.Unlock()
		q.log.DebugReconnect("attempt coalesced", "bridge_id", bridgeID)
		return ErrAttemptPending
	}
	q.pending[bridgeID] = true
	q.mu.Unlock()

	a := &attempt{bridgeID: bridgeID, urgent: urgent, fn: fn, done: make(chan error, 1)}

	lane := q.deferred
	if urgent {
		lane = q.urgent
	}

	select {
	case lane <- a:
	case <-q.ctx.Done():
		q.clearPending(bridgeID)
		return context.Canceled
	}

	q.statsMu.Lock()
	q.stats.TotalEnqueued++
	q.statsMu.Unlock()
	q.log.DebugReconnect("attempt admitted", "bridge_id", bridgeID, "urgent", urgent)

	select {
	case err := <-a.done:
		return err
	case <-q.ctx.Done():
		return context.Canceled
	}
}

func (q *ReconnectQueue) clearPending(bridgeID string) {
	q.mu.Lock()
	delete(q.pending, bridgeID)
	q.mu.Unlock()
}

// run is the single executor. The two-step select gives the urgent lane
// strict priority without starving the deferred lane: a non-blocking check
// of urgent first, then a fair blocking wait on both.
func (q *ReconnectQueue) run() {
	defer q.wg.Done()
	for {
		var a *attempt
		select {
		case a = <-q.urgent:
		default:
			select {
			case a = <-q.urgent:
			case a = <-q.deferred:
			case <-q.ctx.Done():
				return
			}
		}

		if err := q.limiter.Wait(q.ctx); err != nil {
			q.clearPending(a.bridgeID)
			a.done <- err
			return
		}

		err := a.fn()
		q.clearPending(a.bridgeID)

		q.statsMu.Lock()
		q.stats.TotalExecuted++
		if err != nil {
			q.stats.TotalFailed++
		}
		q.statsMu.Unlock()

		q.log.DebugReconnect("attempt executed", "bridge_id", a.bridgeID, "urgent", a.urgent, "success", err == nil)
		a.done <- err
	}
}

// Stats returns a snapshot of scheduler activity.
func (q *ReconnectQueue) Stats() QueueStats {
	q.statsMu.RLock()
	s := q.stats
	q.statsMu.RUnlock()
	s.QueueDepth = len(q.urgent) + len(q.deferred)
	return s
}
