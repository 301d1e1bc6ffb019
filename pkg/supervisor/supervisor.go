package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethan/mediabridge/pkg/localendpoint"
	"github.com/ethan/mediabridge/pkg/logger"
	"github.com/ethan/mediabridge/pkg/medialoop"
	"github.com/ethan/mediabridge/pkg/message"
	"github.com/ethan/mediabridge/pkg/workerapi"
)

// BridgeState is one supervised bridge's lifecycle state.
type BridgeState int

const (
	StateStarting BridgeState = iota
	StateRunning
	StateFailed
	StateDegraded
	StateStopped
)

func (s BridgeState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateDegraded:
		return "degraded"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Bridge tracks one supervised local/remote endpoint pair.
type Bridge struct {
	ID           string
	State        BridgeState
	Endpoint     *localendpoint.Endpoint
	FailureCount int
	LastError    error
	LastAttempt  time.Time
	CreatedAt    time.Time
}

// Config configures a Supervisor.
type Config struct {
	QPM               float64       // reconnect rate limit, shared across every bridge
	StaggerInterval   time.Duration // delay between initial bridge startups
	MaxFailures       int           // consecutive failures before a bridge is degraded
	DegradedRetry     time.Duration // retry interval once degraded
	RecoveryBaseDelay time.Duration // base exponential-backoff delay
}

// DefaultConfig returns sane defaults for a modest fleet of bridges.
func DefaultConfig() Config {
	return Config{
		QPM:               60,
		StaggerInterval:   2 * time.Second,
		MaxFailures:       5,
		DegradedRetry:     5 * time.Minute,
		RecoveryBaseDelay: 2 * time.Second,
	}
}

// NewWorkerFunc constructs a fresh workerapi.Worker for a given bridge ID,
// supplied by the caller so the supervisor stays backend-agnostic.
type NewWorkerFunc func(bridgeID string) workerapi.Worker

// NewStartConfigFunc supplies the devices/codecs configuration a bridge's
// Start command should carry, keyed by bridge ID. Device/codec identity is
// opaque to the supervisor; it only plumbs whatever the caller supplies
// through to localendpoint.Endpoint.Start.
type NewStartConfigFunc func(bridgeID string) (message.DevicesConfig, message.CodecsConfig)

// Supervisor owns N independent localendpoint.Endpoint instances, each
// backed by its own medialoop.Loop and worker: staggered startup,
// per-bridge failure tracking, and a shared rate-limited priority queue
// governing reconnect attempts so a fleet-wide outage doesn't retry every
// bridge at once.
type Supervisor struct {
	cfg            Config
	log            *logger.Logger
	newWorker      NewWorkerFunc
	newCb          func(bridgeID string) localendpoint.Callbacks
	newStartConfig NewStartConfigFunc
	queue          *ReconnectQueue

	mu      sync.RWMutex
	bridges map[string]*Bridge
	loops   map[string]*medialoop.Loop

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Supervisor. newCb is called once per bridge to build the
// callbacks wired into that bridge's localendpoint.Endpoint; newStartConfig
// supplies the Start command's payload per bridge, and may be nil, meaning
// zero-value configurations (every codec UseX flag false).
func New(cfg Config, newWorker NewWorkerFunc, newCb func(bridgeID string) localendpoint.Callbacks, newStartConfig NewStartConfigFunc, log *logger.Logger) *Supervisor {
	if log == nil {
		log = logger.Default()
	}
	if newStartConfig == nil {
		newStartConfig = func(string) (message.DevicesConfig, message.CodecsConfig) {
			return message.DevicesConfig{}, message.CodecsConfig{}
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:            cfg,
		log:            log,
		newWorker:      newWorker,
		newCb:          newCb,
		newStartConfig: newStartConfig,
		queue:          NewReconnectQueue(cfg.QPM, log.With("component", "reconnect_queue")),
		bridges:        make(map[string]*Bridge),
		loops:          make(map[string]*medialoop.Loop),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start launches the reconnect queue. It does not start any bridges; call
// StartBridges for that.
func (s *Supervisor) Start() {
	s.queue.Start()
	s.log.Info("supervisor started")
}

// Stop tears down every bridge and the reconnect queue.
func (s *Supervisor) Stop() error {
	s.log.Info("stopping supervisor")
	s.cancel()

	s.mu.Lock()
	var stopWg sync.WaitGroup
	for id, b := range s.bridges {
		if b.Endpoint == nil {
			continue
		}
		stopWg.Add(1)
		go func(id string, ep *localendpoint.Endpoint, loop *medialoop.Loop) {
			defer stopWg.Done()
			if err := ep.Close(); err != nil {
				s.log.Error("error closing bridge endpoint", "bridge_id", id, "error", err)
			}
			loop.Close()
		}(id, b.Endpoint, s.loops[id])
		b.State = StateStopped
	}
	s.mu.Unlock()

	stopWg.Wait()
	s.wg.Wait()
	s.queue.Stop()

	s.log.Info("supervisor stopped")
	return nil
}

// StartBridges brings up every bridge ID with a staggered delay between
// each, so a large fleet doesn't slam the worker backend simultaneously.
func (s *Supervisor) StartBridges(ctx context.Context, bridgeIDs []string) error {
	s.log.Info("starting bridges with staggered initialization", "count", len(bridgeIDs), "stagger_interval", s.cfg.StaggerInterval)

	for i, id := range bridgeIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.mu.Lock()
		s.bridges[id] = &Bridge{ID: id, State: StateStarting, CreatedAt: time.Now()}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.startBridge(id)

		if i < len(bridgeIDs)-1 {
			select {
			case <-time.After(s.cfg.StaggerInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return nil
}

func (s *Supervisor) startBridge(id string) {
	defer s.wg.Done()

	err := s.queue.SubmitImmediate(id, func() error { return s.bringUp(id) })
	if errors.Is(err, ErrAttemptPending) {
		// Another goroutine is already bringing this bridge up; let it win.
		return
	}
	if err != nil {
		s.updateBridge(id, func(b *Bridge) {
			b.State = StateFailed
			b.FailureCount = 1
			b.LastError = err
			b.LastAttempt = time.Now()
		})
		s.log.Error("initial bridge startup failed", "bridge_id", id, "error", err)
		s.wg.Add(1)
		go s.recoveryLoop(id)
		return
	}

	s.updateBridge(id, func(b *Bridge) {
		b.State = StateRunning
		b.FailureCount = 0
		b.LastError = nil
	})
	s.log.Info("bridge started", "bridge_id", id)
}

func (s *Supervisor) bringUp(id string) error {
	loop := medialoop.New(64)

	ep, err := localendpoint.New(loop, func() workerapi.Worker { return s.newWorker(id) }, s.newCb(id), s.log.With("bridge_id", id), nil)
	if err != nil {
		loop.Close()
		return fmt.Errorf("bridge %s: %w", id, err)
	}

	s.mu.Lock()
	s.loops[id] = loop
	if b, ok := s.bridges[id]; ok {
		b.Endpoint = ep
	}
	s.mu.Unlock()

	devices, codecs := s.newStartConfig(id)
	ep.Start(devices, codecs)
	return nil
}

func (s *Supervisor) updateBridge(id string, fn func(*Bridge)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bridges[id]; ok {
		fn(b)
	}
}

// ReportFailure notifies the supervisor a running bridge has failed,
// triggering the recovery loop. An application calls this from its
// localendpoint.Callbacks.StatusReady handler when a status reports
// Error/Finished unexpectedly.
func (s *Supervisor) ReportFailure(id string, err error) {
	var start bool
	s.updateBridge(id, func(b *Bridge) {
		b.FailureCount++
		b.LastError = err
		b.LastAttempt = time.Now()
		if b.FailureCount >= s.cfg.MaxFailures {
			b.State = StateDegraded
		} else {
			b.State = StateFailed
		}
		start = b.State != StateStopped
	})
	if start {
		s.wg.Add(1)
		go s.recoveryLoop(id)
	}
}

func (s *Supervisor) recoveryLoop(id string) {
	defer s.wg.Done()

	for {
		s.mu.RLock()
		b, exists := s.bridges[id]
		var state BridgeState
		var failures int
		if exists {
			state = b.State
			failures = b.FailureCount
		}
		s.mu.RUnlock()
		if !exists {
			return
		}
		if state != StateFailed && state != StateDegraded {
			return
		}

		var delay time.Duration
		if state == StateDegraded {
			delay = s.cfg.DegradedRetry
		} else {
			delay = s.cfg.RecoveryBaseDelay * time.Duration(1<<uint(failures))
			if delay > 5*time.Minute {
				delay = 5 * time.Minute
			}
		}

		s.log.Info("scheduling bridge recovery", "bridge_id", id, "state", state.String(), "failure_count", failures, "delay", delay)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}

		attempt := failures
		err := s.queue.SubmitBackoff(id, attempt, func() error {
			s.mu.Lock()
			oldLoop := s.loops[id]
			delete(s.loops, id)
			var oldEp *localendpoint.Endpoint
			if b, ok := s.bridges[id]; ok {
				oldEp = b.Endpoint
				b.Endpoint = nil
			}
			s.mu.Unlock()
			// The endpoint must be torn down while its loop is still
			// running; Close blocks on a loop task.
			if oldEp != nil {
				if cerr := oldEp.Close(); cerr != nil {
					s.log.Error("error closing failed bridge endpoint", "bridge_id", id, "error", cerr)
				}
			}
			if oldLoop != nil {
				oldLoop.Close()
			}
			return s.bringUp(id)
		})

		if errors.Is(err, ErrAttemptPending) {
			// A reconnect for this bridge is already in flight elsewhere;
			// whichever goroutine owns it will settle the bridge's state.
			return
		}
		if err == nil {
			s.log.Info("bridge recovery successful", "bridge_id", id, "attempt", attempt)
			s.updateBridge(id, func(b *Bridge) {
				b.State = StateRunning
				b.FailureCount = 0
				b.LastError = nil
			})
			return
		}

		s.log.Error("bridge recovery attempt failed", "bridge_id", id, "attempt", attempt, "error", err)
		s.updateBridge(id, func(b *Bridge) {
			b.FailureCount++
			b.LastError = err
			if b.FailureCount >= s.cfg.MaxFailures {
				b.State = StateDegraded
			}
		})
	}
}

// Snapshot returns a point-in-time copy of every supervised bridge's state.
func (s *Supervisor) Snapshot() []Bridge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Bridge, 0, len(s.bridges))
	for _, b := range s.bridges {
		out = append(out, *b)
	}
	return out
}

// Stats exposes the shared reconnect queue's activity counters.
func (s *Supervisor) Stats() QueueStats {
	return s.queue.Stats()
}
