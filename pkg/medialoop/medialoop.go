// Package medialoop provides the single-goroutine task executor the media
// worker runs on: a host event loop capable of running a task on its own
// goroutine and, for construction/destruction, letting a foreign goroutine
// block until that task has run.
package medialoop

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Schedule/RunSync once the loop has stopped.
var ErrClosed = errors.New("medialoop: loop is closed")

// Loop runs tasks FIFO on a single dedicated goroutine.
type Loop struct {
	tasks  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// New starts a Loop with the given task queue depth.
func New(queueDepth int) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		tasks:  make(chan func(), queueDepth),
		ctx:    ctx,
		cancel: cancel,
		closed: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.ctx.Done():
			// Drain whatever is left without blocking, so tasks queued
			// just before Close still run.
			for {
				select {
				case task := <-l.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Schedule enqueues task to run on the loop goroutine and returns
// immediately. Returns ErrClosed if the loop has been closed.
func (l *Loop) Schedule(task func()) error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.closed:
		return ErrClosed
	}
}

// RunSync schedules task and blocks until it has run. Used by
// LocalEndpoint for synchronous construction/destruction: the calling
// goroutine is the condition-variable waiter, the loop goroutine the
// signaler.
func (l *Loop) RunSync(task func()) error {
	done := make(chan struct{})
	err := l.Schedule(func() {
		defer close(done)
		task()
	})
	if err != nil {
		return err
	}
	<-done
	return nil
}

// Close stops accepting new tasks, lets any already-queued tasks (and the
// one currently running) finish, and waits for the loop goroutine to exit.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.cancel()
	})
	l.wg.Wait()
}
