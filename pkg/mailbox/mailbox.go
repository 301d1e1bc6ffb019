// Package mailbox implements the thread-safe FIFO queue that carries
// Messages from one endpoint to the other across the app/media-loop
// boundary. Posting never blocks on delivery: it appends under a mutex and,
// the first time a drain isn't already pending, schedules one via a
// caller-supplied scheduler closure. Draining swaps the queue for an empty
// one and hands the snapshot back for lock-free processing: the lock is
// only ever held across the enqueue/dequeue step, never across execution.
package mailbox

import "sync"

// CoalesceFunc is invoked while Post holds the mailbox lock, before the new
// message is appended. It receives the pending queue and the incoming
// message about to be appended, and returns the queue the incoming message
// should be appended to, letting the caller evict or merge entries (e.g.
// the FrameQueueMax eviction rule) without a second lock acquisition.
type CoalesceFunc func(pending []Message, incoming Message) []Message

// Message is a minimal alias of the payload type the mailbox moves; kept as
// an interface so this package has no dependency on the message package.
type Message = any

// Mailbox is a FIFO of pending messages guarded by a mutex, with a pending
// flag so concurrent Posts only schedule a single drain.
type Mailbox struct {
	mu       sync.Mutex
	queue    []Message
	pending  bool
	terminal bool

	// blocking, if set, is consulted by Post: while it returns true, Post
	// still enqueues (and still runs Coalesce) but does not schedule a
	// drain. Used by RemoteEndpoint to suppress draining while a command is
	// in flight (Busy state).
	blocking func() bool

	// Coalesce runs under the lock before append; nil means no coalescing.
	Coalesce CoalesceFunc

	// Schedule is invoked (outside the lock) the first time a Post
	// transitions pending from false to true and blocking() is false. It is
	// the hand-off to the owning event loop.
	Schedule func()
}

// New creates an empty Mailbox. blocking may be nil, meaning never blocking.
func New(blocking func() bool, schedule func()) *Mailbox {
	if blocking == nil {
		blocking = func() bool { return false }
	}
	return &Mailbox{blocking: blocking, Schedule: schedule}
}

// Post appends msg to the queue, running Coalesce first if set, and
// schedules a drain unless one is already pending or the mailbox is
// currently blocking.
func (mb *Mailbox) Post(msg Message) {
	var shouldSchedule bool

	mb.mu.Lock()
	if mb.Coalesce != nil {
		mb.queue = mb.Coalesce(mb.queue, msg)
	}
	mb.queue = append(mb.queue, msg)

	if !mb.pending && !mb.blocking() {
		mb.pending = true
		shouldSchedule = true
	}
	mb.mu.Unlock()

	if shouldSchedule && mb.Schedule != nil {
		mb.Schedule()
	}
}

// Drain swaps the queue out for an empty one and clears pending, returning
// the snapshot of messages the caller should process. Drain does not hold
// the lock while the caller processes the returned slice.
func (mb *Mailbox) Drain() []Message {
	mb.mu.Lock()
	out := mb.queue
	mb.queue = nil
	mb.pending = false
	mb.mu.Unlock()
	return out
}

// RequeueFront puts msgs back at the front of the queue, ahead of anything
// posted since the last Drain. Used by RemoteEndpoint to put back the
// unprocessed remainder of a batch when a command suspends processing
// partway through. Does not mark pending and does not schedule — the
// caller decides when processing resumes.
func (mb *Mailbox) RequeueFront(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	mb.mu.Lock()
	mb.queue = append(append([]Message{}, msgs...), mb.queue...)
	mb.mu.Unlock()
}

// Kick re-schedules a drain if messages are queued but none is pending and
// the mailbox is no longer blocking. RemoteEndpoint calls this when a
// command finishes, to resume draining a mailbox that Post left un-scheduled
// while blocking() was true.
func (mb *Mailbox) Kick() {
	var shouldSchedule bool

	mb.mu.Lock()
	if len(mb.queue) > 0 && !mb.pending && !mb.blocking() {
		mb.pending = true
		shouldSchedule = true
	}
	mb.mu.Unlock()

	if shouldSchedule && mb.Schedule != nil {
		mb.Schedule()
	}
}

// SetTerminal marks the mailbox terminal, as reported by IsTerminal. The
// flag does not change Post, Kick or Drain: Posts still enqueue so callers
// observe no error, and whether a drain is scheduled is decided by the
// blocking predicate alone (RemoteEndpoint's predicate reports true once it
// has gone terminal, so its backlog waits until Close discards it).
func (mb *Mailbox) SetTerminal() {
	mb.mu.Lock()
	mb.terminal = true
	mb.mu.Unlock()
}

// IsTerminal reports whether SetTerminal has been called.
func (mb *Mailbox) IsTerminal() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.terminal
}

// Close discards any queued messages. Used at endpoint destruction.
func (mb *Mailbox) Close() {
	mb.mu.Lock()
	mb.queue = nil
	mb.pending = false
	mb.mu.Unlock()
}

// Len reports the current queue depth. Intended for tests and diagnostics;
// callers must not rely on it staying accurate past the call under
// concurrent use.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}
