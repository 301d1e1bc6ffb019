// Package fakeworker provides an in-memory workerapi.Worker used by the
// bridge's own tests to drive RemoteEndpoint's state machine without any
// real media backend: every method records a call, and the test fires the
// completion callbacks itself for precise control over timing.
package fakeworker

import (
	"sync"

	"github.com/ethan/mediabridge/pkg/message"
	"github.com/ethan/mediabridge/pkg/workerapi"
	"github.com/pion/rtp"
)

// Call records a single method invocation for assertions.
type Call struct {
	Method string
	Arg    any
}

// Worker is a scriptable fake: each command method records a Call and, by
// default, does nothing else — tests fire the resulting callback
// themselves via Callbacks() for precise control over timing. Set
// AutoComplete to have Start/Stop/Update fire their completion callback
// synchronously instead.
type Worker struct {
	mu    sync.Mutex
	calls []Call
	cb    workerapi.Callbacks

	devices message.DevicesConfig
	codecs  message.CodecsConfig
	status  message.WorkerStatus

	AutoComplete bool
}

// New creates a fake worker.
func New() *Worker {
	return &Worker{}
}

func (w *Worker) record(method string, arg any) {
	w.mu.Lock()
	w.calls = append(w.calls, Call{Method: method, Arg: arg})
	w.mu.Unlock()
}

// Calls returns a snapshot of recorded calls.
func (w *Worker) Calls() []Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Call, len(w.calls))
	copy(out, w.calls)
	return out
}

// Callbacks exposes the registered callback set so a test can fire
// completion/event callbacks at the moment it chooses.
func (w *Worker) Callbacks() workerapi.Callbacks {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cb
}

func (w *Worker) RegisterCallbacks(cb workerapi.Callbacks) {
	w.mu.Lock()
	w.cb = cb
	w.mu.Unlock()
}

func (w *Worker) Apply(devices message.DevicesConfig) {
	w.mu.Lock()
	w.devices = devices
	w.mu.Unlock()
	w.record("Apply", devices)
}

// Devices returns the most recently applied DevicesConfig, for test
// assertions.
func (w *Worker) Devices() message.DevicesConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.devices
}

// Codecs returns the currently-held CodecsConfig after all ApplyCodecs
// merges so far, for test assertions.
func (w *Worker) Codecs() message.CodecsConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.codecs
}

// ApplyCodecs conditionally merges codecs onto the currently-held
// configuration: a field whose UseX flag is false leaves the previously
// applied value for that field untouched.
func (w *Worker) ApplyCodecs(codecs message.CodecsConfig) {
	w.mu.Lock()
	w.codecs = w.codecs.Merge(codecs)
	w.mu.Unlock()
	w.record("ApplyCodecs", codecs)
}

func (w *Worker) Start() {
	w.record("Start", nil)
	if w.AutoComplete {
		if cb := w.Callbacks().Started; cb != nil {
			cb()
		}
	}
}

func (w *Worker) Stop() {
	w.record("Stop", nil)
	if w.AutoComplete {
		if cb := w.Callbacks().Stopped; cb != nil {
			cb()
		}
	}
}

func (w *Worker) Update() {
	w.record("Update", nil)
	if w.AutoComplete {
		if cb := w.Callbacks().Updated; cb != nil {
			cb()
		}
	}
}

func (w *Worker) TransmitAudio(index int) { w.record("TransmitAudio", index) }
func (w *Worker) PauseAudio()             { w.record("PauseAudio", nil) }
func (w *Worker) TransmitVideo(index int) { w.record("TransmitVideo", index) }
func (w *Worker) PauseVideo()             { w.record("PauseVideo", nil) }
func (w *Worker) RecordStart()            { w.record("RecordStart", nil) }
func (w *Worker) RecordStop()             { w.record("RecordStop", nil) }

func (w *Worker) RTPAudioIn(pkt *rtp.Packet) { w.record("RTPAudioIn", pkt) }
func (w *Worker) RTPVideoIn(pkt *rtp.Packet) { w.record("RTPVideoIn", pkt) }

func (w *Worker) Status() message.WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// SetStatus lets a test control what Status() returns.
func (w *Worker) SetStatus(s message.WorkerStatus) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

var _ workerapi.Worker = (*Worker)(nil)
