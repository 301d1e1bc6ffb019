// Package localendpoint implements the application-facing half of the
// control bridge. An Endpoint is constructed and destroyed synchronously
// with respect to the media loop (the calling goroutine blocks until the
// corresponding remoteendpoint.RemoteEndpoint exists or has been torn
// down), while its command methods (Start, Stop, UpdateDevices, ...) are
// non-blocking posts into a mailbox drained on the media loop.
package localendpoint

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethan/mediabridge/pkg/logger"
	"github.com/ethan/mediabridge/pkg/mailbox"
	"github.com/ethan/mediabridge/pkg/medialoop"
	"github.com/ethan/mediabridge/pkg/message"
	"github.com/ethan/mediabridge/pkg/remoteendpoint"
	"github.com/ethan/mediabridge/pkg/workerapi"
	"github.com/pion/rtp"
)

// ErrBridgeInit is returned by New when the media loop is not running, so
// the remote peer could never be constructed.
var ErrBridgeInit = errors.New("localendpoint: media loop is not running")

// Callbacks are invoked by ProcessMessages, on whatever goroutine the
// application calls ProcessMessages from. At most one is invoked per drain
// for each of PreviewFrame/OutputFrame/AudioIntensityChanged (the most
// recent queued value, any earlier ones in the same drain having been
// coalesced away); StatusReady is invoked once per queued Status message,
// in arrival order, since status transitions must not be dropped.
type Callbacks struct {
	PreviewFrame          func(image []byte)
	OutputFrame           func(image []byte)
	AudioIntensityChanged func(level int)
	StatusReady           func(status message.WorkerStatus)
}

// Endpoint is the application-facing handle. All exported methods are safe
// to call from any goroutine except ProcessMessages, which the application
// must not call concurrently with itself.
type Endpoint struct {
	loop   *medialoop.Loop
	log    *logger.Logger
	events *mailbox.Mailbox
	remote *remoteendpoint.RemoteEndpoint
	cb     Callbacks

	mu         sync.Mutex
	closed     bool
	generation uint64

	// RTPAudioOut/RTPVideoOut/RecordData are raw outbound callback slots:
	// plain function fields the application assigns directly, invoked by
	// the RemoteEndpoint on the media loop goroutine, bypassing the event
	// mailbox entirely. The application is responsible for any thread
	// safety these callbacks need, same as the RTP ingress forwarders
	// below bypass the command mailbox.
	RTPAudioOut func(pkt *rtp.Packet)
	RTPVideoOut func(pkt *rtp.Packet)
	RecordData  func(chunk []byte)
}

// New synchronously constructs a RemoteEndpoint (and the worker returned by
// newWorker) on loop's goroutine before returning, via medialoop.RunSync —
// the Go equivalent of blocking on a condition variable for the media loop
// to signal construction is complete. notify is called (from the media loop
// goroutine, via the event mailbox's Schedule hook) whenever the
// application should call ProcessMessages; it is typically a thread-safe
// wakeup such as posting to a channel the application goroutine selects on.
func New(loop *medialoop.Loop, newWorker func() workerapi.Worker, cb Callbacks, log *logger.Logger, notify func()) (*Endpoint, error) {
	if log == nil {
		log = logger.Default()
	}
	le := &Endpoint{
		loop: loop,
		log:  log,
		cb:   cb,
	}
	le.events = mailbox.New(nil, notify)

	err := loop.RunSync(func() {
		worker := newWorker()
		le.remote = remoteendpoint.New(loop, worker, le.events, log)
		le.remote.RTPAudioOut = func(pkt *rtp.Packet) {
			if le.RTPAudioOut != nil {
				le.RTPAudioOut(pkt)
			}
		}
		le.remote.RTPVideoOut = func(pkt *rtp.Packet) {
			if le.RTPVideoOut != nil {
				le.RTPVideoOut(pkt)
			}
		}
		le.remote.RecordData = func(chunk []byte) {
			if le.RecordData != nil {
				le.RecordData(chunk)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeInit, err)
	}
	return le, nil
}

// Close synchronously tears down the RemoteEndpoint on the media loop
// goroutine before returning. Safe to call more than once; only the first
// call has effect. Bumping generation before scheduling the teardown task
// means any ProcessMessages call already in progress on another goroutine
// — including one re-entered from inside an application callback that
// itself called Close — observes the new generation after its next
// callback invocation and stops touching endpoint state immediately,
// rather than running off the end of a torn-down RemoteEndpoint.
func (le *Endpoint) Close() error {
	le.mu.Lock()
	if le.closed {
		le.mu.Unlock()
		return nil
	}
	le.closed = true
	le.generation++
	le.mu.Unlock()

	err := le.loop.RunSync(func() {
		le.remote.Close()
	})
	le.events.Close()
	return err
}

func (le *Endpoint) post(m *message.Message) {
	le.mu.Lock()
	closed := le.closed
	le.mu.Unlock()
	if closed {
		return
	}
	le.remote.PostCommand(m)
}

// Start posts a Start command carrying the devices/codecs configuration to
// apply before the worker starts. Non-blocking.
func (le *Endpoint) Start(devices message.DevicesConfig, codecs message.CodecsConfig) {
	le.post(message.NewStart(devices, codecs))
}

// Stop posts a Stop command. Non-blocking.
func (le *Endpoint) Stop() { le.post(message.NewStop()) }

// UpdateDevices posts an UpdateDevices command. Non-blocking.
func (le *Endpoint) UpdateDevices(cfg message.DevicesConfig) {
	le.post(message.NewUpdateDevices(cfg))
}

// UpdateCodecs posts an UpdateCodecs command. Non-blocking.
func (le *Endpoint) UpdateCodecs(cfg message.CodecsConfig) {
	le.post(message.NewUpdateCodecs(cfg))
}

// Transmit posts a Transmit command. Non-blocking.
func (le *Endpoint) Transmit(cfg message.TransmitConfig) {
	le.post(message.NewTransmit(cfg))
}

// Record posts a Record command. Non-blocking.
func (le *Endpoint) Record(cfg message.RecordConfig) {
	le.post(message.NewRecord(cfg))
}

// RtpAudioIn/RtpVideoIn forward an inbound RTP packet directly to the
// RemoteEndpoint's worker, bypassing the command mailbox so media ingress
// never waits behind queued control commands. Safe to call from any
// goroutine, concurrently with everything else including Close.
func (le *Endpoint) RtpAudioIn(pkt *rtp.Packet) {
	le.mu.Lock()
	closed := le.closed
	le.mu.Unlock()
	if closed {
		return
	}
	le.remote.RTPAudioIn(pkt)
}

func (le *Endpoint) RtpVideoIn(pkt *rtp.Packet) {
	le.mu.Lock()
	closed := le.closed
	le.mu.Unlock()
	if closed {
		return
	}
	le.remote.RTPVideoIn(pkt)
}

// ProcessMessages drains queued events and invokes Callbacks. The caller
// must serialize its own calls to ProcessMessages (it is not safe to call
// concurrently with itself), but Callbacks may themselves call back into
// Endpoint, including Close — ProcessMessages detects that re-entrant
// destruction and stops immediately rather than emitting further callbacks
// against torn-down state.
func (le *Endpoint) ProcessMessages() {
	le.mu.Lock()
	if le.closed {
		le.mu.Unlock()
		return
	}
	gen := le.generation
	le.mu.Unlock()

	batch := le.events.Drain()
	if len(batch) == 0 {
		return
	}

	var latestPreview, latestOutput, latestAudio *message.Message
	var statuses []*message.Message

	for _, m := range batch {
		msg := m.(*message.Message)
		switch msg.Kind() {
		case message.KindFrame:
			f := msg.Frame()
			if f.Kind == message.FrameKindPreview {
				latestPreview = msg
			} else {
				latestOutput = msg
			}
		case message.KindAudioIntensity:
			latestAudio = msg
		case message.KindStatus:
			statuses = append(statuses, msg)
		}
	}

	// emit runs fn and reports whether the endpoint is still alive in the
	// same generation afterward; fn itself may have called Close.
	emit := func(fn func()) bool {
		fn()
		le.mu.Lock()
		alive := !le.closed && le.generation == gen
		le.mu.Unlock()
		return alive
	}

	if latestPreview != nil && le.cb.PreviewFrame != nil {
		img := latestPreview.Frame().Image
		if !emit(func() { le.cb.PreviewFrame(img) }) {
			return
		}
	}
	if latestOutput != nil && le.cb.OutputFrame != nil {
		img := latestOutput.Frame().Image
		if !emit(func() { le.cb.OutputFrame(img) }) {
			return
		}
	}
	if latestAudio != nil && le.cb.AudioIntensityChanged != nil {
		level := latestAudio.AudioIntensity().Value
		if !emit(func() { le.cb.AudioIntensityChanged(level) }) {
			return
		}
	}
	if le.cb.StatusReady != nil {
		for _, s := range statuses {
			status := s.Status()
			if !emit(func() { le.cb.StatusReady(status) }) {
				return
			}
		}
	}

	le.log.DebugQueue("drained", "batch", len(batch))
}
