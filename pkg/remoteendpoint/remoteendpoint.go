// Package remoteendpoint implements the media-loop-resident half of the
// control bridge. A RemoteEndpoint owns a workerapi.Worker, drains a
// command mailbox fed by a LocalEndpoint, and runs the serialized
// suspend/resume state machine that guarantees at most one Start/Stop/
// UpdateDevices/UpdateCodecs command is ever in flight against the worker
// at a time.
package remoteendpoint

import (
	"sync"

	"github.com/ethan/mediabridge/pkg/logger"
	"github.com/ethan/mediabridge/pkg/mailbox"
	"github.com/ethan/mediabridge/pkg/medialoop"
	"github.com/ethan/mediabridge/pkg/message"
	"github.com/ethan/mediabridge/pkg/workerapi"
	"github.com/pion/rtp"
)

// RemoteEndpoint runs entirely on the goroutine owned by its medialoop.Loop.
// Its exported methods other than PostCommand, RTPAudioIn and RTPVideoIn are
// intended to be called only from that goroutine.
type RemoteEndpoint struct {
	log    *logger.Logger
	loop   *medialoop.Loop
	worker workerapi.Worker

	commands *mailbox.Mailbox
	events   *mailbox.Mailbox

	mu            sync.Mutex
	busy          bool
	pendingStatus bool
	terminal      bool

	// RTPAudioOut/RTPVideoOut/RecordData are raw outbound forwarders a
	// LocalEndpoint wires directly to its own raw callback slots. They
	// bypass the event mailbox entirely: RTP packets and recorded audio
	// chunks arrive at too high a rate to coalesce usefully, and the
	// consumer wants every one of them, not just the latest.
	RTPAudioOut func(pkt *rtp.Packet)
	RTPVideoOut func(pkt *rtp.Packet)
	RecordData  func(chunk []byte)
}

// New constructs a RemoteEndpoint that drives worker and publishes events
// (Status/Frame/AudioIntensity) into events. loop is the media loop both
// the command mailbox's scheduler and the worker's callbacks run on.
func New(loop *medialoop.Loop, worker workerapi.Worker, events *mailbox.Mailbox, log *logger.Logger) *RemoteEndpoint {
	if log == nil {
		log = logger.Default()
	}
	re := &RemoteEndpoint{
		log:    log,
		loop:   loop,
		worker: worker,
		events: events,
	}
	re.commands = mailbox.New(re.isBusy, func() {
		_ = loop.Schedule(re.ProcessMessages)
	})
	re.events.Coalesce = re.coalesceFrames

	worker.RegisterCallbacks(workerapi.Callbacks{
		Started:        re.onStarted,
		Updated:        re.onUpdated,
		Stopped:        re.onStopped,
		Finished:       re.onFinished,
		Error:          re.onError,
		AudioIntensity: re.onAudioIntensity,
		PreviewFrame:   func(img []byte) { re.onFrame(message.FrameKindPreview, img) },
		OutputFrame:    func(img []byte) { re.onFrame(message.FrameKindOutput, img) },
		RTPAudioOut:    re.dispatchRTPAudioOut,
		RTPVideoOut:    re.dispatchRTPVideoOut,
		RecordData:     re.dispatchRecordData,
	})
	return re
}

// coalesceFrames evicts the oldest Frame of the same FrameKind as incoming
// once FrameQueueMax same-kind frames are already queued. Runs at Post time
// under the mailbox's lock, as opposed to LocalEndpoint's drain-time
// keep-latest coalescing for Preview/Output frames and audio intensity.
func (re *RemoteEndpoint) coalesceFrames(pending []mailbox.Message, incoming mailbox.Message) []mailbox.Message {
	in, ok := incoming.(*message.Message)
	if !ok || in.Kind() != message.KindFrame {
		return pending
	}
	kind := in.Frame().Kind

	count := 0
	evictAt := -1
	for i, m := range pending {
		msg := m.(*message.Message)
		if msg.Kind() == message.KindFrame && msg.Frame().Kind == kind {
			count++
			if evictAt == -1 {
				evictAt = i
			}
		}
	}
	if count < message.FrameQueueMax {
		return pending
	}
	re.log.DebugQueueDepth(kind.String(), count, true)
	return append(append([]mailbox.Message{}, pending[:evictAt]...), pending[evictAt+1:]...)
}

// isBusy reports whether the command mailbox should withhold scheduling a
// drain: either a command is in flight, or the endpoint has gone terminal
// (worker_stopped) and must never process another command.
func (re *RemoteEndpoint) isBusy() bool {
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.busy || re.terminal
}

// PostCommand enqueues a command message from the LocalEndpoint side. Safe
// to call from any goroutine.
func (re *RemoteEndpoint) PostCommand(m *message.Message) {
	re.commands.Post(m)
}

// RTPAudioIn/RTPVideoIn forward an inbound RTP packet directly to the
// worker, bypassing the command mailbox entirely, per the design note that
// RTP ingress must never wait behind queued commands. Safe to call from
// any goroutine concurrently with everything else.
func (re *RemoteEndpoint) RTPAudioIn(pkt *rtp.Packet) { re.worker.RTPAudioIn(pkt) }
func (re *RemoteEndpoint) RTPVideoIn(pkt *rtp.Packet) { re.worker.RTPVideoIn(pkt) }

// ProcessMessages drains and processes queued commands one at a time,
// stopping as soon as one suspends the state machine (Busy) and requeuing
// whatever remained undrained. Runs on the media loop goroutine.
func (re *RemoteEndpoint) ProcessMessages() {
	if re.isBusy() {
		return
	}

	batch := re.commands.Drain()
	for i, m := range batch {
		msg := m.(*message.Message)
		if re.processMessage(msg) {
			remainder := batch[i+1:]
			if len(remainder) > 0 {
				re.commands.RequeueFront(remainder)
			}
			return
		}
	}
}

// processMessage runs one command against the worker and reports whether
// the state machine suspends (Busy) waiting on a worker callback.
func (re *RemoteEndpoint) processMessage(msg *message.Message) (suspend bool) {
	switch msg.Kind() {
	case message.KindStart:
		re.log.DebugState("dispatch start")
		re.suspend(true)
		re.worker.Apply(msg.Devices())
		re.worker.ApplyCodecs(msg.Codecs())
		re.worker.Start()
		return true

	case message.KindStop:
		re.log.DebugState("dispatch stop")
		re.suspend(true)
		re.worker.Stop()
		return true

	case message.KindUpdateDevices:
		re.log.DebugState("dispatch update_devices")
		re.suspend(false)
		re.worker.Apply(msg.Devices())
		re.worker.Update()
		return true

	case message.KindUpdateCodecs:
		re.log.DebugState("dispatch update_codecs")
		re.suspend(true)
		re.worker.ApplyCodecs(msg.Codecs())
		re.worker.Update()
		return true

	case message.KindTransmit:
		t := msg.Transmit()
		if t.UseAudio {
			re.worker.TransmitAudio(t.AudioIndex)
		} else {
			re.worker.PauseAudio()
		}
		if t.UseVideo {
			re.worker.TransmitVideo(t.VideoIndex)
		} else {
			re.worker.PauseVideo()
		}
		return false

	case message.KindRecord:
		if msg.Record().Enabled {
			re.worker.RecordStart()
		} else {
			re.worker.RecordStop()
		}
		return false

	default:
		return false
	}
}

func (re *RemoteEndpoint) suspend(pendingStatus bool) {
	re.mu.Lock()
	re.busy = true
	re.pendingStatus = pendingStatus
	re.mu.Unlock()
}

// resume clears Busy and, if requested and pending, emits the worker's
// current status, then kicks the command mailbox so any requeued remainder
// is processed.
func (re *RemoteEndpoint) resume(emitStatus bool) {
	re.mu.Lock()
	re.busy = false
	shouldEmit := emitStatus && re.pendingStatus
	re.pendingStatus = false
	re.mu.Unlock()

	if shouldEmit {
		re.emitStatus()
	}
	re.commands.Kick()
}

func (re *RemoteEndpoint) emitStatus() {
	re.events.Post(message.NewStatus(re.worker.Status()))
}

func (re *RemoteEndpoint) onStarted() { re.log.DebugEvents("started"); re.resume(true) }
func (re *RemoteEndpoint) onUpdated() { re.log.DebugEvents("updated"); re.resume(true) }

// onFinished fires when the worker reaches end-of-stream on its own. It is
// unsolicited and independent of the suspend/resume cycle: it neither
// clears Busy nor kicks the command mailbox.
func (re *RemoteEndpoint) onFinished() {
	re.log.DebugEvents("finished")
	st := re.worker.Status()
	st.Finished = true
	re.events.Post(message.NewStatus(st))
}

// onStopped is terminal: it clears Busy and emits a final status if one was
// pending, but does not Kick the command mailbox. Anything requeued or
// posted afterward sits in the mailbox until Close discards it — the
// formalized answer to what happens to commands posted after the worker
// reports stopped.
func (re *RemoteEndpoint) onStopped() {
	re.log.DebugEvents("stopped")
	re.mu.Lock()
	re.busy = false
	shouldEmit := re.pendingStatus
	re.pendingStatus = false
	re.terminal = true
	re.mu.Unlock()

	if shouldEmit {
		st := re.worker.Status()
		st.Stopped = true
		re.events.Post(message.NewStatus(st))
	}
	re.commands.SetTerminal()
}

func (re *RemoteEndpoint) onError(code int) {
	re.log.DebugEvents("error", "code", code)
	wasBusy := re.isBusy()

	st := re.worker.Status()
	st.Error = true
	st.ErrorCode = code
	re.events.Post(message.NewStatus(st))

	if wasBusy {
		re.mu.Lock()
		re.busy = false
		re.pendingStatus = false
		re.mu.Unlock()
		re.commands.Kick()
	}
}

func (re *RemoteEndpoint) onAudioIntensity(level int) {
	re.events.Post(message.NewAudioIntensity(level))
}

func (re *RemoteEndpoint) onFrame(kind message.FrameKind, image []byte) {
	re.events.Post(message.NewFrame(message.Frame{Kind: kind, Image: image}))
	re.log.DebugQueue("frame posted", "kind", kind.String(), "size", len(image))
}

func (re *RemoteEndpoint) dispatchRTPAudioOut(pkt *rtp.Packet) {
	if re.RTPAudioOut != nil {
		re.RTPAudioOut(pkt)
	}
}

func (re *RemoteEndpoint) dispatchRTPVideoOut(pkt *rtp.Packet) {
	if re.RTPVideoOut != nil {
		re.RTPVideoOut(pkt)
	}
}

func (re *RemoteEndpoint) dispatchRecordData(chunk []byte) {
	if re.RecordData != nil {
		re.RecordData(chunk)
	}
}

// Terminal reports whether the worker has reported Stopped.
func (re *RemoteEndpoint) Terminal() bool {
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.terminal
}

// Close discards any queued commands. Called once, at endpoint destruction,
// on the media loop goroutine; it does not wait for a suspended command's
// worker callback.
func (re *RemoteEndpoint) Close() {
	re.commands.Close()
}
