// Package workerapi defines the capability interface a media worker
// implementation must satisfy to be driven by a RemoteEndpoint. It replaces
// the individual function-pointer-plus-userdata pairs of a C API with a
// single interface and a struct of callback closures, the natural Go
// shapes for the same contract.
package workerapi

import (
	"github.com/ethan/mediabridge/pkg/message"
	"github.com/pion/rtp"
)

// Callbacks are invoked by a Worker implementation, always on the
// media-loop goroutine that owns it. A RemoteEndpoint registers exactly one
// set of callbacks per worker instance via RegisterCallbacks.
type Callbacks struct {
	// Started fires once after a Start command completes successfully.
	Started func()
	// Updated fires once after an UpdateDevices or UpdateCodecs command
	// completes successfully.
	Updated func()
	// Stopped fires once after a Stop command completes. No further
	// command resumption follows a Stopped callback.
	Stopped func()
	// Finished fires when the worker reaches end-of-stream on its own
	// (e.g. an input file ran out), independent of any in-flight command.
	Finished func()
	// Error fires when the worker hits an unrecoverable condition, either
	// in response to a command or asynchronously.
	Error func(code int)
	// AudioIntensity fires with the current input audio level, 0-100.
	AudioIntensity func(level int)
	// PreviewFrame fires with an encoded preview still.
	PreviewFrame func(image []byte)
	// OutputFrame fires with an encoded output frame.
	OutputFrame func(image []byte)
	// RTPAudioOut/RTPVideoOut fire with an outbound RTP packet the worker
	// has produced; forwarded by RemoteEndpoint to LocalEndpoint's raw
	// outbound callback slots, bypassing the mailbox entirely.
	RTPAudioOut func(pkt *rtp.Packet)
	RTPVideoOut func(pkt *rtp.Packet)
	// RecordData fires with a chunk of recorded output, when recording is
	// enabled.
	RecordData func(chunk []byte)
}

// Worker is the capability surface a RemoteEndpoint drives. Every method
// here is called only from the media-loop goroutine; RTPAudioIn/RTPVideoIn
// are the sole exception and must be safe to call concurrently with every
// other method and with each other.
type Worker interface {
	// RegisterCallbacks installs the callback set this worker invokes for
	// asynchronous events. Called once, before any other method.
	RegisterCallbacks(cb Callbacks)

	// Start begins media processing using the most recently applied
	// devices/codecs configuration. Completion is signaled via
	// Callbacks.Started or Callbacks.Error.
	Start()
	// Stop tears down media processing. Completion is signaled via
	// Callbacks.Stopped.
	Stop()
	// Update re-applies the currently configured devices/codecs while
	// running. Completion is signaled via Callbacks.Updated or
	// Callbacks.Error.
	Update()

	// Apply stages a new devices configuration, taking effect on the next
	// Start or Update.
	Apply(devices message.DevicesConfig)
	// ApplyCodecs stages a new codecs configuration, taking effect on the
	// next Start or Update.
	ApplyCodecs(codecs message.CodecsConfig)

	// TransmitAudio/TransmitVideo enable sending the given local track
	// index to the remote peer; PauseAudio/PauseVideo disable it. These do
	// not suspend the command stream and have no Callbacks completion.
	TransmitAudio(index int)
	PauseAudio()
	TransmitVideo(index int)
	PauseVideo()

	// RecordStart/RecordStop enable/disable local recording. Like
	// Transmit/Pause, these do not suspend the command stream.
	RecordStart()
	RecordStop()

	// RTPAudioIn/RTPVideoIn deliver an inbound RTP packet from the remote
	// peer directly to the worker, bypassing the mailbox. Safe to call from
	// any goroutine.
	RTPAudioIn(pkt *rtp.Packet)
	RTPVideoIn(pkt *rtp.Packet)

	// Status returns the worker's current status snapshot synchronously.
	Status() message.WorkerStatus
}
