package remoteendpoint_test

import (
	"testing"
	"time"

	"github.com/ethan/mediabridge/pkg/mailbox"
	"github.com/ethan/mediabridge/pkg/medialoop"
	"github.com/ethan/mediabridge/pkg/message"
	"github.com/ethan/mediabridge/pkg/remoteendpoint"
	"github.com/ethan/mediabridge/pkg/workerapi/fakeworker"
	"github.com/stretchr/testify/require"
)

// drainEvents runs fn on the loop and returns whatever Status/Frame/
// AudioIntensity messages were posted to events as a result, waiting
// synchronously via RunSync so the test never races the loop goroutine.
func drainEvents(t *testing.T, loop *medialoop.Loop, events *mailbox.Mailbox, fn func()) []*message.Message {
	t.Helper()
	require.NoError(t, loop.RunSync(fn))
	raw := events.Drain()
	out := make([]*message.Message, len(raw))
	for i, m := range raw {
		out[i] = m.(*message.Message)
	}
	return out
}

func newHarness(t *testing.T) (*medialoop.Loop, *fakeworker.Worker, *remoteendpoint.RemoteEndpoint, *mailbox.Mailbox) {
	t.Helper()
	loop := medialoop.New(16)
	t.Cleanup(loop.Close)

	events := mailbox.New(nil, nil)
	worker := fakeworker.New()

	var re *remoteendpoint.RemoteEndpoint
	require.NoError(t, loop.RunSync(func() {
		re = remoteendpoint.New(loop, worker, events, nil)
	}))
	return loop, worker, re, events
}

func TestStartAppliesConfigSuspendsAndEmitsStatusOnStarted(t *testing.T) {
	loop, worker, re, events := newHarness(t)

	devices := message.DevicesConfig{
		AudioInID:      "mic1",
		AudioOutID:     "spk1",
		VideoInID:      "cam1",
		AudioOutVolume: 80,
		AudioInVolume:  70,
	}
	audioParams := message.CodecParams{Name: "Opus", ClockRate: 48000}
	codecs := message.CodecsConfig{
		UseLocalAudioParams: true,
		LocalAudioParams:    audioParams,
	}

	require.NoError(t, loop.RunSync(func() {
		re.PostCommand(message.NewStart(devices, codecs))
		re.ProcessMessages()
	}))

	require.NoError(t, loop.RunSync(func() {
		names := callNames(worker.Calls())
		require.Equal(t, []string{"Apply", "ApplyCodecs", "Start"}, names)
		require.Equal(t, devices, worker.Devices())
		require.Equal(t, audioParams, worker.Codecs().LocalAudioParams)
		require.False(t, worker.Codecs().UseLocalVideoParams, "unflagged codec fields must be left untouched")
	}))

	msgs := drainEvents(t, loop, events, func() {
		worker.SetStatus(message.WorkerStatus{CanTransmitVideo: true})
		worker.Callbacks().Started()
	})

	require.Len(t, msgs, 1)
	require.Equal(t, message.KindStatus, msgs[0].Kind())
	require.True(t, msgs[0].Status().CanTransmitVideo)
}

func TestUpdateDevicesSuspendsWithoutStatus(t *testing.T) {
	loop, worker, re, events := newHarness(t)

	require.NoError(t, loop.RunSync(func() {
		re.PostCommand(message.NewUpdateDevices(message.DevicesConfig{AudioInID: "mic0"}))
		re.ProcessMessages()
	}))

	msgs := drainEvents(t, loop, events, func() {
		worker.Callbacks().Updated()
	})

	require.Empty(t, msgs, "UpdateDevices must not emit a status on completion")
}

func TestUpdateCodecsSuspendsWithStatus(t *testing.T) {
	loop, worker, re, events := newHarness(t)

	require.NoError(t, loop.RunSync(func() {
		re.PostCommand(message.NewUpdateCodecs(message.CodecsConfig{}))
		re.ProcessMessages()
	}))

	msgs := drainEvents(t, loop, events, func() {
		worker.Callbacks().Updated()
	})

	require.Len(t, msgs, 1, "UpdateCodecs must emit a status on completion")
	require.Equal(t, message.KindStatus, msgs[0].Kind())
}

func TestTransmitAndRecordDoNotSuspend(t *testing.T) {
	loop, worker, re, _ := newHarness(t)

	require.NoError(t, loop.RunSync(func() {
		re.PostCommand(message.NewTransmit(message.TransmitConfig{UseAudio: true, AudioIndex: 0}))
		re.PostCommand(message.NewRecord(message.RecordConfig{Enabled: true}))
		re.ProcessMessages()
	}))

	require.NoError(t, loop.RunSync(func() {
		names := callNames(worker.Calls())
		require.Contains(t, names, "TransmitAudio")
		require.Contains(t, names, "RecordStart")
	}))
}

func TestOnlyOneCommandInFlightAtATime(t *testing.T) {
	loop, worker, re, _ := newHarness(t)

	require.NoError(t, loop.RunSync(func() {
		re.PostCommand(message.NewStart(message.DevicesConfig{}, message.CodecsConfig{}))
		re.PostCommand(message.NewStop())
		re.ProcessMessages()
	}))

	require.NoError(t, loop.RunSync(func() {
		names := callNames(worker.Calls())
		require.Equal(t, []string{"Apply", "ApplyCodecs", "Start"}, names, "Stop must not run until Start's callback resumes the state machine")
	}))

	require.NoError(t, loop.RunSync(func() {
		worker.Callbacks().Started()
	}))
	// Kick schedules ProcessMessages asynchronously; wait for it to run.
	waitFor(t, func() bool {
		var names []string
		_ = loop.RunSync(func() { names = callNames(worker.Calls()) })
		for _, n := range names {
			if n == "Stop" {
				return true
			}
		}
		return false
	})
}

func TestStopIsTerminalAndDoesNotResume(t *testing.T) {
	loop, worker, re, events := newHarness(t)

	require.NoError(t, loop.RunSync(func() {
		re.PostCommand(message.NewStop())
		re.ProcessMessages()
	}))

	msgs := drainEvents(t, loop, events, func() {
		worker.Callbacks().Stopped()
	})
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Status().Stopped, "the final status after Stop must carry stopped=true")

	require.NoError(t, loop.RunSync(func() {
		require.True(t, re.Terminal())
	}))

	// Post another command; it must never be processed.
	require.NoError(t, loop.RunSync(func() {
		re.PostCommand(message.NewStart(message.DevicesConfig{}, message.CodecsConfig{}))
	}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, loop.RunSync(func() {
		names := callNames(worker.Calls())
		for _, n := range names {
			require.NotEqual(t, "Start", n, "no command may run after Stop has been acknowledged")
		}
	}))
}

func TestFrameQueueMaxEvictsOldestSameKind(t *testing.T) {
	loop, worker, re, events := newHarness(t)
	_ = re

	require.NoError(t, loop.RunSync(func() {
		cb := worker.Callbacks()
		for i := 0; i < message.FrameQueueMax+3; i++ {
			cb.PreviewFrame([]byte{byte(i)})
		}
	}))

	raw := events.Drain()
	require.Len(t, raw, message.FrameQueueMax, "posting beyond FrameQueueMax must evict the oldest same-kind frame")

	first := raw[0].(*message.Message).Frame().Image[0]
	require.Equal(t, byte(3), first, "the three oldest preview frames should have been evicted")
}

func TestFrameEvictionLeavesOtherKindUntouched(t *testing.T) {
	loop, worker, re, events := newHarness(t)
	_ = re

	require.NoError(t, loop.RunSync(func() {
		cb := worker.Callbacks()
		for i := 0; i < message.FrameQueueMax; i++ {
			cb.PreviewFrame([]byte{byte(i)})
		}
		for i := 0; i < 3; i++ {
			cb.OutputFrame([]byte{100 + byte(i)})
		}
		// One preview past the cap: the oldest preview goes, outputs stay.
		cb.PreviewFrame([]byte{42})
	}))

	raw := events.Drain()

	var previews, outputs []byte
	for _, m := range raw {
		f := m.(*message.Message).Frame()
		if f.Kind == message.FrameKindPreview {
			previews = append(previews, f.Image[0])
		} else {
			outputs = append(outputs, f.Image[0])
		}
	}

	require.Len(t, previews, message.FrameQueueMax)
	require.Equal(t, byte(1), previews[0], "the previously-oldest preview must have been evicted")
	require.Equal(t, byte(42), previews[len(previews)-1], "the new preview lands at the tail")
	require.Equal(t, []byte{100, 101, 102}, outputs, "output frames must be untouched by preview eviction")
}

func TestCommandOrderingAcrossSuspendResume(t *testing.T) {
	loop, worker, re, _ := newHarness(t)

	devices := message.DevicesConfig{AudioInID: "mic2"}

	require.NoError(t, loop.RunSync(func() {
		re.PostCommand(message.NewStart(message.DevicesConfig{}, message.CodecsConfig{}))
		re.PostCommand(message.NewUpdateDevices(devices))
		re.PostCommand(message.NewTransmit(message.TransmitConfig{UseAudio: true, AudioIndex: 2, UseVideo: false}))
		re.ProcessMessages()
	}))

	require.NoError(t, loop.RunSync(func() {
		require.Equal(t, []string{"Apply", "ApplyCodecs", "Start"}, callNames(worker.Calls()))
	}))

	require.NoError(t, loop.RunSync(func() {
		worker.Callbacks().Started()
	}))
	waitFor(t, func() bool {
		var names []string
		_ = loop.RunSync(func() { names = callNames(worker.Calls()) })
		return contains(names, "Update")
	})

	require.NoError(t, loop.RunSync(func() {
		worker.Callbacks().Updated()
	}))
	waitFor(t, func() bool {
		var names []string
		_ = loop.RunSync(func() { names = callNames(worker.Calls()) })
		return contains(names, "PauseVideo")
	})

	require.NoError(t, loop.RunSync(func() {
		names := callNames(worker.Calls())
		require.Equal(t, []string{"Apply", "ApplyCodecs", "Start", "Apply", "Update", "TransmitAudio", "PauseVideo"}, names)
		require.Equal(t, devices, worker.Devices())
	}))

	calls := worker.Calls()
	require.Equal(t, 2, calls[5].Arg, "TransmitAudio must carry the requested track index")
}

func TestWorkerErrorEmitsStatusAndResumes(t *testing.T) {
	loop, worker, re, events := newHarness(t)

	require.NoError(t, loop.RunSync(func() {
		re.PostCommand(message.NewStart(message.DevicesConfig{}, message.CodecsConfig{}))
		re.PostCommand(message.NewRecord(message.RecordConfig{Enabled: true}))
		re.ProcessMessages()
	}))

	msgs := drainEvents(t, loop, events, func() {
		worker.Callbacks().Error(7)
	})

	require.Len(t, msgs, 1)
	require.Equal(t, message.KindStatus, msgs[0].Kind())
	require.True(t, msgs[0].Status().Error)
	require.Equal(t, 7, msgs[0].Status().ErrorCode)

	// The error must resume the command stream so the app can still issue
	// commands (here the queued Record runs).
	waitFor(t, func() bool {
		var names []string
		_ = loop.RunSync(func() { names = callNames(worker.Calls()) })
		return contains(names, "RecordStart")
	})
}

func TestWorkerFinishedEmitsStatusWithoutResuming(t *testing.T) {
	loop, worker, re, events := newHarness(t)

	require.NoError(t, loop.RunSync(func() {
		re.PostCommand(message.NewStart(message.DevicesConfig{}, message.CodecsConfig{}))
		re.ProcessMessages()
	}))

	msgs := drainEvents(t, loop, events, func() {
		worker.Callbacks().Finished()
	})

	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Status().Finished)

	// Finished is unsolicited: the in-flight Start stays suspended, so a
	// queued command must not run.
	require.NoError(t, loop.RunSync(func() {
		re.PostCommand(message.NewRecord(message.RecordConfig{Enabled: true}))
	}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, loop.RunSync(func() {
		require.NotContains(t, callNames(worker.Calls()), "RecordStart")
	}))
}

func callNames(calls []fakeworker.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
