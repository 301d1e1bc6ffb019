// Package refworker is a reference workerapi.Worker backed by a real
// pion/webrtc PeerConnection with loopback local tracks. It stands in for
// an external media engine in demos and integration tests: Start builds the
// connection and its local tracks, Update only reports completion (there is
// no remote peer to renegotiate with), RTPAudioIn/RTPVideoIn write
// straight through to local tracks, and a background goroutine per sender
// reads PLI/FIR/REMB/receiver-report RTCP feedback and logs it.
package refworker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ethan/mediabridge/pkg/logger"
	"github.com/ethan/mediabridge/pkg/message"
	"github.com/ethan/mediabridge/pkg/workerapi"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"golang.org/x/time/rate"
)

// Worker is a loopback reference implementation of workerapi.Worker.
type Worker struct {
	log *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	devices message.DevicesConfig
	codecs  message.CodecsConfig
	cb      workerapi.Callbacks

	pc          *webrtc.PeerConnection
	videoTrack  *webrtc.TrackLocalStaticRTP
	audioTrack  *webrtc.TrackLocalStaticRTP
	videoSender *webrtc.RTPSender
	audioSender *webrtc.RTPSender

	statusMu sync.RWMutex
	status   message.WorkerStatus

	// intensityLimiter bounds how often synthetic AudioIntensity samples
	// are produced.
	intensityLimiter *rate.Limiter
}

// New constructs an idle reference worker. It does not touch the network
// until Start is called.
func New(log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		log:              log,
		ctx:              ctx,
		cancel:           cancel,
		intensityLimiter: rate.NewLimiter(rate.Limit(10), 1),
	}
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
}

// ApplyCodecs conditionally merges codecs onto the currently-held
// configuration: a field whose UseX flag is false leaves the previously
// applied value for that field untouched.
func (w *Worker) ApplyCodecs(codecs message.CodecsConfig) {
	w.mu.Lock()
	w.codecs = w.codecs.Merge(codecs)
	w.mu.Unlock()
}

func (w *Worker) callbacks() workerapi.Callbacks {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cb
}

// Start builds a fresh PeerConnection with loopback local tracks for audio
// and video (H264 baseline-profile video, Opus stereo audio).
func (w *Worker) Start() {
	cb := w.callbacks()

	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		w.fail(cb, err)
		return
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		w.fail(cb, err)
		return
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		w.fail(cb, err)
		return
	}

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}, "video", "mediabridge")
	if err != nil {
		w.fail(cb, err)
		return
	}
	audioTrack, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "mediabridge")
	if err != nil {
		w.fail(cb, err)
		return
	}

	videoSender, err := pc.AddTrack(videoTrack)
	if err != nil {
		w.fail(cb, err)
		return
	}
	audioSender, err := pc.AddTrack(audioTrack)
	if err != nil {
		w.fail(cb, err)
		return
	}

	w.mu.Lock()
	w.pc = pc
	w.videoTrack = videoTrack
	w.audioTrack = audioTrack
	w.videoSender = videoSender
	w.audioSender = audioSender
	w.mu.Unlock()

	w.startRTCPReaders(videoSender, audioSender)

	w.statusMu.Lock()
	w.status = message.WorkerStatus{
		LocalVideoParams:  message.CodecParams{Name: "H264", ClockRate: 90000},
		LocalAudioParams:  message.CodecParams{Name: "Opus", ClockRate: 48000},
		LocalPayloadInfo:  message.PayloadInfo{PayloadType: 96, Name: "H264"},
		RemotePayloadInfo: message.PayloadInfo{PayloadType: 96, Name: "H264"},
		CanTransmitAudio:  true,
		CanTransmitVideo:  true,
	}
	w.statusMu.Unlock()

	if cb.Started != nil {
		cb.Started()
	}
}

func (w *Worker) fail(cb workerapi.Callbacks, err error) {
	w.log.Error("refworker start failed", "error", err)
	if cb.Error != nil {
		cb.Error(1)
	}
}

// Update re-applies nothing network-visible in this loopback reference
// (there is no remote renegotiation partner); it simply reports success,
// mirroring a worker whose Update is a no-op when already running.
func (w *Worker) Update() {
	if cb := w.callbacks(); cb.Updated != nil {
		cb.Updated()
	}
}

// Stop tears down the peer connection and background RTCP readers.
func (w *Worker) Stop() {
	w.cancel()

	w.mu.Lock()
	pc := w.pc
	w.pc = nil
	w.mu.Unlock()

	// Closing the connection stops the senders, which unblocks the RTCP
	// readers' ReadRTCP calls so they can exit.
	if pc != nil {
		if err := pc.Close(); err != nil {
			w.log.Error("error closing peer connection", "error", err)
		}
	}
	w.wg.Wait()

	if cb := w.callbacks(); cb.Stopped != nil {
		cb.Stopped()
	}
}

func (w *Worker) TransmitAudio(index int) {
	w.statusMu.Lock()
	w.status.CanTransmitAudio = true
	w.statusMu.Unlock()
}

func (w *Worker) PauseAudio() {
	w.statusMu.Lock()
	w.status.CanTransmitAudio = false
	w.statusMu.Unlock()
}

func (w *Worker) TransmitVideo(index int) {
	w.statusMu.Lock()
	w.status.CanTransmitVideo = true
	w.statusMu.Unlock()
}

func (w *Worker) PauseVideo() {
	w.statusMu.Lock()
	w.status.CanTransmitVideo = false
	w.statusMu.Unlock()
}

func (w *Worker) RecordStart() {}
func (w *Worker) RecordStop()  {}

// RTPAudioIn/RTPVideoIn write straight through to the loopback local
// tracks. Safe for concurrent use with every other method, including while
// Start/Stop are in flight; a packet arriving before Start has created the
// track is dropped silently, and a write error from webrtc is logged, not
// a panic.
func (w *Worker) RTPAudioIn(pkt *rtp.Packet) {
	w.mu.Lock()
	track := w.audioTrack
	w.mu.Unlock()
	if track == nil {
		return
	}
	if err := track.WriteRTP(pkt); err != nil {
		w.log.DebugEvents("audio write failed", "error", err)
	}
}

func (w *Worker) RTPVideoIn(pkt *rtp.Packet) {
	w.mu.Lock()
	track := w.videoTrack
	w.mu.Unlock()
	if track == nil {
		return
	}
	if err := track.WriteRTP(pkt); err != nil {
		w.log.DebugEvents("video write failed", "error", err)
	}
}

func (w *Worker) Status() message.WorkerStatus {
	w.statusMu.RLock()
	defer w.statusMu.RUnlock()
	return w.status
}

// EmitAudioIntensity lets a demo host feed a measured or synthetic audio
// level through the worker's normal AudioIntensity callback path, capped
// by the intensity rate limiter.
func (w *Worker) EmitAudioIntensity(level int) {
	if !w.intensityLimiter.Allow() {
		return
	}
	if cb := w.callbacks(); cb.AudioIntensity != nil {
		cb.AudioIntensity(level)
	}
}

func (w *Worker) startRTCPReaders(videoSender, audioSender *webrtc.RTPSender) {
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.readRTCP(videoSender, "video")
	}()
	go func() {
		defer w.wg.Done()
		w.readRTCP(audioSender, "audio")
	}()
}

func (w *Worker) readRTCP(sender *webrtc.RTPSender, trackType string) {
	w.log.DebugEvents("rtcp reader started", "track", trackType)
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			select {
			case <-w.ctx.Done():
				return
			default:
				if err == io.EOF || err == io.ErrClosedPipe {
					return
				}
				w.log.DebugEvents("rtcp read error", "track", trackType, "error", err)
				return
			}
		}

		for _, packet := range packets {
			switch pkt := packet.(type) {
			case *rtcp.PictureLossIndication:
				w.log.DebugEvents("rtcp pli", "track", trackType, "media_ssrc", pkt.MediaSSRC)
			case *rtcp.FullIntraRequest:
				w.log.DebugEvents("rtcp fir", "track", trackType, "media_ssrc", pkt.MediaSSRC)
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				w.log.DebugEvents("rtcp remb", "track", trackType, "bitrate_bps", pkt.Bitrate)
			case *rtcp.ReceiverReport:
				w.log.DebugEvents("rtcp rr", "track", trackType, "ssrc", pkt.SSRC, "reports", len(pkt.Reports))
			default:
				w.log.DebugEvents("rtcp packet", "track", trackType, "type", fmt.Sprintf("%T", packet))
			}
		}
	}
}

var _ workerapi.Worker = (*Worker)(nil)
