package message

// DevicesConfig selects the audio/video input and output devices (or a
// playback file) a worker should use. Device/file identity is opaque to
// the bridge; it is forwarded to the worker unexamined.
type DevicesConfig struct {
	AudioOutID     string
	AudioInID      string
	VideoInID      string
	FileNameIn     string
	FileDataIn     []byte
	LoopFile       bool
	AudioOutVolume int
	AudioInVolume  int
}

// CodecParams names a codec and its clock rate/format parameters. It is
// compared by value and otherwise treated as opaque by the bridge.
type CodecParams struct {
	Name      string
	ClockRate uint32
	Params    map[string]string
}

// PayloadInfo describes the RTP payload type a codec is mapped to.
type PayloadInfo struct {
	PayloadType uint8
	Name        string
}

// CodecsConfig carries up to six independently-enabled codec selections:
// local capture/render params and local/remote RTP payload mappings for
// audio and video.
type CodecsConfig struct {
	UseLocalAudioParams bool
	LocalAudioParams    CodecParams

	UseLocalVideoParams bool
	LocalVideoParams    CodecParams

	UseLocalAudioPayloadInfo bool
	LocalAudioPayloadInfo    PayloadInfo

	UseLocalVideoPayloadInfo bool
	LocalVideoPayloadInfo    PayloadInfo

	UseRemoteAudioPayloadInfo bool
	RemoteAudioPayloadInfo    PayloadInfo

	UseRemoteVideoPayloadInfo bool
	RemoteVideoPayloadInfo    PayloadInfo
}

// Merge applies update's flagged fields onto c, leaving every field whose
// UseX flag is false untouched. This is the conditional-copy rule codecs
// application must follow: an UpdateCodecs/Start carrying only
// UseLocalAudioParams must not disturb a previously-applied
// LocalVideoParams or either payload-info pair.
func (c CodecsConfig) Merge(update CodecsConfig) CodecsConfig {
	if update.UseLocalAudioParams {
		c.UseLocalAudioParams = true
		c.LocalAudioParams = update.LocalAudioParams
	}
	if update.UseLocalVideoParams {
		c.UseLocalVideoParams = true
		c.LocalVideoParams = update.LocalVideoParams
	}
	if update.UseLocalAudioPayloadInfo {
		c.UseLocalAudioPayloadInfo = true
		c.LocalAudioPayloadInfo = update.LocalAudioPayloadInfo
	}
	if update.UseLocalVideoPayloadInfo {
		c.UseLocalVideoPayloadInfo = true
		c.LocalVideoPayloadInfo = update.LocalVideoPayloadInfo
	}
	if update.UseRemoteAudioPayloadInfo {
		c.UseRemoteAudioPayloadInfo = true
		c.RemoteAudioPayloadInfo = update.RemoteAudioPayloadInfo
	}
	if update.UseRemoteVideoPayloadInfo {
		c.UseRemoteVideoPayloadInfo = true
		c.RemoteVideoPayloadInfo = update.RemoteVideoPayloadInfo
	}
	return c
}

// TransmitConfig selects which local track indices, if any, should be sent
// to the remote peer.
type TransmitConfig struct {
	UseAudio   bool
	AudioIndex int
	UseVideo   bool
	VideoIndex int
}

// RecordConfig enables or disables local recording of the session.
type RecordConfig struct {
	Enabled bool
}

// WorkerStatus is the most recent snapshot of worker state, emitted in
// response to Start/Stop/UpdateCodecs (UpdateDevices emits none), on worker
// errors, and when the worker reports Finished.
type WorkerStatus struct {
	LocalAudioParams  CodecParams
	LocalVideoParams  CodecParams
	LocalPayloadInfo  PayloadInfo
	RemotePayloadInfo PayloadInfo

	CanTransmitAudio bool
	CanTransmitVideo bool

	Stopped   bool
	Finished  bool
	Error     bool
	ErrorCode int
}

// FrameKind distinguishes a worker's live preview output from its final
// encoded/transmitted output.
type FrameKind int

const (
	FrameKindPreview FrameKind = iota
	FrameKindOutput
)

func (k FrameKind) String() string {
	switch k {
	case FrameKindPreview:
		return "preview"
	case FrameKindOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Frame is an opaque encoded-sample envelope (a JPEG/PNG preview still, or
// an encoded output frame) paired with which stream it belongs to.
type Frame struct {
	Kind  FrameKind
	Image []byte
}

// AudioIntensity is a single audio level sample, 0-100.
type AudioIntensity struct {
	Value int
}
