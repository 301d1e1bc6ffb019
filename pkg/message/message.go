// Package message defines the tagged command/event variants exchanged
// between a LocalEndpoint and a RemoteEndpoint across their mailboxes.
package message

import "fmt"

// Kind identifies which variant a Message carries.
type Kind int

const (
	KindStart Kind = iota
	KindStop
	KindUpdateDevices
	KindUpdateCodecs
	KindTransmit
	KindRecord
	KindStatus
	KindFrame
	KindAudioIntensity
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindStop:
		return "stop"
	case KindUpdateDevices:
		return "update_devices"
	case KindUpdateCodecs:
		return "update_codecs"
	case KindTransmit:
		return "transmit"
	case KindRecord:
		return "record"
	case KindStatus:
		return "status"
	case KindFrame:
		return "frame"
	case KindAudioIntensity:
		return "audio_intensity"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsCommand reports whether this Kind flows LocalEndpoint -> RemoteEndpoint.
func (k Kind) IsCommand() bool {
	switch k {
	case KindStart, KindStop, KindUpdateDevices, KindUpdateCodecs, KindTransmit, KindRecord:
		return true
	default:
		return false
	}
}

// IsEvent reports whether this Kind flows RemoteEndpoint -> LocalEndpoint.
func (k Kind) IsEvent() bool {
	switch k {
	case KindStatus, KindFrame, KindAudioIntensity:
		return true
	default:
		return false
	}
}

// FrameQueueMax bounds how many Frame messages of a given FrameKind may sit
// in a mailbox at once; Post evicts the oldest same-kind Frame past this.
const FrameQueueMax = 10

// Message is a closed tagged union: which payload fields below are
// populated is selected by Kind (Start carries both devices and codecs,
// Stop carries none, every other kind exactly one). Constructors are the
// only supported way to build one; each payload is read through the
// matching accessor.
type Message struct {
	kind     Kind
	devices  *DevicesConfig
	codecs   *CodecsConfig
	transmit *TransmitConfig
	record   *RecordConfig
	status   *WorkerStatus
	frame    *Frame
	audio    *AudioIntensity
}

// Kind returns the message's variant tag.
func (m *Message) Kind() Kind { return m.kind }

// NewStart builds a Start command carrying the devices/codecs configuration
// to apply before the worker starts.
func NewStart(devices DevicesConfig, codecs CodecsConfig) *Message {
	return &Message{kind: KindStart, devices: &devices, codecs: &codecs}
}

// NewStop builds a Stop command.
func NewStop() *Message { return &Message{kind: KindStop} }

// NewUpdateDevices builds an UpdateDevices command.
func NewUpdateDevices(cfg DevicesConfig) *Message {
	return &Message{kind: KindUpdateDevices, devices: &cfg}
}

// Devices returns the DevicesConfig payload; valid only when Kind() == KindStart or KindUpdateDevices.
func (m *Message) Devices() DevicesConfig { return *m.devices }

// NewUpdateCodecs builds an UpdateCodecs command.
func NewUpdateCodecs(cfg CodecsConfig) *Message {
	return &Message{kind: KindUpdateCodecs, codecs: &cfg}
}

// Codecs returns the CodecsConfig payload; valid only when Kind() == KindStart or KindUpdateCodecs.
func (m *Message) Codecs() CodecsConfig { return *m.codecs }

// NewTransmit builds a Transmit command.
func NewTransmit(cfg TransmitConfig) *Message {
	return &Message{kind: KindTransmit, transmit: &cfg}
}

// Transmit returns the TransmitConfig payload; valid only when Kind() == KindTransmit.
func (m *Message) Transmit() TransmitConfig { return *m.transmit }

// NewRecord builds a Record command.
func NewRecord(cfg RecordConfig) *Message {
	return &Message{kind: KindRecord, record: &cfg}
}

// Record returns the RecordConfig payload; valid only when Kind() == KindRecord.
func (m *Message) Record() RecordConfig { return *m.record }

// NewStatus builds a Status event.
func NewStatus(s WorkerStatus) *Message {
	return &Message{kind: KindStatus, status: &s}
}

// Status returns the WorkerStatus payload; valid only when Kind() == KindStatus.
func (m *Message) Status() WorkerStatus { return *m.status }

// NewFrame builds a Frame event.
func NewFrame(f Frame) *Message {
	return &Message{kind: KindFrame, frame: &f}
}

// Frame returns the Frame payload; valid only when Kind() == KindFrame.
func (m *Message) Frame() Frame { return *m.frame }

// NewAudioIntensity builds an AudioIntensity event.
func NewAudioIntensity(v int) *Message {
	a := AudioIntensity{Value: v}
	return &Message{kind: KindAudioIntensity, audio: &a}
}

// AudioIntensity returns the AudioIntensity payload; valid only when Kind() == KindAudioIntensity.
func (m *Message) AudioIntensity() AudioIntensity { return *m.audio }
