package audio

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors shared by engine implementations and the factory.
var (
	ErrUnknownEngine   = errors.New("unknown audio engine")
	ErrNoDevice        = errors.New("no audio device")
	ErrMuteUnsupported = errors.New("device has no mute switch")
	ErrBackendWrite    = errors.New("backend write failed")
)

// EngineID identifies one of the compiled-in sound-server backends.
type EngineID int

const (
	Alsa EngineID = iota
	PulseAudio
)

// String returns the canonical lower-case backend name.
func (id EngineID) String() string {
	switch id {
	case Alsa:
		return "alsa"
	case PulseAudio:
		return "pulseaudio"
	default:
		return fmt.Sprintf("engine(%d)", int(id))
	}
}

// ParseEngineID resolves a backend name or numeric id string.
func ParseEngineID(s string) (EngineID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alsa", "0":
		return Alsa, nil
	case "pulseaudio", "pulse", "1":
		return PulseAudio, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEngine, s)
	}
}

// Engine represents one backend connection and owns the enumerated sinks.
//
// Construction never fails: when the backend cannot be reached the engine
// still exists and reports an empty sink collection. The absence of devices
// is the error signal.
//
// The sink collection is rebuilt, never mutated in place, whenever the
// backend reports a topology change; the sink-list notification tells
// holders to drop any Device references they cached.
type Engine interface {
	// ID returns the backend identifier.
	ID() EngineID

	// Sinks returns the current ordered device collection. Callers must
	// not cache indices or Device references across a sink-list change.
	Sinks() []Device

	// SetNormalized selects the volume scaling policy applied by all
	// current and future owned devices when translating to and from the
	// backend-native range.
	SetNormalized(normalized bool)

	// OnSinkListChanged registers a topology listener.
	OnSinkListChanged(fn func()) Subscription

	// Close releases the backend connection and all owned devices.
	Close() error
}

// DeviceRefresher is an optional engine capability: hardware-mixer backends
// that cache device state expose it so a configuration change can force an
// immediate re-read of one device.
type DeviceRefresher interface {
	RefreshDevice(dev Device) error
}

// MaxVolumePolicy is an optional engine capability: backends that support
// values above the nominal maximum expose it to permit or forbid them.
type MaxVolumePolicy interface {
	SetIgnoreMaxVolume(ignore bool)
}

// SinkListNotifier implements the topology-notification half of the Engine
// contract for embedding by backend engines.
type SinkListNotifier struct {
	sinks signal[struct{}]
}

// OnSinkListChanged registers a topology listener.
func (n *SinkListNotifier) OnSinkListChanged(fn func()) Subscription {
	return n.sinks.subscribe(func(struct{}) { fn() })
}

// NotifySinkList delivers a topology change to all current subscribers.
func (n *SinkListNotifier) NotifySinkList() {
	n.sinks.emit(struct{}{})
}
