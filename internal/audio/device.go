package audio

// Volume bounds of the normalized percentage range shared by all backends.
// Backends translate their native ranges (e.g. 0-65536) to this range.
const (
	MinVolume = 0
	MaxVolume = 100
)

// Device represents one controllable output sink owned by an Engine.
//
// Every successful SetVolume/SetMute/ToggleMute - whether invoked locally or
// observed from the backend (another application changed the system volume) -
// emits exactly one notification with the new value to all current
// subscribers. A failed backend write applies nothing and notifies nobody.
//
// Devices never outlive their owning Engine: when the engine is closed or
// rebuilds its sink collection, old Device instances become invalid and must
// be dropped by all holders.
type Device interface {
	// Volume returns the current volume as a percentage in [0, 100].
	Volume() int

	// SetVolume clamps the value to [0, 100] and writes it to the backend.
	SetVolume(volume int) error

	// Mute returns the current mute state.
	Mute() bool

	// SetMute writes the mute state to the backend.
	SetMute(mute bool) error

	// ToggleMute inverts the current mute state. The inversion is atomic
	// with respect to concurrent backend-originated updates.
	ToggleMute() error

	// Description returns the sink's display string.
	Description() string

	// OnVolumeChanged registers a volume listener. Listeners run in
	// registration order with the new percentage value.
	OnVolumeChanged(fn func(volume int)) Subscription

	// OnMuteChanged registers a mute listener.
	OnMuteChanged(fn func(mute bool)) Subscription
}

// ClampVolume bounds a percentage to [MinVolume, MaxVolume].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// DeviceNotifier implements the observer half of the Device contract.
// Backend devices embed it and call NotifyVolume/NotifyMute after every
// successful state change.
type DeviceNotifier struct {
	volume signal[int]
	mute   signal[bool]
}

// OnVolumeChanged registers a volume listener.
func (n *DeviceNotifier) OnVolumeChanged(fn func(volume int)) Subscription {
	return n.volume.subscribe(fn)
}

// OnMuteChanged registers a mute listener.
func (n *DeviceNotifier) OnMuteChanged(fn func(mute bool)) Subscription {
	return n.mute.subscribe(fn)
}

// NotifyVolume delivers a volume change to all current subscribers.
func (n *DeviceNotifier) NotifyVolume(volume int) {
	n.volume.emit(volume)
}

// NotifyMute delivers a mute change to all current subscribers.
func (n *DeviceNotifier) NotifyMute(mute bool) {
	n.mute.emit(mute)
}
