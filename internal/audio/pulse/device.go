package pulse

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus"

	"github.com/qtilities/voltrayke/internal/audio"
)

// volumeNorm is the server's nominal 100% volume (PA_VOLUME_NORM on the
// D-Bus interface).
const volumeNorm = 65536

// Device is one PulseAudio sink.
//
// Redundant-set policy: notifications are server-driven. A local write does
// not notify directly; the server's volume/mute update signal is the single
// notification source, so every observed event - local or external - flows
// through the same path exactly once.
type Device struct {
	audio.DeviceNotifier
	engine *Engine
	path   dbus.ObjectPath
	name   string

	mu       sync.Mutex
	raw      uint32 // channel-averaged native volume
	channels int
	mute     bool
}

func newDevice(engine *Engine, path dbus.ObjectPath, name string, values []uint32, mute bool) *Device {
	d := &Device{
		engine:   engine,
		path:     path,
		name:     name,
		channels: len(values),
		mute:     mute,
	}
	if d.channels == 0 {
		d.channels = 1
	}
	d.raw = engine.clampRaw(averageRaw(values))
	return d
}

// Volume returns the normalized percentage for the cached native volume.
func (d *Device) Volume() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return percentFromRaw(d.raw)
}

// SetVolume writes a flat per-channel volume to the server. The cache and
// the notification follow from the server's update signal.
func (d *Device) SetVolume(volume int) error {
	volume = audio.ClampVolume(volume)
	raw := rawFromPercent(volume)

	d.mu.Lock()
	channels := d.channels
	d.mu.Unlock()

	values := make([]uint32, channels)
	for i := range values {
		values[i] = raw
	}
	if err := d.engine.set(d.path, "Volume", values); err != nil {
		return fmt.Errorf("%w: %v", audio.ErrBackendWrite, err)
	}
	return nil
}

// Mute returns the cached mute state.
func (d *Device) Mute() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mute
}

// SetMute writes the mute flag to the server.
func (d *Device) SetMute(mute bool) error {
	if err := d.engine.set(d.path, "Mute", mute); err != nil {
		return fmt.Errorf("%w: %v", audio.ErrBackendWrite, err)
	}
	return nil
}

// ToggleMute inverts the cached mute state. The cache is kept current by
// server pushes and all local mutations run on one control goroutine, so
// the read-invert-write cannot interleave with another local toggle.
func (d *Device) ToggleMute() error {
	return d.SetMute(!d.Mute())
}

// Description returns the sink name reported by the server.
func (d *Device) Description() string {
	return d.name
}

// updateVolume applies a server-pushed volume and notifies. Every server
// event notifies; the server coalesces redundant updates itself.
func (d *Device) updateVolume(values []uint32) {
	d.mu.Lock()
	if len(values) > 0 {
		d.channels = len(values)
	}
	d.raw = d.engine.clampRaw(averageRaw(values))
	percent := percentFromRaw(d.raw)
	d.mu.Unlock()

	d.NotifyVolume(percent)
}

// updateMute applies a server-pushed mute state and notifies.
func (d *Device) updateMute(mute bool) {
	d.mu.Lock()
	d.mute = mute
	d.mu.Unlock()

	d.NotifyMute(mute)
}

// averageRaw flattens a per-channel volume list to one native value.
func averageRaw(values []uint32) uint32 {
	if len(values) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range values {
		sum += uint64(v)
	}
	return uint32(sum / uint64(len(values)))
}

// percentFromRaw maps a native volume to the normalized 0-100 range.
func percentFromRaw(raw uint32) int {
	percent := int((uint64(raw)*100 + volumeNorm/2) / volumeNorm)
	return audio.ClampVolume(percent)
}

// rawFromPercent maps a normalized percentage to the native range.
func rawFromPercent(percent int) uint32 {
	return uint32(uint64(audio.ClampVolume(percent)) * volumeNorm / 100)
}
