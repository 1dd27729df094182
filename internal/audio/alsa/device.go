package alsa

import (
	"fmt"
	"sync"

	"github.com/qtilities/voltrayke/internal/audio"
)

// Device is one ALSA simple mixer control with playback volume.
//
// Redundant-set policy: ALSA suppresses no-ops. The poll loop is diff-based,
// so a set that does not change the backend state emits no notification.
type Device struct {
	audio.DeviceNotifier
	engine    *Engine
	name      string
	index     int
	hasSwitch bool

	mu     sync.Mutex
	volume int
	mute   bool
}

func newDevice(engine *Engine, c mixerControl) *Device {
	return &Device{
		engine:    engine,
		name:      c.name,
		index:     c.index,
		hasSwitch: c.hasSwitch,
		volume:    audio.ClampVolume(c.volume),
		mute:      c.mute,
	}
}

func (d *Device) selector() string {
	return fmt.Sprintf("%s,%d", d.name, d.index)
}

// Volume returns the cached volume percentage.
func (d *Device) Volume() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume
}

// SetVolume writes the clamped percentage through amixer and applies the
// state amixer reports back.
func (d *Device) SetVolume(volume int) error {
	volume = audio.ClampVolume(volume)
	out, err := d.engine.run("set", d.selector(), fmt.Sprintf("%d%%", volume))
	if err != nil {
		return fmt.Errorf("%w: %v", audio.ErrBackendWrite, err)
	}
	d.applyOutput(out)
	return nil
}

// Mute returns the cached mute state.
func (d *Device) Mute() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mute
}

// SetMute writes the mute switch through amixer.
func (d *Device) SetMute(mute bool) error {
	if !d.hasSwitch {
		return audio.ErrMuteUnsupported
	}
	verb := "unmute"
	if mute {
		verb = "mute"
	}
	out, err := d.engine.run("set", d.selector(), verb)
	if err != nil {
		return fmt.Errorf("%w: %v", audio.ErrBackendWrite, err)
	}
	d.applyOutput(out)
	return nil
}

// ToggleMute flips the mute switch in a single amixer invocation, so the
// inversion cannot race a concurrent backend-originated change.
func (d *Device) ToggleMute() error {
	if !d.hasSwitch {
		return audio.ErrMuteUnsupported
	}
	out, err := d.engine.run("set", d.selector(), "toggle")
	if err != nil {
		return fmt.Errorf("%w: %v", audio.ErrBackendWrite, err)
	}
	d.applyOutput(out)
	return nil
}

// Description returns the mixer control name.
func (d *Device) Description() string {
	return d.name
}

// applyOutput parses an amixer set/get response and applies the state of
// this control.
func (d *Device) applyOutput(output string) {
	for _, c := range parseControls(output) {
		if c.name == d.name && c.index == d.index {
			d.applyState(audio.ClampVolume(c.volume), c.mute)
			return
		}
	}
}

// applyState updates the cache and notifies only on actual change.
// Notifications run outside the device lock.
func (d *Device) applyState(volume int, mute bool) {
	d.mu.Lock()
	volumeChanged := volume != d.volume
	muteChanged := mute != d.mute
	d.volume = volume
	d.mute = mute
	d.mu.Unlock()

	if volumeChanged {
		d.NotifyVolume(volume)
	}
	if muteChanged {
		d.NotifyMute(mute)
	}
}
