// Package pulse adapts the PulseAudio sound server to the audio engine
// contract over its D-Bus interface. Change notifications are pushed by the
// server; the engine only polls at enumeration time.
package pulse

import (
	"log/slog"
	"sync"

	"github.com/godbus/dbus"

	"github.com/qtilities/voltrayke/internal/audio"
)

// Engine represents one PulseAudio connection and owns the enumerated
// sinks.
//
// Construction never fails: when the server (or its D-Bus module) is
// unreachable the engine comes up with an empty sink collection.
type Engine struct {
	audio.SinkListNotifier
	conn conn

	mu        sync.Mutex
	devices   []*Device
	byPath    map[dbus.ObjectPath]*Device
	ignoreMax bool

	closeOnce sync.Once
}

// NewEngine connects to the PulseAudio server and enumerates its sinks.
func NewEngine() *Engine {
	c, err := newDBusConn()
	if err != nil {
		slog.Warn("pulseaudio unreachable, engine starts with no sinks", "error", err)
		return &Engine{byPath: map[dbus.ObjectPath]*Device{}}
	}
	return newEngineWithConn(c)
}

func newEngineWithConn(c conn) *Engine {
	e := &Engine{
		conn:   c,
		byPath: map[dbus.ObjectPath]*Device{},
	}
	e.enumerate()
	c.register(e)
	go c.listen()

	slog.Info("pulseaudio engine initialized", "sinks", len(e.Sinks()))
	return e
}

// ID returns the PulseAudio backend identifier.
func (e *Engine) ID() audio.EngineID { return audio.PulseAudio }

// Sinks returns the current device collection.
func (e *Engine) Sinks() []audio.Device {
	e.mu.Lock()
	defer e.mu.Unlock()

	sinks := make([]audio.Device, len(e.devices))
	for i, d := range e.devices {
		sinks[i] = d
	}
	return sinks
}

// SetNormalized is accepted for contract symmetry. PulseAudio volumes are
// already linear fractions of the nominal maximum, so the percentage
// mapping is the same under either policy.
func (e *Engine) SetNormalized(normalized bool) {
	slog.Debug("pulseaudio normalization policy", "normalized", normalized)
}

// SetIgnoreMaxVolume controls whether native volumes boosted above the
// nominal maximum by other clients are preserved in the cache or clamped
// back to the nominal maximum.
func (e *Engine) SetIgnoreMaxVolume(ignore bool) {
	e.mu.Lock()
	e.ignoreMax = ignore
	e.mu.Unlock()
}

// Close stops the server-event loop and drops all owned devices.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if e.conn != nil {
			e.conn.stopListening()
		}
		e.mu.Lock()
		e.devices = nil
		e.byPath = map[dbus.ObjectPath]*Device{}
		e.mu.Unlock()
		slog.Debug("pulseaudio engine closed")
	})
	return nil
}

func (e *Engine) set(path dbus.ObjectPath, name string, value interface{}) error {
	if e.conn == nil {
		return audio.ErrNoDevice
	}
	return e.conn.setDeviceProp(path, name, value)
}

// clampRaw bounds a native volume per the max-volume policy.
func (e *Engine) clampRaw(raw uint32) uint32 {
	e.mu.Lock()
	ignore := e.ignoreMax
	e.mu.Unlock()

	if !ignore && raw > volumeNorm {
		return volumeNorm
	}
	return raw
}

// enumerate rebuilds the device collection from the server's sink list.
// Old Device instances are dropped, never reused.
func (e *Engine) enumerate() {
	if e.conn == nil {
		return
	}

	paths, err := e.conn.sinkPaths()
	if err != nil {
		slog.Warn("pulseaudio sink enumeration failed", "error", err)
		paths = nil
	}

	devices := make([]*Device, 0, len(paths))
	byPath := make(map[dbus.ObjectPath]*Device, len(paths))
	for _, path := range paths {
		name, err := e.conn.deviceString(path, "Name")
		if err != nil {
			slog.Warn("sink name read failed", "path", path, "error", err)
			name = string(path)
		}
		values, err := e.conn.deviceVolume(path)
		if err != nil {
			slog.Warn("sink volume read failed", "path", path, "error", err)
		}
		mute, err := e.conn.deviceBool(path, "Mute")
		if err != nil {
			slog.Warn("sink mute read failed", "path", path, "error", err)
		}

		dev := newDevice(e, path, name, values, mute)
		devices = append(devices, dev)
		byPath[path] = dev
	}

	e.mu.Lock()
	e.devices = devices
	e.byPath = byPath
	e.mu.Unlock()
}

// sinkAdded and sinkRemoved handle server topology pushes.
func (e *Engine) sinkAdded(path dbus.ObjectPath) {
	slog.Debug("pulseaudio sink added", "path", path)
	e.enumerate()
	e.NotifySinkList()
}

func (e *Engine) sinkRemoved(path dbus.ObjectPath) {
	slog.Debug("pulseaudio sink removed", "path", path)
	e.enumerate()
	e.NotifySinkList()
}

func (e *Engine) volumeUpdated(path dbus.ObjectPath, values []uint32) {
	e.mu.Lock()
	dev := e.byPath[path]
	e.mu.Unlock()

	if dev == nil {
		// Event for a sink we do not own (yet); the topology push will
		// bring it in.
		return
	}
	dev.updateVolume(values)
}

func (e *Engine) muteUpdated(path dbus.ObjectPath, mute bool) {
	e.mu.Lock()
	dev := e.byPath[path]
	e.mu.Unlock()

	if dev == nil {
		return
	}
	dev.updateMute(mute)
}
