// Package alsa adapts ALSA simple mixer controls to the audio engine
// contract. The transport is the amixer command rather than cgo bindings,
// which keeps the backend cross-compilable; change detection is a bounded
// poll loop that emits only diffs.
package alsa

import (
	"log/slog"
	"sync"
	"time"

	"github.com/qtilities/voltrayke/internal/audio"
)

const (
	defaultMixerDevice  = "default"
	defaultPollInterval = 500 * time.Millisecond
	defaultRunTimeout   = 2 * time.Second
)

// Options configures an ALSA engine.
type Options struct {
	// Device is the ALSA mixer device name; "default" when empty.
	Device string

	// PollInterval bounds how stale an externally-made change can be.
	PollInterval time.Duration

	// Runner overrides the amixer transport, for tests.
	Runner Runner
}

// Engine enumerates the playback controls of one ALSA mixer device.
//
// Construction never fails: when amixer cannot be executed the engine comes
// up with an empty sink collection.
type Engine struct {
	audio.SinkListNotifier
	opts   Options
	runner Runner

	mu         sync.Mutex
	normalized bool
	devices    []*Device

	closed    chan struct{}
	closeOnce sync.Once
}

// NewEngine constructs the engine, enumerates the mixer controls and starts
// the change poller.
func NewEngine(opts Options) *Engine {
	if opts.Device == "" {
		opts.Device = defaultMixerDevice
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	runner := opts.Runner
	if runner == nil {
		runner = commandRunner{bin: "amixer", timeout: defaultRunTimeout}
	}

	e := &Engine{
		opts:   opts,
		runner: runner,
		closed: make(chan struct{}),
	}
	e.refresh()
	slog.Info("alsa engine initialized",
		"mixer_device", opts.Device, "sinks", len(e.Sinks()))

	go e.pollLoop()
	return e
}

// ID returns the ALSA backend identifier.
func (e *Engine) ID() audio.EngineID { return audio.Alsa }

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

// SetNormalized switches between raw and perceptual (amixer -M) volume
// mapping and re-reads all controls, since cached percentages change
// meaning under the new scale.
func (e *Engine) SetNormalized(normalized bool) {
	e.mu.Lock()
	changed := e.normalized != normalized
	e.normalized = normalized
	e.mu.Unlock()

	if changed {
		slog.Debug("alsa volume mapping changed", "normalized", normalized)
		e.refresh()
	}
}

// RefreshDevice re-reads one control immediately, bypassing the poll
// interval. This is the hardware-mixer update hook used after
// configuration changes.
func (e *Engine) RefreshDevice(dev audio.Device) error {
	d, ok := dev.(*Device)
	if !ok || d.engine != e {
		return audio.ErrNoDevice
	}
	out, err := e.run("get", d.selector())
	if err != nil {
		return err
	}
	d.applyOutput(out)
	return nil
}

// Close stops the poller and drops all owned devices.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.mu.Lock()
		e.devices = nil
		e.mu.Unlock()
		slog.Debug("alsa engine closed", "mixer_device", e.opts.Device)
	})
	return nil
}

// run executes one amixer invocation with the engine's device and volume
// mapping flags applied.
func (e *Engine) run(rest ...string) (string, error) {
	e.mu.Lock()
	normalized := e.normalized
	e.mu.Unlock()

	var args []string
	if normalized {
		args = append(args, "-M")
	}
	args = append(args, "-D", e.opts.Device)
	args = append(args, rest...)
	return e.runner.Run(args...)
}

func (e *Engine) pollLoop() {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.refresh()
		}
	}
}

// refresh re-reads the full mixer state. A changed control set rebuilds the
// device collection and fires the topology notification; otherwise each
// device diffs its own state and notifies listeners.
func (e *Engine) refresh() {
	select {
	case <-e.closed:
		return
	default:
	}

	out, err := e.run("scontents")
	var controls []mixerControl
	if err != nil {
		// Unreachable mixer: the empty sink list is the error signal.
		slog.Debug("amixer read failed", "error", err)
	} else {
		controls = playbackControls(parseControls(out))
	}

	e.mu.Lock()
	rebuild := len(controls) != len(e.devices)
	if !rebuild {
		for i, c := range controls {
			if e.devices[i].name != c.name || e.devices[i].index != c.index {
				rebuild = true
				break
			}
		}
	}

	if rebuild {
		devices := make([]*Device, len(controls))
		for i, c := range controls {
			devices[i] = newDevice(e, c)
		}
		e.devices = devices
		e.mu.Unlock()

		slog.Info("alsa sink list rebuilt", "sinks", len(controls))
		e.NotifySinkList()
		return
	}

	devices := make([]*Device, len(e.devices))
	copy(devices, e.devices)
	e.mu.Unlock()

	for i, c := range controls {
		devices[i].applyState(audio.ClampVolume(c.volume), c.mute)
	}
}
