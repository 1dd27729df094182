// Package control implements the application core: it owns exactly one
// active audio engine, tracks exactly one active sink within it, mediates
// all engine and channel switches, and republishes a unified change stream
// to presentation collaborators.
package control

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/qtilities/voltrayke/internal/audio"
)

// Config is the orchestrator-relevant slice of the application settings.
// It is passed in at construction and replaced wholesale via ApplyConfig;
// the load/save lifecycle belongs to the config collaborator.
type Config struct {
	Normalized        bool
	IgnoreMaxVolume   bool
	SingleStep        int
	PageStep          int
	MuteOnMiddleClick bool
}

// Recorder receives every published device change, e.g. for history
// persistence. Optional.
type Recorder interface {
	RecordVolume(engine, sink string, volume int)
	RecordMute(engine, sink string, mute bool)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPresenter registers a presentation collaborator.
func WithPresenter(p Presenter) Option {
	return func(o *Orchestrator) { o.presenters = append(o.presenters, p) }
}

// WithRecorder registers a change recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// State is a point-in-time snapshot of the orchestrator for status queries.
type State struct {
	EngineActive bool
	EngineID     audio.EngineID
	ChannelIndex int
	Description  string
	Volume       int
	Mute         bool
	Icon         audio.IconState
	Sinks        []string
}

// Orchestrator mediates between the engine factory, the single live engine,
// the active channel and the presentation collaborators.
//
// All mutations run on one control goroutine (see Run). Request* methods may
// be called from any goroutine at any time: tasks are always enqueued, and
// before Run starts the posting goroutine drains the queue itself under a
// lock, one poster at a time. Startup requests and early backend callbacks
// therefore never touch orchestrator state concurrently.
type Orchestrator struct {
	factory    audio.EngineFactory
	cfg        Config
	presenters []Presenter
	recorder   Recorder

	engine     audio.Engine
	channel    audio.Device
	channelIdx int
	engineSub  audio.Subscription
	volSub     audio.Subscription
	muteSub    audio.Subscription

	// Generation counters invalidate callbacks from torn-down engines and
	// devices: a posted task captured under an older generation is a no-op.
	engineGen  uint64
	channelGen uint64

	tasks   chan func()
	quit    chan struct{}
	started atomic.Bool

	// inline is held by whichever goroutine is executing tasks: a poster
	// draining before Run, or Run itself for the rest of its life.
	inline sync.Mutex
}

// New creates an orchestrator in the Idle state (no engine, no channel).
func New(factory audio.EngineFactory, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		factory:    factory,
		cfg:        cfg,
		channelIdx: -1,
		tasks:      make(chan func(), 128),
		quit:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the control loop until the context is cancelled, then tears
// down the active channel and engine in subscription-safe order.
func (o *Orchestrator) Run(ctx context.Context) {
	slog.Debug("orchestrator control loop starting")
	o.started.Store(true)

	// Wait out any poster still draining, then own the state until the
	// loop exits.
	o.inline.Lock()
	defer o.inline.Unlock()

	for {
		select {
		case fn := <-o.tasks:
			fn()
		case <-ctx.Done():
			o.teardown()
			close(o.quit)
			slog.Debug("orchestrator control loop stopped")
			return
		}
	}
}

// post serializes fn onto the control goroutine. Before Run starts the
// posting goroutine drains the queue itself; TryLock keeps concurrent
// posters out and lets a task posted from within a running task (a device
// callback firing during a channel switch) queue up without deadlocking.
func (o *Orchestrator) post(fn func()) {
	select {
	case o.tasks <- fn:
	case <-o.quit:
		return
	}
	if o.started.Load() {
		return
	}
	if !o.inline.TryLock() {
		return
	}
	defer o.inline.Unlock()
	for {
		if o.started.Load() {
			return
		}
		select {
		case queued := <-o.tasks:
			queued()
		default:
			return
		}
	}
}

// RequestSwitchEngine switches the active backend. Switching to the current
// engine id is a no-op.
func (o *Orchestrator) RequestSwitchEngine(id audio.EngineID) {
	o.post(func() { o.switchEngine(id) })
}

// RequestSwitchChannel selects the active sink by index. Negative indices
// select the first sink; indices past the end clamp to the last sink.
func (o *Orchestrator) RequestSwitchChannel(idx int) {
	o.post(func() { o.selectChannel(idx) })
}

// RequestSetVolume sets the active channel's volume. Without an active
// channel this is a documented no-op.
func (o *Orchestrator) RequestSetVolume(volume int) {
	o.post(func() { o.setVolume(volume) })
}

// RequestSetMute sets the active channel's mute state.
func (o *Orchestrator) RequestSetMute(mute bool) {
	o.post(func() { o.setMute(mute) })
}

// RequestToggleMute inverts the active channel's mute state.
func (o *Orchestrator) RequestToggleMute() {
	o.post(func() { o.toggleMute() })
}

// RequestVolumeUp raises the volume by the configured single step, or the
// page step when page is true.
func (o *Orchestrator) RequestVolumeUp(page bool) {
	o.post(func() { o.stepVolume(o.step(page)) })
}

// RequestVolumeDown lowers the volume by the configured single step, or the
// page step when page is true.
func (o *Orchestrator) RequestVolumeDown(page bool) {
	o.post(func() { o.stepVolume(-o.step(page)) })
}

// ApplyConfig replaces the configuration snapshot and re-applies the
// policies it carries to the live engine and device.
func (o *Orchestrator) ApplyConfig(cfg Config) {
	o.post(func() { o.applyConfig(cfg) })
}

// Snapshot returns the current orchestrator state, synchronized with the
// control goroutine.
func (o *Orchestrator) Snapshot() State {
	var st State
	done := make(chan struct{})
	o.post(func() {
		st = o.snapshot()
		close(done)
	})
	<-done
	return st
}

// Config returns the current configuration snapshot.
func (o *Orchestrator) Config() Config {
	var cfg Config
	done := make(chan struct{})
	o.post(func() {
		cfg = o.cfg
		close(done)
	})
	<-done
	return cfg
}

// switchEngine implements the engine switching state machine. The ordering
// is load-bearing: the channel is unsubscribed before the engine, and the
// old engine is destroyed before the new one is constructed, so exactly one
// backend connection is live at any time.
func (o *Orchestrator) switchEngine(id audio.EngineID) {
	if o.engine != nil && o.engine.ID() == id {
		slog.Debug("engine switch is a no-op", "engine", id)
		return
	}

	o.clearChannel()

	if o.engineSub != nil {
		o.engineSub.Cancel()
		o.engineSub = nil
	}
	if o.engine != nil {
		old := o.engine
		o.engine = nil
		slog.Debug("closing audio engine", "engine", old.ID())
		if err := old.Close(); err != nil {
			slog.Warn("old engine close failed", "engine", old.ID(), "error", err)
		}
	}
	o.engineGen++

	if !o.factory.IsAvailable(id) {
		slog.Warn("requested backend unavailable, staying idle", "engine", id)
		o.publishNoDevice()
		return
	}

	engine, err := o.factory.CreateEngine(id)
	if err != nil {
		slog.Error("engine construction failed, staying idle", "engine", id, "error", err)
		o.publishNoDevice()
		return
	}
	o.engine = engine
	o.applyEnginePolicy()

	gen := o.engineGen
	o.engineSub = engine.OnSinkListChanged(func() {
		o.post(func() {
			if gen != o.engineGen {
				slog.Debug("dropping stale sink-list notification", "engine", id)
				return
			}
			o.onSinkListChanged()
		})
	})

	slog.Info("audio engine switched", "engine", id, "sinks", len(engine.Sinks()))
	o.publishSinks()
}

// selectChannel selects the active sink by index and immediately
// re-publishes its state so the visible UI is never stale after a switch.
func (o *Orchestrator) selectChannel(idx int) {
	if o.engine == nil {
		slog.Debug("channel selection ignored: no engine")
		return
	}
	sinks := o.engine.Sinks()
	if len(sinks) == 0 {
		slog.Debug("channel selection ignored: engine has no sinks")
		return
	}

	if idx < 0 {
		idx = 0
	}
	if idx >= len(sinks) {
		slog.Warn("channel index out of range, clamping",
			"requested", idx, "sinks", len(sinks))
		idx = len(sinks) - 1
	}

	o.clearChannel()
	o.channel = sinks[idx]
	o.channelIdx = idx

	gen := o.channelGen
	dev := o.channel
	o.volSub = dev.OnVolumeChanged(func(volume int) {
		o.post(func() {
			if gen != o.channelGen {
				slog.Debug("dropping stale volume notification")
				return
			}
			o.publishState(volume, dev.Mute())
			o.recordVolume(volume)
		})
	})
	o.muteSub = dev.OnMuteChanged(func(mute bool) {
		o.post(func() {
			if gen != o.channelGen {
				slog.Debug("dropping stale mute notification")
				return
			}
			o.publishState(dev.Volume(), mute)
			o.recordMute(mute)
		})
	})

	slog.Info("active channel selected",
		"channel", idx, "description", dev.Description())
	o.publishState(dev.Volume(), dev.Mute())
}

// clearChannel unsubscribes from the active channel and drops the
// reference. It must run before any engine teardown so a device about to be
// destroyed cannot notify us.
func (o *Orchestrator) clearChannel() {
	if o.volSub != nil {
		o.volSub.Cancel()
		o.volSub = nil
	}
	if o.muteSub != nil {
		o.muteSub.Cancel()
		o.muteSub = nil
	}
	o.channel = nil
	o.channelIdx = -1
	o.channelGen++
}

// onSinkListChanged handles a backend topology change: the device
// collection was rebuilt, so the active channel reference is only kept if
// the same device instance is still present.
func (o *Orchestrator) onSinkListChanged() {
	o.publishSinks()

	if o.channel == nil {
		return
	}
	sinks := o.engine.Sinks()
	for i, dev := range sinks {
		if dev == o.channel {
			o.channelIdx = i
			return
		}
	}

	slog.Info("active channel disappeared from sink list")
	o.clearChannel()
	o.publishNoDevice()
}

func (o *Orchestrator) setVolume(volume int) {
	if o.channel == nil {
		slog.Debug("volume request ignored: no active channel")
		return
	}
	volume = audio.ClampVolume(volume)
	if err := o.channel.SetVolume(volume); err != nil {
		slog.Error("volume write failed", "volume", volume, "error", err)
	}
}

func (o *Orchestrator) setMute(mute bool) {
	if o.channel == nil {
		slog.Debug("mute request ignored: no active channel")
		return
	}
	if err := o.channel.SetMute(mute); err != nil {
		slog.Error("mute write failed", "mute", mute, "error", err)
	}
}

func (o *Orchestrator) toggleMute() {
	if o.channel == nil {
		slog.Debug("mute toggle ignored: no active channel")
		return
	}
	if err := o.channel.ToggleMute(); err != nil {
		slog.Error("mute toggle failed", "error", err)
	}
}

func (o *Orchestrator) stepVolume(delta int) {
	if o.channel == nil {
		slog.Debug("volume step ignored: no active channel")
		return
	}
	o.setVolume(o.channel.Volume() + delta)
}

func (o *Orchestrator) step(page bool) int {
	if page {
		return o.cfg.PageStep
	}
	return o.cfg.SingleStep
}

func (o *Orchestrator) applyConfig(cfg Config) {
	o.cfg = cfg
	o.applyEnginePolicy()

	if o.channel != nil {
		if refresher, ok := o.engine.(audio.DeviceRefresher); ok {
			if err := refresher.RefreshDevice(o.channel); err != nil {
				slog.Warn("device refresh failed", "error", err)
			}
		}
		o.publishState(o.channel.Volume(), o.channel.Mute())
	}
	o.publishSteps()
}

func (o *Orchestrator) applyEnginePolicy() {
	if o.engine == nil {
		return
	}
	o.engine.SetNormalized(o.cfg.Normalized)
	if policy, ok := o.engine.(audio.MaxVolumePolicy); ok {
		policy.SetIgnoreMaxVolume(o.cfg.IgnoreMaxVolume)
	}
}

// publishState triggers both re-publish operations: icon-state derivation
// and control-surface sync. Both fire on every change, never only one.
func (o *Orchestrator) publishState(volume int, mute bool) {
	icon := audio.DeriveIconState(volume, mute)
	for _, p := range o.presenters {
		p.UpdateVolume(volume, mute)
		p.UpdateIcon(icon)
	}
}

// publishNoDevice publishes the degraded "no device" state.
func (o *Orchestrator) publishNoDevice() {
	o.publishState(0, false)
}

func (o *Orchestrator) publishSinks() {
	var descriptions []string
	if o.engine != nil {
		for _, dev := range o.engine.Sinks() {
			descriptions = append(descriptions, dev.Description())
		}
	}
	for _, p := range o.presenters {
		p.UpdateSinks(descriptions)
	}
}

func (o *Orchestrator) publishSteps() {
	for _, p := range o.presenters {
		p.UpdateSteps(o.cfg.SingleStep, o.cfg.PageStep)
	}
}

func (o *Orchestrator) recordVolume(volume int) {
	if o.recorder == nil || o.engine == nil || o.channel == nil {
		return
	}
	o.recorder.RecordVolume(o.engine.ID().String(), o.channel.Description(), volume)
}

func (o *Orchestrator) recordMute(mute bool) {
	if o.recorder == nil || o.engine == nil || o.channel == nil {
		return
	}
	o.recorder.RecordMute(o.engine.ID().String(), o.channel.Description(), mute)
}

func (o *Orchestrator) snapshot() State {
	st := State{ChannelIndex: o.channelIdx}
	if o.engine != nil {
		st.EngineActive = true
		st.EngineID = o.engine.ID()
		for _, dev := range o.engine.Sinks() {
			st.Sinks = append(st.Sinks, dev.Description())
		}
	}
	if o.channel != nil {
		st.Description = o.channel.Description()
		st.Volume = o.channel.Volume()
		st.Mute = o.channel.Mute()
	}
	st.Icon = audio.DeriveIconState(st.Volume, st.Mute)
	return st
}

// teardown releases the channel subscription, the engine subscription and
// the engine itself, in that order.
func (o *Orchestrator) teardown() {
	o.clearChannel()
	if o.engineSub != nil {
		o.engineSub.Cancel()
		o.engineSub = nil
	}
	if o.engine != nil {
		if err := o.engine.Close(); err != nil {
			slog.Warn("engine close failed on shutdown", "error", err)
		}
		o.engine = nil
		o.engineGen++
	}
}
