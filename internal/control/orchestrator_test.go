package control

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/qtilities/voltrayke/internal/audio"
)

// fakeDevice is an in-memory Device with ALSA-style no-op suppression:
// a redundant set emits no notification.
type fakeDevice struct {
	audio.DeviceNotifier
	desc        string
	volume      int
	mute        bool
	failWrites  bool
	volSubCount int
}

func (d *fakeDevice) Volume() int { return d.volume }

func (d *fakeDevice) SetVolume(volume int) error {
	if d.failWrites {
		return errors.New("backend write refused")
	}
	volume = audio.ClampVolume(volume)
	if volume == d.volume {
		return nil
	}
	d.volume = volume
	d.NotifyVolume(volume)
	return nil
}

func (d *fakeDevice) Mute() bool { return d.mute }

func (d *fakeDevice) SetMute(mute bool) error {
	if d.failWrites {
		return errors.New("backend write refused")
	}
	if mute == d.mute {
		return nil
	}
	d.mute = mute
	d.NotifyMute(mute)
	return nil
}

func (d *fakeDevice) ToggleMute() error { return d.SetMute(!d.mute) }

func (d *fakeDevice) Description() string { return d.desc }

func (d *fakeDevice) OnVolumeChanged(fn func(volume int)) audio.Subscription {
	d.volSubCount++
	return d.DeviceNotifier.OnVolumeChanged(fn)
}

// fakeEngine owns a mutable device collection and records applied policies.
type fakeEngine struct {
	audio.SinkListNotifier
	id         audio.EngineID
	devices    []audio.Device
	closed     bool
	normalized bool
	ignoreMax  bool
	refreshed  []audio.Device
}

func (e *fakeEngine) ID() audio.EngineID { return e.id }

func (e *fakeEngine) Sinks() []audio.Device { return e.devices }

func (e *fakeEngine) SetNormalized(normalized bool) { e.normalized = normalized }

func (e *fakeEngine) SetIgnoreMaxVolume(ignore bool) { e.ignoreMax = ignore }

func (e *fakeEngine) RefreshDevice(dev audio.Device) error {
	e.refreshed = append(e.refreshed, dev)
	return nil
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

// setSinks rebuilds the device collection and fires the topology
// notification, like a real backend would.
func (e *fakeEngine) setSinks(devices ...audio.Device) {
	e.devices = devices
	e.NotifySinkList()
}

// fakeFactory builds fresh fakeEngines and counts constructions.
type fakeFactory struct {
	available map[audio.EngineID]bool
	created   map[audio.EngineID]int
	last      map[audio.EngineID]*fakeEngine
	sinks     map[audio.EngineID][]audio.Device
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		available: map[audio.EngineID]bool{audio.Alsa: true, audio.PulseAudio: true},
		created:   map[audio.EngineID]int{},
		last:      map[audio.EngineID]*fakeEngine{},
		sinks:     map[audio.EngineID][]audio.Device{},
	}
}

func (f *fakeFactory) CreateEngine(id audio.EngineID) (audio.Engine, error) {
	f.created[id]++
	engine := &fakeEngine{id: id, devices: f.sinks[id]}
	f.last[id] = engine
	return engine, nil
}

func (f *fakeFactory) SupportedEngines() []audio.EngineID {
	return []audio.EngineID{audio.Alsa, audio.PulseAudio}
}

func (f *fakeFactory) IsAvailable(id audio.EngineID) bool { return f.available[id] }

// capturePresenter records everything published to it.
type capturePresenter struct {
	volumes []int
	mutes   []bool
	icons   []audio.IconState
	sinks   [][]string
	steps   [][2]int
}

func (p *capturePresenter) UpdateVolume(volume int, mute bool) {
	p.volumes = append(p.volumes, volume)
	p.mutes = append(p.mutes, mute)
}

func (p *capturePresenter) UpdateIcon(state audio.IconState) {
	p.icons = append(p.icons, state)
}

func (p *capturePresenter) UpdateSinks(descriptions []string) {
	p.sinks = append(p.sinks, descriptions)
}

func (p *capturePresenter) UpdateSteps(single, page int) {
	p.steps = append(p.steps, [2]int{single, page})
}

func (p *capturePresenter) lastVolume() (int, bool) {
	if len(p.volumes) == 0 {
		return 0, false
	}
	return p.volumes[len(p.volumes)-1], p.mutes[len(p.mutes)-1]
}

func (p *capturePresenter) lastIcon() audio.IconState {
	if len(p.icons) == 0 {
		return -1
	}
	return p.icons[len(p.icons)-1]
}

func testConfig() Config {
	return Config{Normalized: true, SingleStep: 1, PageStep: 10}
}

func TestSetVolumeClampsAndApplies(t *testing.T) {
	tests := []struct {
		requested int
		expected  int
	}{
		{150, 100},
		{-10, 0},
		{50, 50},
		{0, 0},
		{100, 100},
	}

	for _, tt := range tests {
		factory := newFakeFactory()
		dev := &fakeDevice{desc: "Master", volume: 40}
		factory.sinks[audio.Alsa] = []audio.Device{dev}

		o := New(factory, testConfig())
		o.RequestSwitchEngine(audio.Alsa)
		o.RequestSwitchChannel(0)
		o.RequestSetVolume(tt.requested)

		if dev.Volume() != tt.expected {
			t.Errorf("SetVolume(%d): device volume = %d, want %d",
				tt.requested, dev.Volume(), tt.expected)
		}
	}
}

func TestToggleMuteTwiceNotifiesTwice(t *testing.T) {
	factory := newFakeFactory()
	dev := &fakeDevice{desc: "Master", volume: 50}
	factory.sinks[audio.Alsa] = []audio.Device{dev}

	muteEvents := 0
	dev.OnMuteChanged(func(bool) { muteEvents++ })

	o := New(factory, testConfig())
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	o.RequestToggleMute()
	o.RequestToggleMute()

	if muteEvents != 2 {
		t.Errorf("expected exactly 2 mute notifications, got %d", muteEvents)
	}
	if dev.Mute() {
		t.Error("double toggle should return mute to its original value")
	}
}

func TestSwitchEngineIdempotent(t *testing.T) {
	factory := newFakeFactory()
	dev := &fakeDevice{desc: "Master", volume: 50}
	factory.sinks[audio.Alsa] = []audio.Device{dev}

	o := New(factory, testConfig())
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	first := factory.last[audio.Alsa]
	o.RequestSwitchEngine(audio.Alsa)

	if factory.created[audio.Alsa] != 1 {
		t.Errorf("expected 1 construction, got %d", factory.created[audio.Alsa])
	}
	if first.closed {
		t.Error("same-id switch must not destroy the live engine")
	}
	st := o.Snapshot()
	if st.ChannelIndex != 0 {
		t.Errorf("same-id switch must keep the active channel, index = %d", st.ChannelIndex)
	}
}

func TestSwitchEngineTeardownOrderAndNoLeakedSubscriptions(t *testing.T) {
	factory := newFakeFactory()
	devA := &fakeDevice{desc: "A-Master", volume: 50}
	factory.sinks[audio.Alsa] = []audio.Device{devA}
	factory.sinks[audio.PulseAudio] = []audio.Device{
		&fakeDevice{desc: "B-Sink", volume: 70},
	}

	presenter := &capturePresenter{}
	o := New(factory, testConfig(), WithPresenter(presenter))
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	engineA := factory.last[audio.Alsa]
	o.RequestSwitchEngine(audio.PulseAudio)

	if !engineA.closed {
		t.Error("old engine must be destroyed on switch")
	}

	published := len(presenter.volumes)
	// A late notification from engine A's device must never reach the
	// orchestrator after the switch.
	devA.NotifyVolume(99)
	devA.NotifyMute(true)
	engineA.NotifySinkList()

	if len(presenter.volumes) != published {
		t.Errorf("leaked subscription: %d publishes after switch",
			len(presenter.volumes)-published)
	}
}

func TestSwitchToUnavailableEngineGoesIdle(t *testing.T) {
	factory := newFakeFactory()
	factory.sinks[audio.Alsa] = []audio.Device{&fakeDevice{desc: "Master", volume: 50}}
	factory.available[audio.PulseAudio] = false

	presenter := &capturePresenter{}
	o := New(factory, testConfig(), WithPresenter(presenter))
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)
	o.RequestSwitchEngine(audio.PulseAudio)

	st := o.Snapshot()
	if st.EngineActive {
		t.Error("unavailable backend must leave the orchestrator idle")
	}
	if st.ChannelIndex != -1 {
		t.Errorf("idle state must have no channel, index = %d", st.ChannelIndex)
	}
	if vol, mute := presenter.lastVolume(); vol != 0 || mute {
		t.Errorf("expected no-device publish (0, false), got (%d, %v)", vol, mute)
	}
	if presenter.lastIcon() != audio.IconMuted {
		t.Errorf("expected muted icon in no-device state, got %v", presenter.lastIcon())
	}
}

func TestSelectChannelNegativeIndexSelectsFirst(t *testing.T) {
	factory := newFakeFactory()
	factory.sinks[audio.Alsa] = []audio.Device{
		&fakeDevice{desc: "first", volume: 10},
		&fakeDevice{desc: "second", volume: 20},
		&fakeDevice{desc: "third", volume: 30},
	}

	o := New(factory, testConfig())
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(-3)

	st := o.Snapshot()
	if st.ChannelIndex != 0 || st.Description != "first" {
		t.Errorf("negative index selected channel %d (%q), want 0 (first)",
			st.ChannelIndex, st.Description)
	}
}

func TestSelectChannelOutOfRangeClampsToLast(t *testing.T) {
	factory := newFakeFactory()
	factory.sinks[audio.Alsa] = []audio.Device{
		&fakeDevice{desc: "first", volume: 10},
		&fakeDevice{desc: "second", volume: 20},
	}

	o := New(factory, testConfig())
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(7)

	st := o.Snapshot()
	if st.ChannelIndex != 1 || st.Description != "second" {
		t.Errorf("out-of-range index selected channel %d (%q), want 1 (second)",
			st.ChannelIndex, st.Description)
	}
}

func TestSelectChannelWithoutSinksIsNoOp(t *testing.T) {
	factory := newFakeFactory()
	factory.sinks[audio.Alsa] = nil

	o := New(factory, testConfig())
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	st := o.Snapshot()
	if st.ChannelIndex != -1 {
		t.Errorf("channel must stay unselected, index = %d", st.ChannelIndex)
	}
}

func TestSelectChannelWithoutEngineIsNoOp(t *testing.T) {
	o := New(newFakeFactory(), testConfig())
	o.RequestSwitchChannel(0)

	if st := o.Snapshot(); st.ChannelIndex != -1 || st.EngineActive {
		t.Errorf("expected idle state, got %+v", st)
	}
}

func TestSelectChannelPublishesCurrentState(t *testing.T) {
	factory := newFakeFactory()
	factory.sinks[audio.Alsa] = []audio.Device{
		&fakeDevice{desc: "Master", volume: 34},
	}

	presenter := &capturePresenter{}
	o := New(factory, testConfig(), WithPresenter(presenter))
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	if vol, mute := presenter.lastVolume(); vol != 34 || mute {
		t.Errorf("expected immediate publish of (34, false), got (%d, %v)", vol, mute)
	}
	if presenter.lastIcon() != audio.IconMedium {
		t.Errorf("expected medium icon for volume 34, got %v", presenter.lastIcon())
	}
}

func TestSelectChannelReplacesPreviousSubscription(t *testing.T) {
	factory := newFakeFactory()
	first := &fakeDevice{desc: "first", volume: 10}
	second := &fakeDevice{desc: "second", volume: 20}
	factory.sinks[audio.Alsa] = []audio.Device{first, second}

	presenter := &capturePresenter{}
	o := New(factory, testConfig(), WithPresenter(presenter))
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)
	o.RequestSwitchChannel(1)

	published := len(presenter.volumes)
	first.NotifyVolume(99)
	if len(presenter.volumes) != published {
		t.Error("previous channel subscription leaked across channel switch")
	}

	second.NotifyVolume(55)
	if vol, _ := presenter.lastVolume(); vol != 55 {
		t.Errorf("active channel change not published, last volume = %d", vol)
	}
}

func TestSinkListShrinkClearsActiveChannel(t *testing.T) {
	factory := newFakeFactory()
	first := &fakeDevice{desc: "first", volume: 10}
	second := &fakeDevice{desc: "second", volume: 20}
	factory.sinks[audio.Alsa] = []audio.Device{first, second}

	presenter := &capturePresenter{}
	o := New(factory, testConfig(), WithPresenter(presenter))
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(1)

	// Topology change: device index 1 disappears.
	factory.last[audio.Alsa].setSinks(first)

	st := o.Snapshot()
	if st.ChannelIndex != -1 {
		t.Errorf("removed device still active, index = %d", st.ChannelIndex)
	}
	if vol, mute := presenter.lastVolume(); vol != 0 || mute {
		t.Errorf("expected no-device publish, got (%d, %v)", vol, mute)
	}

	// The orphaned device must not reach the orchestrator anymore.
	published := len(presenter.volumes)
	second.NotifyVolume(77)
	if len(presenter.volumes) != published {
		t.Error("removed device subscription leaked")
	}
}

func TestSinkListRebuildKeepsSurvivingChannel(t *testing.T) {
	factory := newFakeFactory()
	first := &fakeDevice{desc: "first", volume: 10}
	second := &fakeDevice{desc: "second", volume: 20}
	factory.sinks[audio.Alsa] = []audio.Device{first, second}

	o := New(factory, testConfig())
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(1)

	// second survives the rebuild at a new index.
	factory.last[audio.Alsa].setSinks(second, first)

	st := o.Snapshot()
	if st.ChannelIndex != 0 || st.Description != "second" {
		t.Errorf("surviving channel tracked as %d (%q), want 0 (second)",
			st.ChannelIndex, st.Description)
	}
}

func TestBackendOriginatedChangePropagates(t *testing.T) {
	factory := newFakeFactory()
	dev := &fakeDevice{desc: "Master", volume: 50}
	factory.sinks[audio.Alsa] = []audio.Device{dev}

	presenter := &capturePresenter{}
	o := New(factory, testConfig(), WithPresenter(presenter))
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	// Another application changed the system volume.
	dev.volume = 80
	dev.NotifyVolume(80)

	if vol, _ := presenter.lastVolume(); vol != 80 {
		t.Errorf("hardware-originated change not republished, volume = %d", vol)
	}
	if presenter.lastIcon() != audio.IconHigh {
		t.Errorf("icon not rederived, got %v", presenter.lastIcon())
	}
}

func TestFailedWriteAppliesNothing(t *testing.T) {
	factory := newFakeFactory()
	dev := &fakeDevice{desc: "Master", volume: 50, failWrites: true}
	factory.sinks[audio.Alsa] = []audio.Device{dev}

	presenter := &capturePresenter{}
	o := New(factory, testConfig(), WithPresenter(presenter))
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	published := len(presenter.volumes)
	o.RequestSetVolume(90)

	if dev.Volume() != 50 {
		t.Errorf("failed write changed device volume to %d", dev.Volume())
	}
	if len(presenter.volumes) != published {
		t.Error("failed write must not publish a change")
	}
}

func TestVolumeStepsUseConfiguredSteps(t *testing.T) {
	factory := newFakeFactory()
	dev := &fakeDevice{desc: "Master", volume: 50}
	factory.sinks[audio.Alsa] = []audio.Device{dev}

	o := New(factory, Config{SingleStep: 2, PageStep: 10})
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	o.RequestVolumeUp(false)
	if dev.Volume() != 52 {
		t.Errorf("single step up: volume = %d, want 52", dev.Volume())
	}
	o.RequestVolumeUp(true)
	if dev.Volume() != 62 {
		t.Errorf("page step up: volume = %d, want 62", dev.Volume())
	}
	o.RequestVolumeDown(true)
	o.RequestVolumeDown(false)
	if dev.Volume() != 50 {
		t.Errorf("steps down: volume = %d, want 50", dev.Volume())
	}
}

func TestApplyConfigReappliesPolicies(t *testing.T) {
	factory := newFakeFactory()
	dev := &fakeDevice{desc: "Master", volume: 50}
	factory.sinks[audio.Alsa] = []audio.Device{dev}

	presenter := &capturePresenter{}
	o := New(factory, Config{Normalized: false, SingleStep: 1, PageStep: 5},
		WithPresenter(presenter))
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	engine := factory.last[audio.Alsa]
	if engine.normalized {
		t.Fatal("engine should start un-normalized")
	}

	o.ApplyConfig(Config{
		Normalized:      true,
		IgnoreMaxVolume: true,
		SingleStep:      3,
		PageStep:        15,
	})

	if !engine.normalized {
		t.Error("ApplyConfig must re-apply the normalization policy")
	}
	if !engine.ignoreMax {
		t.Error("ApplyConfig must apply the max-volume policy capability")
	}
	if len(engine.refreshed) != 1 || engine.refreshed[0] != audio.Device(dev) {
		t.Errorf("ApplyConfig must refresh the active device once, got %d", len(engine.refreshed))
	}
	if len(presenter.steps) == 0 {
		t.Fatal("ApplyConfig must publish the new steps")
	}
	last := presenter.steps[len(presenter.steps)-1]
	if last != [2]int{3, 15} {
		t.Errorf("published steps = %v, want [3 15]", last)
	}
}

func TestStartupRequestsSerializeWithBackendCallbacks(t *testing.T) {
	factory := newFakeFactory()
	dev := &fakeDevice{desc: "Master", volume: 50}
	factory.sinks[audio.Alsa] = []audio.Device{dev}

	presenter := &capturePresenter{}
	o := New(factory, testConfig(), WithPresenter(presenter))
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	// The backend's notification goroutine is live as soon as the engine
	// exists, so device callbacks can land while startup requests are
	// still being issued. Run under -race this must stay clean.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			dev.NotifyVolume(80)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			o.RequestSwitchChannel(0)
		}
	}()
	wg.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	st := o.Snapshot()
	if st.ChannelIndex != 0 || st.Description != "Master" {
		t.Errorf("channel after concurrent startup = %d (%q), want 0 (Master)",
			st.ChannelIndex, st.Description)
	}

	cancel()
	<-done
}

func TestRequestsQueuedBeforeRunExecuteOnTheLoop(t *testing.T) {
	factory := newFakeFactory()
	dev := &fakeDevice{desc: "Master", volume: 50}
	factory.sinks[audio.Alsa] = []audio.Device{dev}

	o := New(factory, testConfig())
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	o.RequestSetVolume(70)

	st := o.Snapshot()
	if st.Volume != 70 {
		t.Errorf("volume after handover = %d, want 70", st.Volume)
	}
	if dev.Volume() != 70 {
		t.Errorf("device volume = %d, want 70", dev.Volume())
	}

	cancel()
	<-done

	// Shutdown tears the engine down.
	if !factory.last[audio.Alsa].closed {
		t.Error("engine must be closed when the loop stops")
	}
}

func TestRecorderReceivesChanges(t *testing.T) {
	factory := newFakeFactory()
	dev := &fakeDevice{desc: "Master", volume: 50}
	factory.sinks[audio.Alsa] = []audio.Device{dev}

	rec := &captureRecorder{}
	o := New(factory, testConfig(), WithRecorder(rec))
	o.RequestSwitchEngine(audio.Alsa)
	o.RequestSwitchChannel(0)

	o.RequestSetVolume(70)
	o.RequestSetMute(true)

	if len(rec.volumes) != 1 || rec.volumes[0] != 70 {
		t.Errorf("recorded volumes = %v, want [70]", rec.volumes)
	}
	if len(rec.mutes) != 1 || rec.mutes[0] != true {
		t.Errorf("recorded mutes = %v, want [true]", rec.mutes)
	}
	if rec.engine != "alsa" || rec.sink != "Master" {
		t.Errorf("recorded identity = (%q, %q), want (alsa, Master)", rec.engine, rec.sink)
	}
}

type captureRecorder struct {
	engine  string
	sink    string
	volumes []int
	mutes   []bool
}

func (r *captureRecorder) RecordVolume(engine, sink string, volume int) {
	r.engine, r.sink = engine, sink
	r.volumes = append(r.volumes, volume)
}

func (r *captureRecorder) RecordMute(engine, sink string, mute bool) {
	r.engine, r.sink = engine, sink
	r.mutes = append(r.mutes, mute)
}
