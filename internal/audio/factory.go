package audio

import (
	"fmt"
	"log/slog"
	"sort"
)

// EngineFactory creates Engine instances for the compiled-in backends.
type EngineFactory interface {
	CreateEngine(id EngineID) (Engine, error)
	SupportedEngines() []EngineID
	IsAvailable(id EngineID) bool
}

// BackendSpec describes one compiled-in backend: how to construct it and how
// to probe whether its sound system is present on this machine.
type BackendSpec struct {
	New       func() Engine
	Available func() bool
}

// StaticFactory implements EngineFactory over a fixed backend table.
// The probes are plain funcs so tests can inject their own.
type StaticFactory struct {
	backends map[EngineID]BackendSpec
}

// NewStaticFactory creates a factory serving the given backend table.
func NewStaticFactory(backends map[EngineID]BackendSpec) *StaticFactory {
	slog.Debug("creating engine factory", "backends", len(backends))
	return &StaticFactory{backends: backends}
}

// CreateEngine constructs the engine for the given backend id.
// Engine construction itself never fails; the only error here is asking for
// a backend that was not compiled in.
func (f *StaticFactory) CreateEngine(id EngineID) (Engine, error) {
	spec, ok := f.backends[id]
	if !ok {
		slog.Error("engine requested for unknown backend", "engine", id)
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, id)
	}

	slog.Debug("creating audio engine", "engine", id)
	return spec.New(), nil
}

// SupportedEngines returns the compiled-in backend ids in stable order.
func (f *StaticFactory) SupportedEngines() []EngineID {
	ids := make([]EngineID, 0, len(f.backends))
	for id := range f.backends {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsAvailable reports whether the backend is compiled in and its sound
// system looks reachable. Reachability is a cheap probe: a backend that
// passes it can still come up with zero sinks.
func (f *StaticFactory) IsAvailable(id EngineID) bool {
	spec, ok := f.backends[id]
	if !ok {
		return false
	}
	if spec.Available == nil {
		return true
	}
	available := spec.Available()
	slog.Debug("probed backend availability", "engine", id, "available", available)
	return available
}
