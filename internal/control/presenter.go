package control

import (
	"log/slog"

	"github.com/qtilities/voltrayke/internal/audio"
)

// Presenter is the surface the orchestrator publishes to. Implementations
// are presentation collaborators (tray icon, popup slider, preference
// dialog); the core only ever talks to this interface.
//
// All methods are invoked from the orchestrator's control goroutine and must
// not block.
type Presenter interface {
	// UpdateVolume pushes the numeric volume and mute flag so the control
	// surface reflects external changes without the user having touched it.
	UpdateVolume(volume int, mute bool)

	// UpdateIcon pushes the derived discrete icon state.
	UpdateIcon(state audio.IconState)

	// UpdateSinks pushes the display strings of the current sink list.
	UpdateSinks(descriptions []string)

	// UpdateSteps pushes the configured slider step sizes.
	UpdateSteps(single, page int)
}

// SlogPresenter is the presenter used by the headless daemon: it mirrors
// every published change into the structured log.
type SlogPresenter struct {
	logger *slog.Logger
}

// NewSlogPresenter creates a presenter writing to the given logger,
// or slog.Default() when nil.
func NewSlogPresenter(logger *slog.Logger) *SlogPresenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogPresenter{logger: logger}
}

func (p *SlogPresenter) UpdateVolume(volume int, mute bool) {
	p.logger.Info("volume changed", "volume", volume, "mute", mute)
}

func (p *SlogPresenter) UpdateIcon(state audio.IconState) {
	p.logger.Debug("icon changed", "icon", state.String())
}

func (p *SlogPresenter) UpdateSinks(descriptions []string) {
	p.logger.Info("sink list changed", "sinks", descriptions)
}

func (p *SlogPresenter) UpdateSteps(single, page int) {
	p.logger.Debug("volume steps changed", "single_step", single, "page_step", page)
}
