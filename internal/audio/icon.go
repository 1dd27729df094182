package audio

// IconState is the discrete visual state derived from a (volume, mute) pair.
// Presentation collaborators map it to a themed icon name.
type IconState int

const (
	IconMuted IconState = iota
	IconLow
	IconMedium
	IconHigh
)

// String returns the freedesktop icon-theme name for the state.
func (s IconState) String() string {
	switch s {
	case IconMuted:
		return "audio-volume-muted"
	case IconLow:
		return "audio-volume-low"
	case IconMedium:
		return "audio-volume-medium"
	case IconHigh:
		return "audio-volume-high"
	default:
		return "audio-volume-muted"
	}
}

// DeriveIconState maps a volume percentage and mute flag to one of the four
// discrete states: muted when volume <= 0 or muted, low for 1-33, medium for
// 34-66, high for 67-100.
func DeriveIconState(volume int, mute bool) IconState {
	switch {
	case volume <= 0 || mute:
		return IconMuted
	case volume <= 33:
		return IconLow
	case volume <= 66:
		return IconMedium
	default:
		return IconHigh
	}
}
