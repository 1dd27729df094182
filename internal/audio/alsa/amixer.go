package alsa

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Runner executes one amixer invocation and returns its combined output.
// The command transport is behind this seam so tests can replay captured
// amixer output without a sound card.
type Runner interface {
	Run(args ...string) (string, error)
}

// commandRunner executes the real amixer binary with a bounded deadline so
// a wedged sound system cannot stall the poll loop indefinitely.
type commandRunner struct {
	bin     string
	timeout time.Duration
}

func (r commandRunner) Run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, r.bin, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("amixer %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// Available reports whether the amixer binary is present.
func Available() bool {
	_, err := exec.LookPath("amixer")
	return err == nil
}

// mixerControl is one parsed simple mixer control.
type mixerControl struct {
	name      string
	index     int
	hasVolume bool
	hasSwitch bool
	volume    int // percent
	mute      bool
	limitMin  int
	limitMax  int
}

// selector returns the control addressing string used by amixer set/get.
func (c mixerControl) selector() string {
	return fmt.Sprintf("%s,%d", c.name, c.index)
}

var (
	headerRe  = regexp.MustCompile(`^Simple mixer control '(.+)',(\d+)$`)
	percentRe = regexp.MustCompile(`\[(\d+)%\]`)
	switchRe  = regexp.MustCompile(`\[(on|off)\]`)
	limitsRe  = regexp.MustCompile(`Limits:.*?(-?\d+)\s*-\s*(-?\d+)`)
)

// parseControls parses `amixer scontents` output (also emitted by `amixer
// set` and `amixer get`) into mixer controls. The first channel line
// carrying a percentage provides the control's volume and switch state.
func parseControls(output string) []mixerControl {
	var controls []mixerControl
	var current *mixerControl

	flush := func() {
		if current != nil {
			controls = append(controls, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(output, "\n") {
		if m := headerRe.FindStringSubmatch(line); m != nil {
			flush()
			idx, _ := strconv.Atoi(m[2])
			current = &mixerControl{name: m[1], index: idx, volume: -1}
			continue
		}
		if current == nil {
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Capabilities:"):
			fields := strings.Fields(trimmed)
			for _, f := range fields[1:] {
				switch f {
				case "pvolume", "pvolume-joined":
					current.hasVolume = true
				case "pswitch", "pswitch-joined":
					current.hasSwitch = true
				}
			}
		case strings.HasPrefix(trimmed, "Limits:"):
			if m := limitsRe.FindStringSubmatch(trimmed); m != nil {
				current.limitMin, _ = strconv.Atoi(m[1])
				current.limitMax, _ = strconv.Atoi(m[2])
			}
		default:
			// Channel value line, e.g. "Front Left: Playback 45568 [70%] [on]".
			if current.volume >= 0 || !strings.Contains(trimmed, "Playback") {
				continue
			}
			if m := percentRe.FindStringSubmatch(trimmed); m != nil {
				current.volume, _ = strconv.Atoi(m[1])
				if sw := switchRe.FindStringSubmatch(trimmed); sw != nil {
					current.mute = sw[1] == "off"
				}
			}
		}
	}
	flush()

	// Controls without a value line keep volume -1; treat as 0.
	for i := range controls {
		if controls[i].volume < 0 {
			controls[i].volume = 0
		}
	}
	return controls
}

// playbackControls filters for controls that actually expose a playback
// volume; capture-only controls are not sinks.
func playbackControls(controls []mixerControl) []mixerControl {
	var out []mixerControl
	for _, c := range controls {
		if c.hasVolume {
			out = append(out, c)
		}
	}
	return out
}
