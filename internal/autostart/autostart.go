// Package autostart manages the XDG autostart desktop entry so the daemon
// can be launched with the user's session.
package autostart

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
)

const desktopFile = "voltrayke.desktop"

// Manager installs and removes the autostart entry.
type Manager struct {
	fs      afero.Fs
	dir     string
	execCmd string
}

// NewManager creates a manager over the real filesystem. The exec command
// is the path autostart will launch, normally os.Executable().
func NewManager(execCmd string) *Manager {
	return NewManagerWithFs(afero.NewOsFs(), filepath.Join(xdg.ConfigHome, "autostart"), execCmd)
}

// NewManagerWithFs creates a manager over an injected filesystem and
// autostart directory, for tests.
func NewManagerWithFs(fs afero.Fs, dir, execCmd string) *Manager {
	return &Manager{fs: fs, dir: dir, execCmd: execCmd}
}

// Path returns the desktop entry location.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, desktopFile)
}

// IsEnabled reports whether the autostart entry exists.
func (m *Manager) IsEnabled() bool {
	_, err := m.fs.Stat(m.Path())
	return err == nil
}

// Enable writes the desktop entry, creating the autostart directory as
// needed. Writing an existing entry refreshes it.
func (m *Manager) Enable() error {
	if err := m.fs.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create autostart directory: %w", err)
	}

	entry := fmt.Sprintf(`[Desktop Entry]
Type=Application
Name=VolTrayke
Comment=Volume control for the system tray
Exec=%s
Icon=audio-volume-high
Categories=AudioVideo;Audio;
Terminal=false
X-GNOME-Autostart-enabled=true
`, m.execCmd)

	if err := afero.WriteFile(m.fs, m.Path(), []byte(entry), 0o644); err != nil {
		return fmt.Errorf("failed to write autostart entry: %w", err)
	}

	slog.Debug("autostart entry installed", "path", m.Path())
	return nil
}

// Disable removes the desktop entry. A missing entry is not an error.
func (m *Manager) Disable() error {
	err := m.fs.Remove(m.Path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove autostart entry: %w", err)
	}

	slog.Debug("autostart entry removed", "path", m.Path())
	return nil
}

// Sync brings the entry in line with the desired state.
func (m *Manager) Sync(enabled bool) error {
	if enabled {
		return m.Enable()
	}
	return m.Disable()
}
