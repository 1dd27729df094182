package autostart

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() (*Manager, afero.Fs) {
	fs := afero.NewMemMapFs()
	return NewManagerWithFs(fs, "/home/user/.config/autostart", "/usr/bin/voltrayke"), fs
}

func TestEnableWritesDesktopEntry(t *testing.T) {
	m, fs := newTestManager()

	require.NoError(t, m.Enable())
	assert.True(t, m.IsEnabled())

	data, err := afero.ReadFile(fs, "/home/user/.config/autostart/voltrayke.desktop")
	require.NoError(t, err)

	content := string(data)
	assert.True(t, strings.HasPrefix(content, "[Desktop Entry]\n"))
	assert.Contains(t, content, "Exec=/usr/bin/voltrayke\n")
	assert.Contains(t, content, "Name=VolTrayke\n")
}

func TestEnableIsIdempotent(t *testing.T) {
	m, _ := newTestManager()

	require.NoError(t, m.Enable())
	require.NoError(t, m.Enable())
	assert.True(t, m.IsEnabled())
}

func TestDisableRemovesEntry(t *testing.T) {
	m, _ := newTestManager()

	require.NoError(t, m.Enable())
	require.NoError(t, m.Disable())
	assert.False(t, m.IsEnabled())
}

func TestDisableWithoutEntryIsNoError(t *testing.T) {
	m, _ := newTestManager()

	require.NoError(t, m.Disable())
	assert.False(t, m.IsEnabled())
}

func TestSync(t *testing.T) {
	m, _ := newTestManager()

	require.NoError(t, m.Sync(true))
	assert.True(t, m.IsEnabled())

	require.NoError(t, m.Sync(false))
	assert.False(t, m.IsEnabled())
}
