//go:build linux

package ime

import (
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlatform(t *testing.T) (*LinuxPlatform, *[][]string) {
	t.Helper()
	p := NewLinuxPlatform(PlatformConfig{
		ComponentDir: filepath.Join(t.TempDir(), "component"),
		ExecPath:     "/usr/libexec/kanaime-ibus",
	})
	var calls [][]string
	p.run = func(name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		if len(args) == 1 && args[0] == "engine" {
			return []byte("kanaime\n"), nil
		}
		return nil, nil
	}
	return p, &calls
}

func TestLinuxPlatformDefaults(t *testing.T) {
	p := NewLinuxPlatform(PlatformConfig{ComponentDir: t.TempDir()})
	assert.Equal(t, "linux", p.Name())
	assert.Equal(t, "kanaime", p.config.EngineName)
	assert.Equal(t, "org.freedesktop.IBus.Kanaime", p.config.BusName)
	assert.Equal(t, "ja", p.config.Language)
}

func TestLinuxPlatformInstall(t *testing.T) {
	p, calls := newTestPlatform(t)

	assert.False(t, p.IsInstalled())
	require.NoError(t, p.Install())
	assert.True(t, p.IsInstalled())
	assert.Equal(t, []string{"ibus", "restart"}, (*calls)[0])

	data, err := os.ReadFile(p.ComponentPath())
	require.NoError(t, err)

	var c ibusComponent
	require.NoError(t, xml.Unmarshal(data, &c))
	assert.Equal(t, "org.freedesktop.IBus.Kanaime", c.Name)
	assert.Equal(t, "/usr/libexec/kanaime-ibus -ibus", c.Exec)
	require.Len(t, c.Engines, 1)
	assert.Equal(t, "kanaime", c.Engines[0].Name)
	assert.Equal(t, "us", c.Engines[0].Layout)
	assert.Equal(t, "あ", c.Engines[0].Symbol)
}

func TestLinuxPlatformUninstall(t *testing.T) {
	p, _ := newTestPlatform(t)

	require.NoError(t, p.Install())
	require.NoError(t, p.Uninstall())
	assert.False(t, p.IsInstalled())

	require.NoError(t, p.Uninstall(), "uninstalling twice is not an error")
}

func TestLinuxPlatformActive(t *testing.T) {
	p, calls := newTestPlatform(t)

	assert.True(t, p.IsActive())
	require.NoError(t, p.Activate())
	assert.Equal(t, []string{"ibus", "engine", "kanaime"}, (*calls)[len(*calls)-1])

	p.run = func(string, ...string) ([]byte, error) { return nil, errors.New("no ibus") }
	assert.False(t, p.IsActive())
	assert.Error(t, p.Activate())
}

func TestNewPlatform(t *testing.T) {
	p := NewPlatform(DefaultPlatformConfig())
	assert.Equal(t, "linux", p.Name())
}
