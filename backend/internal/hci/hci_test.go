package hci

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDevicesIn(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"hci10", "hci1", "hci0:64", "hci0", "rfkill", "hcifoo"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
	}

	devices, err := DevicesIn(dir)
	require.NoError(t, err)
	require.Equal(t, []Device{
		{ID: 0, Name: "hci0"},
		{ID: 1, Name: "hci1"},
		{ID: 10, Name: "hci10"},
	}, devices)
}

func TestDevicesInEmpty(t *testing.T) {
	devices, err := DevicesIn(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, devices)
}

func TestDevicesInMissingSubsystem(t *testing.T) {
	_, err := DevicesIn(filepath.Join(t.TempDir(), "bluetooth"))
	require.ErrorIs(t, err, ErrNoSubsystem)
}
