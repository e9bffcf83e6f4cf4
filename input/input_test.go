package input

import (
	"path/filepath"
	"testing"

	"github.com/kenshaw/evdev"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabledWithoutDevice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{}, zerolog.Nop(), func() {})
	require.NoError(t, err)
	assert.Nil(t, w, "no device configured means no watcher")
}

func TestNewMissingDeviceFails(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Device: filepath.Join(t.TempDir(), "event99")}, zerolog.Nop(), func() {})
	require.Error(t, err)
	assert.Nil(t, w)
}

func TestEscapeKeyCode(t *testing.T) {
	t.Parallel()

	// KEY_ESC is code 1 in the kernel input tables; pin the constant the
	// watch loop matches against.
	assert.Equal(t, evdev.KeyType(1), evdev.KeyEscape)
}
