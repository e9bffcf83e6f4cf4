package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "rfidkiosk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
reader:
  port: /dev/rfid0
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.PollMS)
	assert.Equal(t, "/dev/rfid0", cfg.Reader.Port)
}

func TestLoadConfigMissingPortFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
video_dir: /videos
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reader.port")
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfigMalformedYamlFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, "reader: [not\n  a: map")
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestResolveUIDMapDropsMissingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.mp4"))

	cfg := &Config{
		VideoDir: dir,
		UIDMap: map[string]string{
			"aabbccdd": "a.mp4",
			"11223344": "missing.mp4",
		},
	}
	resolved, err := cfg.ResolveUIDMap(zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, resolved, 1)
	path, ok := resolved["AABBCCDD"]
	require.True(t, ok, "uids are upper-cased on load")
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, filepath.Join(dir, "a.mp4"), path)
}

func TestResolveUIDMapAbsolutePathsKept(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	abs := filepath.Join(dir, "b.mp4")
	touch(t, abs)

	cfg := &Config{
		VideoDir: "/somewhere/else",
		UIDMap:   map[string]string{"11223344": abs},
	}
	resolved, err := cfg.ResolveUIDMap(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, abs, resolved["11223344"])
}

func TestResolveUIDMapEmptyIsFatal(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		VideoDir: t.TempDir(),
		UIDMap:   map[string]string{"AABBCCDD": "missing.mp4"},
	}
	_, err := cfg.ResolveUIDMap(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid videos")
}
