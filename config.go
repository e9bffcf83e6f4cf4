package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"rfidkiosk/display"
	"rfidkiosk/eventpipe"
	"rfidkiosk/input"
	"rfidkiosk/player"
	"rfidkiosk/reader"
)

// Config is the main configuration structure for the kiosk.
type Config struct {
	// Where videos live; uid_map filenames are resolved against this.
	VideoDir string `yaml:"video_dir"`

	// Fullscreen image shown when no tag is present.
	HomeImage string `yaml:"home_image"`

	// Serial channel to the tag reader.
	Reader reader.Config `yaml:"reader"`

	// Playback engine and mpv backend.
	Player player.Config `yaml:"player"`

	// Framebuffer home-image surface.
	Display display.Config `yaml:"display"`

	// Optional escape-key shutdown device.
	Input input.Config `yaml:"input"`

	// Optional named-pipe command injection.
	EventPipe eventpipe.Config `yaml:"event_pipe"`

	// Serial poll interval in milliseconds. Default 200.
	PollMS int `yaml:"poll_ms"`

	// Tag UID to video filename table.
	UIDMap map[string]string `yaml:"uid_map"`
}

// LoadConfig reads and decodes the yaml config file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.PollMS == 0 {
		cfg.PollMS = 200
	}
	if cfg.Reader.Port == "" {
		return nil, fmt.Errorf("reader.port missing in config file")
	}
	return &cfg, nil
}

// ResolveUIDMap turns the raw uid_map into uid -> absolute existing path.
// UIDs are upper-cased; entries whose file does not exist are dropped with
// a warning. An empty resolved map is a fatal configuration error.
func (c *Config) ResolveUIDMap(log zerolog.Logger) (map[string]string, error) {
	resolved := make(map[string]string, len(c.UIDMap))
	for uid, fname := range c.UIDMap {
		path := fname
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.VideoDir, fname)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			log.Warn().Err(err).Str("uid", uid).Str("file", fname).Msg("cannot resolve video path")
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			log.Warn().Str("uid", uid).Str("path", abs).Msg("video file not found, dropping")
			continue
		}
		resolved[strings.ToUpper(uid)] = abs
	}

	if len(resolved) == 0 {
		return nil, fmt.Errorf("no valid videos found in configuration")
	}
	return resolved, nil
}
