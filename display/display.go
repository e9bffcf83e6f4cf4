// Package display owns the idle/home surface. When a video plays, mpv
// paints the screen itself; this package only has to show the home image
// and get out of the way.
package display

import (
	"errors"

	"github.com/rs/zerolog"
)

// ErrNotCompiled is returned when framebuffer support was not compiled in.
var ErrNotCompiled = errors.New("framebuffer support not compiled in (build with -tags=screen)")

// Surface is the visible output the playback engine switches between.
type Surface interface {
	// ShowHome paints the idle/home image fullscreen.
	ShowHome()

	// ShowVideo clears the surface so the player's output owns the screen.
	ShowVideo()

	// Release tears down the surface at shutdown.
	Release() error
}

// Config holds display settings.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Device  string `yaml:"device"` // default "/dev/fb0"
}

// New selects the concrete surface: framebuffer when enabled and compiled
// in, otherwise a no-op surface for headless operation.
func New(cfg Config, homeImage string, log zerolog.Logger) (Surface, error) {
	if !cfg.Enabled {
		log.Info().Msg("display disabled, running headless")
		return &noop{}, nil
	}
	if !Supported() {
		return nil, ErrNotCompiled
	}
	return newFramebuffer(cfg, homeImage, log)
}

type noop struct{}

func (*noop) ShowHome()      {}
func (*noop) ShowVideo()     {}
func (*noop) Release() error { return nil }
