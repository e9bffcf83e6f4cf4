//go:build !screen

package display

import "github.com/rs/zerolog"

// Supported returns whether framebuffer support is compiled in.
func Supported() bool {
	return false
}

func newFramebuffer(_ Config, _ string, _ zerolog.Logger) (Surface, error) {
	return nil, ErrNotCompiled
}
