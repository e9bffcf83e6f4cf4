// Package input watches a keyboard-style input device for the escape key,
// the kiosk's local shutdown control. The kiosk usually runs headless
// with no operator, so this is optional and disabled unless a device is
// configured.
package input

import (
	"context"
	"fmt"

	"github.com/kenshaw/evdev"
	"github.com/rs/zerolog"
)

// Config holds input watcher settings.
type Config struct {
	Device string `yaml:"device"` // e.g. "/dev/input/event0"; empty disables
}

// Watcher reports escape key presses from an evdev device.
type Watcher struct {
	device *evdev.Evdev
	cancel context.CancelFunc
}

// New opens the configured device and starts watching. Returns (nil, nil)
// when no device is configured. onEscape is called from the watcher's
// goroutine; callers must marshal any shared-state work themselves.
func New(cfg Config, log zerolog.Logger, onEscape func()) (*Watcher, error) {
	if cfg.Device == "" {
		return nil, nil
	}

	dev, err := evdev.OpenFile(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w", cfg.Device, err)
	}

	log.Info().Str("device", cfg.Device).Str("name", dev.Name()).Msg("watching for escape key")

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{device: dev, cancel: cancel}
	go w.watch(ctx, log, onEscape)
	return w, nil
}

func (w *Watcher) watch(ctx context.Context, log zerolog.Logger, onEscape func()) {
	ch := w.device.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if event == nil {
				log.Warn().Msg("input device closed")
				return
			}
			switch event.Type.(type) {
			case evdev.KeyType:
				if event.Value != 1 {
					continue
				}
				if event.Type == evdev.KeyEscape {
					log.Info().Msg("escape pressed")
					onEscape()
					return
				}
			}
		}
	}
}

// Close stops watching and releases the device.
func (w *Watcher) Close() error {
	w.cancel()
	if w.device == nil {
		return nil
	}
	return w.device.Close()
}
