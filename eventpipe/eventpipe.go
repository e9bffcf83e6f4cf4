// Package eventpipe injects command tokens through a named pipe, so the
// kiosk can be exercised without the reader hardware wired:
//
//	echo AABBCCDD > /tmp/rfidkiosk-events
//	echo removed  > /tmp/rfidkiosk-events
//	echo quit     > /tmp/rfidkiosk-events
package eventpipe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
)

// Config holds configuration for the event pipe.
type Config struct {
	Path string `yaml:"path"` // path to named pipe; empty disables
}

// CommandHandler receives each injected token. Called from the pipe's
// goroutine; callers must marshal any shared-state work themselves.
type CommandHandler func(cmd string)

// EventPipe listens for command tokens on a named pipe.
type EventPipe struct {
	path    string
	log     zerolog.Logger
	handler CommandHandler
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates an EventPipe. Returns (nil, nil) if no path is configured.
func New(cfg Config, log zerolog.Logger, handler CommandHandler) (*EventPipe, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	// Remove existing pipe if it exists
	os.Remove(cfg.Path)

	if err := syscall.Mkfifo(cfg.Path, 0o666); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", cfg.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPipe{
		path:    cfg.Path,
		log:     log,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
	return ep, nil
}

// Start begins listening for commands on the pipe.
// This should be called as a goroutine.
func (ep *EventPipe) Start() {
	ep.log.Info().Str("path", ep.path).Msg("event pipe listening")

	for {
		select {
		case <-ep.ctx.Done():
			return
		default:
		}

		// Open blocks until a writer connects.
		file, err := os.OpenFile(ep.path, os.O_RDONLY, 0)
		if err != nil {
			if ep.ctx.Err() != nil {
				return
			}
			ep.log.Error().Err(err).Msg("event pipe open")
			continue
		}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			select {
			case <-ep.ctx.Done():
				file.Close()
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			ep.log.Debug().Str("cmd", line).Msg("event pipe command")
			if ep.handler != nil {
				ep.handler(line)
			}
		}

		file.Close()
		// Writer closed the pipe, loop back to wait for next writer
	}
}

// Close stops the listener and removes the pipe.
func (ep *EventPipe) Close() error {
	ep.cancel()
	return os.Remove(ep.path)
}
