// Package reader owns the serial connection to the tag reader. The device
// sends newline-delimited command tokens (a tag UID, or "removed" when the
// tag is lifted). Connection failures are absorbed here: callers observe
// them through IsOpened and space retries with NextBackoffDelay.
package reader

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

const readTimeout = 100 * time.Millisecond

// Port is the subset of a serial port the channel uses.
// Split out so tests can inject a scripted port.
type Port interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// PortFactory opens a serial port.
type PortFactory func(name string, baud int, timeout time.Duration) (Port, error)

// DefaultPortFactory opens a real port via tarm/serial.
func DefaultPortFactory(name string, baud int, timeout time.Duration) (Port, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return port, nil
}

// Config holds serial channel settings.
type Config struct {
	Port           string `yaml:"port"`             // e.g. "/dev/rfid0"
	Baud           int    `yaml:"baud"`             // default 115200
	BackoffMinSecs int    `yaml:"backoff_min_secs"` // default 1
	BackoffMaxSecs int    `yaml:"backoff_max_secs"` // default 16
}

func (c *Config) applyDefaults() {
	if c.Baud == 0 {
		c.Baud = 115200
	}
	if c.BackoffMinSecs == 0 {
		c.BackoffMinSecs = 1
	}
	if c.BackoffMaxSecs == 0 {
		c.BackoffMaxSecs = 16
	}
}

// Channel is the reconnecting serial channel. It is loop-thread-confined:
// all methods must be called from the scheduler loop.
type Channel struct {
	cfg     Config
	factory PortFactory
	log     zerolog.Logger

	port    Port
	pending []byte

	backoff    time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration
	errCount   int
}

// New creates a channel using the real serial port factory. The channel
// starts disconnected; call Open to attempt the first connection.
func New(cfg Config, log zerolog.Logger) *Channel {
	return NewWithFactory(cfg, DefaultPortFactory, log)
}

// NewWithFactory creates a channel with an injected port factory.
func NewWithFactory(cfg Config, factory PortFactory, log zerolog.Logger) *Channel {
	cfg.applyDefaults()
	c := &Channel{
		cfg:        cfg,
		factory:    factory,
		log:        log,
		minBackoff: time.Duration(cfg.BackoffMinSecs) * time.Second,
		maxBackoff: time.Duration(cfg.BackoffMaxSecs) * time.Second,
	}
	c.backoff = c.minBackoff
	return c
}

// Open attempts to acquire the port. On success the backoff resets to its
// minimum. Failure is not returned; it is observable via IsOpened.
func (c *Channel) Open() {
	if c.port != nil {
		if err := c.port.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close stale serial port")
		}
		c.port = nil
		c.pending = nil
	}

	port, err := c.factory(c.cfg.Port, c.cfg.Baud, readTimeout)
	if err != nil {
		c.log.Error().Err(err).Str("port", c.cfg.Port).
			Dur("retry_in", c.backoff).Msg("serial connection failed")
		return
	}

	c.port = port
	c.backoff = c.minBackoff
	c.log.Info().Str("port", c.cfg.Port).Int("baud", c.cfg.Baud).Msg("serial connected")
}

// Close releases the port. Idempotent.
func (c *Channel) Close() {
	if c.port == nil {
		return
	}
	if err := c.port.Close(); err != nil {
		c.log.Error().Err(err).Msg("close serial port")
	}
	c.port = nil
	c.pending = nil
}

// IsOpened reports whether the channel currently holds a connection.
func (c *Channel) IsOpened() bool {
	return c.port != nil
}

// Receive drains all buffered complete lines, oldest first. Bytes that do
// not form valid UTF-8 are dropped. On a read error the channel closes
// itself and returns whatever was decoded before the error.
func (c *Channel) Receive() []string {
	if c.port == nil {
		return nil
	}

	buf := make([]byte, 256)
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			c.pending = append(c.pending, buf[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				break // read timeout, nothing more buffered
			}
			// Self-close, but still hand back whatever decoded cleanly.
			c.log.Error().Err(err).Msg("serial read error")
			lines := c.drainLines()
			c.Close()
			return lines
		}
		if n == 0 {
			break
		}
	}

	return c.drainLines()
}

// drainLines splits completed lines off the pending buffer. A trailing
// partial line stays pending for the next poll.
func (c *Channel) drainLines() []string {
	var lines []string
	for {
		i := bytes.IndexByte(c.pending, '\n')
		if i < 0 {
			break
		}
		raw := string(c.pending[:i])
		c.pending = c.pending[i+1:]

		line := strings.TrimSpace(strings.ToValidUTF8(raw, ""))
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(c.pending) == 0 {
		c.pending = nil
	}
	return lines
}

// NextBackoffDelay doubles the current backoff (capped at the maximum),
// records the failure, and returns the new delay. The result is never
// below the configured minimum.
func (c *Channel) NextBackoffDelay() time.Duration {
	c.errCount++
	c.backoff = c.backoff * 2
	if c.backoff > c.maxBackoff {
		c.backoff = c.maxBackoff
	}
	if c.backoff < c.minBackoff {
		c.backoff = c.minBackoff
	}
	return c.backoff
}
