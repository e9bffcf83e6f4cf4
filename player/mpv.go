package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MPVConfig holds settings for the mpv backend.
type MPVConfig struct {
	Binary string   `yaml:"binary"` // default "mpv"
	Socket string   `yaml:"socket"` // default "/tmp/rfidkiosk-mpv.sock"
	Args   []string `yaml:"args"`   // extra mpv arguments
}

func (c *MPVConfig) applyDefaults() {
	if c.Binary == "" {
		c.Binary = "mpv"
	}
	if c.Socket == "" {
		c.Socket = "/tmp/rfidkiosk-mpv.sock"
	}
}

const (
	ipcDialTimeout  = 3 * time.Second
	ipcReadDeadline = time.Second
	ipcMaxRetries   = 3
	ipcRetryDelay   = 100 * time.Millisecond

	// State probes run on every watchdog tick and must not hold the
	// cooperative loop; one attempt, short deadline, no retries.
	ipcProbeDeadline = 250 * time.Millisecond
)

// NewMPVFactory returns a BackendFactory that spawns mpv and drives it
// over its JSON IPC socket. The watchdog calls the factory again after
// killing a faulted instance.
func NewMPVFactory(cfg MPVConfig, log zerolog.Logger) BackendFactory {
	cfg.applyDefaults()
	return func(onEvent func(Event)) (Backend, error) {
		return newMPV(cfg, log, onEvent)
	}
}

// MPV runs an mpv subprocess in idle mode and issues loadfile/stop
// commands over a unix socket. A dedicated connection streams events;
// commands use short-lived per-request connections.
type MPV struct {
	cfg     MPVConfig
	log     zerolog.Logger
	onEvent func(Event)

	cmd    *exec.Cmd
	events net.Conn
	done   chan struct{} // closed when the mpv process exits

	mu sync.Mutex // serializes command round-trips
}

func newMPV(cfg MPVConfig, log zerolog.Logger, onEvent func(Event)) (*MPV, error) {
	_ = os.Remove(cfg.Socket)

	args := []string{
		"--idle=yes",
		"--fullscreen",
		"--no-terminal",
		"--really-quiet",
		"--keep-open=no",
		"--no-osc",
		"--input-ipc-server=" + cfg.Socket,
	}
	args = append(args, cfg.Args...)

	cmd := exec.Command(cfg.Binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}

	m := &MPV{
		cfg:     cfg,
		log:     log,
		onEvent: onEvent,
		cmd:     cmd,
		done:    make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(m.done)
	}()

	conn, err := m.dialRetry(ipcDialTimeout)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("connect mpv ipc: %w", err)
	}
	m.events = conn
	go m.readEvents()

	log.Info().Str("socket", cfg.Socket).Int("pid", cmd.Process.Pid).Msg("mpv started")
	return m, nil
}

// dialRetry waits for mpv to create its IPC socket.
func (m *MPV) dialRetry(timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("unix", m.cfg.Socket)
		if err == nil {
			return conn, nil
		}
		select {
		case <-m.done:
			return nil, fmt.Errorf("mpv exited before ipc socket appeared")
		default:
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("ipc socket %s: %w", m.cfg.Socket, err)
		}
		time.Sleep(ipcRetryDelay)
	}
}

// ipcMessage covers both command responses and asynchronous events.
type ipcMessage struct {
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
	Event  string          `json:"event"`
	Reason string          `json:"reason"`
}

// readEvents streams mpv events and forwards end-of-file notifications.
// Runs on its own goroutine until the connection drops; the watchdog
// notices a dead process through State.
func (m *MPV) readEvents() {
	scanner := bufio.NewScanner(m.events)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Event == "end-file" && msg.Reason == "eof" {
			m.onEvent(EventEndOfMedia)
		}
	}
	m.log.Debug().Msg("mpv event stream closed")
}

// command performs one JSON IPC round-trip, retrying transient failures.
func (m *MPV) command(args ...any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < ipcMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(ipcRetryDelay)
		}
		data, err := m.sendCommand(args, ipcReadDeadline)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("ipc command failed after %d attempts: %w", ipcMaxRetries, lastErr)
}

func (m *MPV) sendCommand(args []any, deadline time.Duration) (json.RawMessage, error) {
	conn, err := net.Dial("unix", m.cfg.Socket)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(map[string]any{"command": args})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	// mpv interleaves events on every connection; skip them until the
	// command response arrives.
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Event != "" {
			continue
		}
		if msg.Error != "success" {
			return nil, fmt.Errorf("mpv: %s", msg.Error)
		}
		return msg.Data, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return nil, fmt.Errorf("connection closed before response")
}

// Play implements Backend.Play.
func (m *MPV) Play(path string) error {
	_, err := m.command("loadfile", path, "replace")
	return err
}

// Stop implements Backend.Stop.
func (m *MPV) Stop() error {
	_, err := m.command("stop")
	return err
}

// State implements Backend.State. A dead process or unreachable socket
// reports StateError so the watchdog rebuilds. Unlike commands, this is
// a single probe with a short deadline: a wedged mpv must not stall the
// loop for the full retry budget.
func (m *MPV) State() State {
	select {
	case <-m.done:
		return StateError
	default:
	}

	data, err := m.sendCommand([]any{"get_property", "idle-active"}, ipcProbeDeadline)
	if err != nil {
		return StateError
	}
	var idle bool
	if err := json.Unmarshal(data, &idle); err != nil {
		return StateError
	}
	if idle {
		return StateIdle
	}
	return StatePlaying
}

// Release implements Backend.Release: ask mpv to quit, then make sure the
// process is gone.
func (m *MPV) Release() error {
	_, _ = m.command("quit")
	if m.events != nil {
		_ = m.events.Close()
	}

	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		if err := m.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill mpv: %w", err)
		}
		<-m.done
	}

	_ = os.Remove(m.cfg.Socket)
	return nil
}
