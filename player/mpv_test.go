package player

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIPCServer answers each connection's first command line with the
// given raw response lines, mimicking mpv's newline-delimited JSON IPC.
func fakeIPCServer(t *testing.T, response string) string {
	t.Helper()

	socket := filepath.Join(t.TempDir(), "mpv.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				if _, err := r.ReadString('\n'); err != nil {
					return
				}
				_, _ = conn.Write([]byte(response))
			}(conn)
		}
	}()
	return socket
}

// testMPV builds an MPV handle wired to a fake socket, with no process.
func testMPV(socket string) *MPV {
	return &MPV{
		cfg:  MPVConfig{Socket: socket},
		log:  zerolog.Nop(),
		done: make(chan struct{}),
	}
}

func TestSendCommandSkipsInterleavedEvents(t *testing.T) {
	t.Parallel()

	socket := fakeIPCServer(t,
		"{\"event\":\"pause\"}\n{\"error\":\"success\",\"data\":true}\n")
	m := testMPV(socket)

	data, err := m.sendCommand([]any{"get_property", "idle-active"}, ipcReadDeadline)
	require.NoError(t, err)
	assert.JSONEq(t, "true", string(data))
}

func TestSendCommandReportsIPCError(t *testing.T) {
	t.Parallel()

	socket := fakeIPCServer(t, "{\"error\":\"property not found\"}\n")
	m := testMPV(socket)

	_, err := m.sendCommand([]any{"get_property", "bogus"}, ipcReadDeadline)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "property not found")
}

func TestStateFromIdleActiveProperty(t *testing.T) {
	t.Parallel()

	idle := testMPV(fakeIPCServer(t, "{\"error\":\"success\",\"data\":true}\n"))
	assert.Equal(t, StateIdle, idle.State())

	playing := testMPV(fakeIPCServer(t, "{\"error\":\"success\",\"data\":false}\n"))
	assert.Equal(t, StatePlaying, playing.State())
}

func TestStateErrorWhenSocketUnreachable(t *testing.T) {
	t.Parallel()

	m := testMPV(filepath.Join(t.TempDir(), "gone.sock"))
	assert.Equal(t, StateError, m.State())
}

func TestStateErrorAfterProcessExit(t *testing.T) {
	t.Parallel()

	m := testMPV(fakeIPCServer(t, "{\"error\":\"success\",\"data\":true}\n"))
	close(m.done)
	assert.Equal(t, StateError, m.State())
}
