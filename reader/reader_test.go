package reader

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptPort replays a fixed sequence of Read results.
type scriptPort struct {
	reads  []scriptRead
	closed bool
}

type scriptRead struct {
	data []byte
	err  error
}

func (p *scriptPort) Read(buf []byte) (int, error) {
	if len(p.reads) == 0 {
		return 0, io.EOF
	}
	r := p.reads[0]
	p.reads = p.reads[1:]
	n := copy(buf, r.data)
	return n, r.err
}

func (p *scriptPort) Close() error {
	p.closed = true
	return nil
}

func newTestChannel(port *scriptPort, openErr error) *Channel {
	factory := func(_ string, _ int, _ time.Duration) (Port, error) {
		if openErr != nil {
			return nil, openErr
		}
		return port, nil
	}
	return NewWithFactory(Config{Port: "/dev/test0"}, factory, zerolog.Nop())
}

func TestOpenSuccessAndClose(t *testing.T) {
	t.Parallel()

	port := &scriptPort{}
	c := newTestChannel(port, nil)

	assert.False(t, c.IsOpened())
	c.Open()
	assert.True(t, c.IsOpened())

	c.Close()
	assert.False(t, c.IsOpened())
	assert.True(t, port.closed)

	// Idempotent.
	c.Close()
	assert.False(t, c.IsOpened())
}

func TestOpenFailureLeavesDisconnected(t *testing.T) {
	t.Parallel()

	c := newTestChannel(nil, errors.New("no such device"))
	c.Open()
	assert.False(t, c.IsOpened())
	assert.Nil(t, c.Receive())
}

func TestReceiveDrainsLinesOldestFirst(t *testing.T) {
	t.Parallel()

	port := &scriptPort{reads: []scriptRead{
		{data: []byte("AABBCCDD\r\n11223344\n")},
		{data: []byte("removed\n")},
	}}
	c := newTestChannel(port, nil)
	c.Open()

	lines := c.Receive()
	assert.Equal(t, []string{"AABBCCDD", "11223344", "removed"}, lines)
	assert.True(t, c.IsOpened())
}

func TestReceiveKeepsPartialLine(t *testing.T) {
	t.Parallel()

	port := &scriptPort{reads: []scriptRead{
		{data: []byte("AABB")},
	}}
	c := newTestChannel(port, nil)
	c.Open()

	assert.Empty(t, c.Receive())

	port.reads = []scriptRead{{data: []byte("CCDD\n")}}
	assert.Equal(t, []string{"AABBCCDD"}, c.Receive())
}

func TestReceiveDropsInvalidBytes(t *testing.T) {
	t.Parallel()

	port := &scriptPort{reads: []scriptRead{
		{data: []byte{0xff, 'A', 'B', 0xfe, 'C', 'D', '\n'}},
	}}
	c := newTestChannel(port, nil)
	c.Open()

	assert.Equal(t, []string{"ABCD"}, c.Receive())
}

func TestReceiveErrorSelfClosesAndReturnsPartial(t *testing.T) {
	t.Parallel()

	port := &scriptPort{reads: []scriptRead{
		{data: []byte("AABBCCDD\n"), err: errors.New("device unplugged")},
	}}
	c := newTestChannel(port, nil)
	c.Open()

	lines := c.Receive()
	assert.Equal(t, []string{"AABBCCDD"}, lines)
	assert.False(t, c.IsOpened())
	assert.True(t, port.closed)
}

func TestReceiveWhenClosedReturnsNil(t *testing.T) {
	t.Parallel()

	c := newTestChannel(&scriptPort{}, nil)
	assert.Nil(t, c.Receive())
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	c := NewWithFactory(Config{
		Port:           "/dev/test0",
		BackoffMinSecs: 1,
		BackoffMaxSecs: 16,
	}, func(string, int, time.Duration) (Port, error) {
		return nil, errors.New("still gone")
	}, zerolog.Nop())

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		16 * time.Second,
	}
	var prev time.Duration
	for _, w := range want {
		d := c.NextBackoffDelay()
		assert.Equal(t, w, d)
		assert.GreaterOrEqual(t, d, prev, "backoff must be non-decreasing")
		assert.LessOrEqual(t, d, 16*time.Second)
		prev = d
	}
}

func TestBackoffResetsOnSuccessfulOpen(t *testing.T) {
	t.Parallel()

	port := &scriptPort{}
	fail := true
	c := NewWithFactory(Config{Port: "/dev/test0"}, func(string, int, time.Duration) (Port, error) {
		if fail {
			return nil, errors.New("gone")
		}
		return port, nil
	}, zerolog.Nop())

	c.Open()
	require.False(t, c.IsOpened())
	c.NextBackoffDelay()
	c.NextBackoffDelay()
	assert.Equal(t, 8*time.Second, c.NextBackoffDelay())

	fail = false
	c.Open()
	require.True(t, c.IsOpened())

	// First delay after a reset starts from the minimum again.
	assert.Equal(t, 2*time.Second, c.NextBackoffDelay())
}

func TestDefaultsApplied(t *testing.T) {
	t.Parallel()

	c := NewWithFactory(Config{Port: "/dev/test0"}, nil, zerolog.Nop())
	assert.Equal(t, 115200, c.cfg.Baud)
	assert.Equal(t, time.Second, c.minBackoff)
	assert.Equal(t, 16*time.Second, c.maxBackoff)
}
