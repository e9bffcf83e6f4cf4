package main

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rfidkiosk/sched"
)

// removedToken is the sentinel the reader sends when a tag is lifted.
const removedToken = "removed"

// Channel is the serial channel surface the controller drives.
type Channel interface {
	Open()
	Receive() []string
	IsOpened() bool
	NextBackoffDelay() time.Duration
}

// Playback is the playback engine surface the controller drives.
type Playback interface {
	ShowIdle()
	Play(uid string)
}

// Controller alternates between two mutually exclusive recurring tasks on
// the scheduler loop: polling a connected channel, and reconnecting a
// disconnected one at the channel's backoff cadence. It dedups commands
// and dispatches them to the playback engine.
type Controller struct {
	log      zerolog.Logger
	sched    sched.Scheduler
	channel  Channel
	playback Playback
	uidMap   map[string]string

	pollInterval time.Duration
	lastCmd      string

	// Exactly one of these is scheduled at any time once Start has run,
	// except inside the handoff within a single callback.
	pollID      sched.TimerID
	pollLive    bool
	reconnectID sched.TimerID
	recLive     bool
}

// NewController wires the channel to the playback engine. uidMap keys
// must match the upper-cased resolved identifier map.
func NewController(channel Channel, playback Playback, uidMap map[string]string,
	pollInterval time.Duration, s sched.Scheduler, log zerolog.Logger,
) *Controller {
	return &Controller{
		log:          log,
		sched:        s,
		channel:      channel,
		playback:     playback,
		uidMap:       uidMap,
		pollInterval: pollInterval,
	}
}

// Start schedules the first poll. The channel may or may not be connected
// yet; the first tick sorts that out.
func (c *Controller) Start() {
	c.schedulePoll(c.pollInterval)
}

// Stop cancels whichever recurring task is live. Used at shutdown.
func (c *Controller) Stop() {
	if c.pollLive {
		c.sched.Cancel(c.pollID)
		c.pollLive = false
	}
	if c.recLive {
		c.sched.Cancel(c.reconnectID)
		c.recLive = false
	}
}

// Inject dispatches a command token as if it had arrived on the serial
// channel. Safe to call from any goroutine.
func (c *Controller) Inject(cmd string) {
	c.sched.Post(func() { c.dispatch(cmd) })
}

func (c *Controller) schedulePoll(d time.Duration) {
	c.pollID = c.sched.After(d, c.pollTick)
	c.pollLive = true
}

func (c *Controller) scheduleReconnect(d time.Duration) {
	c.reconnectID = c.sched.After(d, c.reconnectTick)
	c.recLive = true
}

// pollTick drains the channel and acts on the last buffered line only;
// older lines in the same batch are stale tag state. On disconnect it
// hands off to the reconnect cadence.
func (c *Controller) pollTick() {
	c.pollLive = false

	if !c.channel.IsOpened() {
		c.toReconnect()
		return
	}

	lines := c.channel.Receive()
	if len(lines) > 0 {
		c.dispatch(lines[len(lines)-1])
	}

	// Receive may have self-closed on a read error.
	if !c.channel.IsOpened() {
		c.toReconnect()
		return
	}
	c.schedulePoll(c.pollInterval)
}

func (c *Controller) toReconnect() {
	d := c.channel.NextBackoffDelay()
	c.log.Warn().Dur("retry_in", d).Msg("serial disconnected, switching to reconnect")
	c.scheduleReconnect(d)
}

// reconnectTick retries the connection; on success it resumes the poll
// cadence, otherwise it backs off further.
func (c *Controller) reconnectTick() {
	c.recLive = false

	c.channel.Open()
	if c.channel.IsOpened() {
		c.schedulePoll(c.pollInterval)
		return
	}
	c.scheduleReconnect(c.channel.NextBackoffDelay())
}

// dispatch routes one command token. A token equal to the immediately
// preceding dispatched token is suppressed; the comparison value updates
// for unrecognized tokens too, so an unknown tag warns once, not once
// per poll.
func (c *Controller) dispatch(cmd string) {
	if cmd == c.lastCmd {
		return
	}

	// The sentinel is matched literally; uid lookups go through the same
	// upper-casing the map got at load time.
	uid := strings.ToUpper(cmd)
	switch {
	case cmd == removedToken:
		c.playback.ShowIdle()
	case c.uidMap[uid] != "":
		c.playback.Play(uid)
	default:
		c.log.Warn().Str("cmd", cmd).Msg("unrecognized command")
	}

	c.lastCmd = cmd
}
