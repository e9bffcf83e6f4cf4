// Package sched provides the cooperative event loop that drives the kiosk.
// All application callbacks (serial polling, reconnect backoff, the playback
// watchdog, end-of-media restarts) run to completion on a single goroutine,
// so component state never needs locking.
package sched

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// TimerID uniquely identifies a scheduled callback.
type TimerID uint64

// Scheduler is the timer surface consumed by the controller and the
// playback engine. Post marshals work from foreign goroutines onto the
// loop; callbacks given to After run on the loop as well.
type Scheduler interface {
	// After schedules fn to run on the loop after d.
	After(d time.Duration, fn func()) TimerID

	// Cancel stops a scheduled callback. Canceling an already-fired or
	// unknown id is a no-op.
	Cancel(id TimerID)

	// Post queues fn to run on the loop as soon as possible.
	Post(fn func())
}

type timer struct {
	t  clockwork.Timer
	fn func()
}

// Loop is the production Scheduler. Run blocks, executing posted work and
// fired timers one at a time until Stop is called.
type Loop struct {
	clock clockwork.Clock
	log   zerolog.Logger

	mu     sync.Mutex // protects nextID, timers
	nextID TimerID
	timers map[TimerID]*timer

	work     chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewLoop creates a loop driven by the given clock. Production code passes
// clockwork.NewRealClock(); tests pass a fake clock.
func NewLoop(clock clockwork.Clock, log zerolog.Logger) *Loop {
	return &Loop{
		clock:  clock,
		log:    log,
		timers: make(map[TimerID]*timer),
		work:   make(chan func(), 64),
		done:   make(chan struct{}),
	}
}

// After implements Scheduler.After.
func (l *Loop) After(d time.Duration, fn func()) TimerID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.timers[id] = &timer{
		fn: fn,
		t: l.clock.AfterFunc(d, func() {
			l.Post(func() { l.fire(id) })
		}),
	}
	return id
}

// fire runs on the loop goroutine. The table lookup makes cancellation
// effective even when the underlying timer already expired.
func (l *Loop) fire(id TimerID) {
	l.mu.Lock()
	tm, ok := l.timers[id]
	if ok {
		delete(l.timers, id)
	}
	l.mu.Unlock()

	if ok {
		tm.fn()
	}
}

// Cancel implements Scheduler.Cancel.
func (l *Loop) Cancel(id TimerID) {
	l.mu.Lock()
	tm, ok := l.timers[id]
	if ok {
		delete(l.timers, id)
	}
	l.mu.Unlock()

	if ok {
		tm.t.Stop()
	}
}

// Post implements Scheduler.Post. Work posted after Stop is discarded.
func (l *Loop) Post(fn func()) {
	select {
	case l.work <- fn:
	case <-l.done:
	}
}

// Run executes callbacks until Stop is called. It must be called from
// exactly one goroutine; that goroutine becomes the loop thread.
func (l *Loop) Run() {
	for {
		select {
		case fn := <-l.work:
			fn()
		case <-l.done:
			return
		}
	}
}

// Stop terminates Run. Safe to call from any goroutine, more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.log.Debug().Msg("scheduler loop stopping")
		close(l.done)
	})
}
