package sched

import (
	"sort"
	"sync"
	"time"
)

// Fake is a Scheduler for tests. Timers never fire on their own; the test
// fires them explicitly, so poll/reconnect/watchdog transitions can be
// stepped one callback at a time without a running loop.
type Fake struct {
	mu     sync.Mutex
	nextID TimerID
	timers map[TimerID]*fakeTimer
}

type fakeTimer struct {
	delay time.Duration
	fn    func()
}

// NewFake creates an empty fake scheduler.
func NewFake() *Fake {
	return &Fake{timers: make(map[TimerID]*fakeTimer)}
}

// After implements Scheduler.After.
func (f *Fake) After(d time.Duration, fn func()) TimerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.timers[f.nextID] = &fakeTimer{delay: d, fn: fn}
	return f.nextID
}

// Cancel implements Scheduler.Cancel.
func (f *Fake) Cancel(id TimerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.timers, id)
}

// Post implements Scheduler.Post by running fn synchronously.
func (f *Fake) Post(fn func()) {
	fn()
}

// Pending returns the ids of all scheduled timers, oldest first.
func (f *Fake) Pending() []TimerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]TimerID, 0, len(f.timers))
	for id := range f.timers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Delay returns the delay a timer was scheduled with.
func (f *Fake) Delay(id TimerID) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tm, ok := f.timers[id]; ok {
		return tm.delay
	}
	return 0
}

// Fire runs and removes the timer with the given id. Firing an unknown id
// is a no-op, mirroring Cancel semantics.
func (f *Fake) Fire(id TimerID) {
	f.mu.Lock()
	tm, ok := f.timers[id]
	if ok {
		delete(f.timers, id)
	}
	f.mu.Unlock()
	if ok {
		tm.fn()
	}
}

// FireNext fires the oldest scheduled timer and reports its delay.
func (f *Fake) FireNext() (time.Duration, bool) {
	ids := f.Pending()
	if len(ids) == 0 {
		return 0, false
	}
	d := f.Delay(ids[0])
	f.Fire(ids[0])
	return d, true
}
