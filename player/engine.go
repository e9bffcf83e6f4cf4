package player

import (
	"time"

	"github.com/rs/zerolog"

	"rfidkiosk/display"
	"rfidkiosk/sched"
)

// Media is a prepared playback target. Entries live in the engine's cache
// for the process lifetime; they are reused, never evicted.
type Media struct {
	UID  string
	Path string
}

// Engine is the playback state machine. At most one UID is active at a
// time; an empty active UID means the home screen is showing. The engine
// is loop-thread-confined apart from backend event delivery, which is
// posted back onto the loop.
type Engine struct {
	log     zerolog.Logger
	sched   sched.Scheduler
	surface display.Surface
	uidMap  map[string]string
	factory BackendFactory

	backend Backend
	cache   map[string]*Media
	current string

	watchdogInterval time.Duration
}

// NewEngine builds the engine and its initial backend, and shows the home
// screen. uidMap values must be absolute, existence-checked paths.
func NewEngine(cfg Config, uidMap map[string]string, surface display.Surface,
	factory BackendFactory, s sched.Scheduler, log zerolog.Logger,
) (*Engine, error) {
	cfg.applyDefaults()

	e := &Engine{
		log:              log,
		sched:            s,
		surface:          surface,
		uidMap:           uidMap,
		factory:          factory,
		cache:            make(map[string]*Media),
		watchdogInterval: time.Duration(cfg.WatchdogSecs) * time.Second,
	}
	if err := e.buildBackend(); err != nil {
		return nil, err
	}
	e.surface.ShowHome()
	return e, nil
}

func (e *Engine) buildBackend() error {
	b, err := e.factory(e.onBackendEvent)
	if err != nil {
		return err
	}
	e.backend = b
	return nil
}

// onBackendEvent may run on a backend-internal goroutine. State is only
// touched after crossing back onto the loop.
func (e *Engine) onBackendEvent(ev Event) {
	e.sched.Post(func() { e.handleEvent(ev) })
}

func (e *Engine) handleEvent(ev Event) {
	if ev == EventEndOfMedia && e.current != "" {
		e.log.Debug().Str("uid", e.current).Msg("end of media, looping")
		e.restart()
	}
}

// restart re-queues the active UID's media. On failure the engine falls
// back to the home screen.
func (e *Engine) restart() {
	m := e.media(e.current)
	if m == nil || e.backend == nil {
		return
	}
	if err := e.backend.Play(m.Path); err != nil {
		e.log.Error().Err(err).Str("uid", e.current).Msg("restart video")
		e.ShowIdle()
	}
}

// media returns the cached playback target for uid, preparing and caching
// it on first use. Returns nil for unknown uids.
func (e *Engine) media(uid string) *Media {
	if m, ok := e.cache[uid]; ok {
		return m
	}
	path, ok := e.uidMap[uid]
	if !ok {
		return nil
	}
	m := &Media{UID: uid, Path: path}
	e.cache[uid] = m
	return m
}

// Current returns the active UID, or "" when idle.
func (e *Engine) Current() string {
	return e.current
}

// ShowIdle stops playback and switches to the home screen. Safe to call
// when already idle.
func (e *Engine) ShowIdle() {
	if e.current != "" {
		if e.backend != nil {
			if err := e.backend.Stop(); err != nil {
				e.log.Error().Err(err).Msg("stop playback")
			}
		}
		e.current = ""
	}
	e.surface.ShowHome()
}

// Play starts the video mapped to uid. Replaying the active UID is a
// no-op. Any failure falls back to the home screen; playback errors are
// never fatal.
func (e *Engine) Play(uid string) {
	if uid == e.current {
		return
	}

	m := e.media(uid)
	if m == nil {
		e.log.Warn().Str("uid", uid).Msg("no video mapped for uid")
		return
	}
	if e.backend == nil {
		e.log.Warn().Str("uid", uid).Msg("no player available, waiting for watchdog")
		e.ShowIdle()
		return
	}

	if err := e.backend.Play(m.Path); err != nil {
		e.log.Error().Err(err).Str("uid", uid).Str("path", m.Path).Msg("video play error")
		e.ShowIdle()
		return
	}

	e.current = uid
	e.surface.ShowVideo()
	e.log.Info().Str("uid", uid).Msg("playing video")
}

// StartWatchdog schedules the first watchdog tick. Each tick reschedules
// the next, so monitoring never stops once started.
func (e *Engine) StartWatchdog() {
	e.scheduleWatchdog()
}

func (e *Engine) scheduleWatchdog() {
	e.sched.After(e.watchdogInterval, e.watchdogTick)
}

// watchdogTick checks backend health and rebuilds the player on a fault.
// It reschedules itself unconditionally, including after a failed
// recovery.
func (e *Engine) watchdogTick() {
	defer e.scheduleWatchdog()

	if e.backend == nil {
		e.rebuild()
		return
	}

	// An idle backend while a uid is active means playback died without
	// a natural end (decode abort, player restart): treat it like a
	// stop, not a healthy idle.
	st := e.backend.State()
	fault := st == StateError || st == StateStopped ||
		(st == StateIdle && e.current != "")
	if fault {
		e.log.Warn().Stringer("state", st).Str("uid", e.current).
			Msg("watchdog: player fault, rebuilding")
		e.rebuild()
	}
}

// rebuild replaces the backend and resumes the active UID, or re-shows
// the home screen if nothing was active. The media cache survives.
func (e *Engine) rebuild() {
	if e.backend != nil {
		if err := e.backend.Release(); err != nil {
			e.log.Error().Err(err).Msg("release faulted player")
		}
		e.backend = nil
	}

	if err := e.buildBackend(); err != nil {
		e.log.Error().Err(err).Msg("rebuild player")
		return // next tick retries
	}

	if uid := e.current; uid != "" {
		e.current = "" // force Play to re-issue
		e.Play(uid)
	} else {
		e.ShowIdle()
	}
}

// Release stops and tears down the backend. Used at shutdown.
func (e *Engine) Release() {
	if e.backend == nil {
		return
	}
	if err := e.backend.Stop(); err != nil {
		e.log.Debug().Err(err).Msg("stop player at shutdown")
	}
	if err := e.backend.Release(); err != nil {
		e.log.Error().Err(err).Msg("release player")
	}
	e.backend = nil
	e.current = ""
}
