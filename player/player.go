// Package player drives the media backend. The Engine holds the playback
// state machine (idle vs. playing a tag's video) and a watchdog that
// rebuilds the backend when it faults; the Backend interface hides the
// actual player process.
package player

// State describes the backend's reported playback state.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is an asynchronous notification from a backend. Backends may
// deliver events from their own goroutines; the engine re-marshals them
// onto the scheduler loop before touching any state.
type Event int

const (
	// EventEndOfMedia fires when playback reaches its natural end.
	EventEndOfMedia Event = iota
)

// Backend is a media player. All methods are called from the scheduler
// loop and must not block beyond a short bounded duration.
type Backend interface {
	// Play starts (or replaces) playback of the file at path.
	Play(path string) error

	// Stop halts playback and returns the backend to idle.
	Stop() error

	// State reports the backend's current condition. Must be cheap; the
	// watchdog calls it on every tick.
	State() State

	// Release tears the backend down. The backend is unusable afterwards.
	Release() error
}

// BackendFactory builds a Backend, delivering its asynchronous events to
// onEvent. The watchdog uses the factory to replace a faulted backend.
type BackendFactory func(onEvent func(Event)) (Backend, error)

// Config holds playback engine settings.
type Config struct {
	WatchdogSecs int       `yaml:"watchdog_secs"` // default 10
	MPV          MPVConfig `yaml:"mpv"`
}

func (c *Config) applyDefaults() {
	if c.WatchdogSecs == 0 {
		c.WatchdogSecs = 10
	}
	c.MPV.applyDefaults()
}
