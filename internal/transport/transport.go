// Package transport wraps a single playable media resource behind a small
// load/play/pause/seek/volume API with multi-subscriber event notification.
package transport

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EventType names a transport event.
type EventType string

const (
	EventTimeUpdate     EventType = "timeupdate"
	EventLoadedMetadata EventType = "loadedmetadata"
	EventEnded          EventType = "ended"
	EventPlay           EventType = "play"
	EventPause          EventType = "pause"
	EventError          EventType = "error"
	EventCanPlay        EventType = "canplay"
)

// Events is the fixed set of events subscribers can register for.
var Events = []EventType{
	EventTimeUpdate, EventLoadedMetadata, EventEnded, EventPlay, EventPause, EventError, EventCanPlay,
}

// DefaultVolume is applied when a transport is created.
const DefaultVolume = 0.7

var (
	// ErrInterrupted is returned by Backend.Play when a newer Load superseded
	// the play request. Transport.Play swallows it.
	ErrInterrupted = errors.New("play interrupted by a new load")
	// ErrClosed is returned after Destroy/Close.
	ErrClosed = errors.New("transport closed")
	// ErrUnknownEvent is returned by On for names outside Events.
	ErrUnknownEvent = errors.New("unknown transport event")
)

func logger() *zerolog.Logger {
	l := log.With().Str("component", "transport").Logger()
	return &l
}

// Event is delivered to subscribers. Err is set for EventError.
type Event struct {
	Type EventType
	Err  error
}

// Handler receives transport events. Handlers run synchronously on the
// goroutine that emitted the event.
type Handler func(Event)

// Backend is the native media resource.
type Backend interface {
	// Load replaces the current source and leaves it paused at 0.
	Load(url string) error
	// Play starts or resumes the current source. It blocks until playback has
	// actually started and returns ErrInterrupted if a Load superseded it.
	Play(ctx context.Context) error
	Pause() error
	Stop() error
	SetPosition(seconds float64) error
	SetVolume(v float64) error

	Position() float64
	Duration() float64
	Paused() bool
	Source() string

	// SetListener installs the single sink the Transport fans out from.
	SetListener(func(Event))
	Close() error
}

// Transport drives exactly one Backend.
type Transport struct {
	backend Backend

	mu       sync.Mutex
	handlers map[EventType]map[uint64]Handler
	nextID   uint64
	volume   float64
	closed   bool

	destroyOnce sync.Once
}

// New wraps backend and applies DefaultVolume.
func New(backend Backend) *Transport {
	t := &Transport{
		backend:  backend,
		handlers: make(map[EventType]map[uint64]Handler, len(Events)),
		volume:   DefaultVolume,
	}
	for _, ev := range Events {
		t.handlers[ev] = make(map[uint64]Handler)
	}
	backend.SetListener(t.emit)
	if err := backend.SetVolume(DefaultVolume); err != nil {
		logger().Warn().Err(err).Msg("Failed to apply default volume")
	}
	return t
}

// On subscribes fn to event and returns a function removing the subscription.
// Every subscriber is kept; a second subscription never replaces the first.
func (t *Transport) On(event EventType, fn Handler) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.handlers[event]
	if !ok {
		return nil, ErrUnknownEvent
	}
	if t.closed {
		return nil, ErrClosed
	}
	id := t.nextID
	t.nextID++
	set[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.handlers[event], id)
			t.mu.Unlock()
		})
	}, nil
}

func (t *Transport) emit(ev Event) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	fns := make([]Handler, 0, len(t.handlers[ev.Type]))
	for _, fn := range t.handlers[ev.Type] {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Play loads url when it differs from the current source and starts playback.
// An empty url resumes the current source. Interruption by a newer Play is
// not an error.
func (t *Transport) Play(ctx context.Context, url string) error {
	if t.isClosed() {
		return ErrClosed
	}

	if !t.backend.Paused() {
		if err := t.backend.Pause(); err != nil {
			logger().Debug().Err(err).Msg("Pause before play failed")
		}
	}
	if url != "" && url != t.backend.Source() {
		if err := t.backend.Load(url); err != nil {
			return err
		}
	}

	err := t.backend.Play(ctx)
	if errors.Is(err, ErrInterrupted) {
		logger().Debug().Str("url", url).Msg("Play interrupted by a newer load")
		return nil
	}
	return err
}

func (t *Transport) Pause() error {
	if t.isClosed() {
		return ErrClosed
	}
	return t.backend.Pause()
}

// Toggle resumes when paused and pauses when playing.
func (t *Transport) Toggle(ctx context.Context) error {
	if t.backend.Paused() {
		return t.Play(ctx, "")
	}
	return t.Pause()
}

// Stop halts playback and unloads the source.
func (t *Transport) Stop() error {
	if t.isClosed() {
		return ErrClosed
	}
	return t.backend.Stop()
}

// Seek moves to seconds. It is a silent no-op when the duration is unknown or
// the target lies outside [0, duration]; the result reports whether it moved.
func (t *Transport) Seek(seconds float64) bool {
	if t.isClosed() {
		return false
	}
	d := t.backend.Duration()
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) || math.IsNaN(seconds) {
		return false
	}
	if seconds < 0 || seconds > d {
		return false
	}
	if err := t.backend.SetPosition(seconds); err != nil {
		logger().Warn().Err(err).Float64("seconds", seconds).Msg("Seek failed")
		return false
	}
	return true
}

// SetVolume clamps v to [0, 1] and returns the applied value.
func (t *Transport) SetVolume(v float64) float64 {
	switch {
	case math.IsNaN(v):
		v = DefaultVolume
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}

	t.mu.Lock()
	t.volume = v
	closed := t.closed
	t.mu.Unlock()

	if !closed {
		if err := t.backend.SetVolume(v); err != nil {
			logger().Warn().Err(err).Float64("volume", v).Msg("Failed to set volume")
		}
	}
	return v
}

func (t *Transport) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume
}

func (t *Transport) CurrentTime() float64 { return t.backend.Position() }

func (t *Transport) Duration() float64 { return t.backend.Duration() }

func (t *Transport) Paused() bool { return t.backend.Paused() }

func (t *Transport) Source() string { return t.backend.Source() }

// Destroy drops every subscription and closes the backend. Safe to call more
// than once.
func (t *Transport) Destroy() error {
	var err error
	t.destroyOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		for ev := range t.handlers {
			t.handlers[ev] = make(map[uint64]Handler)
		}
		t.mu.Unlock()

		t.backend.SetListener(nil)
		err = t.backend.Close()
	})
	return err
}
