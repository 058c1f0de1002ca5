package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSource is returned by Play when nothing was loaded.
var ErrNoSource = errors.New("no source loaded")

// Memory is a Backend that produces no sound. It keeps a simulated clock that
// only moves through Advance, which makes it the null output of the daemon and
// the backend of choice in tests.
type Memory struct {
	mu sync.Mutex

	source   string
	position float64
	duration float64
	paused   bool
	volume   float64
	closed   bool
	started  bool

	gen      uint64
	waiting  chan struct{}
	held     map[string]bool
	failures map[string]error
	lengths  map[string]float64
	plays    []string

	listener func(Event)
}

var _ Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		paused:   true,
		held:     make(map[string]bool),
		failures: make(map[string]error),
		lengths:  make(map[string]float64),
	}
}

// SetLength sets the duration reported once url is loaded.
func (m *Memory) SetLength(url string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lengths[url] = seconds
	if m.source == url {
		m.duration = seconds
	}
}

// Fail makes Play of url return err.
func (m *Memory) Fail(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, url)
		return
	}
	m.failures[url] = err
}

// Hold makes Play of url block until Release or a newer Load.
func (m *Memory) Hold(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[url] = true
}

// Release unblocks a held Play of url.
func (m *Memory) Release(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, url)
	if m.source == url && m.waiting != nil {
		close(m.waiting)
		m.waiting = nil
	}
}

// Waiting reports whether a Play call is blocked on a held url.
func (m *Memory) Waiting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiting != nil
}

// Plays lists every url that started playing, in order.
func (m *Memory) Plays() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.plays...)
}

func (m *Memory) VolumeLevel() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Advance moves the clock of a playing source by seconds, emitting timeupdate
// and, when the end is reached, ended. Like mpv in idle mode the finished
// source is unloaded before ended fires.
func (m *Memory) Advance(seconds float64) {
	m.mu.Lock()
	if m.paused || m.source == "" || m.closed {
		m.mu.Unlock()
		return
	}
	m.position += seconds
	ended := m.duration > 0 && m.position >= m.duration
	if ended {
		m.position = m.duration
		m.paused = true
	}
	gen := m.gen
	m.mu.Unlock()

	m.Emit(Event{Type: EventTimeUpdate})
	if !ended {
		return
	}

	m.mu.Lock()
	if m.gen == gen {
		m.gen++
		m.source = ""
		m.started = false
		m.position = 0
		m.duration = 0
	}
	m.mu.Unlock()
	m.Emit(Event{Type: EventEnded})
}

// Emit sends ev to the listener as if the media resource raised it.
func (m *Memory) Emit(ev Event) {
	m.mu.Lock()
	fn := m.listener
	m.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (m *Memory) Load(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.gen++
	if m.waiting != nil {
		close(m.waiting)
		m.waiting = nil
	}
	m.source = url
	m.started = false
	m.position = 0
	m.duration = m.lengths[url]
	m.paused = true
	return nil
}

func (m *Memory) Play(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.source == "" {
		m.mu.Unlock()
		return ErrNoSource
	}
	if err, ok := m.failures[m.source]; ok {
		m.mu.Unlock()
		return err
	}

	gen := m.gen
	if m.held[m.source] {
		ch := make(chan struct{})
		m.waiting = ch
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			m.mu.Lock()
			if m.waiting == ch {
				m.waiting = nil
			}
			m.mu.Unlock()
			return ctx.Err()
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrClosed
		}
		if m.gen != gen {
			m.mu.Unlock()
			return ErrInterrupted
		}
	}

	first := !m.started
	m.started = true
	m.paused = false
	m.plays = append(m.plays, m.source)
	m.mu.Unlock()

	if first {
		m.Emit(Event{Type: EventLoadedMetadata})
		m.Emit(Event{Type: EventCanPlay})
	}
	m.Emit(Event{Type: EventPlay})
	return nil
}

func (m *Memory) Pause() error {
	m.mu.Lock()
	if m.paused {
		m.mu.Unlock()
		return nil
	}
	m.paused = true
	m.mu.Unlock()

	m.Emit(Event{Type: EventPause})
	return nil
}

func (m *Memory) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	if m.waiting != nil {
		close(m.waiting)
		m.waiting = nil
	}
	m.source = ""
	m.position = 0
	m.duration = 0
	m.paused = true
	return nil
}

func (m *Memory) SetPosition(seconds float64) error {
	m.mu.Lock()
	m.position = seconds
	m.mu.Unlock()
	m.Emit(Event{Type: EventTimeUpdate})
	return nil
}

func (m *Memory) SetVolume(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = v
	return nil
}

func (m *Memory) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Memory) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Memory) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *Memory) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

func (m *Memory) SetListener(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.waiting != nil {
		close(m.waiting)
		m.waiting = nil
	}
	return nil
}
