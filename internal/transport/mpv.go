package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

const (
	mpvDialTimeout    = 5 * time.Second
	mpvCommandTimeout = 5 * time.Second

	observeTimePos  = 1
	observeDuration = 2
	observePause    = 3
)

// MPVOptions configures the mpv process.
type MPVOptions struct {
	// Path of the mpv binary, "mpv" when empty.
	Path string
	// SocketPath for --input-ipc-server, a temp path when empty.
	SocketPath string
	// ExtraArgs are appended to the mpv command line.
	ExtraArgs []string
}

type mpvMessage struct {
	RequestID *int64          `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	Event     string `json:"event,omitempty"`
	ID        int    `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Reason    string `json:"reason,omitempty"`
	FileError string `json:"file_error,omitempty"`
}

// loadWaiter tracks one Load until the file is ready or fails.
type loadWaiter struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newLoadWaiter() *loadWaiter {
	return &loadWaiter{done: make(chan struct{})}
}

// finish reports whether this call settled the waiter.
func (w *loadWaiter) finish(err error) bool {
	settled := false
	w.once.Do(func() {
		w.err = err
		close(w.done)
		settled = true
	})
	return settled
}

// MPV is a Backend driving an mpv process over its JSON IPC socket.
type MPV struct {
	cmd  *exec.Cmd
	conn net.Conn
	sock string

	writeMu sync.Mutex
	nextReq int64

	mu       sync.Mutex
	pending  map[int64]chan mpvMessage
	source   string
	position float64
	duration float64
	paused   bool
	waiter   *loadWaiter
	listener func(Event)
	closed   bool
	quitting bool

	// events are handed from the socket reader to the pump so that a listener
	// that issues commands never blocks the reader.
	queueMu   sync.Mutex
	queueCond *sync.Cond
	queue     []Event

	closeOnce sync.Once
	readDone  chan struct{}
}

var _ Backend = (*MPV)(nil)

// StartMPV launches mpv in idle mode and connects to its IPC socket.
func StartMPV(ctx context.Context, opts MPVOptions) (*MPV, error) {
	path := opts.Path
	if path == "" {
		path = "mpv"
	}
	sock := opts.SocketPath
	if sock == "" {
		sock = filepath.Join(os.TempDir(), fmt.Sprintf("lyric-player-mpv-%d.sock", os.Getpid()))
	}
	os.Remove(sock)

	args := append([]string{
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--input-ipc-server=" + sock,
	}, opts.ExtraArgs...)
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mpv: %w", err)
	}

	conn, err := dialMPV(ctx, sock)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, err
	}

	m := newMPV(conn)
	m.cmd = cmd
	m.sock = sock
	if err := m.observe(); err != nil {
		m.Close()
		return nil, err
	}
	logger().Info().Str("socket", sock).Int("pid", cmd.Process.Pid).Msg("mpv started")
	return m, nil
}

// ConnectMPV attaches to an mpv instance that is already listening on socketPath.
func ConnectMPV(ctx context.Context, socketPath string) (*MPV, error) {
	conn, err := dialMPV(ctx, socketPath)
	if err != nil {
		return nil, err
	}
	m := newMPV(conn)
	if err := m.observe(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func dialMPV(ctx context.Context, sock string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, mpvDialTimeout)
	defer cancel()

	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "unix", sock)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to mpv socket %s: %w", sock, err)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func newMPV(conn net.Conn) *MPV {
	m := &MPV{
		conn:     conn,
		pending:  make(map[int64]chan mpvMessage),
		paused:   true,
		readDone: make(chan struct{}),
	}
	m.queueCond = sync.NewCond(&m.queueMu)
	go m.readLoop()
	go m.pumpLoop()
	return m
}

func (m *MPV) observe() error {
	for id, prop := range map[int]string{
		observeTimePos:  "time-pos",
		observeDuration: "duration",
		observePause:    "pause",
	} {
		if _, err := m.command("observe_property", id, prop); err != nil {
			return err
		}
	}
	return nil
}

// command sends one IPC command and waits for its reply.
func (m *MPV) command(args ...interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.nextReq++
	id := m.nextReq
	reply := make(chan mpvMessage, 1)
	m.pending[id] = reply
	m.mu.Unlock()

	payload, err := json.Marshal(map[string]interface{}{
		"command":    args,
		"request_id": id,
	})
	if err != nil {
		m.dropPending(id)
		return nil, err
	}

	m.writeMu.Lock()
	_, err = m.conn.Write(append(payload, '\n'))
	m.writeMu.Unlock()
	if err != nil {
		m.dropPending(id)
		return nil, fmt.Errorf("mpv write failed: %w", err)
	}

	select {
	case msg, ok := <-reply:
		if !ok {
			return nil, ErrClosed
		}
		if msg.Error != "" && msg.Error != "success" {
			return nil, fmt.Errorf("mpv %v: %s", args[0], msg.Error)
		}
		return msg.Data, nil
	case <-time.After(mpvCommandTimeout):
		m.dropPending(id)
		return nil, fmt.Errorf("mpv %v: timed out", args[0])
	}
}

func (m *MPV) dropPending(id int64) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func (m *MPV) readLoop() {
	defer close(m.readDone)

	scanner := bufio.NewScanner(m.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg mpvMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			logger().Debug().Err(err).Msg("Ignoring malformed mpv message")
			continue
		}
		if msg.Event != "" {
			m.handleEvent(msg)
			continue
		}
		if msg.RequestID != nil {
			m.mu.Lock()
			ch, ok := m.pending[*msg.RequestID]
			delete(m.pending, *msg.RequestID)
			m.mu.Unlock()
			if ok {
				ch <- msg
			}
		}
	}

	m.mu.Lock()
	wasClosed := m.closed || m.quitting
	m.closed = true
	for id, ch := range m.pending {
		close(ch)
		delete(m.pending, id)
	}
	w := m.waiter
	m.mu.Unlock()

	if w != nil {
		w.finish(ErrClosed)
	}
	if !wasClosed {
		logger().Warn().Msg("mpv connection lost")
		m.enqueue(Event{Type: EventError, Err: errors.New("mpv connection lost")})
	}
	m.queueMu.Lock()
	m.queue = append(m.queue, Event{})
	m.queueCond.Signal()
	m.queueMu.Unlock()
}

func (m *MPV) handleEvent(msg mpvMessage) {
	switch msg.Event {
	case "property-change":
		m.handleProperty(msg)
	case "file-loaded":
		m.mu.Lock()
		w := m.waiter
		m.mu.Unlock()
		if w != nil {
			w.finish(nil)
		}
		m.enqueue(Event{Type: EventLoadedMetadata})
		m.enqueue(Event{Type: EventCanPlay})
	case "end-file":
		switch msg.Reason {
		case "eof":
			m.unloadFinished()
			m.enqueue(Event{Type: EventEnded})
		case "error":
			err := fmt.Errorf("mpv failed to play: %s", msg.FileError)
			m.mu.Lock()
			w := m.waiter
			m.mu.Unlock()
			// a pending Play reports load failures itself
			if w != nil && w.finish(err) {
				return
			}
			m.enqueue(Event{Type: EventError, Err: err})
		}
	}
}

// unloadFinished forgets a source that played to the end. mpv runs idle
// without keep-open, so the file is gone and the next Play must reload it.
// A load still pending belongs to a newer file and is left alone.
func (m *MPV) unloadFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.waiter
	if w == nil {
		return
	}
	select {
	case <-w.done:
	default:
		return
	}
	m.waiter = nil
	m.source = ""
	m.position = 0
	m.duration = 0
	m.paused = true
}

func (m *MPV) handleProperty(msg mpvMessage) {
	switch msg.ID {
	case observeTimePos:
		var v float64
		if json.Unmarshal(msg.Data, &v) != nil {
			return
		}
		m.mu.Lock()
		m.position = v
		m.mu.Unlock()
		m.enqueue(Event{Type: EventTimeUpdate})
	case observeDuration:
		var v float64
		if json.Unmarshal(msg.Data, &v) != nil {
			v = 0
		}
		m.mu.Lock()
		m.duration = v
		m.mu.Unlock()
	case observePause:
		var v bool
		if json.Unmarshal(msg.Data, &v) != nil {
			return
		}
		m.mu.Lock()
		changed := m.paused != v
		m.paused = v
		m.mu.Unlock()
		if !changed {
			return
		}
		if v {
			m.enqueue(Event{Type: EventPause})
		} else {
			m.enqueue(Event{Type: EventPlay})
		}
	}
}

func (m *MPV) enqueue(ev Event) {
	m.queueMu.Lock()
	m.queue = append(m.queue, ev)
	m.queueCond.Signal()
	m.queueMu.Unlock()
}

// pumpLoop delivers queued events in order. An empty Event marks shutdown.
func (m *MPV) pumpLoop() {
	for {
		m.queueMu.Lock()
		for len(m.queue) == 0 {
			m.queueCond.Wait()
		}
		ev := m.queue[0]
		m.queue = m.queue[1:]
		m.queueMu.Unlock()

		if ev.Type == "" {
			return
		}

		m.mu.Lock()
		fn := m.listener
		m.mu.Unlock()
		if fn != nil {
			fn(ev)
		}
	}
}

func (m *MPV) Load(url string) error {
	w := newLoadWaiter()
	m.mu.Lock()
	prev := m.waiter
	m.waiter = w
	m.source = url
	m.position = 0
	m.duration = 0
	m.mu.Unlock()

	if prev != nil {
		prev.finish(ErrInterrupted)
	}

	if _, err := m.command("set_property", "pause", true); err != nil {
		return err
	}
	if _, err := m.command("loadfile", url, "replace"); err != nil {
		w.finish(err)
		return err
	}
	return nil
}

func (m *MPV) Play(ctx context.Context) error {
	m.mu.Lock()
	w := m.waiter
	m.mu.Unlock()
	if w == nil {
		return ErrNoSource
	}

	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if w.err != nil {
		return w.err
	}

	m.mu.Lock()
	current := m.waiter == w
	m.mu.Unlock()
	if !current {
		return ErrInterrupted
	}

	_, err := m.command("set_property", "pause", false)
	return err
}

func (m *MPV) Pause() error {
	_, err := m.command("set_property", "pause", true)
	return err
}

func (m *MPV) Stop() error {
	m.mu.Lock()
	prev := m.waiter
	m.waiter = nil
	m.source = ""
	m.position = 0
	m.duration = 0
	m.mu.Unlock()
	if prev != nil {
		prev.finish(ErrInterrupted)
	}

	_, err := m.command("stop")
	return err
}

func (m *MPV) SetPosition(seconds float64) error {
	_, err := m.command("seek", seconds, "absolute")
	return err
}

// SetVolume maps [0, 1] onto mpv's 0-100 scale.
func (m *MPV) SetVolume(v float64) error {
	_, err := m.command("set_property", "volume", v*100)
	return err
}

func (m *MPV) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *MPV) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *MPV) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *MPV) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

func (m *MPV) SetListener(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

// Close asks mpv to quit, closes the socket and reaps the process.
func (m *MPV) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.quitting = true
		m.mu.Unlock()
		if m.cmd != nil {
			m.command("quit")
		}
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		err = m.conn.Close()
		<-m.readDone

		if m.cmd != nil {
			done := make(chan struct{})
			go func() {
				m.cmd.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				m.cmd.Process.Kill()
				<-done
			}
			os.Remove(m.sock)
		}
	})
	return err
}
