package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMPV speaks enough of the mpv JSON IPC protocol to drive the backend.
type fakeMPV struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	conn     net.Conn
	commands [][]interface{}
	// failLoads lists urls whose loadfile ends with a file error.
	failLoads map[string]bool
	// silent lists urls that never report file-loaded.
	silent map[string]bool
}

func newFakeMPV(t *testing.T) (*fakeMPV, string) {
	dir, err := os.MkdirTemp("", "mpv")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	sock := filepath.Join(dir, "s")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	f := &fakeMPV{t: t, ln: ln, failLoads: map[string]bool{}, silent: map[string]bool{}}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f, sock
}

func (f *fakeMPV) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req struct {
			Command   []interface{} `json:"command"`
			RequestID int64         `json:"request_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		f.mu.Lock()
		f.commands = append(f.commands, req.Command)
		f.mu.Unlock()

		f.send(map[string]interface{}{"request_id": req.RequestID, "error": "success"})
		f.react(req.Command)
	}
}

func (f *fakeMPV) react(cmd []interface{}) {
	switch cmd[0] {
	case "loadfile":
		url, _ := cmd[1].(string)
		f.mu.Lock()
		fail, silent := f.failLoads[url], f.silent[url]
		f.mu.Unlock()
		switch {
		case silent:
		case fail:
			f.send(map[string]interface{}{"event": "end-file", "reason": "error", "file_error": "loading failed"})
		default:
			f.send(map[string]interface{}{"event": "file-loaded"})
			f.send(map[string]interface{}{"event": "property-change", "id": observeDuration, "name": "duration", "data": 180.5})
		}
	case "set_property":
		if cmd[1] == "pause" {
			f.send(map[string]interface{}{"event": "property-change", "id": observePause, "name": "pause", "data": cmd[2]})
		}
	case "seek":
		f.send(map[string]interface{}{"event": "property-change", "id": observeTimePos, "name": "time-pos", "data": cmd[1]})
	}
}

func (f *fakeMPV) send(v interface{}) {
	b, err := json.Marshal(v)
	require.NoError(f.t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Write(append(b, '\n'))
	}
}

func (f *fakeMPV) sawCommand(name string, args ...interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if c[0] != name || len(c) < len(args)+1 {
			continue
		}
		match := true
		for i, a := range args {
			if c[i+1] != a {
				match = false
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (f *fakeMPV) countCommand(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c[0] == name {
			n++
		}
	}
	return n
}

type eventLog struct {
	mu     sync.Mutex
	events []EventType
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev.Type)
	l.mu.Unlock()
}

func (l *eventLog) has(et EventType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == et {
			return true
		}
	}
	return false
}

func connectFake(t *testing.T) (*fakeMPV, *MPV, *eventLog) {
	f, sock := newFakeMPV(t)
	m, err := ConnectMPV(context.Background(), sock)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	evs := &eventLog{}
	m.SetListener(evs.add)
	return f, m, evs
}

func TestMPVObservesProperties(t *testing.T) {
	f, _, _ := connectFake(t)
	assert.True(t, f.sawCommand("observe_property", float64(observeTimePos), "time-pos"))
	assert.True(t, f.sawCommand("observe_property", float64(observeDuration), "duration"))
	assert.True(t, f.sawCommand("observe_property", float64(observePause), "pause"))
}

func TestMPVLoadAndPlay(t *testing.T) {
	f, m, evs := connectFake(t)

	require.NoError(t, m.Load("http://x/a.mp3"))
	require.NoError(t, m.Play(context.Background()))

	assert.True(t, f.sawCommand("loadfile", "http://x/a.mp3", "replace"))
	assert.True(t, f.sawCommand("set_property", "pause", false))
	assert.Equal(t, "http://x/a.mp3", m.Source())

	require.Eventually(t, func() bool { return evs.has(EventPlay) }, time.Second, 5*time.Millisecond)
	assert.True(t, evs.has(EventLoadedMetadata))
	assert.True(t, evs.has(EventCanPlay))
	assert.False(t, m.Paused())
	assert.Equal(t, 180.5, m.Duration())
}

func TestMPVLoadError(t *testing.T) {
	f, m, _ := connectFake(t)
	f.mu.Lock()
	f.failLoads["bad"] = true
	f.mu.Unlock()

	require.NoError(t, m.Load("bad"))
	err := m.Play(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading failed")
}

func TestMPVPlaybackErrorIsEmitted(t *testing.T) {
	f, m, evs := connectFake(t)

	require.NoError(t, m.Load("ok"))
	require.NoError(t, m.Play(context.Background()))

	f.send(map[string]interface{}{"event": "end-file", "reason": "error", "file_error": "network"})
	require.Eventually(t, func() bool { return evs.has(EventError) }, time.Second, 5*time.Millisecond)
}

func TestMPVPlayInterruptedByLoad(t *testing.T) {
	f, m, _ := connectFake(t)
	f.mu.Lock()
	f.silent["slow"] = true
	f.mu.Unlock()

	require.NoError(t, m.Load("slow"))
	done := make(chan error, 1)
	go func() { done <- m.Play(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, m.Load("fast"))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrInterrupted)
	case <-time.After(2 * time.Second):
		t.Fatal("play was not interrupted")
	}
	require.NoError(t, m.Play(context.Background()))
}

func TestMPVSeekAndVolume(t *testing.T) {
	f, m, evs := connectFake(t)

	require.NoError(t, m.SetPosition(12.5))
	require.NoError(t, m.SetVolume(0.5))

	assert.True(t, f.sawCommand("seek", 12.5, "absolute"))
	assert.True(t, f.sawCommand("set_property", "volume", float64(50)))
	require.Eventually(t, func() bool { return evs.has(EventTimeUpdate) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 12.5, m.Position())
}

func TestMPVConnectionLost(t *testing.T) {
	f, m, evs := connectFake(t)

	f.mu.Lock()
	f.conn.Close()
	f.mu.Unlock()

	require.Eventually(t, func() bool { return evs.has(EventError) }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, m.Pause(), ErrClosed)
}

func TestMPVReloadsAfterEndOfFile(t *testing.T) {
	f, m, _ := connectFake(t)
	tr := New(m)
	ended := make(chan struct{}, 1)
	_, err := tr.On(EventEnded, func(Event) { ended <- struct{}{} })
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tr.Play(ctx, "http://x/a.mp3"))
	require.Eventually(t, func() bool { return !tr.Paused() }, time.Second, 5*time.Millisecond)

	// mpv --idle 播完后卸载文件
	f.send(map[string]interface{}{"event": "end-file", "reason": "eof"})
	f.send(map[string]interface{}{"event": "property-change", "id": observeDuration, "name": "duration"})
	f.send(map[string]interface{}{"event": "idle"})
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("ended was not emitted")
	}

	assert.Equal(t, "", tr.Source())
	assert.True(t, tr.Paused())
	assert.False(t, tr.Seek(0))

	require.NoError(t, tr.Play(ctx, "http://x/a.mp3"))
	assert.Equal(t, 2, f.countCommand("loadfile"))
	assert.Equal(t, "http://x/a.mp3", tr.Source())
	require.Eventually(t, func() bool { return !tr.Paused() }, time.Second, 5*time.Millisecond)
}

func TestMPVEndOfFileKeepsPendingLoad(t *testing.T) {
	f, m, _ := connectFake(t)
	f.mu.Lock()
	f.silent["next"] = true
	f.mu.Unlock()

	require.NoError(t, m.Load("next"))
	f.send(map[string]interface{}{"event": "end-file", "reason": "eof"})
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, "next", m.Source())
}
