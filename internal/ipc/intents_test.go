package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lyric-player/internal/player"
	"lyric-player/internal/transport"
	"lyric-player/pkg/music"
)

type mapStreams map[string]string

func (m mapStreams) GetStreamURL(ctx context.Context, id string, level music.Quality) (string, error) {
	return m[id], nil
}

type fakeTracks struct {
	playlists map[string][]string
	err       error
	asked     [][]string
}

func (f *fakeTracks) GetTracks(ctx context.Context, ids []string) ([]*music.Track, error) {
	f.asked = append(f.asked, ids)
	if f.err != nil {
		return nil, f.err
	}
	tracks := make([]*music.Track, len(ids))
	for i, id := range ids {
		tracks[i] = &music.Track{ID: id, Title: "Song " + id}
	}
	return tracks, nil
}

func (f *fakeTracks) GetPlaylistTracks(ctx context.Context, id string) ([]*music.Track, error) {
	ids, ok := f.playlists[id]
	if !ok {
		return nil, fmt.Errorf("playlist %s not found", id)
	}
	return f.GetTracks(ctx, ids)
}

type fixture struct {
	engine *player.Engine
	mem    *transport.Memory
	tracks *fakeTracks
	d      *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	mem := transport.NewMemory()
	streams := mapStreams{}
	for _, id := range []string{"a", "b", "c", "d"} {
		url := "http://media/" + id
		streams[id] = url
		mem.SetLength(url, 200)
	}
	e := player.New(transport.New(mem), streams, nil, player.Options{})
	t.Cleanup(e.Close)

	tracks := &fakeTracks{playlists: map[string][]string{"p1": {"a", "b", "c"}}}
	return &fixture{engine: e, mem: mem, tracks: tracks, d: NewDispatcher(e, tracks)}
}

var ctx = context.Background()

func TestLoadPlaylistStartsPlaying(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "ok", f.d.Handle(ctx, "load-playlist p1"))
	s := f.engine.Snapshot()
	assert.Len(t, s.Queue, 3)
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, []string{"http://media/a"}, f.mem.Plays())

	assert.Equal(t, "ok", f.d.Handle(ctx, "next"))
	assert.Equal(t, 1, f.engine.Snapshot().Index)
	assert.Equal(t, "ok", f.d.Handle(ctx, "prev"))
	assert.Equal(t, 0, f.engine.Snapshot().Index)
	assert.Equal(t, "ok", f.d.Handle(ctx, "PLAY 2"))
	assert.Equal(t, 2, f.engine.Snapshot().Index)
}

func TestLoadTracksDeduplicatesIDs(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "ok", f.d.Handle(ctx, "load-tracks a,b, a c"))
	require.Len(t, f.tracks.asked, 1)
	assert.Equal(t, []string{"a", "b", "c"}, f.tracks.asked[0])

	assert.Equal(t, "ok", f.d.Handle(ctx, "add d"))
	assert.Equal(t, 4, f.engine.Len())
}

func TestAddNextKeepsArgumentOrder(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(ctx, "load-tracks a,b")

	assert.Equal(t, "ok", f.d.Handle(ctx, "add-next c,d"))
	ids := []string{}
	for _, tr := range f.engine.Snapshot().Queue {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"a", "c", "d", "b"}, ids)
	assert.Equal(t, 1, f.engine.FindTrack("c"))
}

func TestBadArguments(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(ctx, "load-playlist p1")

	for _, intent := range []string{"play", "play x", "play 9", "remove 7", "volume loud", "seek", "seek soon", "mode loud", "add", "lyrics"} {
		reply := f.d.Handle(ctx, intent)
		assert.Contains(t, reply, "error: "+ErrBadArgument.Error(), intent)
	}
	assert.Equal(t, `error: unknown intent "dance"`, f.d.Handle(ctx, "dance"))
	assert.Contains(t, f.d.Handle(ctx, "load-playlist nope"), "not found")
	assert.Equal(t, "error: unknown intent", f.d.Handle(ctx, "   "))
}

func TestTrackLoadingWithoutSource(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.engine, nil)
	assert.Equal(t, "error: "+ErrNoTrackSource.Error(), d.Handle(ctx, "add a"))
	assert.Equal(t, "error: "+ErrNoTrackSource.Error(), d.Handle(ctx, "load-playlist p1"))
}

func TestTrackSourceError(t *testing.T) {
	f := newFixture(t)
	f.tracks.err = errors.New("service down")
	assert.Equal(t, "error: service down", f.d.Handle(ctx, "load-tracks a"))
	assert.Equal(t, 0, f.engine.Len())
}

func TestPlaybackControls(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(ctx, "load-playlist p1")

	assert.Equal(t, "ok", f.d.Handle(ctx, "seek 1:05"))
	assert.Equal(t, 65.0, f.engine.Snapshot().Progress.Position)
	assert.Equal(t, "ok", f.d.Handle(ctx, "seek 30.5"))
	assert.Equal(t, 30.5, f.engine.Snapshot().Progress.Position)
	assert.Contains(t, f.d.Handle(ctx, "seek 900"), "cannot seek")

	assert.Equal(t, "ok", f.d.Handle(ctx, "volume 1.5"))
	assert.Equal(t, 1.0, f.engine.Volume())

	assert.Equal(t, "ok", f.d.Handle(ctx, "pause"))
	assert.False(t, f.engine.Snapshot().Playing)
	assert.Equal(t, "ok", f.d.Handle(ctx, "toggle"))
	assert.True(t, f.engine.Snapshot().Playing)

	assert.Equal(t, "ok", f.d.Handle(ctx, "mode"))
	assert.Equal(t, player.ListLoop, f.engine.Mode())
	assert.Equal(t, "ok", f.d.Handle(ctx, "mode shuffle"))
	assert.Equal(t, player.Shuffle, f.engine.Mode())

	assert.Equal(t, "ok", f.d.Handle(ctx, "compact"))
	assert.True(t, f.engine.Snapshot().Compact)

	assert.Equal(t, "ok", f.d.Handle(ctx, "lyrics translation,original"))
	assert.Equal(t, []string{"translation", "original"}, f.engine.Snapshot().LyricTypes)
	assert.Contains(t, f.d.Handle(ctx, "lyrics karaoke"), "unknown lyric type")
}

func TestRemoveAndClear(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(ctx, "load-playlist p1")

	assert.Equal(t, "ok", f.d.Handle(ctx, "remove 0"))
	s := f.engine.Snapshot()
	assert.Len(t, s.Queue, 2)
	assert.Equal(t, -1, s.Index)

	assert.Equal(t, "ok", f.d.Handle(ctx, "clear"))
	assert.Equal(t, 0, f.engine.Len())
}

func TestStatusIsJSON(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(ctx, "load-playlist p1")
	f.d.Handle(ctx, "seek 75")

	var st map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(f.d.Handle(ctx, "status")), &st))
	assert.Equal(t, 0.0, st["index"])
	assert.Equal(t, 3.0, st["length"])
	assert.Equal(t, "SEQUENTIAL", st["mode"])
	assert.Equal(t, "01:15", st["position"])
	assert.Equal(t, "03:20", st["duration"])
	assert.Equal(t, true, st["playing"])
	current, ok := st["current"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a", current["id"])
}
