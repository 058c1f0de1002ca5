package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lyric-player/pkg/music"
)

func ids(s State) []string {
	out := make([]string, len(s.Queue))
	for i, t := range s.Queue {
		out[i] = t.ID
	}
	return out
}

func TestSetQueueResetsSession(t *testing.T) {
	h := newHarness(t, nil)
	tracks := h.queue(3, 0)
	firstID := h.engine.Snapshot().QueueID

	require.NoError(t, h.engine.PlayAtIndex(ctx, 0))
	require.True(t, tracks[0].Unavailable)

	h.engine.SetQueue(tracks)
	s := h.engine.Snapshot()
	assert.Equal(t, -1, s.Index)
	assert.NotEqual(t, firstID, s.QueueID)
	assert.False(t, tracks[0].Unavailable)
	assert.Empty(t, tracks[0].LastError)
	assert.Empty(t, h.engine.skips.unavailable)
	assert.Equal(t, "", h.mem.Source())
}

func TestPlayAll(t *testing.T) {
	h := newHarness(t, nil)
	h.streams.urls["a"] = "http://media/a"
	h.streams.urls["b"] = "http://media/b"

	err := h.engine.PlayAll(ctx, []*music.Track{{ID: "a"}, nil, {ID: "b"}}, 1)
	require.NoError(t, err)
	s := h.engine.Snapshot()
	assert.Equal(t, []string{"a", "b"}, ids(s))
	assert.Equal(t, 1, s.Index)
}

func TestRemoveTrackAdjustsIndex(t *testing.T) {
	h := newHarness(t, nil)
	h.queue(4)
	require.NoError(t, h.engine.PlayAtIndex(ctx, 2))

	assert.True(t, h.engine.RemoveTrack(0))
	s := h.engine.Snapshot()
	assert.Equal(t, 1, s.Index)
	assert.Equal(t, "t2", s.Current.ID)
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(s))

	assert.True(t, h.engine.RemoveTrack(2))
	assert.Equal(t, 1, h.engine.Snapshot().Index)

	assert.False(t, h.engine.RemoveTrack(9))
}

func TestRemoveCurrentTrackStops(t *testing.T) {
	h := newHarness(t, nil)
	h.queue(3)
	require.NoError(t, h.engine.PlayAtIndex(ctx, 1))

	assert.True(t, h.engine.RemoveTrack(1))
	s := h.engine.Snapshot()
	assert.Equal(t, -1, s.Index)
	assert.Equal(t, []string{"t0", "t2"}, ids(s))
	assert.Equal(t, "", h.mem.Source())
}

func TestAddTrackAndAddNext(t *testing.T) {
	h := newHarness(t, nil)
	h.queue(3)
	require.NoError(t, h.engine.PlayAtIndex(ctx, 0))

	h.engine.AddTrack(&music.Track{ID: "x"})
	assert.Equal(t, []string{"t0", "t1", "t2", "x"}, ids(h.engine.Snapshot()))

	// 已在队列中的歌曲移动到当前歌曲之后
	h.engine.AddNext(&music.Track{ID: "t2"})
	assert.Equal(t, []string{"t0", "t2", "t1", "x"}, ids(h.engine.Snapshot()))

	h.engine.AddNext(&music.Track{ID: "y"})
	s := h.engine.Snapshot()
	assert.Equal(t, []string{"t0", "y", "t2", "t1", "x"}, ids(s))
	assert.Equal(t, 0, s.Index)

	// 当前歌曲本身不移动
	h.engine.AddNext(&music.Track{ID: "t0"})
	assert.Equal(t, []string{"t0", "y", "t2", "t1", "x"}, ids(h.engine.Snapshot()))
}

func TestAddNextMovesTrackBeforeCurrent(t *testing.T) {
	h := newHarness(t, nil)
	h.queue(3)
	require.NoError(t, h.engine.PlayAtIndex(ctx, 2))

	h.engine.AddNext(&music.Track{ID: "t0"})
	s := h.engine.Snapshot()
	assert.Equal(t, []string{"t1", "t2", "t0"}, ids(s))
	assert.Equal(t, 1, s.Index)
	assert.Equal(t, "t2", s.Current.ID)
}

func TestQueueChangeRegeneratesShuffle(t *testing.T) {
	h := newHarness(t, nil)
	h.queue(3)
	require.NoError(t, h.engine.PlayAtIndex(ctx, 1))
	h.engine.SetMode(Shuffle)

	h.engine.AddTrack(&music.Track{ID: "x"})
	require.Equal(t, 4, h.engine.shuffle.Len())
	assert.Equal(t, 1, h.engine.shuffle.Order[0])
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, h.engine.shuffle.Order)
}

func TestFindTrack(t *testing.T) {
	h := newHarness(t, nil)
	h.queue(3)
	assert.Equal(t, 2, h.engine.FindTrack("t2"))
	assert.Equal(t, -1, h.engine.FindTrack("nope"))
}

func TestClear(t *testing.T) {
	h := newHarness(t, nil)
	h.queue(3)
	require.NoError(t, h.engine.PlayAtIndex(ctx, 0))

	h.engine.Clear()
	s := h.engine.Snapshot()
	assert.Equal(t, -1, s.Index)
	assert.Empty(t, s.Queue)
	assert.Empty(t, s.Lyrics)
	assert.Equal(t, Progress{LyricIndex: -1}, s.Progress)
	assert.Equal(t, "", h.mem.Source())
	assert.Zero(t, h.engine.Len())
}
