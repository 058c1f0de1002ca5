package player

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"lyric-player/internal/shuffle"
	"lyric-player/pkg/music"
)

// SetQueue 替换播放队列：当前索引复位为 -1，清空跳过状态、歌词和歌曲的会话标记，
// 并停止正在播放的歌曲
func (e *Engine) SetQueue(tracks []*music.Track) {
	tracks = lo.Compact(tracks)

	e.mu.Lock()
	for _, t := range tracks {
		t.ResetSession()
	}
	e.seq++
	e.queue = append([]*music.Track(nil), tracks...)
	e.index = -1
	e.queueID = uuid.NewString()
	e.skips = newSkipState()
	e.lyrics.Clear()
	e.progress = Progress{LyricIndex: -1}
	e.loading = false
	e.regenerateShuffleLocked()
	queueID := e.queueID
	e.mu.Unlock()

	if err := e.transport.Stop(); err != nil {
		logger().Debug().Err(err).Msg("Stop failed")
	}
	logger().Info().Str("queue_id", queueID).Int("tracks", len(tracks)).Msg("Queue replaced")
	e.emit(Event{Type: EventState, Index: -1})
	e.emit(Event{Type: EventLyrics, Index: -1})
}

// PlayAll 替换队列并从 start 开始播放
func (e *Engine) PlayAll(ctx context.Context, tracks []*music.Track, start int) error {
	e.SetQueue(tracks)
	return e.PlayAtIndex(ctx, start)
}

// AddTrack 追加到队列末尾
func (e *Engine) AddTrack(track *music.Track) {
	if track == nil {
		return
	}
	e.mu.Lock()
	e.queue = append(e.queue, track)
	e.regenerateShuffleLocked()
	e.mu.Unlock()
	e.emit(Event{Type: EventState})
}

// AddNext 插入到当前歌曲之后；队列中已有同一首歌时先移走原来的位置
func (e *Engine) AddNext(track *music.Track) {
	if track == nil {
		return
	}
	e.mu.Lock()
	if pos := e.findLocked(track.ID); pos >= 0 {
		if pos == e.index {
			e.mu.Unlock()
			return
		}
		e.queue = append(e.queue[:pos], e.queue[pos+1:]...)
		if pos < e.index {
			e.index--
		}
	}
	at := e.index + 1
	e.queue = append(e.queue[:at], append([]*music.Track{track}, e.queue[at:]...)...)
	e.regenerateShuffleLocked()
	e.mu.Unlock()
	e.emit(Event{Type: EventState})
}

// RemoveTrack 删除第 index 首。删除当前歌曲时停止播放，索引复位为 -1。
func (e *Engine) RemoveTrack(index int) bool {
	e.mu.Lock()
	if index < 0 || index >= len(e.queue) {
		e.mu.Unlock()
		return false
	}
	removedCurrent := index == e.index
	e.queue = append(e.queue[:index], e.queue[index+1:]...)
	switch {
	case removedCurrent:
		e.seq++
		e.index = -1
		e.loading = false
		e.lyrics.Clear()
		e.progress = Progress{LyricIndex: -1}
	case index < e.index:
		e.index--
	}
	e.regenerateShuffleLocked()
	e.mu.Unlock()

	if removedCurrent {
		if err := e.transport.Stop(); err != nil {
			logger().Debug().Err(err).Msg("Stop failed")
		}
		e.emit(Event{Type: EventLyrics, Index: -1})
	}
	e.emit(Event{Type: EventState})
	return true
}

// FindTrack 返回歌曲在队列中的下标，不存在时返回 -1
func (e *Engine) FindTrack(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findLocked(id)
}

func (e *Engine) findLocked(id string) int {
	_, pos, ok := lo.FindIndexOf(e.queue, func(t *music.Track) bool { return t.ID == id })
	if !ok {
		return -1
	}
	return pos
}

// Clear 停止播放并清空队列和所有派生状态
func (e *Engine) Clear() {
	e.mu.Lock()
	e.seq++
	e.queue = nil
	e.index = -1
	e.queueID = uuid.NewString()
	e.skips = newSkipState()
	e.lyrics.Clear()
	e.progress = Progress{LyricIndex: -1}
	e.loading = false
	e.shuffle = nil
	e.mu.Unlock()

	if err := e.transport.Stop(); err != nil {
		logger().Debug().Err(err).Msg("Stop failed")
	}
	e.emit(Event{Type: EventState, Index: -1})
	e.emit(Event{Type: EventLyrics, Index: -1})
}

// Len 队列长度
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Engine) regenerateShuffleLocked() {
	if e.mode != Shuffle {
		e.shuffle = nil
		return
	}
	e.shuffle = shuffle.New(len(e.queue), e.index, e.rand)
}
