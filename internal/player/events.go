package player

import (
	"sync"

	"lyric-player/internal/lyrics"
)

// EventType 引擎推送给界面层的事件
type EventType string

const (
	// EventState 队列、索引、模式、音量或加载状态变化
	EventState EventType = "state"
	// EventTrack 开始加载新的当前歌曲
	EventTrack EventType = "track"
	// EventProgress 播放进度更新（已节流）
	EventProgress EventType = "progress"
	// EventLyrics 歌词序列被替换
	EventLyrics EventType = "lyrics"
	// EventLyricLine 高亮歌词行变化
	EventLyricLine EventType = "lyric-line"
	// EventError 需要展示给用户的错误
	EventError EventType = "error"
)

type Event struct {
	Type  EventType
	Index int
	// Line 仅 EventLyricLine 且 Index >= 0 时有值
	Line *lyrics.Line
	Err  error
}

// subscribers 在引擎锁之外同步地分发事件
type subscribers struct {
	mu   sync.Mutex
	fns  map[uint64]func(Event)
	next uint64
}

func (s *subscribers) add(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[uint64]func(Event))
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) emit(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
