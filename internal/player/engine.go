// Package player 播放/歌单引擎
//
// Engine 持有播放队列、当前索引、播放模式和跳过状态，按需获取播放地址与歌词，
// 驱动 transport.Transport，并把播放进度同步到 lyrics.Processor。
// 所有异步边界（取地址、播放、取歌词）恢复时都会重新检查加载序号，
// 被更新请求取代的结果直接丢弃。
package player

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"lyric-player/internal/lyrics"
	"lyric-player/internal/shuffle"
	"lyric-player/internal/transport"
	"lyric-player/pkg/music"
)

var (
	// ErrTrackUnavailable 没有可用的播放地址（版权、地区或 VIP 限制），不重试
	ErrTrackUnavailable = errors.New("track unavailable")
	// ErrTooFewPlayable 自动跳过触发保护，停止继续跳歌
	ErrTooFewPlayable = errors.New("playlist has too few playable tracks")

	errStale = errors.New("superseded by a newer load")
)

func logger() *zerolog.Logger {
	l := log.With().Str("component", "player").Logger()
	return &l
}

const (
	DefaultProgressInterval = 100 * time.Millisecond
	lyricFetchTimeout       = 30 * time.Second
)

// Options 引擎参数，零值字段在 New 中补默认值
type Options struct {
	Quality          music.Quality
	LyricOffset      float64
	ProgressInterval time.Duration
	Guard            SkipGuard
	// Now 用于跳过冷却窗口和进度节流，测试时注入固定时钟
	Now  func() time.Time
	Rand *rand.Rand
}

func DefaultOptions() Options {
	return Options{
		Quality:          music.QualityStandard,
		LyricOffset:      lyrics.DefaultOffset,
		ProgressInterval: DefaultProgressInterval,
		Guard:            DefaultSkipGuard(),
		Now:              time.Now,
	}
}

// Progress 跟随 transport 的时钟，本身不是权威状态
type Progress struct {
	Position   float64 `json:"position"`
	Duration   float64 `json:"duration"`
	LyricIndex int     `json:"lyricIndex"`
}

// State 引擎状态快照，Queue 中是歌曲的副本
type State struct {
	QueueID    string        `json:"queueId"`
	Queue      []music.Track `json:"queue"`
	Index      int           `json:"index"`
	Current    *music.Track  `json:"current,omitempty"`
	Mode       PlayMode      `json:"mode"`
	Progress   Progress      `json:"progress"`
	Lyrics     []lyrics.Line `json:"lyrics"`
	Playing    bool          `json:"playing"`
	Loading    bool          `json:"loading"`
	Volume     float64       `json:"volume"`
	Compact    bool          `json:"compact"`
	LyricTypes []string      `json:"lyricTypes"`
}

type Engine struct {
	transport   *transport.Transport
	streams     music.StreamSource
	lyricSource music.LyricSource
	opts        Options
	rand        *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	queue      []*music.Track
	index      int
	mode       PlayMode
	shuffle    *shuffle.State
	skips      skipState
	progress   Progress
	loading    bool
	seq        uint64
	queueID    string
	lastTick   time.Time
	lyrics     *lyrics.Processor
	compact    bool
	lyricTypes []string

	subs       subscribers
	unsubs     []func()
	lyricFetch sync.WaitGroup
	closeOnce  sync.Once
}

// New 创建引擎并订阅 tr 的事件。lyricSource 可以为 nil。
func New(tr *transport.Transport, streams music.StreamSource, lyricSource music.LyricSource, opts Options) *Engine {
	def := DefaultOptions()
	if opts.Quality == "" {
		opts.Quality = def.Quality
	}
	if opts.LyricOffset == 0 {
		opts.LyricOffset = def.LyricOffset
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = def.ProgressInterval
	}
	if opts.Guard == (SkipGuard{}) {
		opts.Guard = def.Guard
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	r := opts.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		transport:   tr,
		streams:     streams,
		lyricSource: lyricSource,
		opts:        opts,
		rand:        r,
		ctx:         ctx,
		cancel:      cancel,
		index:       -1,
		skips:       newSkipState(),
		progress:    Progress{LyricIndex: -1},
		queueID:     uuid.NewString(),
		lyrics:      lyrics.NewProcessor(opts.LyricOffset),
		lyricTypes:  []string{lyrics.TypeOriginal, lyrics.TypeTranslation},
	}

	handlers := map[transport.EventType]transport.Handler{
		transport.EventTimeUpdate:     func(transport.Event) { e.onTimeUpdate() },
		transport.EventLoadedMetadata: func(transport.Event) { e.onLoadedMetadata() },
		transport.EventEnded:          func(transport.Event) { e.handleEnded(e.ctx) },
		transport.EventPlay:           func(transport.Event) { e.emit(Event{Type: EventState}) },
		transport.EventPause:          func(transport.Event) { e.emit(Event{Type: EventState}) },
		transport.EventError:          func(ev transport.Event) { e.handleTransportError(e.ctx, ev.Err) },
	}
	for name, fn := range handlers {
		unsub, err := tr.On(name, fn)
		if err != nil {
			logger().Error().Err(err).Str("event", string(name)).Msg("Failed to subscribe to transport")
			continue
		}
		e.unsubs = append(e.unsubs, unsub)
	}
	return e
}

// Subscribe 注册状态变化回调，回调在引擎锁之外同步执行
func (e *Engine) Subscribe(fn func(Event)) func() {
	return e.subs.add(fn)
}

func (e *Engine) emit(ev Event) {
	e.subs.emit(ev)
}

// Close 取消进行中的歌词获取并解除 transport 订阅，不销毁 transport
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		for _, unsub := range e.unsubs {
			unsub()
		}
		e.lyricFetch.Wait()
	})
}

// PlayAtIndex 播放队列中的第 index 首，越界时什么也不做。
// 失败时进入自动跳过流程，只有跳过保护触发时才返回 ErrTooFewPlayable。
func (e *Engine) PlayAtIndex(ctx context.Context, index int) error {
	e.mu.Lock()
	if index < 0 || index >= len(e.queue) {
		e.mu.Unlock()
		return nil
	}
	track := e.queue[index]
	seq := e.beginLoadLocked(index, track)
	e.mu.Unlock()

	e.emit(Event{Type: EventTrack, Index: index})

	err := e.load(ctx, seq, track)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStale):
		logger().Debug().Int("index", index).Msg("Load superseded, dropping result")
		return nil
	case errors.Is(err, context.Canceled):
		// 关闭或调用方放弃，不算歌曲失败
		logger().Debug().Int("index", index).Msg("Load cancelled")
		e.mu.Lock()
		current := seq == e.seq
		if current {
			e.loading = false
		}
		e.mu.Unlock()
		if current {
			e.emit(Event{Type: EventState})
		}
		return err
	}
	return e.handleFailure(ctx, seq, index, track, err)
}

func (e *Engine) beginLoadLocked(index int, track *music.Track) uint64 {
	e.seq++
	e.index = index
	e.loading = true
	e.lyrics.Clear()
	e.progress = Progress{Duration: track.DurationSeconds, LyricIndex: -1}
	e.lastTick = time.Time{}
	if e.mode == Shuffle {
		if !e.shuffle.Sync(index) {
			e.shuffle = shuffle.New(len(e.queue), index, e.rand)
		}
	}
	return e.seq
}

func (e *Engine) load(ctx context.Context, seq uint64, track *music.Track) error {
	e.mu.Lock()
	url := track.StreamURL
	trackCopy := *track
	e.mu.Unlock()

	if url == "" {
		u, err := e.streams.GetStreamURL(ctx, track.ID, e.opts.Quality)
		if err != nil {
			return fmt.Errorf("failed to fetch stream url: %w", err)
		}
		if u == "" {
			return ErrTrackUnavailable
		}
		e.mu.Lock()
		if seq != e.seq {
			e.mu.Unlock()
			return errStale
		}
		track.StreamURL = u
		e.mu.Unlock()
		url = u
	}

	err := e.transport.Play(ctx, url)

	e.mu.Lock()
	stale := seq != e.seq
	if !stale && err == nil {
		e.loading = false
	}
	e.mu.Unlock()
	if stale {
		return errStale
	}
	if err != nil {
		return err
	}

	logger().Info().Str("track_id", trackCopy.ID).Str("title", trackCopy.Title).Msg("Playing")
	e.emit(Event{Type: EventState})

	e.lyricFetch.Add(1)
	go e.fetchLyrics(seq, &trackCopy)
	return nil
}

func (e *Engine) fetchLyrics(seq uint64, track *music.Track) {
	defer e.lyricFetch.Done()
	if e.lyricSource == nil {
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, lyricFetchTimeout)
	defer cancel()

	l, err := e.lyricSource.GetLyrics(ctx, track)
	if err != nil {
		logger().Warn().Err(err).Str("track_id", track.ID).Msg("Failed to get lyrics")
		l = nil
	}

	e.mu.Lock()
	if seq != e.seq {
		e.mu.Unlock()
		logger().Debug().Str("track_id", track.ID).Msg("Dropping lyrics of a superseded track")
		return
	}
	if l.Empty() {
		e.lyrics.SetSequence(nil)
	} else {
		e.lyrics.ParseAndSet(l.Original, l.Translation, l.Transliteration)
	}
	idx, _ := e.lyrics.UpdateIndex(e.progress.Position)
	e.progress.LyricIndex = idx
	count := e.lyrics.Len()
	e.mu.Unlock()

	logger().Debug().Str("track_id", track.ID).Int("lines", count).Msg("Lyrics ready")
	e.emit(Event{Type: EventLyrics, Index: idx})
}

// handleFailure 标记歌曲不可用，检查跳过保护，然后按播放模式寻找下一首可播放的歌
func (e *Engine) handleFailure(ctx context.Context, seq uint64, index int, track *music.Track, cause error) error {
	e.mu.Lock()
	if seq != e.seq {
		e.mu.Unlock()
		return nil
	}
	e.loading = false
	track.Unavailable = true
	track.LastError = cause.Error()
	e.skips.markUnavailable(track.ID)
	consecutive := e.skips.record(e.opts.Now(), e.opts.Guard.Cooldown)
	failure := fmt.Errorf("%s (%s): %w", track.Title, track.ID, cause)

	if e.skips.tripped(len(e.queue), e.opts.Guard) {
		unavailable, total := len(e.skips.unavailable), len(e.queue)
		e.seq++
		e.mu.Unlock()

		logger().Warn().Err(failure).
			Int("consecutive_skips", consecutive).
			Int("unavailable", unavailable).
			Int("queue_length", total).
			Msg("Too many unplayable tracks, auto-skip stopped")
		if err := e.transport.Stop(); err != nil {
			logger().Debug().Err(err).Msg("Stop failed")
		}
		e.emit(Event{Type: EventError, Index: index, Err: failure})
		e.emit(Event{Type: EventError, Index: index, Err: ErrTooFewPlayable})
		e.emit(Event{Type: EventState})
		return ErrTooFewPlayable
	}

	next := e.skipTargetLocked(index)
	if next < 0 {
		e.seq++
		e.index = -1
		e.progress = Progress{LyricIndex: -1}
		e.lyrics.Clear()
		e.mu.Unlock()

		logger().Warn().Err(failure).Msg("No playable track left, playback stopped")
		if err := e.transport.Stop(); err != nil {
			logger().Debug().Err(err).Msg("Stop failed")
		}
		e.emit(Event{Type: EventError, Index: index, Err: failure})
		e.emit(Event{Type: EventState})
		return nil
	}
	e.mu.Unlock()

	logger().Warn().Err(failure).Int("next", next).Int("consecutive_skips", consecutive).Msg("Track failed, skipping")
	e.emit(Event{Type: EventError, Index: index, Err: failure})
	return e.PlayAtIndex(ctx, next)
}

// skipTargetLocked 从 from 开始按模式向前扫描第一首未标记不可用的歌曲，
// 最多检查 min(队列长度, MaxProbes) 首，回到起点或到达末尾时返回 -1
func (e *Engine) skipTargetLocked(from int) int {
	probes := len(e.queue)
	if limit := e.opts.Guard.MaxProbes; limit > 0 && limit < probes {
		probes = limit
	}
	cur := from
	for i := 0; i < probes; i++ {
		next, ok := e.scanStepLocked(cur)
		if !ok || next == from {
			return -1
		}
		if !e.queue[next].Unavailable {
			return next
		}
		cur = next
	}
	return -1
}

func (e *Engine) scanStepLocked(cur int) (int, bool) {
	n := len(e.queue)
	switch e.mode {
	case Sequential:
		if cur+1 >= n {
			return -1, false
		}
		return cur + 1, true
	case Shuffle:
		if e.shuffle.Len() == n {
			if pos := lo.IndexOf(e.shuffle.Order, cur); pos >= 0 {
				return e.shuffle.Order[shuffle.Advance(e.shuffle.Order, pos, shuffle.Forward)], true
			}
		}
	}
	return (cur + 1) % n, true
}

// handleTransportError 播放中出错时重新获取一次地址重试，之后按失败处理
func (e *Engine) handleTransportError(ctx context.Context, cause error) {
	e.mu.Lock()
	if e.loading || e.index < 0 || e.index >= len(e.queue) {
		e.mu.Unlock()
		return
	}
	index, seq := e.index, e.seq
	track := e.queue[index]
	retry := track.RetryCount == 0
	if retry {
		track.RetryCount++
		track.StreamURL = ""
	}
	e.mu.Unlock()

	if cause == nil {
		cause = errors.New("transport error")
	}

	if retry {
		logger().Warn().Err(cause).Str("track_id", track.ID).Msg("Transport error, retrying with a fresh url")
		// 清空 source，保证重试时重新加载
		if err := e.transport.Stop(); err != nil {
			logger().Debug().Err(err).Msg("Stop failed")
		}
		if err := e.PlayAtIndex(ctx, index); err != nil {
			logger().Error().Err(err).Msg("Retry failed")
		}
		return
	}

	if err := e.handleFailure(ctx, seq, index, track, cause); err != nil {
		logger().Error().Err(err).Msg("Auto-skip stopped")
	}
}

func (e *Engine) handleEnded(ctx context.Context) {
	e.mu.Lock()
	index, mode := e.index, e.mode
	url := ""
	if index >= 0 && index < len(e.queue) {
		url = e.queue[index].StreamURL
	}
	e.mu.Unlock()
	if index < 0 {
		return
	}

	if mode == SingleLoop {
		if url == "" {
			if err := e.PlayAtIndex(ctx, index); err != nil {
				logger().Warn().Err(err).Msg("Failed to replay track")
			}
			return
		}
		// 后端保留了音源时回到开头，已卸载时按地址重新加载
		if e.transport.Source() == url {
			e.transport.Seek(0)
		}
		if err := e.transport.Play(ctx, url); err != nil {
			logger().Warn().Err(err).Msg("Failed to replay track")
		}
		return
	}
	if err := e.PlayNext(ctx); err != nil {
		logger().Warn().Err(err).Msg("Failed to advance after track ended")
	}
}

func (e *Engine) onTimeUpdate() {
	now := e.opts.Now()
	pos := e.transport.CurrentTime()

	e.mu.Lock()
	if !e.lastTick.IsZero() && now.Sub(e.lastTick) < e.opts.ProgressInterval {
		e.mu.Unlock()
		return
	}
	e.lastTick = now
	ev, lineEv := e.setPositionLocked(pos)
	e.mu.Unlock()

	e.emit(ev)
	if lineEv != nil {
		e.emit(*lineEv)
	}
}

func (e *Engine) setPositionLocked(pos float64) (Event, *Event) {
	e.progress.Position = pos
	idx, changed := e.lyrics.UpdateIndex(pos)
	e.progress.LyricIndex = idx

	progress := Event{Type: EventProgress, Index: e.index}
	if !changed {
		return progress, nil
	}
	lineEv := &Event{Type: EventLyricLine, Index: idx}
	if line, ok := e.lyrics.LineAt(idx); ok {
		lineEv.Line = &line
	}
	return progress, lineEv
}

func (e *Engine) onLoadedMetadata() {
	d := e.transport.Duration()
	e.mu.Lock()
	if d > 0 {
		e.progress.Duration = d
	}
	e.mu.Unlock()
	e.emit(Event{Type: EventProgress})
}

// PlayNext 按播放模式播放下一首；顺序模式到达末尾时不做任何事
func (e *Engine) PlayNext(ctx context.Context) error {
	return e.step(ctx, shuffle.Forward)
}

// PlayPrev 按播放模式播放上一首；顺序模式在第一首时不做任何事
func (e *Engine) PlayPrev(ctx context.Context) error {
	return e.step(ctx, shuffle.Backward)
}

func (e *Engine) step(ctx context.Context, dir shuffle.Direction) error {
	e.mu.Lock()
	target, ok := e.targetLocked(dir)
	e.mu.Unlock()
	if !ok {
		logger().Debug().Int("direction", int(dir)).Msg("No track to advance to")
		return nil
	}
	return e.PlayAtIndex(ctx, target)
}

// NextIndex 下一首的队列下标，ok 为 false 表示不前进
func (e *Engine) NextIndex() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.targetLocked(shuffle.Forward)
}

func (e *Engine) PrevIndex() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.targetLocked(shuffle.Backward)
}

func (e *Engine) targetLocked(dir shuffle.Direction) (int, bool) {
	n := len(e.queue)
	if n == 0 {
		return -1, false
	}
	if e.index < 0 {
		if e.mode == Shuffle && e.shuffle.Len() > 0 {
			return e.shuffle.Order[0], true
		}
		return 0, true
	}

	switch e.mode {
	case ListLoop:
		return (e.index + int(dir) + n) % n, true
	case SingleLoop:
		return e.index, true
	case Shuffle:
		if e.shuffle.Len() != n {
			e.shuffle = shuffle.New(n, e.index, e.rand)
		}
		return e.shuffle.Peek(dir), true
	default:
		target := e.index + int(dir)
		if target < 0 || target >= n {
			return -1, false
		}
		return target, true
	}
}

// TogglePlay 暂停/继续；没有当前歌曲时从第一首开始
func (e *Engine) TogglePlay(ctx context.Context) error {
	e.mu.Lock()
	index, n := e.index, len(e.queue)
	e.mu.Unlock()

	if index < 0 {
		if n == 0 {
			return nil
		}
		start, _ := e.NextIndex()
		return e.PlayAtIndex(ctx, start)
	}
	if e.transport.Source() == "" {
		return e.PlayAtIndex(ctx, index)
	}
	return e.transport.Toggle(ctx)
}

func (e *Engine) Pause() error {
	return e.transport.Pause()
}

// TogglePlayMode 切换到下一个播放模式并返回新模式
func (e *Engine) TogglePlayMode() PlayMode {
	e.mu.Lock()
	mode := e.mode.Next()
	e.setModeLocked(mode)
	e.mu.Unlock()

	logger().Info().Str("mode", mode.String()).Msg("Play mode changed")
	e.emit(Event{Type: EventState})
	return mode
}

func (e *Engine) SetMode(mode PlayMode) {
	if !mode.Valid() {
		mode = Sequential
	}
	e.mu.Lock()
	e.setModeLocked(mode)
	e.mu.Unlock()
	e.emit(Event{Type: EventState})
}

func (e *Engine) setModeLocked(mode PlayMode) {
	e.mode = mode
	if mode == Shuffle {
		e.shuffle = shuffle.New(len(e.queue), e.index, e.rand)
	} else {
		e.shuffle = nil
	}
}

func (e *Engine) Mode() PlayMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Seek 跳转到指定秒数，越界或时长未知时忽略
func (e *Engine) Seek(seconds float64) bool {
	if !e.transport.Seek(seconds) {
		return false
	}
	e.mu.Lock()
	e.lastTick = time.Time{}
	ev, lineEv := e.setPositionLocked(seconds)
	e.mu.Unlock()

	e.emit(ev)
	if lineEv != nil {
		e.emit(*lineEv)
	}
	return true
}

// SetVolume 返回实际生效的音量（限制在 [0, 1]）
func (e *Engine) SetVolume(v float64) float64 {
	applied := e.transport.SetVolume(v)
	e.emit(Event{Type: EventState})
	return applied
}

func (e *Engine) Volume() float64 {
	return e.transport.Volume()
}

func (e *Engine) SetCompact(compact bool) {
	e.mu.Lock()
	e.compact = compact
	e.mu.Unlock()
	e.emit(Event{Type: EventState})
}

func (e *Engine) ToggleCompact() bool {
	e.mu.Lock()
	e.compact = !e.compact
	compact := e.compact
	e.mu.Unlock()
	e.emit(Event{Type: EventState})
	return compact
}

func (e *Engine) SetLyricTypes(types []string) {
	e.mu.Lock()
	e.lyricTypes = append([]string(nil), types...)
	e.mu.Unlock()
	e.emit(Event{Type: EventState})
}

// CurrentLyric 当前高亮的歌词行
func (e *Engine) CurrentLyric() (lyrics.Line, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lyrics.CurrentLine()
}

// Snapshot 返回当前状态的副本
func (e *Engine) Snapshot() State {
	paused := e.transport.Paused()
	volume := e.transport.Volume()

	e.mu.Lock()
	defer e.mu.Unlock()

	s := State{
		QueueID:    e.queueID,
		Queue:      lo.Map(e.queue, func(t *music.Track, _ int) music.Track { return *t }),
		Index:      e.index,
		Mode:       e.mode,
		Progress:   e.progress,
		Lyrics:     append([]lyrics.Line(nil), e.lyrics.Lines()...),
		Playing:    !paused && e.index >= 0,
		Loading:    e.loading,
		Volume:     volume,
		Compact:    e.compact,
		LyricTypes: append([]string(nil), e.lyricTypes...),
	}
	if e.index >= 0 {
		current := *e.queue[e.index]
		s.Current = &current
	}
	return s
}
