package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"lyric-player/internal/lyrics"
	"lyric-player/internal/player"
	"lyric-player/internal/timefmt"
	"lyric-player/pkg/music"
)

var (
	ErrUnknownIntent = errors.New("unknown intent")
	ErrBadArgument   = errors.New("bad argument")
	ErrNoTrackSource = errors.New("track loading is not configured")
)

var lyricTypes = []string{lyrics.TypeOriginal, lyrics.TypeTranslation, lyrics.TypeTransliteration}

// Engine 意图分发需要的播放引擎能力
type Engine interface {
	PlayAtIndex(ctx context.Context, index int) error
	PlayNext(ctx context.Context) error
	PlayPrev(ctx context.Context) error
	TogglePlay(ctx context.Context) error
	Pause() error
	Seek(seconds float64) bool
	SetVolume(v float64) float64
	TogglePlayMode() player.PlayMode
	SetMode(mode player.PlayMode)
	PlayAll(ctx context.Context, tracks []*music.Track, start int) error
	AddTrack(track *music.Track)
	AddNext(track *music.Track)
	RemoveTrack(index int) bool
	Clear()
	ToggleCompact() bool
	SetLyricTypes(types []string)
	Len() int
	Snapshot() player.State
}

// Status status 意图的回复
type Status struct {
	QueueID  string          `json:"queueId"`
	Index    int             `json:"index"`
	Length   int             `json:"length"`
	Current  *music.Track    `json:"current,omitempty"`
	Mode     player.PlayMode `json:"mode"`
	Playing  bool            `json:"playing"`
	Loading  bool            `json:"loading"`
	Position string          `json:"position"`
	Duration string          `json:"duration"`
	Volume   float64         `json:"volume"`
	Compact  bool            `json:"compact"`
	Lyric    *lyrics.Line    `json:"lyric,omitempty"`
}

func NewStatus(s player.State) Status {
	st := Status{
		QueueID:  s.QueueID,
		Index:    s.Index,
		Length:   len(s.Queue),
		Current:  s.Current,
		Mode:     s.Mode,
		Playing:  s.Playing,
		Loading:  s.Loading,
		Position: timefmt.FormatClock(s.Progress.Position),
		Duration: timefmt.FormatClock(s.Progress.Duration),
		Volume:   s.Volume,
		Compact:  s.Compact,
	}
	if i := s.Progress.LyricIndex; i >= 0 && i < len(s.Lyrics) {
		line := s.Lyrics[i]
		st.Lyric = &line
	}
	return st
}

type Dispatcher struct {
	engine Engine
	tracks music.TrackSource
}

// NewDispatcher tracks 为 nil 时不支持按 ID 加载歌曲
func NewDispatcher(engine Engine, tracks music.TrackSource) *Dispatcher {
	return &Dispatcher{engine: engine, tracks: tracks}
}

// Handle 可直接作为 Server 的 Handler
func (d *Dispatcher) Handle(ctx context.Context, line string) string {
	reply, err := d.dispatch(ctx, strings.Fields(line))
	if err != nil {
		logger().Warn().Err(err).Str("intent", line).Msg("Intent failed")
		return "error: " + err.Error()
	}
	if reply == "" {
		return "ok"
	}
	return reply
}

func (d *Dispatcher) dispatch(ctx context.Context, fields []string) (string, error) {
	if len(fields) == 0 {
		return "", ErrUnknownIntent
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "play":
		n, err := intArg(args)
		if err != nil {
			return "", err
		}
		if n < 0 || n >= d.engine.Len() {
			return "", fmt.Errorf("%w: index %d out of range", ErrBadArgument, n)
		}
		return "", d.engine.PlayAtIndex(ctx, n)
	case "next":
		return "", d.engine.PlayNext(ctx)
	case "prev":
		return "", d.engine.PlayPrev(ctx)
	case "toggle":
		return "", d.engine.TogglePlay(ctx)
	case "pause":
		return "", d.engine.Pause()
	case "seek":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: seek needs a position", ErrBadArgument)
		}
		seconds, err := parseSeconds(args[0])
		if err != nil {
			return "", err
		}
		if !d.engine.Seek(seconds) {
			return "", fmt.Errorf("%w: cannot seek to %q", ErrBadArgument, args[0])
		}
		return "", nil
	case "volume":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: volume needs a value", ErrBadArgument)
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadArgument, err)
		}
		d.engine.SetVolume(v)
		return "", nil
	case "mode":
		if len(args) == 0 {
			d.engine.TogglePlayMode()
			return "", nil
		}
		mode, ok := player.ParsePlayMode(args[0])
		if !ok {
			return "", fmt.Errorf("%w: unknown play mode %q", ErrBadArgument, args[0])
		}
		d.engine.SetMode(mode)
		return "", nil
	case "load-playlist":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: load-playlist needs an id", ErrBadArgument)
		}
		if d.tracks == nil {
			return "", ErrNoTrackSource
		}
		tracks, err := d.tracks.GetPlaylistTracks(ctx, args[0])
		if err != nil {
			return "", err
		}
		return "", d.engine.PlayAll(ctx, tracks, 0)
	case "load-tracks":
		tracks, err := d.fetchTracks(ctx, args)
		if err != nil {
			return "", err
		}
		return "", d.engine.PlayAll(ctx, tracks, 0)
	case "add":
		tracks, err := d.fetchTracks(ctx, args)
		if err != nil {
			return "", err
		}
		for _, t := range tracks {
			d.engine.AddTrack(t)
		}
		return "", nil
	case "add-next":
		tracks, err := d.fetchTracks(ctx, args)
		if err != nil {
			return "", err
		}
		// 倒序插入，保持参数中的顺序
		for i := len(tracks) - 1; i >= 0; i-- {
			d.engine.AddNext(tracks[i])
		}
		return "", nil
	case "remove":
		n, err := intArg(args)
		if err != nil {
			return "", err
		}
		if !d.engine.RemoveTrack(n) {
			return "", fmt.Errorf("%w: index %d out of range", ErrBadArgument, n)
		}
		return "", nil
	case "clear":
		d.engine.Clear()
		return "", nil
	case "compact":
		d.engine.ToggleCompact()
		return "", nil
	case "lyrics":
		types := lo.Uniq(strings.FieldsFunc(strings.Join(args, ","), func(r rune) bool { return r == ',' }))
		if len(types) == 0 {
			return "", fmt.Errorf("%w: lyrics needs display types", ErrBadArgument)
		}
		if bad, ok := lo.Find(types, func(t string) bool { return !lo.Contains(lyricTypes, t) }); ok {
			return "", fmt.Errorf("%w: unknown lyric type %q", ErrBadArgument, bad)
		}
		d.engine.SetLyricTypes(types)
		return "", nil
	case "status":
		data, err := json.Marshal(NewStatus(d.engine.Snapshot()))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownIntent, cmd)
}

// fetchTracks 参数是逗号或空格分隔的歌曲 ID
func (d *Dispatcher) fetchTracks(ctx context.Context, args []string) ([]*music.Track, error) {
	ids := lo.Uniq(lo.Compact(strings.FieldsFunc(strings.Join(args, ","), func(r rune) bool {
		return r == ',' || r == ' '
	})))
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no track ids", ErrBadArgument)
	}
	if d.tracks == nil {
		return nil, ErrNoTrackSource
	}
	return d.tracks.GetTracks(ctx, ids)
}

// parseSeconds 接受秒数或 MM:SS 形式
func parseSeconds(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	if !strings.Contains(s, ":") {
		return 0, fmt.Errorf("%w: bad position %q", ErrBadArgument, s)
	}
	return timefmt.ParseTimestamp(s), nil
}

func intArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected one index", ErrBadArgument)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadArgument, err)
	}
	return n, nil
}
