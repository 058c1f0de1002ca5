package music

import (
	"context"
)

// Quality 音质等级
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHigher   Quality = "higher"
	QualityExhigh   Quality = "exhigh"
	QualityLossless Quality = "lossless"
	QualityHires    Quality = "hires"
)

// ParseQuality 解析音质等级，未知值回退到 standard
func ParseQuality(s string) Quality {
	switch q := Quality(s); q {
	case QualityStandard, QualityHigher, QualityExhigh, QualityLossless, QualityHires:
		return q
	default:
		return QualityStandard
	}
}

// Track 播放队列中的歌曲
//
// StreamURL 在第一次播放时才获取，只在本次会话内有效，不能持久化。
// Unavailable/LastError/RetryCount 是会话级的播放状态，由播放引擎维护。
type Track struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	ArtistDisplay   string  `json:"artist"`
	AlbumName       string  `json:"album"`
	CoverURL        string  `json:"cover"`
	DurationSeconds float64 `json:"duration"`

	StreamURL   string `json:"-"`
	Unavailable bool   `json:"unavailable,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	RetryCount  int    `json:"-"`
}

// ResetSession 清除会话级的播放状态
func (t *Track) ResetSession() {
	t.Unavailable = false
	t.LastError = ""
	t.RetryCount = 0
}

// Lyrics 原始歌词文本（LRC 格式）
type Lyrics struct {
	Original        string `json:"original"`
	Translation     string `json:"translation,omitempty"`
	Transliteration string `json:"transliteration,omitempty"`
}

// Empty 没有可用的原文歌词
func (l *Lyrics) Empty() bool {
	return l == nil || l.Original == ""
}

// StreamSource 获取播放地址
//
// 返回空字符串且 err 为 nil 表示歌曲受限（版权、地区或 VIP），
// 只有网络或服务错误才返回 err。
type StreamSource interface {
	GetStreamURL(ctx context.Context, trackID string, level Quality) (string, error)
}

// LyricSource 获取歌词，没有歌词时返回 nil, nil
type LyricSource interface {
	GetLyrics(ctx context.Context, track *Track) (*Lyrics, error)
}

// TrackSource 根据歌曲或歌单 ID 构建播放队列
type TrackSource interface {
	GetTracks(ctx context.Context, ids []string) ([]*Track, error)
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]*Track, error)
}

// Translator 逐行翻译歌词，返回与输入等长的译文
type Translator interface {
	Name() string
	TranslateLines(ctx context.Context, lines []string) ([]string, error)
}

// MusicAPI 音乐API通用接口
type MusicAPI interface {
	LyricSource

	// GetProviderName 获取音乐提供商名称
	GetProviderName() string
}
