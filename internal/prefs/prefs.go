// Package prefs 持久化用户偏好：音量、播放模式、歌词显示类型和紧凑模式。
// 播放队列、播放地址和不可用歌曲集合都不持久化。
package prefs

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"lyric-player/internal/lyrics"
	"lyric-player/internal/player"
)

const (
	LyricOriginal        = lyrics.TypeOriginal
	LyricTranslation     = lyrics.TypeTranslation
	LyricTransliteration = lyrics.TypeTransliteration
)

var knownLyricTypes = []string{LyricOriginal, LyricTranslation, LyricTransliteration}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "prefs").Logger()
	return &l
}

type Preferences struct {
	Volume     float64         `toml:"volume" json:"volume"`
	PlayMode   player.PlayMode `toml:"play_mode" json:"playMode"`
	LyricTypes []string        `toml:"lyric_types" json:"lyricTypes"`
	Compact    bool            `toml:"compact" json:"compact"`
}

// Store 偏好存储
type Store interface {
	// Load 没有保存过时返回默认值
	Load(ctx context.Context) (Preferences, error)
	Save(ctx context.Context, p Preferences) error
}

func Default() Preferences {
	return Preferences{
		Volume:     0.7,
		PlayMode:   player.Sequential,
		LyricTypes: []string{LyricOriginal, LyricTranslation},
	}
}

// Validate 修正恢复出来的非法值
func (p Preferences) Validate() Preferences {
	def := Default()
	if math.IsNaN(p.Volume) || p.Volume < 0 || p.Volume > 1 {
		logger().Warn().Float64("volume", p.Volume).Msg("Invalid stored volume, using default")
		p.Volume = def.Volume
	}
	if !p.PlayMode.Valid() {
		logger().Warn().Int("play_mode", int(p.PlayMode)).Msg("Invalid stored play mode, using default")
		p.PlayMode = def.PlayMode
	}
	types := lo.Uniq(lo.Filter(p.LyricTypes, func(t string, _ int) bool {
		return lo.Contains(knownLyricTypes, t)
	}))
	if len(types) == 0 {
		types = def.LyricTypes
	}
	p.LyricTypes = types
	return p
}

// FromState 从引擎快照中取出需要持久化的字段
func FromState(s player.State) Preferences {
	return Preferences{
		Volume:     s.Volume,
		PlayMode:   s.Mode,
		LyricTypes: append([]string(nil), s.LyricTypes...),
		Compact:    s.Compact,
	}
}

// Apply 把偏好恢复到引擎
func (p Preferences) Apply(e *player.Engine) {
	p = p.Validate()
	e.SetVolume(p.Volume)
	e.SetMode(p.PlayMode)
	e.SetLyricTypes(p.LyricTypes)
	e.SetCompact(p.Compact)
}

// Equal 比较两份偏好
func (p Preferences) Equal(o Preferences) bool {
	return p.Volume == o.Volume &&
		p.PlayMode == o.PlayMode &&
		p.Compact == o.Compact &&
		strings.Join(p.LyricTypes, ",") == strings.Join(o.LyricTypes, ",")
}
