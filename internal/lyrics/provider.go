// Package lyrics 歌词解析、高亮行计算以及歌词获取
package lyrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyric-player/pkg/music"
)

const defaultFetchTimeout = 20 * time.Second

func logger() *zerolog.Logger {
	l := log.With().Str("component", "lyrics").Logger()
	return &l
}

// Provider 依次查缓存、歌词源，再按需补全译文
type Provider struct {
	source     music.LyricSource
	cache      Cache
	translator music.Translator
	timeout    time.Duration
}

var _ music.LyricSource = (*Provider)(nil)

// ProviderOption 配置 Provider
type ProviderOption func(*Provider)

// WithCache cache 为 nil 时不缓存
func WithCache(cache Cache) ProviderOption {
	return func(p *Provider) { p.cache = cache }
}

// WithTranslator 原文没有译文时用 translator 生成
func WithTranslator(t music.Translator) ProviderOption {
	return func(p *Provider) { p.translator = t }
}

func WithTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) { p.timeout = d }
}

func NewProvider(source music.LyricSource, opts ...ProviderOption) *Provider {
	p := &Provider{source: source, timeout: defaultFetchTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetLyrics 获取歌词，没有歌词时返回 nil, nil
func (p *Provider) GetLyrics(ctx context.Context, track *music.Track) (*music.Lyrics, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.cache != nil {
		cached, err := p.cache.Get(ctx, track.ID)
		if err != nil {
			logger().Warn().Err(err).Str("track_id", track.ID).Msg("Failed to read lyric cache")
		} else if cached != nil {
			logger().Debug().Str("track_id", track.ID).Msg("Lyric cache HIT")
			return cached, nil
		}
	}

	lyrics, err := p.source.GetLyrics(ctx, track)
	if err != nil {
		return nil, fmt.Errorf("failed to get lyrics for '%s - %s': %w", track.Title, track.ArtistDisplay, err)
	}
	if lyrics.Empty() {
		return nil, nil
	}

	if lyrics.Translation == "" && p.translator != nil {
		p.fillTranslation(ctx, lyrics)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, track.ID, lyrics); err != nil {
			logger().Warn().Err(err).Str("track_id", track.ID).Msg("Failed to write lyric cache")
		}
	}
	return lyrics, nil
}

// fillTranslation 用同一时间轴合成译文歌词，失败时保持译文为空
func (p *Provider) fillTranslation(ctx context.Context, lyrics *music.Lyrics) {
	lines := Parse(lyrics.Original, "", "")
	if len(lines) == 0 || (len(lines) == 1 && lines[0].Text == InstrumentalText) {
		return
	}

	times := make([]float64, len(lines))
	texts := make([]string, len(lines))
	for i, l := range lines {
		times[i] = l.Time
		texts[i] = l.Text
	}

	translated, err := p.translator.TranslateLines(ctx, texts)
	if err != nil {
		logger().Warn().Err(err).Str("translator", p.translator.Name()).Msg("Failed to translate lyrics")
		return
	}
	lyrics.Translation = Compose(times, translated)
	logger().Info().Int("lines", len(translated)).Str("translator", p.translator.Name()).Msg("Filled lyric translation")
}
