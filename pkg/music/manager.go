package music

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Provider 音乐提供商类型
type Provider string

const (
	// ProviderNetEase 网易云音乐
	ProviderNetEase Provider = "netease"
	// ProviderLRCLib LRCLib歌词库
	ProviderLRCLib Provider = "lrclib"
)

var ErrNoProviders = errors.New("no music providers available")

func logger() *zerolog.Logger {
	l := log.With().Str("component", "music-manager").Logger()
	return &l
}

// Manager 歌词提供商管理器，按顺序回退
type Manager struct {
	providers []MusicAPI
	primary   MusicAPI
}

var _ MusicAPI = (*Manager)(nil)

// NewManager 创建新的音乐API管理器
func NewManager(providers []MusicAPI) *Manager {
	if len(providers) == 0 {
		logger().Warn().Msg("No music providers configured")
		return &Manager{}
	}

	primary := providers[0]
	logger().Info().
		Int("provider_count", len(providers)).
		Str("primary_provider", primary.GetProviderName()).
		Msg("Music API Manager initialized")

	return &Manager{
		providers: providers,
		primary:   primary,
	}
}

// GetLyrics 获取歌词，支持多提供商回退
//
// 某个提供商返回 nil（没有歌词）时继续尝试下一个；全部没有歌词时返回 nil, nil，
// 只有全部提供商都出错时才返回错误。
func (m *Manager) GetLyrics(ctx context.Context, track *Track) (*Lyrics, error) {
	if len(m.providers) == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error
	failures := 0
	for i, provider := range m.providers {
		logger().Debug().
			Str("provider", provider.GetProviderName()).
			Str("track_id", track.ID).
			Int("attempt", i+1).
			Int("total_providers", len(m.providers)).
			Msg("Trying to get lyrics from provider")

		lyrics, err := provider.GetLyrics(ctx, track)
		if err != nil {
			logger().Warn().
				Str("provider", provider.GetProviderName()).
				Str("track_id", track.ID).
				Err(err).
				Msg("Provider failed")
			lastErr = err
			failures++
			continue
		}
		if lyrics.Empty() {
			continue
		}

		logger().Info().
			Str("provider", provider.GetProviderName()).
			Str("track_id", track.ID).
			Msg("Successfully got lyrics")
		return lyrics, nil
	}

	if failures == len(m.providers) {
		return nil, fmt.Errorf("all providers failed for '%s - %s', last error: %w", track.Title, track.ArtistDisplay, lastErr)
	}
	return nil, nil
}

// GetProviderName 获取管理器名称（实现MusicAPI接口）
func (m *Manager) GetProviderName() string {
	if m.primary != nil {
		return fmt.Sprintf("Manager[Primary: %s]", m.primary.GetProviderName())
	}
	return "Manager[No Providers]"
}

// GetProviderNames 获取所有提供商名称
func (m *Manager) GetProviderNames() []string {
	names := make([]string, len(m.providers))
	for i, provider := range m.providers {
		names[i] = provider.GetProviderName()
	}
	return names
}
