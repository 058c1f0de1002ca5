package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"lyric-player/internal/config"
	"lyric-player/internal/lyrics"
	"lyric-player/internal/player"
	"lyric-player/internal/prefs"
	"lyric-player/internal/transport"
	"lyric-player/pkg/ai"
	"lyric-player/pkg/ai/gemini"
	"lyric-player/pkg/ai/openai"
	"lyric-player/pkg/lrclib"
	"lyric-player/pkg/music"
	"lyric-player/pkg/netease"
	"lyric-player/pkg/redis"
	"lyric-player/pkg/tencent"
)

func newBackend(ctx context.Context, cfg config.AppConfig) (transport.Backend, error) {
	switch cfg.Backend {
	case "null":
		log.Info().Msg("Using null audio backend")
		return transport.NewMemory(), nil
	case "mpv", "":
		if cfg.MPVSocket != "" {
			return transport.ConnectMPV(ctx, cfg.MPVSocket)
		}
		return transport.StartMPV(ctx, transport.MPVOptions{Path: cfg.MPVPath})
	}
	return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
}

// newRedis 连接失败时返回 nil，调用方回退到文件存储
func newRedis(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	client, err := redis.NewClient(cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Failed to connect to Redis, falling back to files")
		return nil
	}
	log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return client
}

func newLyricCache(cfg *config.Config, rdb *redis.Client) lyrics.Cache {
	if rdb != nil {
		return lyrics.NewRedisCache(rdb, cfg.Redis.LyricTTL)
	}
	cache, err := lyrics.NewFileCache(cfg.App.CacheDir)
	if err != nil {
		log.Warn().Err(err).Str("cache_dir", cfg.App.CacheDir).Msg("Lyric cache disabled")
		return nil
	}
	return cache
}

// newTranslator 返回的 io.Closer 可能为 nil
func newTranslator(ctx context.Context, cfg config.TranslateConfig) (music.Translator, io.Closer, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil, nil
	case "openai":
		return ai.NewTranslator(openai.NewOpenAi(cfg.APIKey, cfg.Model, cfg.BaseURL), cfg.Target), nil, nil
	case "gemini":
		client, err := gemini.NewGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return ai.NewTranslator(client, cfg.Target), client, nil
	case "tencent":
		client, err := tencent.NewClient(cfg.SecretID, cfg.SecretKey, cfg.Region, tencentTarget(cfg.Target))
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown translation provider %q", cfg.Provider)
}

// tencentTarget 腾讯翻译只接受语言代码，"简体中文" 这类描述回退到默认的 zh
func tencentTarget(target string) string {
	if len(target) > 0 && len(target) <= 5 && strings.Trim(target, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ-") == "" {
		return target
	}
	return ""
}

func newLyricSource(ctx context.Context, cfg *config.Config, ne *netease.Client, rdb *redis.Client) (*lyrics.Provider, io.Closer) {
	providers := []music.MusicAPI{ne}
	if cfg.LRCLib.Enabled {
		providers = append(providers, lrclib.NewClient(cfg.LRCLib.BaseURL))
	}
	opts := []lyrics.ProviderOption{lyrics.WithCache(newLyricCache(cfg, rdb))}

	translator, closer, err := newTranslator(ctx, cfg.Translate)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("provider", cfg.Translate.Provider).Msg("Lyric translation disabled")
	case translator != nil:
		log.Info().Str("translator", translator.Name()).Msg("Lyric translation enabled")
		opts = append(opts, lyrics.WithTranslator(translator))
	}
	return lyrics.NewProvider(music.NewManager(providers), opts...), closer
}

func newPrefsStore(cfg config.PrefsConfig, rdb *redis.Client) prefs.Store {
	if cfg.Store == "redis" {
		if rdb != nil {
			return prefs.NewRedisStore(rdb, "")
		}
		log.Warn().Msg("Redis unavailable, saving preferences to a file")
	}
	return prefs.NewFileStore(cfg.Path)
}

func engineOptions(cfg config.PlaybackConfig) player.Options {
	return player.Options{
		Quality:          music.ParseQuality(cfg.Quality),
		LyricOffset:      cfg.LyricOffset,
		ProgressInterval: cfg.ProgressInterval,
		Guard: player.SkipGuard{
			MaxConsecutive:   cfg.MaxConsecutiveSkips,
			Cooldown:         cfg.SkipCooldown,
			UnavailableRatio: cfg.UnavailableRatio,
			MaxProbes:        cfg.MaxSkipProbes,
		},
	}
}
