package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	appName = "lyric-player"

	DefaultSocketPath       = "/tmp/lyric_player.sock"
	DefaultStatusFile       = "/tmp/lyrics"
	DefaultBackend          = "mpv"
	DefaultQuality          = "exhigh"
	DefaultLyricOffset      = 0.3
	DefaultProgressInterval = 100 * time.Millisecond
	DefaultSkipCooldown     = 3 * time.Second
	DefaultNeteaseBaseURL   = "http://localhost:3000"
	DefaultNeteaseTimeout   = 10 * time.Second
	DefaultLyricCacheTTL    = 7 * 24 * time.Hour
)

func getDefaultCacheDir() string {
	// 优先使用 XDG_CACHE_HOME 环境变量
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "lyric_player_cache"
	}
	return filepath.Join(homeDir, ".cache", appName)
}

// TomlConfig TOML配置文件结构，时长字段保持字符串，在 Load 中解析
type TomlConfig struct {
	App struct {
		SocketPath      string `toml:"socket_path"`
		CacheDir        string `toml:"cache_dir"`
		StatusFile      string `toml:"status_file"`
		StatusbarSignal *bool  `toml:"statusbar_signal"`
		StatusMaxWidth  int    `toml:"status_max_width"`
		Backend         string `toml:"backend"`
		MPVPath         string `toml:"mpv_path"`
		MPVSocket       string `toml:"mpv_socket"`
	} `toml:"app"`

	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"log"`

	Playback struct {
		Quality             string  `toml:"quality"`
		LyricOffset         float64 `toml:"lyric_offset"`
		ProgressInterval    string  `toml:"progress_interval"`
		MaxConsecutiveSkips int     `toml:"max_consecutive_skips"`
		SkipCooldown        string  `toml:"skip_cooldown"`
		UnavailableRatio    float64 `toml:"unavailable_ratio"`
		MaxSkipProbes       int     `toml:"max_skip_probes"`
	} `toml:"playback"`

	Netease struct {
		BaseURL string `toml:"base_url"`
		Cookie  string `toml:"cookie"`
		Timeout string `toml:"timeout"`
	} `toml:"netease"`

	LRCLib struct {
		Enabled *bool  `toml:"enabled"`
		BaseURL string `toml:"base_url"`
	} `toml:"lrclib"`

	Redis struct {
		Enabled  bool   `toml:"enabled"`
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		LyricTTL string `toml:"lyric_ttl"`
	} `toml:"redis"`

	Prefs struct {
		Store string `toml:"store"`
		Path  string `toml:"path"`
	} `toml:"prefs"`

	Translate struct {
		Provider  string `toml:"provider"`
		Model     string `toml:"model"`
		APIKey    string `toml:"api_key"`
		BaseURL   string `toml:"base_url"`
		Target    string `toml:"target"`
		SecretID  string `toml:"secret_id"`
		SecretKey string `toml:"secret_key"`
		Region    string `toml:"region"`
	} `toml:"translate"`
}

// AppConfig 应用配置
type AppConfig struct {
	SocketPath      string
	CacheDir        string
	StatusFile      string
	StatusbarSignal bool
	// StatusMaxWidth 状态文件一行的最大显示宽度，0 不截断
	StatusMaxWidth int
	// Backend mpv 或 null（不出声，只跑歌词）
	Backend string
	MPVPath string
	// MPVSocket 非空时连接已经在运行的 mpv，而不是自己启动
	MPVSocket string
}

// LogConfig 日志配置，File 为空时只输出到终端
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// PlaybackConfig 播放引擎参数
type PlaybackConfig struct {
	Quality             string
	LyricOffset         float64
	ProgressInterval    time.Duration
	MaxConsecutiveSkips int
	SkipCooldown        time.Duration
	UnavailableRatio    float64
	MaxSkipProbes       int
}

// NeteaseConfig NeteaseCloudMusicApi 服务配置
type NeteaseConfig struct {
	BaseURL string
	Cookie  string
	Timeout time.Duration
}

type LRCLibConfig struct {
	Enabled bool
	BaseURL string
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LyricTTL time.Duration
}

// PrefsConfig 偏好存储，Store 为 file 或 redis
type PrefsConfig struct {
	Store string
	Path  string
}

// TranslateConfig 歌词翻译，Provider 为 none、openai、gemini 或 tencent
type TranslateConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Target    string
	SecretID  string
	SecretKey string
	Region    string
}

// Config 主配置结构
type Config struct {
	App       AppConfig
	Log       LogConfig
	Playback  PlaybackConfig
	Netease   NeteaseConfig
	LRCLib    LRCLibConfig
	Redis     RedisConfig
	Prefs     PrefsConfig
	Translate TranslateConfig
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	// 优先使用 XDG_CONFIG_HOME 环境变量
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warn().Err(err).Msg("Cannot get user home directory")
		return "config.toml"
	}
	return filepath.Join(homeDir, ".config", appName, "config.toml")
}

// loadTomlConfig 加载TOML配置文件，文件不存在时返回空配置
func loadTomlConfig(path string) (*TomlConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", path).Msg("Config file not found, using defaults")
		return &TomlConfig{}, nil
	}

	var config TomlConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("Loaded config")
	return &config, nil
}

// Defaults 返回不读取任何文件时的配置
func Defaults() *Config {
	cacheDir := getDefaultCacheDir()
	return &Config{
		App: AppConfig{
			SocketPath:      DefaultSocketPath,
			CacheDir:        cacheDir,
			StatusFile:      DefaultStatusFile,
			StatusbarSignal: false,
			Backend:         DefaultBackend,
			MPVPath:         "mpv",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Playback: PlaybackConfig{
			Quality:             DefaultQuality,
			LyricOffset:         DefaultLyricOffset,
			ProgressInterval:    DefaultProgressInterval,
			MaxConsecutiveSkips: 5,
			SkipCooldown:        DefaultSkipCooldown,
			UnavailableRatio:    0.8,
			MaxSkipProbes:       10,
		},
		Netease: NeteaseConfig{
			BaseURL: DefaultNeteaseBaseURL,
			Timeout: DefaultNeteaseTimeout,
		},
		LRCLib: LRCLibConfig{
			Enabled: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			LyricTTL: DefaultLyricCacheTTL,
		},
		Prefs: PrefsConfig{
			Store: "file",
			Path:  filepath.Join(filepath.Dir(GetConfigPath()), "prefs.toml"),
		},
		Translate: TranslateConfig{
			Provider: "none",
			Target:   "简体中文",
			Region:   "ap-guangzhou",
		},
	}
}

// Load 依次应用默认值、.env、配置文件和环境变量
func Load() *Config {
	return LoadFrom(GetConfigPath())
}

func LoadFrom(path string) *Config {
	// .env 可选，不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	tomlConfig, err := loadTomlConfig(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to load config file, using defaults")
		tomlConfig = &TomlConfig{}
	}

	config := Defaults()
	applyToml(config, tomlConfig)
	applyEnv(config)
	return config
}

func parseDuration(name, value string, target *time.Duration) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		log.Warn().Str("field", name).Str("value", value).Msg("Invalid duration, using default")
		return
	}
	*target = d
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func setInt(target *int, value int) {
	if value > 0 {
		*target = value
	}
}

func applyToml(config *Config, t *TomlConfig) {
	setString(&config.App.SocketPath, t.App.SocketPath)
	setString(&config.App.CacheDir, t.App.CacheDir)
	setString(&config.App.StatusFile, t.App.StatusFile)
	setString(&config.App.Backend, t.App.Backend)
	setString(&config.App.MPVPath, t.App.MPVPath)
	setString(&config.App.MPVSocket, t.App.MPVSocket)
	setInt(&config.App.StatusMaxWidth, t.App.StatusMaxWidth)
	if t.App.StatusbarSignal != nil {
		config.App.StatusbarSignal = *t.App.StatusbarSignal
	}

	setString(&config.Log.Level, t.Log.Level)
	setString(&config.Log.File, t.Log.File)
	setInt(&config.Log.MaxSizeMB, t.Log.MaxSizeMB)
	setInt(&config.Log.MaxBackups, t.Log.MaxBackups)
	setInt(&config.Log.MaxAgeDays, t.Log.MaxAgeDays)

	setString(&config.Playback.Quality, t.Playback.Quality)
	if t.Playback.LyricOffset != 0 {
		config.Playback.LyricOffset = t.Playback.LyricOffset
	}
	parseDuration("playback.progress_interval", t.Playback.ProgressInterval, &config.Playback.ProgressInterval)
	parseDuration("playback.skip_cooldown", t.Playback.SkipCooldown, &config.Playback.SkipCooldown)
	setInt(&config.Playback.MaxConsecutiveSkips, t.Playback.MaxConsecutiveSkips)
	setInt(&config.Playback.MaxSkipProbes, t.Playback.MaxSkipProbes)
	if r := t.Playback.UnavailableRatio; r > 0 && r <= 1 {
		config.Playback.UnavailableRatio = r
	} else if r != 0 {
		log.Warn().Float64("value", r).Msg("Invalid playback.unavailable_ratio, using default")
	}

	setString(&config.Netease.BaseURL, t.Netease.BaseURL)
	setString(&config.Netease.Cookie, t.Netease.Cookie)
	parseDuration("netease.timeout", t.Netease.Timeout, &config.Netease.Timeout)

	if t.LRCLib.Enabled != nil {
		config.LRCLib.Enabled = *t.LRCLib.Enabled
	}
	setString(&config.LRCLib.BaseURL, t.LRCLib.BaseURL)

	config.Redis.Enabled = t.Redis.Enabled
	setString(&config.Redis.Addr, t.Redis.Addr)
	setString(&config.Redis.Password, t.Redis.Password)
	if t.Redis.DB != 0 {
		config.Redis.DB = t.Redis.DB
	}
	parseDuration("redis.lyric_ttl", t.Redis.LyricTTL, &config.Redis.LyricTTL)

	setString(&config.Prefs.Store, t.Prefs.Store)
	setString(&config.Prefs.Path, t.Prefs.Path)

	setString(&config.Translate.Provider, t.Translate.Provider)
	setString(&config.Translate.Model, t.Translate.Model)
	setString(&config.Translate.APIKey, t.Translate.APIKey)
	setString(&config.Translate.BaseURL, t.Translate.BaseURL)
	setString(&config.Translate.Target, t.Translate.Target)
	setString(&config.Translate.SecretID, t.Translate.SecretID)
	setString(&config.Translate.SecretKey, t.Translate.SecretKey)
	setString(&config.Translate.Region, t.Translate.Region)
}

// applyEnv 环境变量只补充配置文件中没有的密钥
func applyEnv(config *Config) {
	if config.Netease.Cookie == "" {
		config.Netease.Cookie = os.Getenv("NETEASE_COOKIE")
	}
	if config.Translate.APIKey == "" {
		switch config.Translate.Provider {
		case "openai":
			config.Translate.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			config.Translate.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if config.Translate.SecretID == "" {
		config.Translate.SecretID = os.Getenv("TENCENT_SECRET_ID")
	}
	if config.Translate.SecretKey == "" {
		config.Translate.SecretKey = os.Getenv("TENCENT_SECRET_KEY")
	}

	if config.Translate.Provider != "none" && config.Translate.APIKey == "" && config.Translate.Provider != "tencent" {
		log.Warn().
			Str("provider", config.Translate.Provider).
			Str("config", GetConfigPath()).
			Msg("No translation API key configured, lyric translation disabled")
		config.Translate.Provider = "none"
	}
}
