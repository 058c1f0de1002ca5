package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"lyric-player/pkg/fileutil"
	"lyric-player/pkg/music"
	"lyric-player/pkg/redis"
)

// Cache 按歌曲 ID 缓存原始歌词，播放地址不进缓存
type Cache interface {
	Get(ctx context.Context, trackID string) (*music.Lyrics, error)
	Set(ctx context.Context, trackID string, lyrics *music.Lyrics) error
}

// FileCache 内存加文件两级缓存，文件为 cacheDir/<id>.json
type FileCache struct {
	dir    string
	memory sync.Map
}

var _ Cache = (*FileCache)(nil)

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(trackID string) string {
	return filepath.Join(c.dir, sanitizeFilename(trackID)+".json")
}

// Get 未命中时返回 nil, nil
func (c *FileCache) Get(ctx context.Context, trackID string) (*music.Lyrics, error) {
	if v, ok := c.memory.Load(trackID); ok {
		return v.(*music.Lyrics), nil
	}

	data, err := os.ReadFile(c.path(trackID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var l music.Lyrics
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("corrupt cache file for %s: %w", trackID, err)
	}
	c.memory.Store(trackID, &l)
	return &l, nil
}

func (c *FileCache) Set(ctx context.Context, trackID string, lyrics *music.Lyrics) error {
	data, err := json.Marshal(lyrics)
	if err != nil {
		return err
	}
	c.memory.Store(trackID, lyrics)
	return fileutil.WriteFileOverwrite(c.path(trackID), data, 0644)
}

// RedisCache 带过期时间的 Redis 缓存
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "lyric-player:lyrics:"}
}

func (c *RedisCache) Get(ctx context.Context, trackID string) (*music.Lyrics, error) {
	data, err := c.client.GetBytes(ctx, c.prefix+trackID)
	if err != nil || data == nil {
		return nil, err
	}
	var l music.Lyrics
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("corrupt cached lyrics for %s: %w", trackID, err)
	}
	return &l, nil
}

func (c *RedisCache) Set(ctx context.Context, trackID string, lyrics *music.Lyrics) error {
	data, err := json.Marshal(lyrics)
	if err != nil {
		return err
	}
	return c.client.SetWithExpiration(ctx, c.prefix+trackID, data, c.ttl)
}

var unsafeFilenameRe = regexp.MustCompile(`[\\/:*?"<>|]`)

func sanitizeFilename(name string) string {
	return unsafeFilenameRe.ReplaceAllString(name, "-")
}
