package prefs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"lyric-player/internal/player"
	"lyric-player/pkg/redis"
)

// DefaultRedisKey 偏好保存在这个 hash 中
const DefaultRedisKey = "lyric-player:prefs"

type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (Preferences, error) {
	fields, err := s.client.HGetAll(ctx, s.key)
	if err != nil {
		return Default(), fmt.Errorf("failed to load preferences from redis: %w", err)
	}
	return fromHash(fields), nil
}

func (s *RedisStore) Save(ctx context.Context, p Preferences) error {
	p = p.Validate()
	err := s.client.HSet(ctx, s.key,
		"volume", strconv.FormatFloat(p.Volume, 'f', -1, 64),
		"play_mode", p.PlayMode.String(),
		"lyric_types", strings.Join(p.LyricTypes, ","),
		"compact", strconv.FormatBool(p.Compact),
	)
	if err != nil {
		return fmt.Errorf("failed to save preferences to redis: %w", err)
	}
	return nil
}

// fromHash 解析 hash 字段，缺失或非法的字段使用默认值
func fromHash(fields map[string]string) Preferences {
	p := Default()
	if v, ok := fields["volume"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.Volume = f
		} else {
			p.Volume = -1
		}
	}
	if v, ok := fields["play_mode"]; ok {
		mode, valid := player.ParsePlayMode(v)
		if !valid {
			logger().Warn().Str("play_mode", v).Msg("Unknown stored play mode")
		}
		p.PlayMode = mode
	}
	if v, ok := fields["lyric_types"]; ok {
		p.LyricTypes = strings.Split(v, ",")
	}
	if v, ok := fields["compact"]; ok {
		p.Compact, _ = strconv.ParseBool(v)
	}
	return p.Validate()
}
