package lrclib

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyric-player/pkg/music"
)

const (
	DefaultBaseURL = "https://lrclib.net/api"

	// 最大允许3秒时长误差
	maxDurationDiff = 3
)

func logger() *zerolog.Logger {
	l := log.With().Str("component", "lrclib").Logger()
	return &l
}

var _ music.MusicAPI = (*Client)(nil)

// Client LRCLib客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryDelay time.Duration
}

// LRCLibResponse LRCLib API响应结构
type LRCLibResponse struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// NewClient 创建新的LRCLib客户端，baseURL 为空时使用官方地址
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
	}
}

// GetProviderName 返回提供商名称
func (c *Client) GetProviderName() string {
	return string(music.ProviderLRCLib)
}

// GetLyrics 按标题、歌手和时长查找同步歌词
//
// LRCLib 只有纯文本歌词时视为没有歌词，纯文本无法同步。
func (c *Client) GetLyrics(ctx context.Context, track *music.Track) (*music.Lyrics, error) {
	if track.Title == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("track_name", track.Title)
	if track.ArtistDisplay != "" {
		params.Set("artist_name", firstArtist(track.ArtistDisplay))
	}

	var results []LRCLibResponse
	if err := c.getWithRetry(ctx, "/search?"+params.Encode(), &results); err != nil {
		return nil, err
	}

	logger().Debug().Int("results", len(results)).Str("title", track.Title).Msg("LRCLib search finished")
	if len(results) == 0 {
		return nil, nil
	}

	best := findBestMatch(results, track.Title, firstArtist(track.ArtistDisplay), int(track.DurationSeconds))
	switch {
	case best.Instrumental:
		return &music.Lyrics{Original: "[00:00.00]纯音乐"}, nil
	case best.SyncedLyrics != "":
		logger().Info().
			Str("track", best.TrackName).
			Str("artist", best.ArtistName).
			Float64("duration", best.Duration).
			Msg("Selected synced lyrics")
		return &music.Lyrics{Original: best.SyncedLyrics}, nil
	default:
		return nil, nil
	}
}

func (c *Client) getWithRetry(ctx context.Context, path string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger().Debug().Int("attempt", attempt).Msg("Retrying request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			}
		}

		retry, err := c.get(ctx, path, out)
		if err == nil {
			return nil
		}
		lastErr = err
		logger().Warn().Err(err).Int("attempt", attempt+1).Msg("LRCLib request failed")
		if !retry {
			break
		}
	}
	return fmt.Errorf("lrclib request failed: %w", lastErr)
}

// get 返回的 bool 表示错误是否值得重试
func (c *Client) get(ctx context.Context, path string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "lyric-player/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode >= 500, fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return false, nil
}

// findBestMatch 从搜索结果中找到最佳匹配的歌词
//
// 优先标题加歌手都匹配的结果，其次只匹配标题的，再在其中挑时长最接近的。
func findBestMatch(responses []LRCLibResponse, targetTitle, targetArtist string, targetDuration int) *LRCLibResponse {
	var exactMatches, titleMatches []*LRCLibResponse
	for i := range responses {
		r := &responses[i]
		if !containsIgnoreCase(r.TrackName, targetTitle) {
			continue
		}
		if targetArtist != "" && containsIgnoreCase(r.ArtistName, targetArtist) {
			exactMatches = append(exactMatches, r)
		} else {
			titleMatches = append(titleMatches, r)
		}
	}

	pool := exactMatches
	if len(pool) == 0 {
		pool = titleMatches
	}
	if len(pool) == 0 {
		pool = make([]*LRCLibResponse, len(responses))
		for i := range responses {
			pool[i] = &responses[i]
		}
	}

	// 有同步歌词的排在前面
	synced := make([]*LRCLibResponse, 0, len(pool))
	for _, r := range pool {
		if r.SyncedLyrics != "" || r.Instrumental {
			synced = append(synced, r)
		}
	}
	if len(synced) > 0 {
		pool = synced
	}

	if targetDuration <= 0 {
		return pool[0]
	}

	best := pool[0]
	minDiff := abs(int(best.Duration) - targetDuration)
	for _, m := range pool {
		diff := abs(int(m.Duration) - targetDuration)
		if diff <= maxDurationDiff {
			return m
		}
		if diff < minDiff {
			minDiff = diff
			best = m
		}
	}
	logger().Debug().Int("diff_seconds", minDiff).Msg("No match within duration threshold, using closest")
	return best
}

// firstArtist 多歌手时只取第一个用于搜索
func firstArtist(display string) string {
	for _, sep := range []string{" / ", "/", ",", "、", "&"} {
		if i := strings.Index(display, sep); i > 0 {
			return strings.TrimSpace(display[:i])
		}
	}
	return strings.TrimSpace(display)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// containsIgnoreCase 忽略大小写检查包含关系
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
