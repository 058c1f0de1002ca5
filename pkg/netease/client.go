package netease

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
	"github.com/samber/lo"

	"lyric-player/pkg/music"
)

const (
	DefaultBaseURL = "http://localhost:3000"
	DefaultTimeout = 10 * time.Second

	// 歌单一次最多取的歌曲数
	playlistPageSize = 500
)

func logger() *zerolog.Logger {
	l := log.With().Str("component", "netease").Logger()
	return &l
}

var (
	_ music.StreamSource = (*Client)(nil)
	_ music.MusicAPI     = (*Client)(nil)
	_ music.TrackSource  = (*Client)(nil)
)

// Client NeteaseCloudMusicApi 客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	cookie     string
}

// NewClient 创建新的网易云音乐客户端
func NewClient(baseURL, cookie string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookie:     cookie,
	}
}

// GetProviderName 获取提供商名称
func (c *Client) GetProviderName() string {
	return string(music.ProviderNetEase)
}

// GetStreamURL 获取歌曲播放地址
//
// 服务返回空地址时（版权、地区或 VIP 限制）返回 "", nil。
func (c *Client) GetStreamURL(ctx context.Context, trackID string, level music.Quality) (string, error) {
	params := url.Values{}
	params.Set("id", trackID)
	params.Set("level", string(level))

	var result SongURLResponse
	if err := c.get(ctx, "/song/url/v1", params, &result); err != nil {
		return "", fmt.Errorf("failed to get song url for %s: %w", trackID, err)
	}
	if result.Code != http.StatusOK {
		return "", fmt.Errorf("song url API returned code %d: %s", result.Code, result.Msg)
	}

	if len(result.Data) == 0 || result.Data[0].URL == "" {
		logger().Info().Str("track_id", trackID).Str("level", string(level)).Msg("Empty song url, track is restricted")
		return "", nil
	}
	return result.Data[0].URL, nil
}

// GetLyrics 获取原文、翻译和罗马音歌词
func (c *Client) GetLyrics(ctx context.Context, track *music.Track) (*music.Lyrics, error) {
	params := url.Values{}
	params.Set("id", track.ID)

	var result LyricResponse
	if err := c.get(ctx, "/lyric", params, &result); err != nil {
		return nil, fmt.Errorf("failed to get lyric for %s: %w", track.ID, err)
	}

	if result.Nolyric || result.Lrc.Lyric == "" {
		logger().Debug().Str("track_id", track.ID).Msg("No lyric on NetEase")
		return nil, nil
	}

	return &music.Lyrics{
		Original:        result.Lrc.Lyric,
		Translation:     result.Tlyric.Lyric,
		Transliteration: result.Romalrc.Lyric,
	}, nil
}

// GetTracks 根据歌曲 ID 获取歌曲详情，返回顺序与 ids 一致
func (c *Client) GetTracks(ctx context.Context, ids []string) ([]*music.Track, error) {
	ids = lo.Uniq(lo.Compact(ids))
	if len(ids) == 0 {
		return []*music.Track{}, nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))

	var result SongDetailResponse
	if err := c.get(ctx, "/song/detail", params, &result); err != nil {
		return nil, fmt.Errorf("failed to get song detail: %w", err)
	}
	if result.Code != http.StatusOK {
		return nil, fmt.Errorf("song detail API returned code %d: %s", result.Code, result.Msg)
	}

	byID := lo.SliceToMap(result.Songs, func(s Song) (string, *music.Track) {
		t := s.ToTrack()
		return t.ID, t
	})
	tracks := lo.FilterMap(ids, func(id string, _ int) (*music.Track, bool) {
		t, ok := byID[id]
		return t, ok
	})
	if len(tracks) < len(ids) {
		logger().Warn().Int("requested", len(ids)).Int("found", len(tracks)).Msg("Some songs were not found")
	}
	return tracks, nil
}

// GetPlaylistTracks 获取歌单中的全部歌曲
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistID string) ([]*music.Track, error) {
	var tracks []*music.Track
	for offset := 0; ; offset += playlistPageSize {
		params := url.Values{}
		params.Set("id", playlistID)
		params.Set("limit", fmt.Sprint(playlistPageSize))
		params.Set("offset", fmt.Sprint(offset))

		var result SongDetailResponse
		if err := c.get(ctx, "/playlist/track/all", params, &result); err != nil {
			return nil, fmt.Errorf("failed to get playlist %s: %w", playlistID, err)
		}
		if result.Code != http.StatusOK {
			return nil, fmt.Errorf("playlist API returned code %d: %s", result.Code, result.Msg)
		}

		tracks = append(tracks, lo.Map(result.Songs, func(s Song, _ int) *music.Track {
			return s.ToTrack()
		})...)
		if len(result.Songs) < playlistPageSize {
			break
		}
	}

	logger().Info().Str("playlist_id", playlistID).Int("tracks", len(tracks)).Msg("Loaded playlist")
	return tracks, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	logger().Debug().Str("url", reqURL).Msg("Requesting NetEase API")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// 设置cookie确保返回正常码率的url
	req.AddCookie(&http.Cookie{Name: "os", Value: "pc"})
	if c.cookie != "" {
		req.Header.Set("Cookie", req.Header.Get("Cookie")+"; "+c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API request failed with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
