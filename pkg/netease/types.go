package netease

import (
	"strconv"
	"strings"

	"github.com/samber/lo"

	"lyric-player/pkg/music"
)

// Artist 歌手
type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Album 专辑
type Album struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	PicURL string `json:"picUrl"`
}

// Song 网易云歌曲信息
//
// 新接口使用 ar/al/dt，搜索等旧接口使用 artists/album/duration，两套字段都接收。
type Song struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`

	Ar []Artist `json:"ar"`
	Al *Album   `json:"al"`
	Dt int      `json:"dt"`

	Artists  []Artist `json:"artists"`
	Album    *Album   `json:"album"`
	Duration int      `json:"duration"`
}

// SongURLResponse /song/url/v1 响应
type SongURLResponse struct {
	Data []struct {
		ID  int64  `json:"id"`
		URL string `json:"url"`
	} `json:"data"`
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
}

// LyricResponse /lyric 响应
type LyricResponse struct {
	Code int `json:"code"`
	Lrc  struct {
		Lyric string `json:"lyric"`
	} `json:"lrc"`
	Tlyric struct {
		Lyric string `json:"lyric"`
	} `json:"tlyric"`
	Romalrc struct {
		Lyric string `json:"lyric"`
	} `json:"romalrc"`
	Nolyric bool `json:"nolyric"`
}

// SongDetailResponse /song/detail 与 /playlist/track/all 响应
type SongDetailResponse struct {
	Songs []Song `json:"songs"`
	Code  int    `json:"code"`
	Msg   string `json:"msg,omitempty"`
}

func (s Song) artists() []Artist {
	if len(s.Ar) > 0 {
		return s.Ar
	}
	return s.Artists
}

func (s Song) album() Album {
	if s.Al != nil {
		return *s.Al
	}
	if s.Album != nil {
		return *s.Album
	}
	return Album{}
}

func (s Song) durationMs() int {
	if s.Dt > 0 {
		return s.Dt
	}
	return s.Duration
}

// ToTrack 转换为播放队列使用的 Track
func (s Song) ToTrack() *music.Track {
	album := s.album()
	names := lo.FilterMap(s.artists(), func(a Artist, _ int) (string, bool) {
		return a.Name, a.Name != ""
	})
	return &music.Track{
		ID:              strconv.FormatInt(s.ID, 10),
		Title:           s.Name,
		ArtistDisplay:   strings.Join(names, " / "),
		AlbumName:       album.Name,
		CoverURL:        album.PicURL,
		DurationSeconds: float64(s.durationMs()) / 1000,
	}
}
