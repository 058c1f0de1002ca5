package lrclib

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lyric-player/pkg/music"
)

const searchBody = `[
	{"id":1,"trackName":"Song","artistName":"Other","duration":200,"syncedLyrics":"[00:01.00]wrong artist"},
	{"id":2,"trackName":"Song","artistName":"Singer","duration":150,"syncedLyrics":"[00:01.00]too short"},
	{"id":3,"trackName":"Song (Live)","artistName":"Singer","duration":201,"syncedLyrics":"[00:01.00]right"},
	{"id":4,"trackName":"Song","artistName":"Singer","duration":200,"plainLyrics":"plain only"}
]`

func TestGetLyricsPicksBestMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Singer", r.URL.Query().Get("artist_name"))
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	l, err := c.GetLyrics(context.Background(), &music.Track{
		Title: "Song", ArtistDisplay: "Singer / Feat", DurationSeconds: 200,
	})
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "[00:01.00]right", l.Original)
}

func TestGetLyricsNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	l, err := NewClient(srv.URL).GetLyrics(context.Background(), &music.Track{Title: "x"})
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestGetLyricsInstrumental(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"trackName":"Calm","artistName":"B","instrumental":true}]`))
	}))
	defer srv.Close()

	l, err := NewClient(srv.URL).GetLyrics(context.Background(), &music.Track{Title: "Calm", ArtistDisplay: "B"})
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Contains(t, l.Original, "纯音乐")
}

func TestGetLyricsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"trackName":"T","artistName":"A","syncedLyrics":"[00:02.00]ok"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.retryDelay = time.Millisecond
	l, err := c.GetLyrics(context.Background(), &music.Track{Title: "T", ArtistDisplay: "A"})
	require.NoError(t, err)
	assert.Equal(t, "[00:02.00]ok", l.Original)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetLyricsDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetLyrics(context.Background(), &music.Track{Title: "T"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFirstArtist(t *testing.T) {
	assert.Equal(t, "A", firstArtist("A / B"))
	assert.Equal(t, "周杰伦", firstArtist("周杰伦、费玉清"))
	assert.Equal(t, "Solo", firstArtist(" Solo "))
}

func TestProviderName(t *testing.T) {
	assert.Equal(t, "lrclib", NewClient("").GetProviderName())
	assert.Equal(t, string(music.ProviderLRCLib), NewClient("http://localhost").GetProviderName())
}
