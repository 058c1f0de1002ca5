package main

import (
	"bytes"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"

	"lyric-player/internal/ipc"
	"lyric-player/internal/lyrics"
	"lyric-player/internal/player"
	"lyric-player/pkg/music"
)

func TestRenderStatus(t *testing.T) {
	text.DisableColors()
	defer text.EnableColors()

	var buf bytes.Buffer
	renderStatus(&buf, ipc.Status{
		Index:    1,
		Length:   3,
		Current:  &music.Track{Title: "Hello", ArtistDisplay: "Adele"},
		Mode:     player.Shuffle,
		Playing:  true,
		Position: "01:15",
		Duration: "03:20",
		Volume:   0.7,
		Lyric:    &lyrics.Line{Text: "Hello from the other side", Translation: "来自彼岸的问候"},
	})
	out := buf.String()

	assert.Contains(t, out, "Adele - Hello")
	assert.Contains(t, out, "playing")
	assert.Contains(t, out, "01:15 / 03:20")
	assert.Contains(t, out, "2 / 3")
	assert.Contains(t, out, "SHUFFLE")
	assert.Contains(t, out, "70%")
	assert.Contains(t, out, "Hello from the other side / 来自彼岸的问候")
}

func TestRenderStatusIdle(t *testing.T) {
	text.DisableColors()
	defer text.EnableColors()

	var buf bytes.Buffer
	renderStatus(&buf, ipc.Status{Index: -1, Position: "00:00", Duration: "00:00"})
	assert.Contains(t, buf.String(), "stopped")
	assert.Contains(t, buf.String(), "0 / 0")
}
