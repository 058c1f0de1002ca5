package app

import (
	"fmt"

	"lyric-player/internal/player"
	"lyric-player/pkg/music"
)

// displayText 状态栏和订阅客户端看到的一行文字
func displayText(s player.State) string {
	if s.Current == nil {
		return idleText
	}
	label := trackLabel(s.Current)
	if s.Loading {
		return fmt.Sprintf("... Loading %s ...", label)
	}
	if i := s.Progress.LyricIndex; i >= 0 && i < len(s.Lyrics) {
		if text := s.Lyrics[i].Render(s.LyricTypes, s.Compact); text != "" {
			return text
		}
	}
	return label
}

func trackLabel(t *music.Track) string {
	switch {
	case t.ArtistDisplay == "":
		return t.Title
	case t.Title == "":
		return t.ArtistDisplay
	}
	return t.ArtistDisplay + " - " + t.Title
}
