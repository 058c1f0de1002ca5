package lyrics

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"lyric-player/internal/timefmt"
)

const (
	// InstrumentalMarker 出现在原文歌词中表示纯音乐
	InstrumentalMarker = "纯音乐"
	// InstrumentalText 纯音乐时唯一一行歌词的内容
	InstrumentalText = "纯音乐，请欣赏"
)

// 作词作曲等署名行不是歌词
var creditMarkers = []string{"作词", "作曲"}

// 时间标签：[00:00] [00:00.00] [00:00.000] [00:00:00] [100:00]
var timeTagRe = regexp.MustCompile(`\[(\d+:\d+(?:[.:]\d+)?)\]`)

// Line 一行同步歌词
type Line struct {
	Time            float64 `json:"time"`
	Text            string  `json:"text"`
	Translation     string  `json:"translation,omitempty"`
	Transliteration string  `json:"transliteration,omitempty"`
}

// Parse 解析原文、翻译和音译歌词，返回按时间升序的歌词行
//
// 三种文本按毫秒时间戳对齐。原文为空时返回空序列，翻译不能单独决定时间轴。
func Parse(original, translation, transliteration string) []Line {
	if original == "" {
		return []Line{}
	}

	if strings.Contains(original, InstrumentalMarker) {
		return []Line{{Time: 0, Text: InstrumentalText}}
	}

	origMap, order := parseToMap(original)
	transMap, _ := parseToMap(translation)
	romaMap, _ := parseToMap(transliteration)

	result := make([]Line, 0, len(order))
	for _, key := range order {
		text := strings.Join(origMap[key], "\n")
		if isCredit(text) {
			continue
		}
		result = append(result, Line{
			Time:            float64(key) / 1000,
			Text:            text,
			Translation:     strings.Join(transMap[key], "\n"),
			Transliteration: strings.Join(romaMap[key], "\n"),
		})
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].Time < result[j].Time })
	return result
}

// ParseLRC 只解析原文歌词
func ParseLRC(lrc string) []Line {
	return Parse(lrc, "", "")
}

// parseToMap 按整数毫秒分组，同一时间戳的多行依次累积
func parseToMap(text string) (map[int64][]string, []int64) {
	groups := make(map[int64][]string)
	var order []int64
	if text == "" {
		return groups, order
	}

	for _, raw := range strings.Split(text, "\n") {
		loc := timeTagRe.FindStringSubmatchIndex(raw)
		if loc == nil {
			continue
		}
		stamp := raw[loc[2]:loc[3]]
		content := strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])
		if content == "" {
			continue
		}

		key := int64(math.Round(timefmt.ParseLyricTimestamp(stamp) * 1000))
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], content)
	}
	return groups, order
}

func isCredit(text string) bool {
	for _, marker := range creditMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// FormatTag 生成 [mm:ss.xxx] 形式的时间标签，精确到毫秒以便与原文对齐
func FormatTag(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	return fmt.Sprintf("[%02d:%02d.%03d]", ms/60000, ms/1000%60, ms%1000)
}

// Compose 把歌词行重新拼成 LRC 文本，用于用同一时间轴生成译文歌词
func Compose(times []float64, texts []string) string {
	var b strings.Builder
	for i := range times {
		if i >= len(texts) {
			break
		}
		// 多行文本每行都带同一个标签，解析时会重新合并
		tag := FormatTag(times[i])
		for _, part := range strings.Split(texts[i], "\n") {
			b.WriteString(tag)
			b.WriteString(part)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
