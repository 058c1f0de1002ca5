// Package timefmt 时间格式化：秒数与显示字符串互转，以及时间戳解析
package timefmt

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var (
	// MM:SS 或 MM:SS.frac，分钟和小数位数都不限
	clockRe = regexp.MustCompile(`^\s*(\d+):(\d+)(?:\.(\d+))?\s*$`)
	// 三段式：HH:MM:SS 或歌词里的 MM:SS:frac
	threePartRe = regexp.MustCompile(`^\s*(\d+):(\d+):(\d+)\s*$`)
)

func valid(seconds float64) bool {
	return !math.IsNaN(seconds) && !math.IsInf(seconds, 0) && seconds >= 0
}

// FormatClock 秒数转换为 MM:SS，非法输入返回 00:00
func FormatClock(seconds float64) string {
	if !valid(seconds) {
		return "00:00"
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatClockWithHours 秒数转换为 HH:MM:SS
func FormatClockWithHours(seconds float64) string {
	if !valid(seconds) {
		return "00:00:00"
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}

// FormatClockDetailed 秒数转换为 MM:SS.cc
func FormatClockDetailed(seconds float64) string {
	if !valid(seconds) {
		return "00:00.00"
	}
	total := int(seconds)
	centis := int(math.Floor((seconds - float64(total)) * 100))
	return fmt.Sprintf("%02d:%02d.%02d", total/60, total%60, centis)
}

// ParseTimestamp 解析时间戳为秒数，无法解析时返回 0
//
// 接受 MM:SS、MM:SS.frac 和三段式。三段式的最后一段为三位及以上数字时视为
// MM:SS:xxx（冒号代替小数点），否则视为 HH:MM:SS。
// 歌词时间戳应使用 ParseLyricTimestamp，那里的三段式一律是小数。
func ParseTimestamp(text string) float64 {
	if m := threePartRe.FindStringSubmatch(text); m != nil {
		if len(m[3]) >= 3 {
			return clockSeconds(m[1], m[2], m[3])
		}
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		return float64(h*3600 + mi*60 + s)
	}
	return parseClock(text)
}

// ParseLyricTimestamp 解析歌词方括号内的时间戳
//
// 与 ParseTimestamp 不同，MM:SS:xx 的第三段总是小数部分。
func ParseLyricTimestamp(text string) float64 {
	if m := threePartRe.FindStringSubmatch(text); m != nil {
		return clockSeconds(m[1], m[2], m[3])
	}
	return parseClock(text)
}

func parseClock(text string) float64 {
	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	return clockSeconds(m[1], m[2], m[3])
}

// clockSeconds 小数部分按 0.<digits> 解释，位数不限
func clockSeconds(minutes, seconds, frac string) float64 {
	mi, err := strconv.Atoi(minutes)
	if err != nil {
		return 0
	}
	s, err := strconv.Atoi(seconds)
	if err != nil {
		return 0
	}
	result := float64(mi*60 + s)
	if frac != "" {
		f, err := strconv.ParseFloat("0."+frac, 64)
		if err != nil {
			return 0
		}
		result += f
	}
	return result
}
