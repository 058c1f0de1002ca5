package lyrics

import "strings"

// 歌词显示类型
const (
	TypeOriginal        = "original"
	TypeTranslation     = "translation"
	TypeTransliteration = "transliteration"
)

const renderSeparator = " / "

// Render 按显示类型拼接一行歌词，紧凑模式只保留第一个非空的部分
func (l Line) Render(types []string, compact bool) string {
	if len(types) == 0 {
		types = []string{TypeOriginal}
	}
	parts := make([]string, 0, len(types))
	for _, t := range types {
		var text string
		switch t {
		case TypeOriginal:
			text = l.Text
		case TypeTranslation:
			text = l.Translation
		case TypeTransliteration:
			text = l.Transliteration
		}
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		parts = append(parts, text)
		if compact {
			break
		}
	}
	return strings.Join(parts, renderSeparator)
}
