package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyric-player/pkg/music"
)

type AiInterface interface {
	Name() string
	HandleText(ctx context.Context, msg string) (string, error)
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "ai-translator").Logger()
	return &l
}

// Translator 用大模型逐行翻译歌词
type Translator struct {
	client AiInterface
	target string
}

var _ music.Translator = (*Translator)(nil)

// NewTranslator target 为目标语言描述，为空时翻译成简体中文
func NewTranslator(client AiInterface, target string) *Translator {
	if target == "" {
		target = "简体中文"
	}
	return &Translator{client: client, target: target}
}

func (t *Translator) Name() string {
	return t.client.Name()
}

func formatTranslatePrompt(target string, lines []string) (string, error) {
	payload, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`请把下面 JSON 数组中的每一行歌词翻译成%s，返回一个长度完全相同的 JSON 字符串数组，`+
		`每个元素对应原数组同一位置的译文。已经是%s的行原样返回。切记不要任何markdown格式，不要任何解释。歌词是：%s`,
		target, target, payload), nil
}

// TranslateLines 翻译歌词行，返回与输入等长的译文
func (t *Translator) TranslateLines(ctx context.Context, lines []string) ([]string, error) {
	if len(lines) == 0 {
		return []string{}, nil
	}

	prompt, err := formatTranslatePrompt(t.target, lines)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	raw, err := t.client.HandleText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s translation failed: %w", t.client.Name(), err)
	}

	var out []string
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", t.client.Name(), err)
	}
	if len(out) != len(lines) {
		logger().Warn().Int("want", len(lines)).Int("got", len(out)).Msg("Translation line count mismatch")
		return nil, fmt.Errorf("translation returned %d lines, want %d", len(out), len(lines))
	}
	return out, nil
}

// stripCodeFence 模型偶尔仍然会包一层 ```json
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
