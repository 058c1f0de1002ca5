package player

import "strings"

// PlayMode 决定下一首/上一首的选取规则
type PlayMode int

const (
	// Sequential 顺序播放，到达末尾后停止
	Sequential PlayMode = iota
	// ListLoop 列表循环
	ListLoop
	// SingleLoop 单曲循环
	SingleLoop
	// Shuffle 随机播放，按预先生成的排列前进
	Shuffle
)

var modeNames = map[PlayMode]string{
	Sequential: "SEQUENTIAL",
	ListLoop:   "LIST_LOOP",
	SingleLoop: "SINGLE_LOOP",
	Shuffle:    "SHUFFLE",
}

func (m PlayMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "UNKNOWN"
}

// Valid 是否为已知的播放模式
func (m PlayMode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// Next SEQUENTIAL→LIST_LOOP→SINGLE_LOOP→SHUFFLE→SEQUENTIAL
func (m PlayMode) Next() PlayMode {
	if !m.Valid() {
		return Sequential
	}
	return (m + 1) % PlayMode(len(modeNames))
}

// ParsePlayMode 解析模式名称（大小写不敏感），未知名称返回 false
func ParsePlayMode(s string) (PlayMode, bool) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for m, n := range modeNames {
		if n == name {
			return m, true
		}
	}
	return Sequential, false
}

func (m PlayMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText 未知名称回退到 Sequential
func (m *PlayMode) UnmarshalText(b []byte) error {
	*m, _ = ParsePlayMode(string(b))
	return nil
}
