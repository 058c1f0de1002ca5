package lyrics

// DefaultOffset 歌词提前显示的秒数，抵消感知延迟
const DefaultOffset = 0.3

// Processor 持有当前歌曲的歌词序列和高亮行
//
// 不是并发安全的，由播放引擎在自己的锁内使用。
type Processor struct {
	lines  []Line
	index  int
	offset float64
}

// NewProcessor 创建歌词处理器
func NewProcessor(offset float64) *Processor {
	return &Processor{index: -1, offset: offset}
}

// SetSequence 替换歌词序列，高亮行复位
func (p *Processor) SetSequence(lines []Line) {
	if lines == nil {
		lines = []Line{}
	}
	p.lines = lines
	p.index = -1
}

// ParseAndSet 解析歌词文本并替换序列
func (p *Processor) ParseAndSet(original, translation, transliteration string) []Line {
	p.SetSequence(Parse(original, translation, transliteration))
	return p.lines
}

// UpdateIndex 根据播放位置计算高亮行，只有变化时 changed 为 true
func (p *Processor) UpdateIndex(position float64) (index int, changed bool) {
	idx := IndexAt(p.lines, position+p.offset)
	if idx == p.index {
		return p.index, false
	}
	p.index = idx
	return idx, true
}

// IndexAt 二分查找最后一个 Time <= t 的行，t 在第一行之前或序列为空时返回 -1
func IndexAt(lines []Line, t float64) int {
	if len(lines) == 0 || t < lines[0].Time {
		return -1
	}

	left, right := 0, len(lines)-1
	result := -1
	for left <= right {
		mid := (left + right) / 2
		if lines[mid].Time <= t {
			result = mid
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	return result
}

// Clear 清空歌词
func (p *Processor) Clear() {
	p.lines = []Line{}
	p.index = -1
}

func (p *Processor) Index() int { return p.index }

func (p *Processor) Len() int { return len(p.lines) }

func (p *Processor) Lines() []Line { return p.lines }

func (p *Processor) Offset() float64 { return p.offset }

func (p *Processor) SetOffset(offset float64) { p.offset = offset }

// LineAt 越界时返回 false
func (p *Processor) LineAt(i int) (Line, bool) {
	if i < 0 || i >= len(p.lines) {
		return Line{}, false
	}
	return p.lines[i], true
}

func (p *Processor) CurrentLine() (Line, bool) { return p.LineAt(p.index) }

func (p *Processor) PreviousLine() (Line, bool) { return p.LineAt(p.index - 1) }

func (p *Processor) NextLine() (Line, bool) { return p.LineAt(p.index + 1) }

// LinesInRange 返回 start <= Time <= end 的行
func (p *Processor) LinesInRange(start, end float64) []Line {
	var out []Line
	for _, l := range p.lines {
		if l.Time >= start && l.Time <= end {
			out = append(out, l)
		}
	}
	return out
}
