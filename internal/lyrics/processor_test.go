package lyrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleLines() []Line {
	return []Line{{Time: 0, Text: "A"}, {Time: 5, Text: "B"}, {Time: 10, Text: "C"}}
}

func TestUpdateIndexLookahead(t *testing.T) {
	p := NewProcessor(DefaultOffset)
	p.SetSequence(sampleLines())

	idx, changed := p.UpdateIndex(4.8)
	assert.True(t, changed)
	assert.Equal(t, 1, idx)

	idx, changed = p.UpdateIndex(4.6)
	assert.True(t, changed)
	assert.Equal(t, 0, idx)

	idx, changed = p.UpdateIndex(4.65)
	assert.False(t, changed)
	assert.Equal(t, 0, idx)
}

func TestUpdateIndexBeforeFirstLine(t *testing.T) {
	p := NewProcessor(0.3)
	p.SetSequence([]Line{{Time: 3, Text: "x"}})

	idx, changed := p.UpdateIndex(1)
	assert.False(t, changed)
	assert.Equal(t, -1, idx)

	p.Clear()
	idx, _ = p.UpdateIndex(100)
	assert.Equal(t, -1, idx)
}

func TestIndexAt(t *testing.T) {
	lines := sampleLines()
	assert.Equal(t, -1, IndexAt(nil, 3))
	assert.Equal(t, 0, IndexAt(lines, 0))
	assert.Equal(t, 1, IndexAt(lines, 9.99))
	assert.Equal(t, 2, IndexAt(lines, 1000))
}

func TestProcessorNavigation(t *testing.T) {
	p := NewProcessor(0)
	p.ParseAndSet("[00:00.00]A\n[00:05.00]B\n[00:10.00]C", "", "")
	assert.Equal(t, 3, p.Len())

	_, ok := p.CurrentLine()
	assert.False(t, ok)

	p.UpdateIndex(6)
	cur, ok := p.CurrentLine()
	assert.True(t, ok)
	assert.Equal(t, "B", cur.Text)

	prev, _ := p.PreviousLine()
	next, _ := p.NextLine()
	assert.Equal(t, "A", prev.Text)
	assert.Equal(t, "C", next.Text)

	assert.Len(t, p.LinesInRange(4, 10), 2)

	p.SetOffset(1.5)
	assert.Equal(t, 1.5, p.Offset())

	p.SetSequence(sampleLines())
	assert.Equal(t, -1, p.Index())
}
