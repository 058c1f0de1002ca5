package lyrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMergesTranslation(t *testing.T) {
	lines := Parse("[00:05.00]Hi", "[00:05.00]Hola", "")
	require.Len(t, lines, 1)
	assert.InDelta(t, 5.0, lines[0].Time, 1e-9)
	assert.Equal(t, "Hi", lines[0].Text)
	assert.Equal(t, "Hola", lines[0].Translation)
	assert.Empty(t, lines[0].Transliteration)
}

func TestParseTimestampVariants(t *testing.T) {
	lrc := "[00:01]a\n[00:02.5]b\n[00:03.25]c\n[00:04.125]d\n[00:05:50]e\n[100:00]f"
	lines := Parse(lrc, "", "")
	require.Len(t, lines, 6)

	want := []float64{1, 2.5, 3.25, 4.125, 5.5, 6000}
	for i, w := range want {
		assert.InDelta(t, w, lines[i].Time, 1e-9, "line %d", i)
	}
}

func TestParseLongFraction(t *testing.T) {
	lines := Parse("[00:01.00]first\n[00:05.1234]second", "", "")
	require.Len(t, lines, 2)
	assert.Equal(t, "second", lines[1].Text)
	assert.InDelta(t, 5.123, lines[1].Time, 1e-3)
}

func TestParseTranslationMatchesAcrossPrecision(t *testing.T) {
	// 两位和三位小数表示同一毫秒时应当对齐
	lines := Parse("[00:10.50]original", "[00:10.500]translated", "[00:10:50]roma")
	require.Len(t, lines, 1)
	assert.Equal(t, "translated", lines[0].Translation)
	assert.Equal(t, "roma", lines[0].Transliteration)
}

func TestParseDuplicateTimestampsAccumulate(t *testing.T) {
	lines := Parse("[00:07.00]first\n[00:07.00]second\n[00:03.00]earlier", "", "")
	require.Len(t, lines, 2)
	assert.Equal(t, "earlier", lines[0].Text)
	assert.Equal(t, "first\nsecond", lines[1].Text)
}

func TestParseDropsCreditsAndEmptyLines(t *testing.T) {
	lrc := "[00:00.00]作词 : 某人\n[00:01.00]作曲 : 某人\n[00:02.00]   \n[ar:artist]\nno tag\n[00:03.00]sung"
	lines := Parse(lrc, "", "")
	require.Len(t, lines, 1)
	assert.Equal(t, "sung", lines[0].Text)
}

func TestParseInstrumental(t *testing.T) {
	lines := Parse("[00:00.00]作曲 : x\n[00:12.00]纯音乐，请欣赏", "[00:01.00]t", "")
	require.Len(t, lines, 1)
	assert.Equal(t, 0.0, lines[0].Time)
	assert.Equal(t, InstrumentalText, lines[0].Text)
}

func TestParseEmptyOriginal(t *testing.T) {
	assert.Empty(t, Parse("", "[00:01.00]translation only", "[00:01.00]roma"))
}

func TestParseIsSortedAndDeterministic(t *testing.T) {
	lrc := "[01:00.00]c\n[00:30.00]b\n[00:10.00]a\n[00:30.00]b2\r\n[02:00.00]d"
	first := Parse(lrc, "", "")
	second := Parse(lrc, "", "")
	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.LessOrEqual(t, first[i-1].Time, first[i].Time)
	}
	assert.Equal(t, "b\nb2", first[1].Text)
}

func TestComposeRoundTrip(t *testing.T) {
	orig := Parse("[00:01.23]one\n[01:02.345]two", "", "")
	times := []float64{orig[0].Time, orig[1].Time}
	composed := Compose(times, []string{"uno", "dos"})

	lines := Parse("[00:01.23]one\n[01:02.345]two", composed, "")
	require.Len(t, lines, 2)
	assert.Equal(t, "uno", lines[0].Translation)
	assert.Equal(t, "dos", lines[1].Translation)
	assert.Equal(t, "[01:02.345]", FormatTag(62.345))
}
