package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport() (*Transport, *Memory) {
	mem := NewMemory()
	return New(mem), mem
}

func TestDefaultVolumeApplied(t *testing.T) {
	tr, mem := newTestTransport()
	assert.Equal(t, DefaultVolume, tr.Volume())
	assert.Equal(t, DefaultVolume, mem.VolumeLevel())
}

func TestSetVolumeClamps(t *testing.T) {
	tr, mem := newTestTransport()
	assert.Equal(t, 1.0, tr.SetVolume(1.5))
	assert.Equal(t, 1.0, tr.Volume())
	assert.Equal(t, 0.0, tr.SetVolume(-0.2))
	assert.Equal(t, 0.0, mem.VolumeLevel())
	assert.Equal(t, 0.35, tr.SetVolume(0.35))
}

func TestMultipleSubscribers(t *testing.T) {
	tr, mem := newTestTransport()

	var first, second int
	unsubFirst, err := tr.On(EventPlay, func(Event) { first++ })
	require.NoError(t, err)
	_, err = tr.On(EventPlay, func(Event) { second++ })
	require.NoError(t, err)

	require.NoError(t, tr.Play(context.Background(), "a"))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)

	unsubFirst()
	unsubFirst()
	require.NoError(t, tr.Pause())
	require.NoError(t, tr.Play(context.Background(), ""))
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, []string{"a", "a"}, mem.Plays())
}

func TestOnUnknownEvent(t *testing.T) {
	tr, _ := newTestTransport()
	_, err := tr.On("volumechange", func(Event) {})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestPlayLoadsOnlyWhenSourceChanges(t *testing.T) {
	tr, mem := newTestTransport()
	ctx := context.Background()

	var loaded int
	tr.On(EventLoadedMetadata, func(Event) { loaded++ })

	require.NoError(t, tr.Play(ctx, "a"))
	mem.Advance(3)
	require.NoError(t, tr.Play(ctx, "a"))
	assert.Equal(t, 3.0, tr.CurrentTime())
	assert.Equal(t, 1, loaded)

	require.NoError(t, tr.Play(ctx, "b"))
	assert.Equal(t, 0.0, tr.CurrentTime())
	assert.Equal(t, "b", tr.Source())
	assert.Equal(t, 2, loaded)
}

func TestPlayFailureIsReturned(t *testing.T) {
	tr, mem := newTestTransport()
	cause := errors.New("decode error")
	mem.Fail("bad", cause)

	assert.ErrorIs(t, tr.Play(context.Background(), "bad"), cause)
	assert.True(t, tr.Paused())
}

func TestInterruptedPlayIsSwallowed(t *testing.T) {
	tr, mem := newTestTransport()
	ctx := context.Background()
	mem.Hold("slow")

	var wg sync.WaitGroup
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		slowErr = tr.Play(ctx, "slow")
	}()

	require.Eventually(t, mem.Waiting, time.Second, time.Millisecond)
	require.NoError(t, tr.Play(ctx, "fast"))
	wg.Wait()

	assert.NoError(t, slowErr)
	assert.Equal(t, "fast", tr.Source())
	assert.Equal(t, []string{"fast"}, mem.Plays())
}

func TestSeekGuards(t *testing.T) {
	tr, mem := newTestTransport()
	ctx := context.Background()

	// 时长未知时忽略
	require.NoError(t, tr.Play(ctx, "a"))
	assert.False(t, tr.Seek(10))

	mem.SetLength("a", 100)
	assert.True(t, tr.Seek(42))
	assert.Equal(t, 42.0, tr.CurrentTime())
	assert.False(t, tr.Seek(-1))
	assert.False(t, tr.Seek(101))
	assert.Equal(t, 42.0, tr.CurrentTime())
	assert.True(t, tr.Seek(100))
}

func TestToggle(t *testing.T) {
	tr, _ := newTestTransport()
	ctx := context.Background()

	require.NoError(t, tr.Play(ctx, "a"))
	require.NoError(t, tr.Toggle(ctx))
	assert.True(t, tr.Paused())
	require.NoError(t, tr.Toggle(ctx))
	assert.False(t, tr.Paused())
}

func TestEndedEvent(t *testing.T) {
	tr, mem := newTestTransport()
	mem.SetLength("a", 5)

	var ended, ticks int
	tr.On(EventEnded, func(Event) { ended++ })
	tr.On(EventTimeUpdate, func(Event) { ticks++ })

	require.NoError(t, tr.Play(context.Background(), "a"))
	mem.Advance(3)
	mem.Advance(3)
	assert.Equal(t, 2, ticks)
	assert.Equal(t, 1, ended)
	assert.True(t, tr.Paused())
	assert.Equal(t, "", tr.Source())

	// 播完的音源需要重新加载
	var loaded int
	tr.On(EventLoadedMetadata, func(Event) { loaded++ })
	require.NoError(t, tr.Play(context.Background(), "a"))
	assert.Equal(t, 1, loaded)
	assert.Equal(t, "a", tr.Source())
	assert.False(t, tr.Paused())
}

func TestDestroyIsIdempotent(t *testing.T) {
	tr, mem := newTestTransport()

	var calls int
	tr.On(EventError, func(Event) { calls++ })

	require.NoError(t, tr.Destroy())
	require.NoError(t, tr.Destroy())

	mem.Emit(Event{Type: EventError})
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, tr.Play(context.Background(), "a"), ErrClosed)
	_, err := tr.On(EventPlay, func(Event) {})
	assert.ErrorIs(t, err, ErrClosed)
}
