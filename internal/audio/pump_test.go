package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPumpCaptureChunksThenStop(t *testing.T) {
	sender := &recordingSender{}
	pump := NewPump(NewFrameBuilder(NewBufferPool(FrameBytes, 2), sender, nil))

	offset := 0
	for _, n := range []int{1000, 1500, 100} {
		pump.Push(ramp(n, offset))
		offset += n
	}

	require.Len(t, sender.frames, 1, "first 2048 samples form one frame")

	assert.True(t, pump.Stop())
	require.Len(t, sender.frames, 2)

	second := sender.frames[1]
	assert.Len(t, second, FrameBytes)
	for i := 0; i < 552; i++ {
		require.Equal(t, int16(BatchSamples+i), sampleAt(second, i))
	}
	for i := 552; i < BatchSamples; i++ {
		require.Equal(t, int16(0), sampleAt(second, i))
	}

	stats := pump.Stats()
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 2600, stats.Samples)
	assert.Equal(t, 2, stats.Frames)
}

func TestPumpStopIsOnce(t *testing.T) {
	sender := &recordingSender{}
	pump := NewPump(NewFrameBuilder(NewBufferPool(FrameBytes, 0), sender, nil))

	pump.Push(ramp(10, 0))
	assert.True(t, pump.Stop())
	assert.False(t, pump.Stop())
	assert.True(t, pump.Stopped())

	assert.Equal(t, 0, pump.Push(ramp(BatchSamples, 0)), "pushes after stop are ignored")
	assert.Len(t, sender.frames, 1)
}

func TestPumpStopWithoutPending(t *testing.T) {
	sender := &recordingSender{}
	pump := NewPump(NewFrameBuilder(NewBufferPool(FrameBytes, 0), sender, nil))

	pump.Push(ramp(BatchSamples, 0))
	assert.False(t, pump.Stop())
	assert.Len(t, sender.frames, 1)
}
