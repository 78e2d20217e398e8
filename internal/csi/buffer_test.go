package csi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(start, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(start + i)
	}
	return out
}

func TestNewSampleBuffer_RejectsBadGeometry(t *testing.T) {
	_, err := NewSampleBuffer(0, 4)
	assert.Error(t, err)

	_, err = NewSampleBuffer(8, 0)
	assert.Error(t, err)

	_, err = NewSampleBuffer(8, 9)
	assert.Error(t, err)
}

func TestSampleBuffer_AppendWithinCapacity(t *testing.T) {
	b, err := NewSampleBuffer(16, 4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		before := b.FillLevel()
		n := b.Append(seq(i*4, 4))
		assert.Equal(t, 4, n)
		assert.Equal(t, before+4, b.FillLevel())
	}
	assert.Equal(t, uint64(0), b.Compactions())

	assert.Equal(t, seq(0, 16), b.samples)
}

func TestSampleBuffer_CompactsOneFrameWidth(t *testing.T) {
	b, err := NewSampleBuffer(16, 4)
	require.NoError(t, err)
	b.Append(seq(0, 16))

	before := make([]float64, 16)
	copy(before, b.samples)

	n := b.Append(seq(100, 4))
	assert.Equal(t, 4, n)
	assert.Equal(t, uint64(1), b.Compactions())
	assert.Equal(t, 16, b.FillLevel())
	assert.Equal(t, before[4:16], b.samples[0:12])
	assert.Equal(t, seq(100, 4), b.samples[12:16])
}

func TestSampleBuffer_FillLevelNeverExceedsCapacity(t *testing.T) {
	b, err := NewSampleBuffer(20, 4)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		b.Append(seq(i, 1+i%7))
		require.LessOrEqual(t, b.FillLevel(), b.Capacity())
	}
}

func TestSampleBuffer_OversizedBatchIsTruncated(t *testing.T) {
	b, err := NewSampleBuffer(8, 2)
	require.NoError(t, err)
	b.Append(seq(0, 8))

	// one compaction frees two slots, the rest of the batch is dropped
	n := b.Append(seq(50, 5))
	assert.Equal(t, 2, n)
	assert.Equal(t, 8, b.FillLevel())
	assert.Equal(t, uint64(1), b.Compactions())
}

func TestSampleBuffer_WindowInsufficientData(t *testing.T) {
	b, err := NewSampleBuffer(100, 4)
	require.NoError(t, err)
	b.Append(seq(0, 39))

	_, err = b.Window(10, 4)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = b.Window(0, 4)
	assert.Error(t, err)
}

func TestSampleBuffer_WindowIsMostRecentRows(t *testing.T) {
	b, err := NewSampleBuffer(100, 4)
	require.NoError(t, err)
	b.Append(seq(0, 48))

	w, err := b.Window(10, 4)
	require.NoError(t, err)

	rows, cols := w.Dims()
	assert.Equal(t, 10, rows)
	assert.Equal(t, 4, cols)
	assert.Equal(t, 8.0, w.At(0, 0))
	assert.Equal(t, 11.0, w.At(0, 3))
	assert.Equal(t, 47.0, w.At(9, 3))
}
