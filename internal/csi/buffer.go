package csi

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SampleBuffer is a fixed-capacity store of amplitude samples. When an append
// would overflow it, the oldest frame-width of samples is discarded and the
// rest shifted down.
//
// SampleBuffer is not safe for concurrent use; the pipeline that owns it
// serialises access.
type SampleBuffer struct {
	samples    []float64
	tail       int
	frameWidth int

	compactions uint64
}

// NewSampleBuffer allocates a buffer of capacity samples that compacts by
// frameWidth samples at a time.
func NewSampleBuffer(capacity, frameWidth int) (*SampleBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("sample buffer capacity must be positive, got %d", capacity)
	}
	if frameWidth <= 0 || frameWidth > capacity {
		return nil, fmt.Errorf("frame width %d must be in (0, %d]", frameWidth, capacity)
	}

	return &SampleBuffer{
		samples:    make([]float64, capacity),
		frameWidth: frameWidth,
	}, nil
}

// Append stores samples after the current tail, compacting once first if they
// would not fit. Samples that still do not fit after the compaction are
// dropped. It returns the number of samples stored.
func (b *SampleBuffer) Append(samples []float64) int {
	capacity := len(b.samples)
	if b.tail+len(samples) > capacity {
		b.compact()
	}

	n := copy(b.samples[b.tail:], samples)
	b.tail += n
	return n
}

func (b *SampleBuffer) compact() {
	shift := len(b.samples) - b.frameWidth
	copy(b.samples, b.samples[b.frameWidth:])
	b.tail = shift
	b.compactions++
}

// FillLevel returns the write cursor.
func (b *SampleBuffer) FillLevel() int { return b.tail }

// Capacity returns the fixed number of samples the buffer holds.
func (b *SampleBuffer) Capacity() int { return len(b.samples) }

// Compactions returns how many times the buffer has been compacted.
func (b *SampleBuffer) Compactions() uint64 { return b.compactions }

// Window returns the most recent rows×cols samples as a rows×cols matrix, one
// row per frame and one column per subcarrier. The matrix shares storage with
// the buffer and is only valid until the next Append.
func (b *SampleBuffer) Window(rows, cols int) (mat.Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("window dimensions %dx%d must be positive", rows, cols)
	}
	n := rows * cols
	if b.tail < n {
		return nil, ErrInsufficientData
	}

	return mat.NewDense(rows, cols, b.samples[b.tail-n:b.tail:b.tail]), nil
}
