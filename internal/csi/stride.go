package csi

import "fmt"

// StrideScheduler fires once every Stride ticks. The pipeline uses one to gate
// classification and another to gate reporting.
type StrideScheduler struct {
	stride  int
	counter int
}

// NewStrideScheduler returns a scheduler that fires on every stride-th tick.
func NewStrideScheduler(stride int) (*StrideScheduler, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("stride must be positive, got %d", stride)
	}
	return &StrideScheduler{stride: stride}, nil
}

// Tick advances the counter and reports whether it reached the stride, in
// which case the counter is reset to zero.
func (s *StrideScheduler) Tick() bool {
	s.counter++
	if s.counter >= s.stride {
		s.counter = 0
		return true
	}
	return false
}

// Counter returns the number of ticks since the last trigger.
func (s *StrideScheduler) Counter() int { return s.counter }

// Stride returns the configured period.
func (s *StrideScheduler) Stride() int { return s.stride }
