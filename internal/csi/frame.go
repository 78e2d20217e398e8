// Package csi holds the streaming motion-presence core: the sample buffer,
// amplitude extraction, the stride scheduler and the windowed classifier.
package csi

import (
	"bytes"
	"context"
	"net"
)

// Meta is the receive metadata the radio attaches to every frame. The core only
// logs it.
type Meta struct {
	RSSI       int
	Rate       int
	NoiseFloor int
	Channel    int
}

// Frame is one CSI measurement for a single received packet. Raw holds the
// interleaved imaginary/real bytes; Length is the number of valid bytes in Raw.
type Frame struct {
	Source net.HardwareAddr
	Raw    []int8
	Length int
	Meta   Meta
}

// Bytes returns the valid part of Raw, bounded by both Length and len(Raw).
func (f Frame) Bytes() []int8 {
	n := f.Length
	if n > len(f.Raw) {
		n = len(f.Raw)
	}
	if n < 0 {
		n = 0
	}
	return f.Raw[:n]
}

// FromSource reports whether the frame was sent by addr.
func (f Frame) FromSource(addr net.HardwareAddr) bool {
	return bytes.Equal(f.Source, addr)
}

// FrameHandler consumes frames. It is implemented by the ingestion pipeline and
// by the processor queue that feeds it.
type FrameHandler interface {
	OnFrame(f Frame)
}

// FrameSource delivers frames from the radio side to a handler until ctx is
// cancelled or the underlying transport fails.
type FrameSource interface {
	Run(ctx context.Context, handler FrameHandler) error
}
