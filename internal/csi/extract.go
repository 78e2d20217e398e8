package csi

import "math"

// Extract converts a raw frame into amplitude samples. Bytes are taken in
// pairs; the even-indexed byte is the imaginary part and the odd-indexed byte
// the real part. A trailing unpaired byte is dropped.
func Extract(raw []int8, length int) []float64 {
	if length > len(raw) {
		length = len(raw)
	}
	if length < 2 {
		return []float64{}
	}

	out := make([]float64, 0, length/2)
	for i := 0; i+1 < length; i += 2 {
		// widened past int16 so that (-128)² + (-128)² does not wrap
		im := int32(raw[i])
		re := int32(raw[i+1])
		out = append(out, math.Sqrt(float64(im*im+re*re)))
	}
	return out
}

// CheckFrame reports ErrMalformedFrame when length leaves a byte unpaired or
// holds no pair at all. The frame is still usable; Extract keeps the complete
// pairs.
func CheckFrame(length int) error {
	if length < 2 || length%2 != 0 {
		return ErrMalformedFrame
	}
	return nil
}
