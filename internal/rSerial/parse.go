package rserial

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"sleepywoodpecker/csi-motion/internal/csi"
)

const framePrefix = "CSI_DATA"

// field positions in a CSI_DATA line
const (
	fieldSeq = iota + 1
	fieldMAC
	fieldRSSI
	fieldRate
	fieldNoiseFloor
	fieldFFTGain
	fieldAGCGain
	fieldChannel
	fieldTimestamp
	fieldSigLen
	fieldRxState
	fieldLen
	fieldFirstWordInvalid
	fieldData
	numFields
)

// ErrNotFrame marks console output that is not a CSI_DATA line.
var ErrNotFrame = errors.New("[rserial] line is not a CSI frame")

type OutOfSyncError struct {
	Line   string
	Reason string
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("[rserial] malformed CSI line (%s): %q", e.Reason, e.Line)
}

// Record is one parsed CSI_DATA line.
type Record struct {
	Seq            int
	Frame          csi.Frame
	DeclaredLength int
	FFTGain        int
	AGCGain        int
	Timestamp      uint64
}

// ParseLine parses a line printed by the receiver firmware:
//
//	CSI_DATA,seq,mac,rssi,rate,noise_floor,fft_gain,agc_gain,channel,timestamp,sig_len,rx_state,len,first_word_invalid,"[b0,b1,...]"
//
// The frame length is the number of bytes in the list; DeclaredLength keeps
// the len field as printed.
func ParseLine(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, framePrefix+",") {
		return Record{}, ErrNotFrame
	}

	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	fields, err := reader.Read()
	if err != nil {
		return Record{}, &OutOfSyncError{Line: line, Reason: err.Error()}
	}
	if len(fields) != numFields {
		return Record{}, &OutOfSyncError{Line: line, Reason: fmt.Sprintf("%d fields, want %d", len(fields), numFields)}
	}

	mac, err := net.ParseMAC(fields[fieldMAC])
	if err != nil {
		return Record{}, &OutOfSyncError{Line: line, Reason: err.Error()}
	}

	ints := make(map[int]int, 9)
	for _, idx := range []int{fieldSeq, fieldRSSI, fieldRate, fieldNoiseFloor, fieldFFTGain, fieldAGCGain, fieldChannel, fieldLen, fieldFirstWordInvalid} {
		v, err := strconv.Atoi(strings.TrimSpace(fields[idx]))
		if err != nil {
			return Record{}, &OutOfSyncError{Line: line, Reason: fmt.Sprintf("field %d: %v", idx, err)}
		}
		ints[idx] = v
	}
	timestamp, err := strconv.ParseUint(strings.TrimSpace(fields[fieldTimestamp]), 10, 64)
	if err != nil {
		return Record{}, &OutOfSyncError{Line: line, Reason: fmt.Sprintf("timestamp: %v", err)}
	}

	raw, err := ParseByteList(fields[fieldData])
	if err != nil {
		return Record{}, &OutOfSyncError{Line: line, Reason: err.Error()}
	}

	return Record{
		Seq: ints[fieldSeq],
		Frame: csi.Frame{
			Source: mac,
			Raw:    raw,
			Length: len(raw),
			Meta: csi.Meta{
				RSSI:       ints[fieldRSSI],
				Rate:       ints[fieldRate],
				NoiseFloor: ints[fieldNoiseFloor],
				Channel:    ints[fieldChannel],
			},
		},
		DeclaredLength: ints[fieldLen],
		FFTGain:        ints[fieldFFTGain],
		AGCGain:        ints[fieldAGCGain],
		Timestamp:      timestamp,
	}, nil
}

// ParseByteList parses "[b0,b1,...]" into signed bytes. The brackets are
// optional and "[]" yields an empty slice.
func ParseByteList(s string) ([]int8, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSpace(s)
	if s == "" {
		return []int8{}, nil
	}

	parts := strings.Split(s, ",")
	out := make([]int8, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("byte %d: %w", i, err)
		}
		out[i] = int8(v)
	}
	return out, nil
}
