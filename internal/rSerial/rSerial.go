// r in rserial stands for "robust"
package rserial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"sleepywoodpecker/csi-motion/internal/csi"
)

// a 128-byte CSI buffer prints as roughly 600 characters
const maxLineLength = 8192

// timeoutPort is implemented by go.bug.st/serial ports.
type timeoutPort interface {
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// RSerial reads CSI_DATA lines from the receiver's serial console and hands
// the parsed frames to a csi.FrameHandler. It implements csi.FrameSource.
type RSerial struct {
	port        io.ReadCloser
	logger      *zap.Logger
	portName    string
	readTimeout time.Duration
	tempBuff    []byte
	pending     []byte
}

func NewRSerial(portName string, baudrate int, readTimeout time.Duration, logger *zap.Logger) (*RSerial, error) {
	mode := &serial.Mode{
		BaudRate: baudrate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("error opening serial port %s: %w", portName, err)
	}

	return NewRSerialFromPort(portName, port, readTimeout, logger), nil
}

// NewRSerialFromPort wraps an already open port or any other byte stream.
func NewRSerialFromPort(portName string, port io.ReadCloser, readTimeout time.Duration, logger *zap.Logger) *RSerial {
	return &RSerial{
		port:        port,
		logger:      logger,
		portName:    portName,
		readTimeout: readTimeout,
		tempBuff:    make([]byte, 1024),
	}
}

func (r *RSerial) initialize(ctx context.Context) error {
	if p, ok := r.port.(timeoutPort); ok {
		if err := p.SetReadTimeout(r.readTimeout); err != nil {
			return fmt.Errorf("setting read timeout: %w", err)
		}
		if err := p.ResetInputBuffer(); err != nil {
			return fmt.Errorf("resetting input buffer: %w", err)
		}
	}
	return r.sync(ctx)
}

// Run reads until ctx is done or the port fails. Lines that fail to parse are
// logged and skipped.
func (r *RSerial) Run(ctx context.Context, handler csi.FrameHandler) error {
	if err := r.initialize(ctx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("[rserial] exiting from rserial read loop", zap.String("portName", r.portName))
			return nil
		default:
		}

		line, err := r.ReadLine()
		if err != nil {
			var oosError *OutOfSyncError
			if errors.As(err, &oosError) {
				r.logger.Warn("[rserial] dropping oversized line", zap.Error(err), zap.String("portName", r.portName))
				if err := r.sync(ctx); err != nil {
					return r.readError(err)
				}
				continue
			}
			return r.readError(err)
		}
		if line == nil {
			continue
		}

		r.handleLine(string(line), handler)
	}
}

func (r *RSerial) readError(err error) error {
	if errors.Is(err, io.EOF) {
		r.logger.Info("[rserial] end of stream", zap.String("portName", r.portName))
		return nil
	}
	return fmt.Errorf("reading %s: %w", r.portName, err)
}

func (r *RSerial) handleLine(line string, handler csi.FrameHandler) {
	record, err := ParseLine(line)
	if err != nil {
		if errors.Is(err, ErrNotFrame) {
			r.logger.Debug("[rserial] console output", zap.String("line", line))
		} else {
			r.logger.Warn("[rserial] Error while attempting to parse frame", zap.Error(err), zap.String("portName", r.portName))
		}
		return
	}

	if record.DeclaredLength != record.Frame.Length {
		r.logger.Warn("[rserial] declared length disagrees with payload",
			zap.Int("declared", record.DeclaredLength),
			zap.Int("payload", record.Frame.Length),
			zap.Int("seq", record.Seq),
		)
	}
	r.logger.Debug("[rserial] frame",
		zap.Int("seq", record.Seq),
		zap.Stringer("mac", record.Frame.Source),
		zap.Int("fftGain", record.FFTGain),
		zap.Int("agcGain", record.AGCGain),
		zap.Uint64("timestamp", record.Timestamp),
	)

	handler.OnFrame(record.Frame)
}

// ReadLine returns the next complete line without its terminator, or nil when
// the read timed out before one arrived.
func (r *RSerial) ReadLine() ([]byte, error) {
	if line, ok := r.takeLine(); ok {
		return line, nil
	}

	n, err := r.port.Read(r.tempBuff)
	if n > 0 {
		r.pending = append(r.pending, r.tempBuff[:n]...)
	}
	if line, ok := r.takeLine(); ok {
		return line, nil
	}
	if err != nil {
		return nil, err
	}

	if len(r.pending) > maxLineLength {
		byteSequenceCopy := string(r.pending[:64])
		r.pending = r.pending[:0]
		return nil, &OutOfSyncError{Line: byteSequenceCopy, Reason: "no line terminator"}
	}
	return nil, nil
}

func (r *RSerial) takeLine() ([]byte, bool) {
	idx := bytes.IndexByte(r.pending, '\n')
	if idx < 0 {
		return nil, false
	}
	line := make([]byte, idx)
	copy(line, r.pending[:idx])
	r.pending = append(r.pending[:0], r.pending[idx+1:]...)
	return bytes.TrimRight(line, "\r"), true
}

// sync discards input up to and including the next newline so that reading
// starts on a line boundary.
func (r *RSerial) sync(ctx context.Context) error {
	r.logger.Warn("[rserial] Resyncing serial port", zap.String("portName", r.portName))

	var readErr error
	for {
		if idx := bytes.IndexByte(r.pending, '\n'); idx >= 0 {
			r.pending = append(r.pending[:0], r.pending[idx+1:]...)
			return nil
		}
		r.pending = r.pending[:0]
		if readErr != nil {
			return readErr
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := r.port.Read(r.tempBuff)
		r.pending = append(r.pending, r.tempBuff[:n]...)
		readErr = err
	}
}

func (r *RSerial) Close() error {
	return r.port.Close()
}

var _ csi.FrameSource = (*RSerial)(nil)
