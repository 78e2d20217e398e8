package rserial

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sleepywoodpecker/csi-motion/internal/csi"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []csi.Frame
}

func (f *frameRecorder) OnFrame(fr csi.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
}

// chunkedReader returns its input a few bytes at a time with an empty read
// between chunks, the way a serial port with a short timeout does.
type chunkedReader struct {
	data  []byte
	chunk int
	idle  bool
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	c.idle = !c.idle
	if c.idle {
		return 0, nil
	}
	n := c.chunk
	if n > len(c.data) {
		n = len(c.data)
	}
	n = copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

func TestRSerial_RunDeliversFrames(t *testing.T) {
	input := strings.Join([]string{
		"partial line before sync",
		"I (100) csi_recv: CSI callback triggered",
		sampleLine,
		`CSI_DATA,8,2b:01:02:03:04:05,-50,11,-96,3,24,11,2,56,0,2,0,"[1,1]"`,
		"CSI_DATA,garbage",
		sampleLine,
	}, "\r\n") + "\r\n"

	rs := NewRSerialFromPort("test", io.NopCloser(&chunkedReader{data: []byte(input), chunk: 7}), time.Millisecond, zap.NewNop())
	rec := &frameRecorder{}

	require.NoError(t, rs.Run(context.Background(), rec))
	require.Len(t, rec.frames, 3)
	assert.Equal(t, "1a:00:00:00:00:00", rec.frames[0].Source.String())
	assert.Equal(t, "2b:01:02:03:04:05", rec.frames[1].Source.String())
	assert.Equal(t, []int8{3, 4, -6, 8, 0, 5}, rec.frames[2].Raw)
}

func TestRSerial_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rs := NewRSerialFromPort("test", io.NopCloser(errReader{}), time.Millisecond, zap.NewNop())
	assert.NoError(t, rs.Run(ctx, &frameRecorder{}))
}

func TestRSerial_RunReturnsPortErrors(t *testing.T) {
	boom := errors.New("device disconnected")
	rs := NewRSerialFromPort("test", io.NopCloser(errReader{err: boom}), time.Millisecond, zap.NewNop())

	err := rs.Run(context.Background(), &frameRecorder{})
	assert.ErrorIs(t, err, boom)
}

func TestRSerial_ReadLineDropsOversizedLine(t *testing.T) {
	data := strings.Repeat("x", maxLineLength+10)
	rs := NewRSerialFromPort("test", io.NopCloser(strings.NewReader(data)), time.Millisecond, zap.NewNop())
	rs.tempBuff = make([]byte, maxLineLength*2)

	_, err := rs.ReadLine()
	var oos *OutOfSyncError
	require.True(t, errors.As(err, &oos), "got %v", err)
	assert.Empty(t, rs.pending)
}

func TestRSerial_ReadLineTimeout(t *testing.T) {
	rs := NewRSerialFromPort("test", io.NopCloser(&chunkedReader{data: []byte("abc\n")}), time.Millisecond, zap.NewNop())

	line, err := rs.ReadLine()
	require.NoError(t, err)
	assert.Nil(t, line)
}
