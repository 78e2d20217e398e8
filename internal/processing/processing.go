package processing

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	"sleepywoodpecker/csi-motion/internal/csi"
	"sleepywoodpecker/csi-motion/internal/metrics"
)

const DEFAULT_QUEUE_SIZE = 20

// Queue hands frames from the serial reader to the processor goroutine. It
// implements csi.FrameHandler. OnFrame never blocks: a frame arriving while
// the queue is full is dropped and counted.
type Queue struct {
	frames  chan csi.Frame
	store   *DataSampleStore
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewQueue builds a queue of length frames. store and m may be nil.
func NewQueue(length int, store *DataSampleStore, m *metrics.Metrics, logger *zap.Logger) *Queue {
	if length <= 0 {
		length = DEFAULT_QUEUE_SIZE
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		frames:  make(chan csi.Frame, length),
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

func (q *Queue) OnFrame(f csi.Frame) {
	select {
	case q.frames <- f:
	default:
		if q.store != nil {
			q.store.AddQueueDrop()
		}
		q.metrics.QueueDropped()
		q.logger.Debug("[queue] queue full, dropping frame",
			zap.Stringer("source", f.Source),
			zap.Int("length", f.Length),
			zap.Int("capacity", cap(q.frames)),
		)
	}
}

func (q *Queue) Frames() <-chan csi.Frame {
	return q.frames
}

// Processor is the single consumer of a frame queue. It feeds every frame to
// its handler and, when a raw log file is configured, writes one CSI_DEBUG line
// per frame.
type Processor struct {
	Filename     string
	MessageQueue <-chan csi.Frame
	handler      csi.FrameHandler
	logger       *zap.Logger
}

func NewProcessor(filename string, messageQueue <-chan csi.Frame, handler csi.FrameHandler, logger *zap.Logger) *Processor {
	return &Processor{
		Filename:     filename,
		MessageQueue: messageQueue,
		handler:      handler,
		logger:       logger,
	}
}

func (p *Processor) Run(ctx context.Context) error {
	out := io.Discard
	if p.Filename != "" {
		file, err := os.OpenFile(p.Filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			p.logger.Error("[processor] error opening a file", zap.Error(err), zap.String("outputFile", p.Filename))
			return fmt.Errorf("opening raw log %s: %w", p.Filename, err)
		}
		defer file.Close()

		writer := bufio.NewWriter(file)
		defer writer.Flush()
		out = writer
	}

	for {
		select {
		case frame, ok := <-p.MessageQueue:
			if !ok {
				p.logger.Info("[processor] message queue closed", zap.String("outputFile", p.Filename))
				return nil
			}

			if err := p.ProcessFrame(frame, out); err != nil {
				p.logger.Warn(
					"[processor] error writing raw frame",
					zap.Error(err),
					zap.Int("frameLength", frame.Length),
					zap.String("outputFile", p.Filename),
				)
			}
		case <-ctx.Done():
			p.logger.Info("[processor] received shutdown signal", zap.String("outputFile", p.Filename))
			return nil
		}
	}
}

// ProcessFrame hands frame to the pipeline and then logs its raw bytes to
// outStream. A write failure does not affect processing.
func (p *Processor) ProcessFrame(frame csi.Frame, outStream io.Writer) error {
	p.handler.OnFrame(frame)

	if outStream == io.Discard {
		return nil
	}
	_, err := io.WriteString(outStream, FormatDebugLine(frame))
	return err
}

// FormatDebugLine renders a frame as CSI_DEBUG,len=<n>,[b0,b1,...].
func FormatDebugLine(frame csi.Frame) string {
	raw := frame.Bytes()
	buf := make([]byte, 0, 16+len(raw)*4)
	buf = append(buf, "CSI_DEBUG,len="...)
	buf = strconv.AppendInt(buf, int64(frame.Length), 10)
	buf = append(buf, ",["...)
	for i, b := range raw {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(b), 10)
	}
	buf = append(buf, "]\n"...)
	return string(buf)
}
