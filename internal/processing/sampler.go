package processing

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

const SamplingChannelName = "csi"

// sampler periodically turns pipeline statistics into Influx line protocol and
// writes them to a UDP connection, typically a Telegraf socket listener.
type sampler struct {
	samplingFrequency time.Duration
	conn              io.Writer
	measurement       string
	storeToSampleFrom *DataSampleStore
	logger            *zap.Logger
	now               func() time.Time
}

func NewSampler(samplingFrequency time.Duration, conn io.Writer, measurement string, store *DataSampleStore, logger *zap.Logger) *sampler {
	if measurement == "" {
		measurement = SamplingChannelName
	}
	return &sampler{
		samplingFrequency: samplingFrequency,
		conn:              conn,
		measurement:       measurement,
		storeToSampleFrom: store,
		logger:            logger,
		now:               time.Now,
	}
}

func (s *sampler) SampleAndLog() {
	stats := s.storeToSampleFrom.GetReadingFromSampleStore()
	influxString := FormatInfluxLine(s.measurement, stats, s.now())

	if err := s.sendToConn(influxString); err != nil {
		s.logger.Warn("[sampler] Error writing data to UDP connection", zap.Error(err))
	} else {
		s.logger.Debug("[sampler] collected sample", zap.String("influxString", influxString))
	}
}

func (s *sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.samplingFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SampleAndLog()
		case <-ctx.Done():
			s.logger.Info("[sampler] received shutdown signal")
			return
		}
	}
}

// a datagram must go out in one write, a short write is an error
func (s *sampler) sendToConn(formattedData string) error {
	n, err := io.WriteString(s.conn, formattedData)
	if err != nil {
		return err
	}
	if n != len(formattedData) {
		return io.ErrShortWrite
	}
	return nil
}

// FormatInfluxLine renders stats as a single line-protocol record. The motion
// fields are left out until the first classification.
func FormatInfluxLine(measurement string, stats Stats, ts time.Time) string {
	var b strings.Builder
	b.WriteString(measurement)
	b.WriteByte(' ')
	fmt.Fprintf(&b, "fill=%di,compactions=%di,frames=%di,unmatched=%di,malformed=%di,classifications=%di,motion_detections=%di,reports=%di,samples_dropped=%di,queue_dropped=%di",
		stats.FillLevel,
		stats.Compactions,
		stats.FramesSeen,
		stats.Unmatched,
		stats.Malformed,
		stats.Classifications,
		stats.MotionDetections,
		stats.Reports,
		stats.SamplesDropped,
		stats.QueueDropped,
	)
	if stats.HasResult {
		fmt.Fprintf(&b, ",metric=%.3f,motion=%t", stats.LastMetric, stats.LastMotion)
	}
	fmt.Fprintf(&b, " %d\n", ts.UnixNano())
	return b.String()
}
