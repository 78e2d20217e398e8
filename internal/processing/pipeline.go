package processing

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"sleepywoodpecker/csi-motion/internal/config"
	"sleepywoodpecker/csi-motion/internal/csi"
	"sleepywoodpecker/csi-motion/internal/metrics"
)

// Status is what happened to a frame inside the pipeline.
type Status int

const (
	StatusUnmatched Status = iota
	StatusInsufficient
	StatusWaiting
	StatusClassified
)

func (s Status) String() string {
	switch s {
	case StatusUnmatched:
		return metrics.OutcomeUnmatched
	case StatusInsufficient:
		return metrics.OutcomeInsufficient
	case StatusWaiting:
		return metrics.OutcomeWaiting
	case StatusClassified:
		return metrics.OutcomeClassified
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome describes one Process call. Result is set only when Status is
// StatusClassified.
type Outcome struct {
	Status   Status
	Result   *csi.Result
	Reported bool
}

// Pipeline owns the sample buffer and both schedulers. Every frame goes
// through Process under one lock, so frames may be delivered from any number
// of goroutines.
type Pipeline struct {
	mu sync.Mutex

	buffer   *csi.SampleBuffer
	stride   *csi.StrideScheduler
	reports  *csi.StrideScheduler
	detector csi.MotionDetector

	windowSize  int
	subcarriers int
	expected    net.HardwareAddr

	// latest classification not yet handed to the sink
	pending *csi.Result
	stats   Stats

	sink    csi.ResultSink
	store   *DataSampleStore
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewPipeline builds a pipeline from cfg. sink and m may be nil.
func NewPipeline(cfg config.PipelineConfig, sink csi.ResultSink, m *metrics.Metrics, logger *zap.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	buffer, err := csi.NewSampleBuffer(cfg.BufferCapacity, cfg.SubcarrierCount)
	if err != nil {
		return nil, err
	}
	stride, err := csi.NewStrideScheduler(cfg.Stride)
	if err != nil {
		return nil, err
	}
	reports, err := csi.NewStrideScheduler(cfg.ReportInterval)
	if err != nil {
		return nil, err
	}
	expected, err := cfg.ExpectedSourceAddr()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		buffer:      buffer,
		stride:      stride,
		reports:     reports,
		detector:    csi.MotionDetector{Threshold: cfg.Threshold},
		windowSize:  cfg.WindowSize,
		subcarriers: cfg.SubcarrierCount,
		expected:    expected,
		sink:        sink,
		store:       NewDataSampleStore(),
		metrics:     m,
		logger:      logger,
	}, nil
}

// OnFrame implements csi.FrameHandler.
func (p *Pipeline) OnFrame(f csi.Frame) {
	p.Process(f)
}

// Process runs one frame through filtering, extraction, buffering, the stride
// gate, the classifier and the reporting cadence.
func (p *Pipeline) Process(f csi.Frame) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.FramesSeen++

	if p.expected != nil && !f.FromSource(p.expected) {
		p.stats.Unmatched++
		p.metrics.Frame(metrics.OutcomeUnmatched)
		p.logger.Debug("[pipeline] skipping frame",
			zap.Error(csi.ErrUnmatchedSource),
			zap.Stringer("source", f.Source),
			zap.Stringer("expected", p.expected),
		)
		p.publishStats()
		return Outcome{Status: StatusUnmatched}
	}

	if err := csi.CheckFrame(f.Length); err != nil {
		p.stats.Malformed++
		p.metrics.Malformed()
		p.logger.Debug("[pipeline] keeping complete pairs only", zap.Error(err), zap.Int("length", f.Length))
	}

	compactions := p.buffer.Compactions()
	samples := csi.Extract(f.Raw, f.Length)
	if stored := p.buffer.Append(samples); stored < len(samples) {
		dropped := len(samples) - stored
		p.stats.SamplesDropped += uint64(dropped)
		p.metrics.SamplesDropped(dropped)
		p.logger.Debug("[pipeline] frame wider than the space freed by compaction",
			zap.Int("samples", len(samples)),
			zap.Int("dropped", dropped),
		)
	}
	p.metrics.Compacted(int(p.buffer.Compactions() - compactions))
	p.metrics.FillLevel(p.buffer.FillLevel())

	p.logger.Debug("[pipeline] buffered frame",
		zap.Int("fillLevel", p.buffer.FillLevel()),
		zap.Int("rssi", f.Meta.RSSI),
		zap.Int("rate", f.Meta.Rate),
		zap.Int("noiseFloor", f.Meta.NoiseFloor),
		zap.Int("channel", f.Meta.Channel),
	)

	outcome := p.classify()
	p.metrics.Frame(outcome.Status.String())

	if p.reports.Tick() {
		p.report()
		outcome.Reported = true
	}

	p.publishStats()
	return outcome
}

func (p *Pipeline) classify() Outcome {
	window, err := p.buffer.Window(p.windowSize, p.subcarriers)
	if err != nil {
		p.stats.Insufficient++
		if errors.Is(err, csi.ErrInsufficientData) {
			p.logger.Debug("[pipeline] not enough CSI data for motion detection",
				zap.Int("fillLevel", p.buffer.FillLevel()),
				zap.Int("needed", p.windowSize*p.subcarriers),
			)
		} else {
			p.logger.Warn("[pipeline] could not take window", zap.Error(err))
		}
		return Outcome{Status: StatusInsufficient}
	}

	if !p.stride.Tick() {
		p.logger.Debug("[pipeline] waiting for stride",
			zap.Int("counter", p.stride.Counter()),
			zap.Int("stride", p.stride.Stride()),
		)
		return Outcome{Status: StatusWaiting}
	}

	result := p.detector.Classify(window)
	p.pending = &result
	p.stats.Classifications++
	p.stats.LastMetric = result.Metric
	p.stats.LastMotion = result.Motion
	p.stats.HasResult = true
	p.metrics.Classified(result.Motion, result.Metric)

	if result.Motion {
		p.stats.MotionDetections++
		p.logger.Info("[pipeline] motion detected", zap.Float64("metric", result.Metric))
	} else {
		p.logger.Info("[pipeline] no motion detected", zap.Float64("metric", result.Metric))
	}

	return Outcome{Status: StatusClassified, Result: &result}
}

func (p *Pipeline) report() {
	r := csi.ReportFromResult(p.pending)
	p.pending = nil
	p.stats.Reports++

	if p.sink == nil {
		return
	}
	p.sink.OnResult(r)
}

func (p *Pipeline) publishStats() {
	p.stats.FillLevel = p.buffer.FillLevel()
	p.stats.Compactions = p.buffer.Compactions()
	p.store.UpdateSampleStore(p.stats)
}

// Stats returns the statistics as of the last processed frame.
func (p *Pipeline) Stats() Stats {
	return p.store.GetReadingFromSampleStore()
}

// Store returns the store the pipeline publishes its statistics to.
func (p *Pipeline) Store() *DataSampleStore {
	return p.store
}
