// Package evaluate replays recorded CSI captures through the motion pipeline
// and summarises how often it reports motion.
package evaluate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"sleepywoodpecker/csi-motion/internal/config"
	"sleepywoodpecker/csi-motion/internal/csi"
	"sleepywoodpecker/csi-motion/internal/processing"
	rserial "sleepywoodpecker/csi-motion/internal/rSerial"
)

type Options struct {
	WindowSize int
	Threshold  float64
	Stride     int
	// The subcarrier count is taken from the first frame with more pairs
	// than this.
	MinSubcarriers int
	Column         string
}

func DefaultOptions() Options {
	return Options{
		WindowSize:     config.DefaultWindowSize,
		Threshold:      4.0,
		Stride:         config.DefaultStride,
		MinSubcarriers: config.DefaultSubcarrierCount,
		Column:         "data",
	}
}

type Summary struct {
	Rows            int
	Skipped         int
	Subcarriers     int
	Classifications int
	Detections      int
	Metrics         []float64
}

// Ratio is the share of classifications that reported motion.
func (s Summary) Ratio() float64 {
	if s.Classifications == 0 {
		return 0
	}
	return float64(s.Detections) / float64(s.Classifications)
}

func (s Summary) MinMetric() float64 {
	if len(s.Metrics) == 0 {
		return 0
	}
	return floats.Min(s.Metrics)
}

func (s Summary) MeanMetric() float64 {
	if len(s.Metrics) == 0 {
		return 0
	}
	return stat.Mean(s.Metrics, nil)
}

// Run reads a CSV capture with a header row and replays the frames found in
// opts.Column. Rows with an odd byte count, or whose pair count differs from
// the detected subcarrier count, are skipped.
func Run(r io.Reader, opts Options, logger *zap.Logger) (Summary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Summary{}, fmt.Errorf("reading header: %w", err)
	}
	column := -1
	for i, name := range header {
		if name == opts.Column {
			column = i
			break
		}
	}
	if column < 0 {
		return Summary{}, fmt.Errorf("column %q not found in header", opts.Column)
	}

	var (
		summary  Summary
		pipeline *processing.Pipeline
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("row %d: %w", summary.Rows+1, err)
		}
		summary.Rows++

		if column >= len(row) {
			summary.Skipped++
			continue
		}
		raw, err := rserial.ParseByteList(row[column])
		if err != nil || len(raw)%2 != 0 {
			summary.Skipped++
			continue
		}

		pairs := len(raw) / 2
		if pipeline == nil && pairs > opts.MinSubcarriers {
			summary.Subcarriers = pairs
			pipeline, err = processing.NewPipeline(config.PipelineConfig{
				BufferCapacity:  opts.WindowSize * pairs,
				SubcarrierCount: pairs,
				WindowSize:      opts.WindowSize,
				Threshold:       opts.Threshold,
				Stride:          opts.Stride,
				ReportInterval:  1,
			}, nil, nil, logger)
			if err != nil {
				return summary, err
			}
			logger.Info("[evaluate] detected subcarrier count", zap.Int("subcarriers", pairs))
		}
		if pipeline == nil || pairs != summary.Subcarriers {
			summary.Skipped++
			continue
		}

		out := pipeline.Process(csi.Frame{Raw: raw, Length: len(raw)})
		if out.Status == processing.StatusClassified {
			summary.Classifications++
			summary.Metrics = append(summary.Metrics, out.Result.Metric)
			if out.Result.Motion {
				summary.Detections++
			}
		}
	}

	return summary, nil
}
