// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame outcome label values.
const (
	OutcomeUnmatched    = "unmatched"
	OutcomeInsufficient = "insufficient"
	OutcomeWaiting      = "waiting"
	OutcomeClassified   = "classified"
)

// Metrics holds the collectors for one pipeline. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	framesTotal      *prometheus.CounterVec // frames by outcome
	malformedTotal   prometheus.Counter     // frames with an unpaired byte
	compactionsTotal prometheus.Counter     // buffer compactions
	queueDropped     prometheus.Counter     // frames refused by a full queue
	samplesDropped   prometheus.Counter     // samples that did not fit after compaction
	motionTotal      prometheus.Counter     // classifications reporting motion
	reportsTotal     *prometheus.CounterVec // reports by result (published, dropped, failed)
	fillLevel        prometheus.Gauge       // samples buffered
	lastMetric       prometheus.Gauge       // last detector metric
	lastMotion       prometheus.Gauge       // 1 when the last classification was motion
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "csi_frames_total",
			Help: "CSI frames received, by pipeline outcome",
		}, []string{"outcome"}),
		malformedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "csi_frames_malformed_total",
			Help: "CSI frames whose length left an unpaired byte or no pair",
		}),
		compactionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "csi_buffer_compactions_total",
			Help: "Sample buffer compactions",
		}),
		queueDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "csi_queue_dropped_frames_total",
			Help: "CSI frames dropped because the processing queue was full",
		}),
		samplesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "csi_buffer_dropped_samples_total",
			Help: "Amplitude samples that did not fit in the sample buffer after compaction",
		}),
		motionTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "csi_motion_detections_total",
			Help: "Classifications that reported motion",
		}),
		reportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "csi_reports_total",
			Help: "Reports handed to the result sink, by result",
		}, []string{"result"}),
		fillLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "csi_buffer_fill_level",
			Help: "Samples currently held in the sample buffer",
		}),
		lastMetric: factory.NewGauge(prometheus.GaugeOpts{
			Name: "csi_motion_metric",
			Help: "Mean subcarrier standard deviation of the last classified window",
		}),
		lastMotion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "csi_motion",
			Help: "1 if the last classified window showed motion, else 0",
		}),
	}
}

func (m *Metrics) Frame(outcome string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Malformed() {
	if m == nil {
		return
	}
	m.malformedTotal.Inc()
}

func (m *Metrics) Compacted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.compactionsTotal.Add(float64(n))
}

func (m *Metrics) QueueDropped() {
	if m == nil {
		return
	}
	m.queueDropped.Inc()
}

func (m *Metrics) SamplesDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.samplesDropped.Add(float64(n))
}

func (m *Metrics) FillLevel(n int) {
	if m == nil {
		return
	}
	m.fillLevel.Set(float64(n))
}

func (m *Metrics) Classified(motion bool, metric float64) {
	if m == nil {
		return
	}
	m.lastMetric.Set(metric)
	if motion {
		m.motionTotal.Inc()
		m.lastMotion.Set(1)
	} else {
		m.lastMotion.Set(0)
	}
}

// Report counts a report outcome: "published", "dropped" or "failed".
func (m *Metrics) Report(result string) {
	if m == nil {
		return
	}
	m.reportsTotal.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
