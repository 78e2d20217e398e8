// Package reporting forwards classification reports to a message transport
// without ever blocking the ingestion path.
package reporting

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"sleepywoodpecker/csi-motion/internal/csi"
	"sleepywoodpecker/csi-motion/internal/metrics"
)

// Absent is sent in place of a value that is not available.
const Absent = -1

// ResultMessage is the record published for every report.
type ResultMessage struct {
	Motion        int `json:"motion"`
	BreathingRate int `json:"breathing_rate"`
}

func NewResultMessage(r csi.Report) ResultMessage {
	msg := ResultMessage{Motion: Absent, BreathingRate: Absent}
	if r.Motion != nil {
		msg.Motion = 0
		if *r.Motion {
			msg.Motion = 1
		}
	}
	if r.BreathingRate != nil {
		msg.BreathingRate = *r.BreathingRate
	}
	return msg
}

// Publisher delivers one message. It returns csi.ErrTransportUnavailable when
// the transport is not connected.
type Publisher interface {
	Publish(msg ResultMessage) error
}

// Reporter implements csi.ResultSink. It holds at most one report waiting for
// the publisher; a report arriving while the slot is taken is dropped.
type Reporter struct {
	queue     chan csi.Report
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewReporter(publisher Publisher, m *metrics.Metrics, logger *zap.Logger) *Reporter {
	return &Reporter{
		queue:     make(chan csi.Report, 1),
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (r *Reporter) OnResult(rep csi.Report) {
	select {
	case r.queue <- rep:
	default:
		r.metrics.Report("dropped")
		r.logger.Warn("[reporter] dropping report, publisher busy", zap.Error(csi.ErrTransportUnavailable))
	}
}

// Run publishes queued reports until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	for {
		select {
		case rep := <-r.queue:
			r.publish(rep)
		case <-ctx.Done():
			r.logger.Info("[reporter] received shutdown signal")
			return
		}
	}
}

func (r *Reporter) publish(rep csi.Report) {
	msg := NewResultMessage(rep)
	err := r.publisher.Publish(msg)
	switch {
	case err == nil:
		r.metrics.Report("published")
	case errors.Is(err, csi.ErrTransportUnavailable):
		r.metrics.Report("dropped")
		r.logger.Warn("[reporter] dropping report", zap.Error(err), zap.Int("motion", msg.Motion))
	default:
		r.metrics.Report("failed")
		r.logger.Warn("[reporter] error publishing report", zap.Error(err), zap.Int("motion", msg.Motion))
	}
}

var _ csi.ResultSink = (*Reporter)(nil)
