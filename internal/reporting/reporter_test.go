package reporting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sleepywoodpecker/csi-motion/internal/csi"
	"sleepywoodpecker/csi-motion/internal/metrics"
)

type fakePublisher struct {
	mu      sync.Mutex
	msgs    []ResultMessage
	err     error
	release chan struct{}
}

func (f *fakePublisher) Publish(msg ResultMessage) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublisher) published() []ResultMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ResultMessage(nil), f.msgs...)
}

func boolPtr(b bool) *bool { return &b }

func TestNewResultMessage(t *testing.T) {
	assert.Equal(t, ResultMessage{Motion: -1, BreathingRate: -1}, NewResultMessage(csi.Report{}))
	assert.Equal(t, ResultMessage{Motion: 1, BreathingRate: -1}, NewResultMessage(csi.Report{Motion: boolPtr(true)}))
	assert.Equal(t, ResultMessage{Motion: 0, BreathingRate: -1}, NewResultMessage(csi.Report{Motion: boolPtr(false)}))

	rate := 14
	assert.Equal(t, 14, NewResultMessage(csi.Report{BreathingRate: &rate}).BreathingRate)
}

func TestReporter_PublishesQueuedReport(t *testing.T) {
	pub := &fakePublisher{}
	r := NewReporter(pub, metrics.New(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.OnResult(csi.ReportFromResult(&csi.Result{Motion: true, Metric: 9}))
	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ResultMessage{Motion: 1, BreathingRate: -1}, pub.published()[0])
}

func TestReporter_OnResultNeverBlocks(t *testing.T) {
	pub := &fakePublisher{release: make(chan struct{})}
	r := NewReporter(pub, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	done := make(chan struct{})
	go func() {
		// the publisher is stuck, so all but the in-flight and queued
		// reports are dropped
		for i := 0; i < 100; i++ {
			r.OnResult(csi.Report{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnResult blocked on a stuck publisher")
	}
	close(pub.release)
}

func TestReporter_DropsOnTransportUnavailable(t *testing.T) {
	pub := &fakePublisher{err: csi.ErrTransportUnavailable}
	r := NewReporter(pub, nil, zap.NewNop())

	r.publish(csi.Report{})
	assert.Empty(t, pub.published())

	pub.err = errors.New("broker said no")
	assert.NotPanics(t, func() { r.publish(csi.Report{}) })
}
