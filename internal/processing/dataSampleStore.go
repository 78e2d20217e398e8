package processing

import (
	"sync"
)

// The sampler reads statistics from here rather than from the pipeline so that
// a slow telemetry tick never holds the ingestion lock.

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	FramesSeen       uint64
	Unmatched        uint64
	Malformed        uint64
	Insufficient     uint64
	Classifications  uint64
	MotionDetections uint64
	Reports          uint64
	Compactions      uint64
	SamplesDropped   uint64
	QueueDropped     uint64
	FillLevel        int

	LastMetric float64
	LastMotion bool
	HasResult  bool
}

type DataSampleStore struct {
	stats      Stats
	statsMutex sync.Mutex

	// counted by the queue, which never touches the rest of stats
	queueDropped uint64
}

func NewDataSampleStore() *DataSampleStore {
	return &DataSampleStore{}
}

func (d *DataSampleStore) UpdateSampleStore(stats Stats) {
	d.statsMutex.Lock()
	defer d.statsMutex.Unlock()

	d.stats = stats
}

func (d *DataSampleStore) AddQueueDrop() {
	d.statsMutex.Lock()
	defer d.statsMutex.Unlock()

	d.queueDropped++
}

func (d *DataSampleStore) GetReadingFromSampleStore() Stats {
	d.statsMutex.Lock()
	defer d.statsMutex.Unlock()

	stats := d.stats
	stats.QueueDropped = d.queueDropped
	return stats
}
