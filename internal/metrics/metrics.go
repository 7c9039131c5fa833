// Package metrics defines the metrics-collection surface used throughout
// the journal, and a Prometheus-backed default implementation.
package metrics

import "time"

// Collector is the interface callers depend on; the journal, reader, and
// scanner never import prometheus directly.
type Collector interface {
	RecordPut(bytes int, duration time.Duration)
	RecordPutError()
	RecordRotation()
	RecordCorruptionRecovered(bytesLost int64)
	RecordFilesGC(removed int, archived bool)
	RecordCheckpoint(duration time.Duration)
	RecordCheckpointError()
	UpdateState(tail, earliestHead uint64, fileCount int, journalSizeBytes uint64)
	UpdateReaderLag(readerName string, lag uint64)
}

// NoopCollector discards every observation. It is the default so the core
// has no mandatory runtime dependency on a running metrics registry.
type NoopCollector struct{}

func (NoopCollector) RecordPut(int, time.Duration)            {}
func (NoopCollector) RecordPutError()                         {}
func (NoopCollector) RecordRotation()                         {}
func (NoopCollector) RecordCorruptionRecovered(int64)         {}
func (NoopCollector) RecordFilesGC(int, bool)                 {}
func (NoopCollector) RecordCheckpoint(time.Duration)          {}
func (NoopCollector) RecordCheckpointError()                  {}
func (NoopCollector) UpdateState(uint64, uint64, int, uint64) {}
func (NoopCollector) UpdateReaderLag(string, uint64)          {}

var _ Collector = NoopCollector{}
