package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector is the default, non-noop Collector implementation. It
// registers a fixed set of counters, gauges, and histograms under the
// "qjournal" namespace, labelled with the queue name, and exposes them
// through the standard prometheus client registry.
type PrometheusCollector struct {
	puts           prometheus.Counter
	putErrors      prometheus.Counter
	putBytes       prometheus.Counter
	putDuration    prometheus.Histogram
	rotations      prometheus.Counter
	corruptions    prometheus.Counter
	corruptionLoss prometheus.Counter
	filesDeleted   prometheus.Counter
	filesArchived  prometheus.Counter
	checkpoints    prometheus.Counter
	checkpointErrs prometheus.Counter
	checkpointDur  prometheus.Histogram

	tail         prometheus.Gauge
	earliestHead prometheus.Gauge
	fileCount    prometheus.Gauge
	journalBytes prometheus.Gauge
	readerLag    *prometheus.GaugeVec
}

// NewPrometheusCollector builds a PrometheusCollector and registers its
// metrics with reg. Pass prometheus.DefaultRegisterer for the global
// registry, or a fresh *prometheus.Registry in tests.
func NewPrometheusCollector(reg prometheus.Registerer, queueName string) *PrometheusCollector {
	labels := prometheus.Labels{"queue": queueName}
	c := &PrometheusCollector{
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qjournal", Name: "puts_total", Help: "Total successful put operations.", ConstLabels: labels,
		}),
		putErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qjournal", Name: "put_errors_total", Help: "Total failed put operations.", ConstLabels: labels,
		}),
		putBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qjournal", Name: "put_bytes_total", Help: "Total bytes appended via put.", ConstLabels: labels,
		}),
		putDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "qjournal", Name: "put_duration_seconds", Help: "Put call latency.", ConstLabels: labels,
			Buckets: prometheus.DefBuckets,
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qjournal", Name: "rotations_total", Help: "Total data file rotations.", ConstLabels: labels,
		}),
		corruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qjournal", Name: "corruptions_recovered_total", Help: "Total tail corruptions repaired by truncation.", ConstLabels: labels,
		}),
		corruptionLoss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qjournal", Name: "corruption_bytes_lost_total", Help: "Total bytes discarded by corruption-recovery truncation.", ConstLabels: labels,
		}),
		filesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qjournal", Name: "files_deleted_total", Help: "Total data files garbage-collected by deletion.", ConstLabels: labels,
		}),
		filesArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qjournal", Name: "files_archived_total", Help: "Total data files garbage-collected by archival.", ConstLabels: labels,
		}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qjournal", Name: "checkpoints_total", Help: "Total reader checkpoint writes.", ConstLabels: labels,
		}),
		checkpointErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qjournal", Name: "checkpoint_errors_total", Help: "Total failed reader checkpoint writes.", ConstLabels: labels,
		}),
		checkpointDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "qjournal", Name: "checkpoint_duration_seconds", Help: "Reader checkpoint latency.", ConstLabels: labels,
			Buckets: prometheus.DefBuckets,
		}),
		tail: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qjournal", Name: "tail_id", Help: "Largest item ID ever appended.", ConstLabels: labels,
		}),
		earliestHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qjournal", Name: "earliest_head_id", Help: "Smallest item ID still retained on disk.", ConstLabels: labels,
		}),
		fileCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qjournal", Name: "file_count", Help: "Number of data files currently retained.", ConstLabels: labels,
		}),
		journalBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qjournal", Name: "journal_size_bytes", Help: "Total size of retained data files.", ConstLabels: labels,
		}),
		readerLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "qjournal", Name: "reader_lag", Help: "tail - reader.head, per reader.", ConstLabels: labels,
		}, []string{"reader"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.puts, c.putErrors, c.putBytes, c.putDuration,
			c.rotations, c.corruptions, c.corruptionLoss,
			c.filesDeleted, c.filesArchived,
			c.checkpoints, c.checkpointErrs, c.checkpointDur,
			c.tail, c.earliestHead, c.fileCount, c.journalBytes, c.readerLag,
		)
	}
	return c
}

func (c *PrometheusCollector) RecordPut(bytes int, duration time.Duration) {
	c.puts.Inc()
	c.putBytes.Add(float64(bytes))
	c.putDuration.Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordPutError() { c.putErrors.Inc() }

func (c *PrometheusCollector) RecordRotation() { c.rotations.Inc() }

func (c *PrometheusCollector) RecordCorruptionRecovered(bytesLost int64) {
	c.corruptions.Inc()
	c.corruptionLoss.Add(float64(bytesLost))
}

func (c *PrometheusCollector) RecordFilesGC(removed int, archived bool) {
	if archived {
		c.filesArchived.Add(float64(removed))
		return
	}
	c.filesDeleted.Add(float64(removed))
}

func (c *PrometheusCollector) RecordCheckpoint(duration time.Duration) {
	c.checkpoints.Inc()
	c.checkpointDur.Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordCheckpointError() { c.checkpointErrs.Inc() }

func (c *PrometheusCollector) UpdateState(tail, earliestHead uint64, fileCount int, journalSizeBytes uint64) {
	c.tail.Set(float64(tail))
	c.earliestHead.Set(float64(earliestHead))
	c.fileCount.Set(float64(fileCount))
	c.journalBytes.Set(float64(journalSizeBytes))
}

func (c *PrometheusCollector) UpdateReaderLag(readerName string, lag uint64) {
	c.readerLag.WithLabelValues(readerName).Set(float64(lag))
}

var _ Collector = (*PrometheusCollector)(nil)
