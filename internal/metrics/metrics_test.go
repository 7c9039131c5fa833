package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollectorRecordsPuts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg, "test_queue")

	c.RecordPut(128, 5*time.Millisecond)
	c.RecordPut(64, time.Millisecond)
	c.RecordPutError()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestPrometheusCollectorUpdatesState(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg, "test_queue")

	c.UpdateState(100, 1, 3, 4096)
	c.UpdateReaderLag("client1", 42)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestPrometheusCollectorImplementsCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	var c Collector = NewPrometheusCollector(reg, "test_queue")
	c.RecordRotation()
	c.RecordFilesGC(2, false)
	c.RecordFilesGC(1, true)
	c.RecordCheckpoint(time.Microsecond)
	c.RecordCheckpointError()
	c.RecordCorruptionRecovered(64)
}

func TestNoopCollectorDiscardsEverything(t *testing.T) {
	var c Collector = NoopCollector{}
	c.RecordPut(1, time.Second)
	c.RecordPutError()
	c.RecordRotation()
	c.RecordCorruptionRecovered(1)
	c.RecordFilesGC(1, true)
	c.RecordCheckpoint(time.Second)
	c.RecordCheckpointError()
	c.UpdateState(1, 1, 1, 1)
	c.UpdateReaderLag("r", 1)
	assert.NotNil(t, c)
}
