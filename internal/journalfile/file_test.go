package journalfile

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/qjournal/internal/record"
)

func TestWriterAppendsAndSyncsImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.1")
	w, err := OpenWriter(path, 0)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	fut, err := w.WriteRecord(record.EncodePut(record.Item{ID: 1, Data: []byte("hello")}))
	require.NoError(t, err)
	require.NoError(t, fut.Wait())
	assert.Equal(t, record.TotalSize(24+5), w.Position())
}

func TestWriterReopenPositionsAtExistingEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.1")
	w, err := OpenWriter(path, 0)
	require.NoError(t, err)
	_, err = w.WriteRecord(record.EncodePut(record.Item{ID: 1, Data: []byte("a")}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := OpenWriter(path, 0)
	require.NoError(t, err)
	defer func() { _ = w2.Close() }()
	assert.Equal(t, record.TotalSize(24+1), w2.Position())
}

func TestWriterNeverSyncResolvesImmediatelyWithoutFsync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.1")
	w, err := OpenWriter(path, NeverSync)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	fut, err := w.WriteRecord(record.EncodePut(record.Item{ID: 1, Data: []byte("x")}))
	require.NoError(t, err)
	require.NoError(t, fut.Wait())
}

func TestWriterCoalescedSyncResolvesAllPendingFutures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.1")
	w, err := OpenWriter(path, 20*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	fut1, err := w.WriteRecord(record.EncodePut(record.Item{ID: 1, Data: []byte("a")}))
	require.NoError(t, err)
	fut2, err := w.WriteRecord(record.EncodePut(record.Item{ID: 2, Data: []byte("b")}))
	require.NoError(t, err)

	require.NoError(t, fut1.Wait())
	require.NoError(t, fut2.Wait())
}

func TestWriterWriteAfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.1")
	w, err := OpenWriter(path, 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.WriteRecord(record.EncodePut(record.Item{ID: 1}))
	assert.Error(t, err)
}

func TestReaderReadsRecordsInOrderThenEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.1")
	w, err := OpenWriter(path, 0)
	require.NoError(t, err)
	_, err = w.WriteRecord(record.EncodePut(record.Item{ID: 1, Data: []byte("a")}))
	require.NoError(t, err)
	_, err = w.WriteRecord(record.EncodePut(record.Item{ID: 2, Data: []byte("bb")}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	rec1, err := r.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, record.Put{Item: record.Item{ID: 1, Data: []byte("a")}}, rec1)

	rec2, err := r.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, record.Put{Item: record.Item{ID: 2, Data: []byte("bb")}}, rec2)

	_, err = r.ReadNext()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderIsIndependentOfWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.1")
	w, err := OpenWriter(path, 0)
	require.NoError(t, err)
	_, err = w.WriteRecord(record.EncodePut(record.Item{ID: 1, Data: []byte("a")}))
	require.NoError(t, err)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	_, err = r.ReadNext()
	require.NoError(t, err)

	_, err = w.WriteRecord(record.EncodePut(record.Item{ID: 2, Data: []byte("b")}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rec2, err := r.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, record.Put{Item: record.Item{ID: 2, Data: []byte("b")}}, rec2)
}

func TestReaderDetectsTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.1")
	w, err := OpenWriter(path, 0)
	require.NoError(t, err)
	_, err = w.WriteRecord(record.EncodePut(record.Item{ID: 1, Data: []byte("a")}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, Truncate(path, 3))

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	_, err = r.ReadNext()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}
