package journal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/qjournal/pkg/journal"
)

func TestPutAndReaderCommitRoundTrip(t *testing.T) {
	dir := t.TempDir()

	j, err := journal.Open(dir, "events")
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	item, fut, err := j.Put([]byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, fut.Wait())
	assert.Equal(t, uint64(1), item.ID)
	assert.Equal(t, uint64(1), j.Tail())

	r, err := j.Reader("consumer-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.Head())

	r.Commit(item.ID)
	assert.Equal(t, uint64(1), r.Head())
	require.NoError(t, r.Checkpoint())

	stats, err := j.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Tail)
	assert.Equal(t, 1, stats.ReaderCount)
}

func TestReopenRestoresTailAndReaderState(t *testing.T) {
	dir := t.TempDir()

	j, err := journal.Open(dir, "events")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, _, err := j.Put([]byte("x"), 0)
		require.NoError(t, err)
	}
	r, err := j.Reader("consumer-1")
	require.NoError(t, err)
	r.Commit(1)
	r.Commit(2)
	require.NoError(t, r.Checkpoint())
	require.NoError(t, j.Close())

	j2, err := journal.Open(dir, "events")
	require.NoError(t, err)
	defer func() { _ = j2.Close() }()

	assert.Equal(t, uint64(3), j2.Tail())

	r2, err := j2.Reader("consumer-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r2.Head())
}

func TestPutRejectsOversizedItem(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(dir, "events", journal.WithMaxItemSize(4))
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	_, _, err = j.Put([]byte("too long"), 0)
	assert.ErrorIs(t, err, journal.ErrInvalidItemSize)
}

func TestReadBehindCrossesRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(dir, "events", journal.WithMaxFileSize(64))
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	for i := 0; i < 20; i++ {
		_, _, err := j.Put([]byte("payload-data"), 0)
		require.NoError(t, err)
	}

	r, err := j.Reader("scanner-1")
	require.NoError(t, err)
	require.NoError(t, r.StartReadBehind(1))
	defer r.EndReadBehind()

	var got []uint64
	for {
		item, err := r.NextReadBehind()
		require.NoError(t, err)
		if item == nil {
			break
		}
		got = append(got, item.ID)
	}
	assert.Len(t, got, 20)
	assert.Equal(t, uint64(1), got[0])
	assert.Equal(t, uint64(20), got[len(got)-1])
}
