package journal

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/qjournal/internal/journalfile"
	"github.com/vnykmshr/qjournal/internal/record"
)

func openTest(t *testing.T, opts Options) *Journal {
	t.Helper()
	dir := t.TempDir()
	j, err := Open(dir, "test", opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestIDMonotonicity(t *testing.T) {
	j := openTest(t, Options{})

	var prev uint64
	for i := 0; i < 50; i++ {
		item, fut, err := j.Put([]byte(fmt.Sprintf("item-%d", i)), 0, 0)
		require.NoError(t, err)
		require.NoError(t, fut.Wait())
		assert.Equal(t, prev+1, item.ID)
		prev = item.ID
	}
	assert.Equal(t, uint64(50), j.TailID())
}

func TestIndexCoverageAcrossRotations(t *testing.T) {
	j := openTest(t, Options{MaxFileSize: 64})

	for i := 0; i < 40; i++ {
		_, _, err := j.Put([]byte("payload-data"), 0, 0)
		require.NoError(t, err)
	}

	earliest := j.EarliestHead()
	tail := j.TailID()
	require.Greater(t, tail, earliest)

	for id := earliest; id <= tail; id++ {
		fi, ok := j.FileInfoForID(id)
		require.True(t, ok, "id %d not covered", id)
		assert.LessOrEqual(t, fi.HeadID, id)
		assert.GreaterOrEqual(t, fi.TailID, id)
	}
}

func TestRoundTripAfterReopen(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, "test", Options{MaxFileSize: 64})
	require.NoError(t, err)

	want := make([][]byte, 30)
	for i := range want {
		want[i] = []byte(fmt.Sprintf("payload-%02d", i))
		_, _, err := j.Put(want[i], 0, 0)
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	j2, err := Open(dir, "test", Options{MaxFileSize: 64})
	require.NoError(t, err)
	defer func() { _ = j2.Close() }()

	var got [][]byte
	for _, fi := range j2.FileIndexSnapshot() {
		r, err := journalfile.OpenReader(fi.Path)
		require.NoError(t, err)
		for {
			rec, err := r.ReadNext()
			if err != nil {
				break
			}
			if put, ok := rec.(record.Put); ok {
				got = append(got, put.Item.Data)
			}
		}
		_ = r.Close()
	}
	assert.Equal(t, want, got)
}

func TestRotationScenario(t *testing.T) {
	j := openTest(t, Options{MaxFileSize: 64})

	before := j.FileIndexSnapshot()
	require.Len(t, before, 1)

	for i := 0; i < 3; i++ {
		_, _, err := j.Put([]byte("payload-data"), 0, 0)
		require.NoError(t, err)
	}

	after := j.FileIndexSnapshot()
	require.Len(t, after, 2)
	assert.Equal(t, after[0].TailID+1, after[1].HeadID, "no gap between rotated files")
	assert.Equal(t, after[0].Path, before[0].Path)
	assert.NotEqual(t, after[0].Path, after[1].Path)
}

func TestGCSafetyRespectsReaderHead(t *testing.T) {
	j := openTest(t, Options{MaxFileSize: 64})

	for i := 0; i < 40; i++ {
		_, _, err := j.Put([]byte("payload-data"), 0, 0)
		require.NoError(t, err)
	}

	r, err := j.Reader("slow-consumer")
	require.NoError(t, err)
	r.SetHead(5)

	require.NoError(t, j.CollectGarbage())

	minHead := r.Head() + 1
	for _, fi := range j.FileIndexSnapshot() {
		assert.GreaterOrEqual(t, fi.TailID, minHead, "dropped a file a reader still needs")
	}
}

func TestCrashRecoveryTruncatesToLastGoodRecord(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, "test", Options{MaxFileSize: 1 << 30})
	require.NoError(t, err)

	var lastGoodTail uint64
	for i := 0; i < 5; i++ {
		item, fut, err := j.Put([]byte("payload-data"), 0, 0)
		require.NoError(t, err)
		require.NoError(t, fut.Wait())
		lastGoodTail = item.ID
	}

	activePath := j.FileIndexSnapshot()[0].Path
	require.NoError(t, j.Close())

	info, err := os.Stat(activePath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(activePath, info.Size()-3))

	j2, err := Open(dir, "test", Options{MaxFileSize: 1 << 30})
	require.NoError(t, err)
	defer func() { _ = j2.Close() }()

	assert.Equal(t, lastGoodTail-1, j2.TailID())
}
