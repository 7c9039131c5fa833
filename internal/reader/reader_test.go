package reader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/qjournal/internal/fileindex"
	"github.com/vnykmshr/qjournal/internal/journalfile"
	"github.com/vnykmshr/qjournal/internal/record"
)

type fakeJournal struct {
	tail     uint64
	earliest uint64
	idx      *fileindex.Index
}

func (f *fakeJournal) TailID() uint64       { return f.tail }
func (f *fakeJournal) EarliestHead() uint64 { return f.earliest }
func (f *fakeJournal) FileInfoForID(id uint64) (fileindex.FileInfo, bool) {
	if f.idx == nil {
		return fileindex.FileInfo{}, false
	}
	return f.idx.FileInfoForID(id)
}
func (f *fakeJournal) FirstFileInfo() (fileindex.FileInfo, bool) {
	if f.idx == nil {
		return fileindex.FileInfo{}, false
	}
	return f.idx.First()
}
func (f *fakeJournal) Submit(fn func()) { fn() }

func TestCommitTrackingScenario(t *testing.T) {
	jv := &fakeJournal{tail: 200, earliest: 1}
	r := New(jv, "", filepath.Join(t.TempDir(), "test.read."), 123, nil, nil)

	r.Commit(124)
	assert.Equal(t, uint64(124), r.Head())
	assert.Empty(t, r.DoneSet())

	r.Commit(126)
	r.Commit(127)
	r.Commit(129)
	assert.Equal(t, uint64(124), r.Head())
	assert.Equal(t, []uint64{126, 127, 129}, r.DoneSet())

	r.Commit(125)
	assert.Equal(t, uint64(127), r.Head())
	assert.Equal(t, []uint64{129}, r.DoneSet())

	r.Commit(130)
	r.Commit(128)
	assert.Equal(t, uint64(130), r.Head())
	assert.Empty(t, r.DoneSet())
}

func TestCommitConvergenceAnyPermutation(t *testing.T) {
	perms := [][]uint64{
		{1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1},
		{3, 1, 4, 2, 5},
		{2, 4, 1, 5, 3},
	}
	for _, perm := range perms {
		jv := &fakeJournal{tail: 100, earliest: 1}
		r := New(jv, "", filepath.Join(t.TempDir(), "test.read."), 0, nil, nil)
		for _, id := range perm {
			r.Commit(id)
		}
		assert.Equal(t, uint64(5), r.Head())
		assert.Empty(t, r.DoneSet())
	}
}

func TestCheckpointWriteScenario(t *testing.T) {
	jv := &fakeJournal{tail: 200, earliest: 1}
	path := filepath.Join(t.TempDir(), "test.read.client1")
	r := New(jv, "client1", path, 123, nil, nil)

	r.Commit(125)
	r.Commit(130)

	require.NoError(t, r.Checkpoint())

	f, err := journalfile.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rec1, err := f.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, record.ReadHead{Head: 123}, rec1)

	rec2, err := f.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, record.ReadDone{IDs: []uint64{125, 130}}, rec2)
}

func TestCheckpointIdempotence(t *testing.T) {
	jv := &fakeJournal{tail: 200, earliest: 1}
	path := filepath.Join(t.TempDir(), "test.read.client1")
	r := New(jv, "client1", path, 123, nil, nil)
	r.Commit(125)

	require.NoError(t, r.Checkpoint())
	first, err := os.ReadFile(path) //nolint:gosec // test fixture path
	require.NoError(t, err)

	require.NoError(t, r.Checkpoint())
	second, err := os.ReadFile(path) //nolint:gosec // test fixture path
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCheckpointReadScenario(t *testing.T) {
	jv := &fakeJournal{tail: 903, earliest: 1}
	path := filepath.Join(t.TempDir(), "test.read.client1")

	w, err := journalfile.OpenWriter(path, 0)
	require.NoError(t, err)
	_, err = w.WriteRecord(record.EncodeReadHead(900))
	require.NoError(t, err)
	_, err = w.WriteRecord(record.EncodeReadDone([]uint64{902, 903}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := New(jv, "client1", path, 0, nil, nil)
	require.NoError(t, r.ReadState())

	assert.Equal(t, uint64(900), r.Head())
	assert.Equal(t, []uint64{902, 903}, r.DoneSet())
}

func TestReadStateClampsHeadToEarliestHeadMinusOne(t *testing.T) {
	jv := &fakeJournal{tail: 500, earliest: 300}
	path := filepath.Join(t.TempDir(), "test.read.client1")

	w, err := journalfile.OpenWriter(path, 0)
	require.NoError(t, err)
	_, err = w.WriteRecord(record.EncodeReadHead(10))
	require.NoError(t, err)
	_, err = w.WriteRecord(record.EncodeReadDone(nil))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := New(jv, "client1", path, 0, nil, nil)
	require.NoError(t, r.ReadState())
	assert.Equal(t, uint64(299), r.Head())
}

func TestFlushAdvancesToTailAndClearsDoneSet(t *testing.T) {
	jv := &fakeJournal{tail: 50, earliest: 1}
	r := New(jv, "", filepath.Join(t.TempDir(), "test.read."), 10, nil, nil)
	r.Commit(20)
	r.Flush()
	assert.Equal(t, uint64(50), r.Head())
	assert.Empty(t, r.DoneSet())
}
