package fileindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleItemFiles() *Index {
	return FromFileInfos([]FileInfo{
		{Path: "test.1", HeadID: 1, TailID: 1, Items: 1},
		{Path: "test.901", HeadID: 901, TailID: 901, Items: 1},
		{Path: "test.5005", HeadID: 5005, TailID: 5005, Items: 1},
		{Path: "test.8000", HeadID: 8000, TailID: 8000, Items: 1},
	})
}

func TestFileInfoForID(t *testing.T) {
	idx := singleItemFiles()

	cases := []struct {
		id       uint64
		wantPath string
		wantOK   bool
	}{
		{0, "", false},
		{1, "test.1", true},
		{555, "test.1", true},
		{900, "test.1", true},
		{901, "test.901", true},
		{902, "test.901", true},
		{6666, "test.5005", true},
		{9999, "test.8000", true},
	}

	for _, tc := range cases {
		fi, ok := idx.FileInfoForID(tc.id)
		assert.Equal(t, tc.wantOK, ok, "id=%d", tc.id)
		if tc.wantOK {
			assert.Equal(t, tc.wantPath, fi.Path, "id=%d", tc.id)
		}
	}
}

func TestFileInfoForIDEmptyIndex(t *testing.T) {
	idx := Empty()
	_, ok := idx.FileInfoForID(1)
	assert.False(t, ok)
}

func TestEarliestHead(t *testing.T) {
	assert.Equal(t, uint64(0), Empty().EarliestHead())
	assert.Equal(t, uint64(1), singleItemFiles().EarliestHead())
}

func TestInsertAppendsWithoutMutatingOriginal(t *testing.T) {
	idx := singleItemFiles()
	next := idx.Insert(FileInfo{Path: "test.9000", HeadID: 9000, TailID: 8999, Items: 0})

	assert.Equal(t, 4, idx.Len())
	require.Equal(t, 5, next.Len())

	last, ok := next.Last()
	require.True(t, ok)
	assert.Equal(t, "test.9000", last.Path)
}

func TestReplaceLastUpdatesCountersWithoutMutatingOriginal(t *testing.T) {
	idx := singleItemFiles()
	updated := idx.ReplaceLast(FileInfo{Path: "test.8000", HeadID: 8000, TailID: 8010, Items: 11, Bytes: 123})

	last, _ := idx.Last()
	assert.Equal(t, uint64(8000), last.TailID)

	updatedLast, _ := updated.Last()
	assert.Equal(t, uint64(8010), updatedLast.TailID)
	assert.Equal(t, uint64(11), updatedLast.Items)
}

func TestFileInfosAfter(t *testing.T) {
	idx := singleItemFiles()
	after := idx.FileInfosAfter(901)
	require.Len(t, after, 3)
	assert.Equal(t, uint64(901), after[0].HeadID)
}

func TestRemovePrefix(t *testing.T) {
	idx := singleItemFiles()
	kept, dropped := idx.RemovePrefix(2)

	require.Len(t, dropped, 2)
	assert.Equal(t, "test.1", dropped[0].Path)
	assert.Equal(t, "test.901", dropped[1].Path)

	require.Equal(t, 2, kept.Len())
	earliest := kept.EarliestHead()
	assert.Equal(t, uint64(5005), earliest)

	// original index unaffected
	assert.Equal(t, 4, idx.Len())
}
