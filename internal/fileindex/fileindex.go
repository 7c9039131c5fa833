// Package fileindex maintains the in-memory, ordered mapping from a data
// file's smallest item ID to its FileInfo. It has no knowledge of disk I/O;
// the journal package is responsible for keeping it consistent with what is
// actually on disk.
package fileindex

import "sort"

// FileInfo describes one on-disk data file.
type FileInfo struct {
	Path   string
	HeadID uint64 // smallest item ID in the file
	TailID uint64 // largest item ID in the file
	Items  uint64
	Bytes  uint64
}

// Index is an immutable-by-convention ordered map, keyed by HeadID. Callers
// treat an *Index value as copy-on-write: Insert/RemovePrefix/ReplaceLast return a
// new *Index, and the journal actor publishes the result by whole-value
// assignment so concurrent readers always see a self-consistent snapshot.
type Index struct {
	entries []FileInfo // sorted by HeadID, strictly increasing
}

// Empty returns a new, empty Index.
func Empty() *Index {
	return &Index{}
}

// FromFileInfos builds an Index from a slice of FileInfo, sorting by HeadID.
// The caller is responsible for ensuring the no-gap/no-overlap invariant.
func FromFileInfos(infos []FileInfo) *Index {
	out := make([]FileInfo, len(infos))
	copy(out, infos)
	sort.Slice(out, func(i, j int) bool { return out[i].HeadID < out[j].HeadID })
	return &Index{entries: out}
}

// Len returns the number of files in the index.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// FileInfoForID returns the entry with the largest HeadID <= id. It does not
// compare id against that entry's TailID, so an id past the end of the last
// file still maps to it. Returns false if the index is empty or id is
// smaller than every HeadID.
func (idx *Index) FileInfoForID(id uint64) (FileInfo, bool) {
	if idx == nil || len(idx.entries) == 0 {
		return FileInfo{}, false
	}
	// sort.Search finds the first index whose HeadID > id; the answer is one
	// before that, if any.
	i := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].HeadID > id
	})
	if i == 0 {
		return FileInfo{}, false
	}
	return idx.entries[i-1], true
}

// FileInfosAfter returns every entry with HeadID >= id, in increasing key
// order. The returned slice is a fresh copy; mutating it does not affect
// the index.
func (idx *Index) FileInfosAfter(id uint64) []FileInfo {
	if idx == nil || len(idx.entries) == 0 {
		return nil
	}
	i := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].HeadID >= id
	})
	out := make([]FileInfo, len(idx.entries)-i)
	copy(out, idx.entries[i:])
	return out
}

// EarliestHead returns the smallest HeadID in the index, or 0 if empty.
func (idx *Index) EarliestHead() uint64 {
	if idx == nil || len(idx.entries) == 0 {
		return 0
	}
	return idx.entries[0].HeadID
}

// Last returns the last (highest-HeadID) entry — the active writer file —
// and whether the index is non-empty.
func (idx *Index) Last() (FileInfo, bool) {
	if idx == nil || len(idx.entries) == 0 {
		return FileInfo{}, false
	}
	return idx.entries[len(idx.entries)-1], true
}

// First returns the earliest (lowest-HeadID) entry, and whether the index
// is non-empty. Used by the scanner when a requested start ID predates
// every retained file.
func (idx *Index) First() (FileInfo, bool) {
	if idx == nil || len(idx.entries) == 0 {
		return FileInfo{}, false
	}
	return idx.entries[0], true
}

// All returns every entry in increasing key order. The returned slice is a
// fresh copy.
func (idx *Index) All() []FileInfo {
	if idx == nil {
		return nil
	}
	out := make([]FileInfo, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// Insert returns a new Index with fi inserted. fi.HeadID must be strictly
// greater than every existing key; this is the rotation-append path.
func (idx *Index) Insert(fi FileInfo) *Index {
	base := idx.All()
	base = append(base, fi)
	return &Index{entries: base}
}

// ReplaceLast returns a new Index with its last entry replaced by fi. Used
// after a put updates the active file's counters.
func (idx *Index) ReplaceLast(fi FileInfo) *Index {
	base := idx.All()
	if len(base) == 0 {
		return &Index{entries: []FileInfo{fi}}
	}
	base[len(base)-1] = fi
	return &Index{entries: base}
}

// RemovePrefix returns a new Index with the first n entries dropped, and
// the dropped entries themselves (for the caller to archive/delete).
func (idx *Index) RemovePrefix(n int) (kept *Index, dropped []FileInfo) {
	all := idx.All()
	if n <= 0 {
		return &Index{entries: all}, nil
	}
	if n > len(all) {
		n = len(all)
	}
	dropped = all[:n]
	rest := make([]FileInfo, len(all)-n)
	copy(rest, all[n:])
	return &Index{entries: rest}, dropped
}
