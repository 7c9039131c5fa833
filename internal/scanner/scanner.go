// Package scanner implements the read-behind forward cursor: a way to
// consume journal items directly from disk, across data file boundaries,
// independent of the active writer handle.
package scanner

import (
	"errors"
	"fmt"
	"io"

	"github.com/vnykmshr/qjournal/internal/fileindex"
	"github.com/vnykmshr/qjournal/internal/journalfile"
	"github.com/vnykmshr/qjournal/internal/record"
)

// ErrIDGap is returned when the journal has no file covering the successor
// of the last item read: no contiguous chain of retained files connects the
// scanner's position to the tail, which means the missing items were lost
// (e.g. garbage-collected out from under a reader that never committed).
var ErrIDGap = errors.New("scanner: id gap, no file covers successor id")

// JournalView is the narrow capability surface a Scanner needs from its
// owning Journal.
type JournalView interface {
	TailID() uint64
	FileInfoForID(id uint64) (fileindex.FileInfo, bool)
	FirstFileInfo() (fileindex.FileInfo, bool)
}

// Scanner is a forward-only cursor over a Journal's data files. It opens
// its own file handles, separate from the active writer, so it is safe to
// use concurrently with puts and rotation.
type Scanner struct {
	journal JournalView

	id      uint64
	pending *record.Item // first matching item found during Open, if any

	file *journalfile.Reader
}

// Open positions a new Scanner so that the next call to Next returns the
// first Put record with id >= startID. If startID predates every retained
// file, the scanner starts at the earliest retained file instead (the
// items between startID and that file's headId are unrecoverable and were
// already gone before this scanner was opened).
func Open(jv JournalView, startID uint64) (*Scanner, error) {
	s := &Scanner{journal: jv}

	fi, ok := jv.FileInfoForID(startID)
	if !ok {
		fi, ok = jv.FirstFileInfo()
	}
	if !ok {
		s.id = jv.TailID()
		return s, nil
	}

	if err := s.openFile(fi.Path); err != nil {
		return nil, err
	}

	for {
		item, err := s.nextPutInFile()
		if errors.Is(err, io.EOF) {
			s.closeFile()
			s.id = jv.TailID()
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		if item.ID >= startID {
			s.pending = item
			return s, nil
		}
	}
}

func (s *Scanner) openFile(path string) error {
	r, err := journalfile.OpenReader(path)
	if err != nil {
		return fmt.Errorf("scanner: open %s: %w", path, err)
	}
	s.file = r
	return nil
}

func (s *Scanner) closeFile() {
	if s.file == nil {
		return
	}
	_ = s.file.Close()
	s.file = nil
}

// nextPutInFile reads records from the currently open file until it finds
// a Put, skipping every other record kind, and returns io.EOF at file end.
func (s *Scanner) nextPutInFile() (*record.Item, error) {
	for {
		rec, err := s.file.ReadNext()
		if err != nil {
			return nil, err
		}
		if put, ok := rec.(record.Put); ok {
			item := put.Item
			return &item, nil
		}
	}
}

// Close releases the scanner's open file handle, if any.
func (s *Scanner) Close() error {
	s.closeFile()
	return nil
}

// Next returns the next Put item in ID order. A nil item with a nil error
// means the scanner has caught up to the live tail; the caller should try
// again once more items have been appended. A non-nil error (typically
// ErrIDGap) is fatal: the caller must not retry this scanner.
func (s *Scanner) Next() (*record.Item, error) {
	if s.pending != nil {
		item := s.pending
		s.pending = nil
		s.id = item.ID
		return item, nil
	}

	for {
		if s.id == s.journal.TailID() {
			return nil, nil
		}

		if s.file == nil {
			fi, ok := s.journal.FileInfoForID(s.id + 1)
			if !ok || fi.TailID < s.id+1 {
				return nil, ErrIDGap
			}
			if err := s.openFile(fi.Path); err != nil {
				return nil, err
			}
		}

		item, err := s.nextPutInFile()
		if errors.Is(err, io.EOF) {
			s.closeFile()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scanner: read: %w", err)
		}

		s.id = item.ID
		return item, nil
	}
}
