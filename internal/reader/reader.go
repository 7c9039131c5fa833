// Package reader implements a single consumer's durable progress cursor
// over a journal: a head (highest contiguous consumed ID), an out-of-order
// doneSet for IDs consumed ahead of head, and an atomically-checkpointed
// on-disk state file.
package reader

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/vnykmshr/qjournal/internal/fileindex"
	"github.com/vnykmshr/qjournal/internal/journalfile"
	"github.com/vnykmshr/qjournal/internal/logging"
	"github.com/vnykmshr/qjournal/internal/metrics"
	"github.com/vnykmshr/qjournal/internal/record"
	"github.com/vnykmshr/qjournal/internal/scanner"
)

// JournalView is the narrow capability surface a Reader needs from its
// owning Journal. Passing this instead of a *journal.Journal avoids a
// cyclic package dependency: Journal constructs Readers, so Reader cannot
// import the journal package back.
type JournalView interface {
	TailID() uint64
	EarliestHead() uint64
	FileInfoForID(id uint64) (fileindex.FileInfo, bool)
	FirstFileInfo() (fileindex.FileInfo, bool)
	// Submit runs fn on the journal's serialized actor and blocks until it
	// completes, giving checkpoint writes a total order with put/rotate.
	Submit(fn func())
}

// Reader is one consumer's cursor. Safe for concurrent use: commit, the
// head getter/setter, and checkpoint all take the internal mutex.
type Reader struct {
	journal JournalView
	logger  logging.Logger
	metrics metrics.Collector

	mu      sync.Mutex
	name    string
	path    string
	head    uint64
	doneSet map[uint64]struct{}

	behind *scanner.Scanner
}

// New constructs a Reader bound to path, with the given initial head and
// no out-of-order commits. It does not read or write the file; callers use
// ReadState to hydrate from an existing file, or Checkpoint to create one.
func New(jv JournalView, name, path string, head uint64, logger logging.Logger, coll metrics.Collector) *Reader {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	if coll == nil {
		coll = metrics.NoopCollector{}
	}
	return &Reader{
		journal: jv,
		logger:  logger,
		metrics: coll,
		name:    name,
		path:    path,
		head:    head,
		doneSet: make(map[uint64]struct{}),
	}
}

// Name returns the reader's name ("" for the default reader).
func (r *Reader) Name() string { return r.name }

// Path returns the reader's on-disk state file path.
func (r *Reader) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Head returns the current head: the largest ID such that every ID <= head
// has been consumed.
func (r *Reader) Head() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head
}

// DoneSet returns a sorted snapshot of IDs consumed out of order (> head).
func (r *Reader) DoneSet() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.doneSet)
}

func sortedKeys(m map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Commit marks id as consumed. If id is exactly head+1, head advances, and
// then keeps advancing through any contiguous run already present in
// doneSet. Otherwise id is recorded in doneSet for later convergence.
// Regardless of commit order, once every ID in [head+1, head+k] has been
// committed, head == head+k and doneSet is empty (see SPEC_FULL.md §8
// "Commit-tracking scenario").
func (r *Reader) Commit(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != r.head+1 {
		r.doneSet[id] = struct{}{}
		return
	}
	r.head++
	for {
		next := r.head + 1
		if _, ok := r.doneSet[next]; !ok {
			break
		}
		delete(r.doneSet, next)
		r.head++
	}
}

// SetHead forcibly sets head and discards every doneSet entry <= v. Used
// for administrative seeks.
func (r *Reader) SetHead(v uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = v
	for id := range r.doneSet {
		if id <= v {
			delete(r.doneSet, id)
		}
	}
}

// Flush fast-forwards head to the journal's current tail, discards
// doneSet, and ends any active read-behind session.
func (r *Reader) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = r.journal.TailID()
	r.doneSet = make(map[uint64]struct{})
	r.endReadBehindLocked()
}

// ReadState replays the reader's on-disk file, if it exists, setting head
// and doneSet from its ReadHead/ReadDone records. A missing file leaves
// the reader at its constructed defaults. After replay, head is clamped to
// [EarliestHead-1, TailID]: this is intentional operator-recovery behavior
// (an operator who deletes data files ahead of head, or fast-forwards the
// queue, re-exposes or skips committed items rather than leaving the
// reader stuck on an ID that no longer exists).
func (r *Reader) ReadState() error {
	f, err := os.Open(r.path) //nolint:gosec // journal directory is operator-controlled
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reader: open %s: %w", r.path, err)
	}
	defer func() { _ = f.Close() }()

	var head uint64
	doneSet := make(map[uint64]struct{})
	pos := int64(0)
	for {
		rec, err := record.Decode(f, pos)
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.Warn("reader: corrupt or unknown record, skipping", logging.F("path", r.path))
			break
		}
		switch v := rec.(type) {
		case record.ReadHead:
			head = v.Head
		case record.ReadDone:
			for _, id := range v.IDs {
				doneSet[id] = struct{}{}
			}
		default:
			r.logger.Warn("reader: unexpected record kind in reader file, skipping", logging.F("path", r.path))
		}
	}

	tail := r.journal.TailID()
	for id := range doneSet {
		if id > tail {
			delete(doneSet, id)
		}
	}

	earliest := r.journal.EarliestHead()
	if earliest > 0 {
		head = clamp(head, earliest-1, tail)
	} else {
		head = clamp(head, 0, tail)
	}

	r.mu.Lock()
	r.head = head
	r.doneSet = doneSet
	r.mu.Unlock()
	return nil
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Checkpoint durably persists the reader's current head and doneSet. The
// snapshot is taken immediately (before scheduling), so concurrent Commit
// calls cannot corrupt an in-flight checkpoint write; the write itself runs
// on the journal's serialized actor so it cannot interleave with put,
// rotate, or another checkpoint.
func (r *Reader) Checkpoint() error {
	r.mu.Lock()
	head := r.head
	doneSet := sortedKeys(r.doneSet)
	path := r.path
	r.mu.Unlock()

	start := time.Now()
	var writeErr error
	r.journal.Submit(func() {
		writeErr = writeCheckpoint(path, head, doneSet)
	})
	if writeErr != nil {
		r.metrics.RecordCheckpointError()
		return writeErr
	}
	r.metrics.RecordCheckpoint(time.Since(start))
	return nil
}

// writeCheckpoint implements the atomic-rename checkpoint strategy: write
// to a `~~`-suffixed sibling file, fsync, then rename over the canonical
// path. The rename is atomic on the target filesystem.
func writeCheckpoint(path string, head uint64, doneSet []uint64) error {
	tmp := fmt.Sprintf("%s~~%d", path, time.Now().UnixMilli())

	w, err := journalfile.OpenWriter(tmp, 0)
	if err != nil {
		return fmt.Errorf("reader: open checkpoint temp %s: %w", tmp, err)
	}
	if _, err := w.WriteRecord(record.EncodeReadHead(head)); err != nil {
		_ = w.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("reader: write head: %w", err)
	}
	if _, err := w.WriteRecord(record.EncodeReadDone(doneSet)); err != nil {
		_ = w.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("reader: write doneSet: %w", err)
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("reader: close checkpoint temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("reader: rename checkpoint into place: %w", err)
	}
	return nil
}

// StartReadBehind opens a Scanner positioned at startID, for consuming
// items directly from disk when the reader has fallen outside the
// in-memory window maintained by the layer above.
func (r *Reader) StartReadBehind(startID uint64) error {
	s, err := scanner.Open(r.journal, startID)
	if err != nil {
		return fmt.Errorf("reader: start read-behind: %w", err)
	}
	r.mu.Lock()
	r.endReadBehindLocked()
	r.behind = s
	r.mu.Unlock()
	return nil
}

// NextReadBehind returns the next item from the active read-behind
// session. A nil item with nil error means the scanner has caught up to
// the live tail. A non-nil error (for example scanner.ErrIDGap) is fatal
// to this read-behind session: NextReadBehind ends the session before
// returning the error; there is no partial recovery.
func (r *Reader) NextReadBehind() (*record.Item, error) {
	r.mu.Lock()
	s := r.behind
	r.mu.Unlock()
	if s == nil {
		return nil, fmt.Errorf("reader: no active read-behind session")
	}
	item, err := s.Next()
	if err != nil {
		r.mu.Lock()
		r.endReadBehindLocked()
		r.mu.Unlock()
	}
	return item, err
}

// EndReadBehind closes the active read-behind session, if any.
func (r *Reader) EndReadBehind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endReadBehindLocked()
}

func (r *Reader) endReadBehindLocked() {
	if r.behind != nil {
		_ = r.behind.Close()
		r.behind = nil
	}
}

// setPath updates both the in-memory name and path together under the
// reader's own lock. Rename calls it after moving the on-disk file; setPath
// itself touches no file.
func (r *Reader) setPath(name, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
	r.path = path
}

// Rename switches this reader's name and on-disk path, moving the
// existing state file if one exists. Used when a named reader supersedes
// the auto-created default ("") reader.
func (r *Reader) Rename(newName, newPath string) error {
	r.mu.Lock()
	oldPath := r.path
	r.mu.Unlock()

	if oldPath != "" {
		if err := os.Rename(oldPath, newPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reader: rename %s to %s: %w", oldPath, newPath, err)
		}
	}
	r.setPath(newName, newPath)
	return nil
}
