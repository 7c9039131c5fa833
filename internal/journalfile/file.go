// Package journalfile provides append-only and sequential-read handles over
// a single journal data or reader file. It knows nothing about queues,
// indexes, or IDs beyond what it needs to frame records; the journal package
// builds meaning on top of it.
package journalfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vnykmshr/qjournal/internal/record"
)

// NeverSync disables implicit fsyncs; the caller must call Sync explicitly
// (or never, accepting the durability risk).
const NeverSync = time.Duration(-1)

// Future is a completion handle for a durability-sensitive operation. It
// resolves once the write it covers has been fsynced (or immediately, if
// the journal's sync policy disables fsync).
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until the future resolves and returns its error, if any.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

// resolved returns an already-completed future, used for the NeverSync and
// sync-on-every-write (syncEvery == 0) paths where there is nothing to wait for.
func resolved(err error) *Future {
	f := newFuture()
	f.resolve(err)
	return f
}

// Writer is an append-only handle over the active data or reader file.
// Writes are visible in file-position order; WriteRecord never reorders.
type Writer struct {
	path string
	f    *os.File
	bw   *bufio.Writer

	syncEvery time.Duration

	mu           sync.Mutex
	position     int64
	pending      []*Future
	timerRunning bool
	closed       bool
}

// OpenWriter creates path if it does not exist, opens it for append (existing
// contents are kept), and returns a Writer positioned at its current end.
func OpenWriter(path string, syncEvery time.Duration) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // journal directory is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("journalfile: open writer %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("journalfile: stat %s: %w", path, err)
	}
	return &Writer{
		path:      path,
		f:         f,
		bw:        bufio.NewWriterSize(f, 64*1024),
		syncEvery: syncEvery,
		position:  info.Size(),
	}, nil
}

// Position returns the writer's current byte offset (including buffered,
// not-yet-flushed bytes).
func (w *Writer) Position() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.position
}

// WriteRecord appends pre-encoded record bytes and returns a durability
// future per the writer's sync policy.
func (w *Writer) WriteRecord(data []byte) (*Future, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, fmt.Errorf("journalfile: writer %s is closed", w.path)
	}

	if _, err := w.bw.Write(data); err != nil {
		return nil, fmt.Errorf("journalfile: write %s: %w", w.path, err)
	}
	w.position += int64(len(data))

	switch {
	case w.syncEvery == 0:
		if err := w.flushAndSyncLocked(); err != nil {
			return nil, err
		}
		return resolved(nil), nil
	case w.syncEvery == NeverSync:
		return resolved(nil), nil
	default:
		future := newFuture()
		w.pending = append(w.pending, future)
		if !w.timerRunning {
			w.timerRunning = true
			time.AfterFunc(w.syncEvery, w.fireScheduledSync)
		}
		return future, nil
	}
}

func (w *Writer) fireScheduledSync() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.timerRunning = false
	if w.closed {
		for _, f := range w.pending {
			f.resolve(fmt.Errorf("journalfile: writer %s closed before sync", w.path))
		}
		w.pending = nil
		return
	}

	err := w.flushAndSyncLocked()
	for _, f := range w.pending {
		f.resolve(err)
	}
	w.pending = nil
}

// flushAndSyncLocked flushes the buffer and fsyncs. Caller must hold mu.
func (w *Writer) flushAndSyncLocked() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("journalfile: flush %s: %w", w.path, err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("journalfile: fsync %s: %w", w.path, err)
	}
	return nil
}

// Sync forces a flush and fsync, resolving any pending coalesced futures.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.flushAndSyncLocked()
	for _, f := range w.pending {
		f.resolve(err)
	}
	w.pending = nil
	return err
}

// Close flushes, fsyncs, resolves any pending futures, and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	err := w.flushAndSyncLocked()
	for _, f := range w.pending {
		f.resolve(err)
	}
	w.pending = nil
	w.closed = true
	if cerr := w.f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("journalfile: close %s: %w", w.path, cerr)
	}
	return err
}

// Reader is a sequential, forward-only read handle over a journal file. It
// opens its own file descriptor, independent of any Writer over the same
// path, so a Scanner can read a file that a rotated-away Writer no longer
// touches.
type Reader struct {
	path string
	f    *os.File
	br   *bufio.Reader
	pos  int64
}

// OpenReader opens path for sequential reading, positioned at the start.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path) //nolint:gosec // journal directory is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("journalfile: open reader %s: %w", path, err)
	}
	return &Reader{path: path, f: f, br: bufio.NewReaderSize(f, 64*1024)}, nil
}

// Position returns the current read offset.
func (r *Reader) Position() int64 { return r.pos }

// Path returns the file path this reader was opened over.
func (r *Reader) Path() string { return r.path }

// ReadNext decodes and returns the next record, or io.EOF at a clean end of
// file, or a *record.CorruptedError if the tail is truncated or malformed.
func (r *Reader) ReadNext() (any, error) {
	rec, err := record.Decode(r.br, r.pos)
	if err != nil {
		return nil, err
	}
	r.pos += recordSize(rec)
	return rec, nil
}

func recordSize(rec any) int64 {
	switch v := rec.(type) {
	case record.Put:
		return record.TotalSize(24 + len(v.Item.Data))
	case record.ReadHead:
		return record.TotalSize(8)
	case record.ReadDone:
		return record.TotalSize(8 * len(v.IDs))
	case record.Raw:
		return record.TotalSize(len(v.Payload))
	default:
		return 0
	}
}

// Close closes the underlying file descriptor.
func (r *Reader) Close() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("journalfile: close %s: %w", r.path, err)
	}
	return nil
}

// Truncate truncates the file at path to the given size. Used during
// startup corruption recovery, before any Writer or Reader is opened over
// the file.
func Truncate(path string, size int64) error {
	if err := os.Truncate(path, size); err != nil {
		return fmt.Errorf("journalfile: truncate %s to %d: %w", path, size, err)
	}
	return nil
}

var _ io.Closer = (*Reader)(nil)
