// Package journal provides the public API for a durable, multi-reader
// append-only journal: a single Put path, independent per-consumer
// checkpointed cursors, and read-behind scanning across rotated files.
//
// Example usage:
//
//	j, err := journal.Open("/var/lib/myapp/queue", "events")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer j.Close()
//
//	item, fut, err := j.Put([]byte("hello"), 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = fut.Wait() // block for durability, if desired
//
//	r, err := j.Reader("consumer-1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r.Commit(item.ID)
//	_ = r.Checkpoint()
package journal

import (
	"fmt"
	"time"

	internaljournal "github.com/vnykmshr/qjournal/internal/journal"
	"github.com/vnykmshr/qjournal/internal/journalfile"
	"github.com/vnykmshr/qjournal/internal/reader"
	"github.com/vnykmshr/qjournal/internal/record"
)

// Item is an immutable queue item as returned by Put and read-behind.
type Item struct {
	ID         uint64
	AddTime    int64
	ExpireTime int64
	Data       []byte
}

// Stats is a point-in-time snapshot of a Journal's state.
type Stats struct {
	Tail                    uint64
	EarliestHead            uint64
	FileCount               int
	JournalSizeBytes        uint64
	ReaderCount             int
	CorruptedFilesRecovered uint64
}

// Journal is a durable, multi-reader append-only record store for one
// queue directory.
type Journal struct {
	j           *internaljournal.Journal
	maxItemSize int
}

// Open opens or creates the journal for queueName in dir, applying opts
// over DefaultOptions.
func Open(dir, queueName string, opts ...Option) (*Journal, error) {
	cfg := DefaultOptions()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("journal: apply option: %w", err)
		}
	}

	j, err := internaljournal.Open(dir, queueName, internaljournal.Options{
		MaxFileSize: cfg.MaxFileSize,
		SyncEvery:   cfg.SyncEvery,
		ArchiveDir:  cfg.ArchiveDir,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Journal{j: j, maxItemSize: cfg.MaxItemSize}, nil
}

// Put appends data as a new item with the given expiry (Unix ms, 0 for
// none) and returns the assigned item plus a durability future. The add
// time is stamped at call time.
func (jr *Journal) Put(data []byte, expireTime int64) (Item, *journalfile.Future, error) {
	if jr.maxItemSize > 0 && len(data) > jr.maxItemSize {
		return Item{}, nil, ErrInvalidItemSize
	}
	item, fut, err := jr.j.Put(data, time.Now().UnixMilli(), expireTime)
	if err != nil {
		return Item{}, nil, err
	}
	return toPublicItem(item), fut, nil
}

// Reader returns the named consumer cursor, creating and checkpointing it
// if it does not yet exist. An empty name addresses the default reader.
func (jr *Journal) Reader(name string) (*Reader, error) {
	r, err := jr.j.Reader(name)
	if err != nil {
		return nil, err
	}
	return &Reader{r: r}, nil
}

// ReaderNames returns the names of every currently open reader.
func (jr *Journal) ReaderNames() []string {
	return jr.j.ReaderNames()
}

// Tail returns the highest assigned item ID.
func (jr *Journal) Tail() uint64 {
	return jr.j.TailID()
}

// JournalSize returns the sum of on-disk sizes of every retained data file.
func (jr *Journal) JournalSize() (uint64, error) {
	return jr.j.JournalSize()
}

// Checkpoint persists every open reader's current head and doneSet.
func (jr *Journal) Checkpoint() error {
	return jr.j.Checkpoint()
}

// Rotate forces the active data file to close and a fresh one to open,
// followed by garbage collection.
func (jr *Journal) Rotate() error {
	return jr.j.Rotate()
}

// CollectGarbage runs garbage collection without forcing a rotation first.
func (jr *Journal) CollectGarbage() error {
	return jr.j.CollectGarbage()
}

// Stats assembles a point-in-time snapshot for operator inspection.
func (jr *Journal) Stats() (Stats, error) {
	s, err := jr.j.Stats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Tail:                    s.Tail,
		EarliestHead:            s.EarliestHead,
		FileCount:               s.FileCount,
		JournalSizeBytes:        s.JournalSizeBytes,
		ReaderCount:             s.ReaderCount,
		CorruptedFilesRecovered: s.CorruptedFilesRecovered,
	}, nil
}

// Close flushes and closes the journal. Safe to call more than once.
func (jr *Journal) Close() error {
	return jr.j.Close()
}

// Erase closes the journal and irreversibly removes every data and reader
// file it owns.
func (jr *Journal) Erase() error {
	return jr.j.Erase()
}

func toPublicItem(item record.Item) Item {
	return Item{ID: item.ID, AddTime: item.AddTime, ExpireTime: item.ExpireTime, Data: item.Data}
}

// Reader is one consumer's durable progress cursor over a Journal.
type Reader struct {
	r *reader.Reader
}

// Name returns the reader's name ("" for the default reader).
func (r *Reader) Name() string { return r.r.Name() }

// Head returns the current head: the largest ID such that every ID <= head
// has been consumed.
func (r *Reader) Head() uint64 { return r.r.Head() }

// DoneSet returns a sorted snapshot of IDs consumed out of order.
func (r *Reader) DoneSet() []uint64 { return r.r.DoneSet() }

// Commit marks id as consumed, advancing Head through any contiguous run.
func (r *Reader) Commit(id uint64) { r.r.Commit(id) }

// SetHead forcibly sets head and discards every doneSet entry <= v.
func (r *Reader) SetHead(v uint64) { r.r.SetHead(v) }

// Flush fast-forwards head to the journal's current tail and discards
// doneSet.
func (r *Reader) Flush() { r.r.Flush() }

// Checkpoint durably persists this reader's current head and doneSet.
func (r *Reader) Checkpoint() error { return r.r.Checkpoint() }

// StartReadBehind opens a forward cursor over the journal's data files,
// positioned at the first item with id >= startID.
func (r *Reader) StartReadBehind(startID uint64) error { return r.r.StartReadBehind(startID) }

// NextReadBehind returns the next item from the active read-behind
// session. A nil item with nil error means the cursor has caught up to the
// live tail. A non-nil error (e.g. ErrIDGap) is fatal to this session.
func (r *Reader) NextReadBehind() (*Item, error) {
	item, err := r.r.NextReadBehind()
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	pub := toPublicItem(*item)
	return &pub, nil
}

// EndReadBehind closes the active read-behind session, if any.
func (r *Reader) EndReadBehind() { r.r.EndReadBehind() }
