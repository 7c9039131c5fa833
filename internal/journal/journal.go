package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/vnykmshr/qjournal/internal/fileindex"
	"github.com/vnykmshr/qjournal/internal/journalfile"
	"github.com/vnykmshr/qjournal/internal/logging"
	"github.com/vnykmshr/qjournal/internal/metrics"
	"github.com/vnykmshr/qjournal/internal/reader"
	"github.com/vnykmshr/qjournal/internal/record"
)

// defaultMaxFileSize is used when Options.MaxFileSize is left at zero.
const defaultMaxFileSize = 64 * 1024 * 1024

// Options configures Open.
type Options struct {
	// MaxFileSize is the byte position at which an active data file is
	// rotated after a put. Defaults to 64 MiB.
	MaxFileSize int64
	// SyncEvery is the writer's fsync coalescing window: 0 syncs on every
	// write, journalfile.NeverSync disables implicit fsync entirely.
	SyncEvery time.Duration
	// ArchiveDir, if non-empty, makes garbage collection rename retired
	// data files there instead of deleting them.
	ArchiveDir string
	Logger     logging.Logger
	Metrics    metrics.Collector
}

// Stats is a point-in-time snapshot of a Journal's state, assembled for
// operator inspection.
type Stats struct {
	Tail                    uint64
	EarliestHead            uint64
	FileCount               int
	JournalSizeBytes        uint64
	ReaderCount             int
	CorruptedFilesRecovered uint64
}

// Journal owns the rolling set of data files for one queue: their on-disk
// layout, in-memory index, rotation, and garbage collection, plus the
// readers checkpointed alongside them. All mutation of shared state runs
// through a single serialized actor, giving put/rotate/checkOldFiles/
// checkpoint a total order without a coarse lock around the whole Journal.
type Journal struct {
	dir         string
	queueName   string
	maxFileSize int64
	syncEvery   time.Duration
	archiveDir  string

	logger  logging.Logger
	metrics metrics.Collector

	act *actor

	// Actor-only fields: read and written exclusively from closures passed
	// to act.submit, so they need no lock of their own.
	activeWriter *journalfile.Writer
	activePath   string
	activeHeadID uint64
	currentItems uint64
	currentBytes uint64

	// mu guards the published snapshot: the index and tail/health that
	// readers and scanners, running on arbitrary goroutines, observe.
	mu      sync.RWMutex
	index   *fileindex.Index
	tailID  uint64
	healthy bool

	readersMu sync.Mutex
	readers   map[string]*reader.Reader

	corruptedRecovered uint64

	closed atomic.Bool
}

// Open discovers, validates, and opens the data and reader files for one
// queue in dir, recovering from any truncated tail and reconciling the
// default ("") reader against any named readers found on disk.
func Open(dir, queueName string, opts Options) (*Journal, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NoopLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopCollector{}
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}

	if err := removeTempFiles(dir); err != nil {
		return nil, err
	}

	d, err := discoverFiles(dir, queueName)
	if err != nil {
		return nil, err
	}

	j := &Journal{
		dir:         dir,
		queueName:   queueName,
		maxFileSize: opts.MaxFileSize,
		syncEvery:   opts.SyncEvery,
		archiveDir:  opts.ArchiveDir,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		act:         newActor(),
		index:       fileindex.Empty(),
		healthy:     true,
		readers:     make(map[string]*reader.Reader),
	}

	if j.archiveDir != "" {
		if err := os.MkdirAll(j.archiveDir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create archive dir %s: %w", j.archiveDir, err)
		}
	}

	var infos []fileindex.FileInfo
	for _, millis := range d.writerMillis {
		path := d.writerPaths[millis]
		fi, bytesLost, recovered, err := scanDataFile(path)
		if err != nil {
			return nil, err
		}
		if recovered {
			j.corruptedRecovered++
			j.metrics.RecordCorruptionRecovered(bytesLost)
			j.logger.Warn("journal: truncated corrupt tail", logging.F("path", path), logging.F("bytesLost", bytesLost))
		}
		if fi.Items == 0 {
			j.logger.Warn("journal: deleting empty data file", logging.F("path", path))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("journal: remove empty file %s: %w", path, err)
			}
			continue
		}
		infos = append(infos, fi)
	}
	j.index = fileindex.FromFileInfos(infos)

	if last, ok := j.index.Last(); ok {
		w, err := journalfile.OpenWriter(last.Path, j.syncEvery)
		if err != nil {
			return nil, err
		}
		j.activeWriter = w
		j.activePath = last.Path
		j.activeHeadID = last.HeadID
		j.currentItems = last.Items
		j.currentBytes = last.Bytes
		j.tailID = last.TailID
	} else {
		if err := j.rotate(); err != nil {
			return nil, err
		}
	}

	for _, name := range d.readerNames {
		path := d.readerPaths[name]
		r := reader.New(j, name, path, j.tailID, j.logger, j.metrics)
		if err := r.ReadState(); err != nil {
			j.logger.Warn("journal: skipping unreadable reader file", logging.F("path", path), logging.F("error", err.Error()))
			continue
		}
		j.readers[name] = r
	}

	if len(j.readers) == 0 {
		path := filepath.Join(dir, readerFileName(queueName, ""))
		j.readers[""] = reader.New(j, "", path, j.tailID, j.logger, j.metrics)
	} else if def, ok := j.readers[""]; ok && len(j.readers) > 1 {
		if err := os.Remove(def.Path()); err != nil && !os.IsNotExist(err) {
			j.logger.Warn("journal: could not remove superseded default reader file", logging.F("error", err.Error()))
		}
		delete(j.readers, "")
		j.logger.Info("journal: default reader superseded by named readers found on disk")
	}

	return j, nil
}

// TailID implements reader.JournalView and scanner.JournalView.
func (j *Journal) TailID() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.tailID
}

// EarliestHead implements reader.JournalView.
func (j *Journal) EarliestHead() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.index.EarliestHead()
}

// FileInfoForID implements reader.JournalView and scanner.JournalView.
func (j *Journal) FileInfoForID(id uint64) (fileindex.FileInfo, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.index.FileInfoForID(id)
}

// FirstFileInfo implements reader.JournalView and scanner.JournalView.
func (j *Journal) FirstFileInfo() (fileindex.FileInfo, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.index.First()
}

// Submit implements reader.JournalView: it runs fn on the journal's
// serialized actor, giving checkpoint writes a total order with put and
// rotation.
func (j *Journal) Submit(fn func()) {
	j.act.submit(fn)
}

// Put appends data as a new item, returning the assigned Item and a
// durability future that resolves once the write has been fsynced per the
// journal's sync policy. Put is serialized with rotate, checkOldFiles, and
// every reader checkpoint through the actor.
func (j *Journal) Put(data []byte, addTime, expireTime int64) (record.Item, *journalfile.Future, error) {
	if j.closed.Load() {
		return record.Item{}, nil, ErrClosed
	}

	var item record.Item
	var future *journalfile.Future
	var resultErr error

	start := time.Now()
	j.act.submit(func() {
		j.mu.RLock()
		healthy := j.healthy
		tail := j.tailID
		j.mu.RUnlock()
		if !healthy {
			resultErr = ErrUnhealthy
			return
		}

		item = record.Item{ID: tail + 1, AddTime: addTime, ExpireTime: expireTime, Data: data}
		fut, err := j.activeWriter.WriteRecord(record.EncodePut(item))
		if err != nil {
			j.mu.Lock()
			j.healthy = false
			j.mu.Unlock()
			resultErr = fmt.Errorf("journal: put: %w", err)
			return
		}
		future = fut

		j.currentItems++
		j.currentBytes += uint64(len(data))

		j.mu.Lock()
		j.tailID = item.ID
		j.index = j.index.ReplaceLast(fileindex.FileInfo{
			Path:   j.activePath,
			HeadID: j.activeHeadID,
			TailID: item.ID,
			Items:  j.currentItems,
			Bytes:  j.currentBytes,
		})
		j.mu.Unlock()

		if j.activeWriter.Position() >= j.maxFileSize {
			if err := j.rotate(); err != nil {
				j.logger.Error("journal: rotation failed", logging.F("error", err.Error()))
			}
		}
	})

	if resultErr != nil {
		j.metrics.RecordPutError()
		return record.Item{}, nil, resultErr
	}
	j.metrics.RecordPut(len(data), time.Since(start))
	j.publishState()
	return item, future, nil
}

// Rotate forces the active data file to close and a fresh one to open,
// followed by garbage collection. Serialized with put through the actor;
// for operator-triggered maintenance.
func (j *Journal) Rotate() error {
	var err error
	j.act.submit(func() {
		err = j.rotate()
	})
	return err
}

// CollectGarbage runs garbage collection without forcing a rotation first.
func (j *Journal) CollectGarbage() error {
	var err error
	j.act.submit(func() {
		err = j.checkOldFiles()
	})
	return err
}

// rotate closes the active writer, opens a fresh one named for the current
// time, and runs garbage collection. It must only be called from Open
// (single-threaded) or from within an actor task — never concurrently with
// another actor task, and never via act.submit from inside one (that would
// deadlock the actor goroutine against itself).
func (j *Journal) rotate() error {
	path, err := j.createRotatedFile()
	if err != nil {
		return err
	}

	if j.activeWriter != nil {
		if err := j.activeWriter.Close(); err != nil {
			j.logger.Warn("journal: error closing rotated-away file", logging.F("path", j.activePath), logging.F("error", err.Error()))
		}
	}

	w, err := journalfile.OpenWriter(path, j.syncEvery)
	if err != nil {
		return err
	}

	j.mu.RLock()
	tail := j.tailID
	j.mu.RUnlock()
	newHead := tail + 1

	j.activeWriter = w
	j.activePath = path
	j.activeHeadID = newHead
	j.currentItems = 0
	j.currentBytes = 0

	j.mu.Lock()
	j.index = j.index.Insert(fileindex.FileInfo{Path: path, HeadID: newHead, TailID: tail})
	j.mu.Unlock()

	j.metrics.RecordRotation()
	j.logger.Info("journal: rotated", logging.F("path", path))

	return j.checkOldFiles()
}

// createRotatedFile picks a millisecond-resolution unique filename,
// retrying if a file with that name already exists (clock granularity
// collisions under a fast put rate).
func (j *Journal) createRotatedFile() (string, error) {
	for {
		millis := uint64(time.Now().UnixMilli()) //nolint:gosec // epoch millis fit in uint64 until well past this code's lifetime
		path := filepath.Join(j.dir, dataFileName(j.queueName, millis))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //nolint:gosec // journal directory is operator-controlled
		if err == nil {
			if cerr := f.Close(); cerr != nil {
				return "", fmt.Errorf("journal: close new file %s: %w", path, cerr)
			}
			return path, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("journal: create rotated file %s: %w", path, err)
		}
		time.Sleep(time.Millisecond)
	}
}

// checkOldFiles garbage-collects data files no longer needed by any
// reader, respecting min(tailID, min over readers of head+1), and always
// keeping the file immediately adjacent to that boundary. It must only be
// called from within an actor task (directly by rotate, or from Open).
func (j *Journal) checkOldFiles() error {
	j.mu.RLock()
	minHead := j.tailID
	idx := j.index
	j.mu.RUnlock()

	j.readersMu.Lock()
	for _, r := range j.readers {
		if boundary := r.Head() + 1; boundary < minHead {
			minHead = boundary
		}
	}
	j.readersMu.Unlock()

	all := idx.All()
	n := 0
	for _, fi := range all {
		if fi.HeadID <= minHead {
			n++
		} else {
			break
		}
	}
	if n > 0 {
		n-- // always keep the entry adjacent to the live boundary
	}
	if n == 0 {
		return nil
	}

	j.mu.Lock()
	newIdx, dropped := j.index.RemovePrefix(n)
	j.index = newIdx
	j.mu.Unlock()

	for _, fi := range dropped {
		if j.archiveDir != "" {
			dst := archiveName(j.archiveDir, filepath.Base(fi.Path))
			if err := os.Rename(fi.Path, dst); err != nil {
				j.logger.Warn("journal: archive failed", logging.F("path", fi.Path), logging.F("error", err.Error()))
				continue
			}
			j.logger.Info("journal: archived old data file", logging.F("path", fi.Path), logging.F("dst", dst))
			continue
		}
		if err := os.Remove(fi.Path); err != nil && !os.IsNotExist(err) {
			j.logger.Warn("journal: delete failed", logging.F("path", fi.Path), logging.F("error", err.Error()))
			continue
		}
		j.logger.Info("journal: deleted old data file", logging.F("path", fi.Path))
	}

	j.metrics.RecordFilesGC(len(dropped), j.archiveDir != "")
	return nil
}

// Reader returns the reader named name, creating and checkpointing it if it
// does not yet exist. An empty name addresses the default reader. If name
// is non-empty and a default reader currently exists, that default reader
// is renamed to name (superseded) rather than leaving two readers pointed
// at the same logical consumer.
func (j *Journal) Reader(name string) (*reader.Reader, error) {
	j.readersMu.Lock()
	defer j.readersMu.Unlock()

	if r, ok := j.readers[name]; ok {
		return r, nil
	}

	if name != "" {
		if def, ok := j.readers[""]; ok {
			newPath := filepath.Join(j.dir, readerFileName(j.queueName, name))
			if err := def.Rename(name, newPath); err != nil {
				return nil, fmt.Errorf("journal: reader %q: %w", name, err)
			}
			if err := def.Checkpoint(); err != nil {
				return nil, fmt.Errorf("journal: reader %q: checkpoint: %w", name, err)
			}
			delete(j.readers, "")
			j.readers[name] = def
			j.logger.Info("journal: default reader superseded", logging.F("name", name))
			return def, nil
		}
	}

	path := filepath.Join(j.dir, readerFileName(j.queueName, name))
	r := reader.New(j, name, path, j.TailID(), j.logger, j.metrics)
	if err := r.Checkpoint(); err != nil {
		return nil, fmt.Errorf("journal: reader %q: checkpoint: %w", name, err)
	}
	j.readers[name] = r
	return r, nil
}

// ReaderNames returns the names of every currently open reader.
func (j *Journal) ReaderNames() []string {
	j.readersMu.Lock()
	defer j.readersMu.Unlock()
	names := make([]string, 0, len(j.readers))
	for name := range j.readers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Checkpoint persists every open reader's current head and doneSet.
func (j *Journal) Checkpoint() error {
	j.readersMu.Lock()
	readers := make([]*reader.Reader, 0, len(j.readers))
	for _, r := range j.readers {
		readers = append(readers, r)
	}
	j.readersMu.Unlock()

	var errs error
	for _, r := range readers {
		if err := r.Checkpoint(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// FileIndexSnapshot returns a copy of the current data-file index, for
// operator inspection.
func (j *Journal) FileIndexSnapshot() []fileindex.FileInfo {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.index.All()
}

// JournalSize returns the sum of on-disk sizes of every retained data file.
func (j *Journal) JournalSize() (uint64, error) {
	j.mu.RLock()
	files := j.index.All()
	j.mu.RUnlock()

	var total uint64
	for _, fi := range files {
		info, err := os.Stat(fi.Path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("journal: stat %s: %w", fi.Path, err)
		}
		total += uint64(info.Size()) //nolint:gosec // file sizes are bounded well under int64 max
	}
	return total, nil
}

// Stats assembles a point-in-time snapshot for operator inspection.
func (j *Journal) Stats() (Stats, error) {
	size, err := j.JournalSize()
	if err != nil {
		return Stats{}, err
	}

	j.mu.RLock()
	tail := j.tailID
	earliest := j.index.EarliestHead()
	fileCount := j.index.Len()
	j.mu.RUnlock()

	j.readersMu.Lock()
	readerCount := len(j.readers)
	j.readersMu.Unlock()

	return Stats{
		Tail:                    tail,
		EarliestHead:            earliest,
		FileCount:               fileCount,
		JournalSizeBytes:        size,
		ReaderCount:             readerCount,
		CorruptedFilesRecovered: j.corruptedRecovered,
	}, nil
}

// publishState reports the journal's current shape to the metrics
// collector; called after every successful put.
func (j *Journal) publishState() {
	size, err := j.JournalSize()
	if err != nil {
		return
	}
	j.mu.RLock()
	tail := j.tailID
	earliest := j.index.EarliestHead()
	fileCount := j.index.Len()
	j.mu.RUnlock()
	j.metrics.UpdateState(tail, earliest, fileCount, size)

	j.readersMu.Lock()
	for name, r := range j.readers {
		lag := tail - r.Head()
		j.metrics.UpdateReaderLag(name, lag)
	}
	j.readersMu.Unlock()
}

// Erase closes the journal and removes every data and reader file it owns.
// It is irreversible.
func (j *Journal) Erase() error {
	if err := j.Close(); err != nil {
		return err
	}
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return fmt.Errorf("journal: erase: read dir %s: %w", j.dir, err)
	}
	var errs error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		_, isData := parseDataFileName(j.queueName, name)
		_, isReader := parseReaderFileName(j.queueName, name)
		if !isData && !isReader && !isTemp(name) {
			continue
		}
		if rerr := os.Remove(filepath.Join(j.dir, name)); rerr != nil && !os.IsNotExist(rerr) {
			errs = multierr.Append(errs, rerr)
		}
	}
	return errs
}

// Close flushes and closes the active writer and ends every reader's
// read-behind session. Safe to call more than once.
func (j *Journal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs error
	j.act.submit(func() {
		if j.activeWriter != nil {
			errs = multierr.Append(errs, j.activeWriter.Close())
		}
	})

	j.readersMu.Lock()
	for _, r := range j.readers {
		r.EndReadBehind()
	}
	j.readersMu.Unlock()

	j.act.close()
	return errs
}

// scanDataFile reads every record in path to build its FileInfo. A
// truncated tail is repaired once: the file is truncated to the corrupt
// record's offset and rescanned; a second corruption on the retry is
// unrecoverable and returned as a fatal error.
func scanDataFile(path string) (fi fileindex.FileInfo, bytesLost int64, recovered bool, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return fileindex.FileInfo{}, 0, false, fmt.Errorf("journal: stat %s: %w", path, statErr)
	}
	originalSize := info.Size()

	fi, err = scanOnce(path)
	if err == nil {
		return fi, 0, false, nil
	}

	var corrupt *record.CorruptedError
	if !errors.As(err, &corrupt) {
		return fileindex.FileInfo{}, 0, false, err
	}

	if terr := journalfile.Truncate(path, corrupt.Position); terr != nil {
		return fileindex.FileInfo{}, 0, false, terr
	}

	fi2, err2 := scanOnce(path)
	if err2 != nil {
		return fileindex.FileInfo{}, 0, false, fmt.Errorf("journal: unrecoverable corruption in %s: %w", path, err2)
	}
	return fi2, originalSize - corrupt.Position, true, nil
}

func scanOnce(path string) (fileindex.FileInfo, error) {
	r, err := journalfile.OpenReader(path)
	if err != nil {
		return fileindex.FileInfo{}, err
	}
	defer func() { _ = r.Close() }()

	fi := fileindex.FileInfo{Path: path}
	first := true
	for {
		rec, err := r.ReadNext()
		if errors.Is(err, io.EOF) {
			return fi, nil
		}
		if err != nil {
			return fileindex.FileInfo{}, err
		}
		put, ok := rec.(record.Put)
		if !ok {
			continue
		}
		if first {
			fi.HeadID = put.Item.ID
			first = false
		}
		fi.TailID = put.Item.ID
		fi.Items++
		fi.Bytes += uint64(len(put.Item.Data))
	}
}
