// Package journal implements the Journal subsystem: the rolling set of
// append-only data files for one queue, their in-memory index, rotation,
// garbage collection, and the serialized actor that gives all of this a
// total order.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// tempMarker identifies checkpoint staging files. Any filename containing
// it is unconditionally removed at startup.
const tempMarker = "~~"

// archivePrefix names a file moved (not deleted) by garbage collection.
const archivePrefix = "archive~"

// dataFileName formats an active/rotated data file name: the creation
// time in milliseconds since epoch is the unique numeric suffix.
func dataFileName(queueName string, millis uint64) string {
	return fmt.Sprintf("%s.%d", queueName, millis)
}

// parseDataFileName reports whether name is a data file belonging to
// queueName, and if so its millis suffix.
func parseDataFileName(queueName, name string) (millis uint64, ok bool) {
	prefix := queueName + "."
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	rest := name[len(prefix):]
	if rest == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// readerFileName formats a reader state file name. readerName may be
// empty, producing a filename ending in ".read.".
func readerFileName(queueName, readerName string) string {
	return fmt.Sprintf("%s.read.%s", queueName, readerName)
}

// parseReaderFileName reports whether name is a reader file belonging to
// queueName, and if so its reader name.
func parseReaderFileName(queueName, name string) (readerName string, ok bool) {
	prefix := queueName + ".read."
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	return name[len(prefix):], true
}

// isTemp reports whether name is a checkpoint staging file.
func isTemp(name string) bool {
	return strings.Contains(name, tempMarker)
}

// archiveName formats the path a garbage-collected file is renamed to
// when an archive directory is configured.
func archiveName(archiveDir, originalBasename string) string {
	return filepath.Join(archiveDir, archivePrefix+originalBasename)
}

// discovered holds the writer and reader file names found in a queue
// directory, already filtered of temp files and sorted.
type discovered struct {
	writerMillis []uint64          // sorted ascending
	writerPaths  map[uint64]string // millis -> full path
	readerNames  []string          // sorted
	readerPaths  map[string]string // name -> full path
}

// discoverFiles scans dir for files belonging to queueName, classifying
// them into writer and reader files and ignoring anything else (including
// names that merely look close, like a malformed numeric suffix).
func discoverFiles(dir, queueName string) (*discovered, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("journal: read dir %s: %w", dir, err)
	}

	d := &discovered{
		writerPaths: make(map[uint64]string),
		readerPaths: make(map[string]string),
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if isTemp(name) {
			continue
		}
		if readerName, ok := parseReaderFileName(queueName, name); ok {
			d.readerNames = append(d.readerNames, readerName)
			d.readerPaths[readerName] = filepath.Join(dir, name)
			continue
		}
		if millis, ok := parseDataFileName(queueName, name); ok {
			d.writerMillis = append(d.writerMillis, millis)
			d.writerPaths[millis] = filepath.Join(dir, name)
			continue
		}
		// Anything else (e.g. "test.3leet", "test.readmenot") is ignored.
	}

	sort.Slice(d.writerMillis, func(i, j int) bool { return d.writerMillis[i] < d.writerMillis[j] })
	sort.Strings(d.readerNames)
	return d, nil
}

// removeTempFiles deletes every file in dir whose name contains the temp
// marker. Always safe; called unconditionally at startup.
func removeTempFiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("journal: read dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !isTemp(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("journal: remove temp file %s: %w", e.Name(), err)
		}
	}
	return nil
}
