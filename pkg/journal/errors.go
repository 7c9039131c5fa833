package journal

import (
	"errors"

	internaljournal "github.com/vnykmshr/qjournal/internal/journal"
	"github.com/vnykmshr/qjournal/internal/scanner"
)

// Sentinel errors returned by Journal operations. Internal packages define
// their own sentinels; these wrap (or alias) them so callers depending only
// on this package never need to import internal/journal or internal/scanner.
var (
	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = internaljournal.ErrClosed

	// ErrUnhealthy is returned by Put once a prior write has failed.
	ErrUnhealthy = internaljournal.ErrUnhealthy

	// ErrIDGap is returned by a read-behind session when no retained file
	// covers the successor of the last item read — the missing items were
	// garbage-collected before this reader consumed them.
	ErrIDGap = scanner.ErrIDGap

	// ErrReaderNotFound is the sentinel for a missing reader. Reader never
	// returns it: a reader that does not exist is created instead.
	ErrReaderNotFound = internaljournal.ErrReaderNotFound

	// ErrInvalidItemSize is returned by Put when data exceeds the
	// configured maximum item size.
	ErrInvalidItemSize = errors.New("journal: item exceeds maximum size")
)
