package git

import "errors"

var (
	// ErrSourceUnavailable is returned when no repository is open or its handle is no longer valid.
	ErrSourceUnavailable = errors.New("commit source unavailable")
	// ErrSourceCorrupt wraps failures to read a single object while walking history.
	// Iterators stay usable after returning it.
	ErrSourceCorrupt = errors.New("commit source corrupt")
	// ErrInvalidID is returned for malformed or unresolvable commit ids and refs.
	ErrInvalidID = errors.New("invalid commit id")
)
