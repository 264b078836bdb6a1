package journal

import "errors"

// ErrInvalidEntry is returned by Create for an entry without a kind.
var ErrInvalidEntry = errors.New("journal: entry kind is required")
