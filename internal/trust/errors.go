package trust

import "errors"

var (
	// ErrInvalidAddress is returned when the broker address has no host.
	ErrInvalidAddress = errors.New("trust: invalid broker address")

	// ErrCAFile is returned when the configured CA bundle cannot be used.
	ErrCAFile = errors.New("trust: cannot load CA file")

	// ErrCheckFailed wraps the reason the broker host could not be trusted.
	ErrCheckFailed = errors.New("trust: host check failed")
)
