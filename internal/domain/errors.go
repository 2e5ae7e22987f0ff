package domain

import "errors"

// Error kinds returned by insitu operations. Concrete errors wrap one of
// these together with the dataset, round, position, channel, slice or path
// that failed, so callers can match with errors.Is.
var (
	// ErrConfiguration is returned for an unknown metadata format, a malformed
	// z-slice selection, non-uniform tile sizes or frame metadata that does
	// not match the declared format.
	ErrConfiguration = errors.New("insitu: configuration error")

	// ErrQuery is returned when the record store is unreachable or rejects a query.
	ErrQuery = errors.New("insitu: query error")

	// ErrNotFound is returned when a build matches no frames at all, or a
	// required round matches none in strict mode.
	ErrNotFound = errors.New("insitu: not found")

	// ErrIO is returned when a tile cannot be read for checksumming or a
	// manifest cannot be written.
	ErrIO = errors.New("insitu: io error")

	// ErrBundle is returned when the external bundle writer fails.
	ErrBundle = errors.New("insitu: bundle writer failed")
)
