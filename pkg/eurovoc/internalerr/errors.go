package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")

	// ErrTaxonomyUnavailable means the vocabulary could not be fetched or
	// parsed. No candidate can be produced without it, so it ends the run.
	ErrTaxonomyUnavailable = errors.New("taxonomy unavailable")

	ErrMissingField      = errors.New("missing required field")
	ErrUnsupportedFormat = errors.New("unsupported document format")
)
