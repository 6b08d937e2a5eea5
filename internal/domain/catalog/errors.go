package catalog

import "errors"

var (
	ErrMalformedInput      = errors.New("malformed input")
	ErrInvalidTransition   = errors.New("invalid job status transition")
	ErrJobNotFound         = errors.New("import job not found")
	ErrEmptyProgressUpdate = errors.New("progress update has no fields")
	ErrFanoutFailed        = errors.New("chunk fan-out failed")
)
