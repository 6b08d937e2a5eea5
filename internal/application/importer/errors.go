package importer

import "errors"

var (
	ErrInvalidImportSource = errors.New("invalid import source")
	ErrEnqueueImportJob    = errors.New("failed to enqueue import job")
	ErrInvalidJobID        = errors.New("invalid import job id")
	ErrImportJobNotFound   = errors.New("import job not found")
	ErrGetImportJob        = errors.New("failed to get import job")
	ErrImportJobFinished   = errors.New("import job already finished")
	ErrCancelImportJob     = errors.New("failed to cancel import job")
	ErrInvalidTask         = errors.New("invalid task")
	ErrAttemptsExhausted   = errors.New("task attempts exhausted")
)
