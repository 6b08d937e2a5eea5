package catalog

import (
	"context"
	"time"
)

// RecordSource yields records in file order and io.EOF after the last one.
type RecordSource interface {
	Next() (Record, error)
}

type ImportJobRepository interface {
	Create(ctx context.Context, filename, sourcePath string, mode ImportMode) (ImportJob, error)
	Get(ctx context.Context, jobID string) (ImportJob, error)
	Transition(ctx context.Context, jobID string, next Status) error
	SetCounts(ctx context.Context, jobID string, total, processed int64) error
	RecordError(ctx context.Context, jobID string, reason string) error
	Complete(ctx context.Context, jobID string, processed int64) error
	Fail(ctx context.Context, jobID string, reason string) error
}

type ProgressReporter interface {
	Report(ctx context.Context, jobID string, update ProgressUpdate) error
}

type ProgressReader interface {
	Read(ctx context.Context, jobID string) ProgressSnapshot
}

type TaskQueue interface {
	Enqueue(ctx context.Context, spec TaskSpec) (string, error)
	EnqueueGroup(ctx context.Context, jobID string, units []TaskSpec, finalize TaskSpec) (string, error)
	ClaimNext(ctx context.Context, queue string, lease time.Duration) (*Task, error)
	Heartbeat(ctx context.Context, taskID string, lease time.Duration) error
	Complete(ctx context.Context, taskID string) error
	CompleteInGroup(ctx context.Context, taskID, groupID string, processed int64) (GroupProgress, error)
	Retry(ctx context.Context, taskID string, reason string, delay time.Duration) error
	Fail(ctx context.Context, taskID string, reason string) error
	FailGroup(ctx context.Context, groupID string, reason string) error
}
