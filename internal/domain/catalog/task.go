package catalog

import "encoding/json"

const (
	QueueImports = "imports"
	QueueMerge   = "imports_merge"
	QueueChunks  = "imports_chunks"
)

type TaskKind string

const (
	TaskStage    TaskKind = "stage"
	TaskMerge    TaskKind = "merge"
	TaskSplit    TaskKind = "split"
	TaskChunk    TaskKind = "chunk"
	TaskFinalize TaskKind = "finalize"
)

// TaskSpec describes a unit of work before it is queued.
type TaskSpec struct {
	Queue       string
	Kind        TaskKind
	JobID       string
	Payload     json.RawMessage
	MaxAttempts int
}

// Task is a claimed unit of work. Attempts already counts the current attempt.
type Task struct {
	ID          string
	Queue       string
	Kind        TaskKind
	JobID       string
	Payload     json.RawMessage
	Attempts    int
	MaxAttempts int
	GroupID     string
}

func (t Task) LastAttempt() bool {
	return t.Attempts >= t.MaxAttempts
}

// Exhausted reports a task claimed more often than it may run. This happens
// when earlier attempts died with the worker before settling the task.
func (t Task) Exhausted() bool {
	return t.MaxAttempts > 0 && t.Attempts > t.MaxAttempts
}

type StagePayload struct {
	SourcePath string `json:"source_path"`
}

type SplitPayload struct {
	SourcePath string `json:"source_path"`
}

type ChunkPayload struct {
	Path     string `json:"path"`
	Index    int    `json:"index"`
	WorkDir  string `json:"work_dir"`
	JobTotal int64  `json:"job_total"`
}

type FinalizePayload struct {
	WorkDir   string `json:"work_dir"`
	Total     int64  `json:"total"`
	Processed int64  `json:"processed"`
}

// GroupProgress is the aggregate state of a fan-out group after one of its
// units completed.
type GroupProgress struct {
	Pending   int
	Processed int64
}
