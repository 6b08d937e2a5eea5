package catalog

// ProgressSnapshot is the fast-read view of a job's progress. It is a cache;
// ImportJob remains the system of record.
type ProgressSnapshot struct {
	Status    Status `json:"status"`
	Processed int64  `json:"processed"`
	Total     int64  `json:"total"`
	Error     string `json:"error,omitempty"`
}

func (s ProgressSnapshot) Terminal() bool {
	return s.Status.Terminal()
}

// ProgressUpdate carries only the fields a reporter wants to change.
type ProgressUpdate struct {
	Processed *int64  `json:"processed,omitempty"`
	Total     *int64  `json:"total,omitempty"`
	Status    *Status `json:"status,omitempty"`
	Error     *string `json:"error,omitempty"`
}

func (u ProgressUpdate) Empty() bool {
	return u.Processed == nil && u.Total == nil && u.Status == nil && u.Error == nil
}

// Apply overlays the update onto a snapshot.
func (u ProgressUpdate) Apply(s ProgressSnapshot) ProgressSnapshot {
	if u.Processed != nil {
		s.Processed = *u.Processed
	}
	if u.Total != nil {
		s.Total = *u.Total
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.Error != nil {
		s.Error = *u.Error
	}
	return s
}

func StatusUpdate(status Status) ProgressUpdate {
	return ProgressUpdate{Status: &status}
}

func CountsUpdate(status Status, processed, total int64) ProgressUpdate {
	return ProgressUpdate{Status: &status, Processed: &processed, Total: &total}
}

// CompletedUpdate finishes a job's progress and clears any error left by a
// retried attempt.
func CompletedUpdate(processed, total int64) ProgressUpdate {
	update := CountsUpdate(StatusCompleted, processed, total)
	cleared := ""
	update.Error = &cleared
	return update
}

func FailureUpdate(message string) ProgressUpdate {
	status := StatusFailed
	return ProgressUpdate{Status: &status, Error: &message}
}

func ErrorUpdate(message string) ProgressUpdate {
	return ProgressUpdate{Error: &message}
}

// ProgressEvent is one element of a progress stream. The last event of a
// finished job has Done set and carries the terminal snapshot again.
type ProgressEvent struct {
	Snapshot ProgressSnapshot
	Done     bool
}
