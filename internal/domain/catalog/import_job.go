package catalog

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusParsing   Status = "parsing"
	StatusStaging   Status = "staging"
	StatusImporting Status = "importing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// rank orders the forward path of the state machine. failed has no rank; it is
// reachable from any non-terminal status.
var rank = map[Status]int{
	StatusPending:   0,
	StatusParsing:   1,
	StatusStaging:   2,
	StatusImporting: 3,
	StatusCompleted: 4,
}

func (s Status) Valid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := rank[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the job's status
// monotonic. Re-entering the current phase is allowed so a retried phase can
// announce itself again. Phases may be skipped forward (the parallel mode never
// stages).
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return rank[next] >= rank[s]
}

// Reached reports whether s is at or past phase on the forward path.
func (s Status) Reached(phase Status) bool {
	if s == StatusFailed {
		return phase == StatusFailed
	}
	return rank[s] >= rank[phase]
}

// Predecessors lists every status from which next may be entered.
func (next Status) Predecessors() []Status {
	out := make([]Status, 0, len(rank))
	for _, s := range []Status{StatusPending, StatusParsing, StatusStaging, StatusImporting} {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

type ImportMode string

const (
	// ModeStaged stages every row and resolves duplicates across the whole job
	// in a single merge.
	ModeStaged ImportMode = "staged"
	// ModeParallel splits the file and upserts each chunk independently;
	// duplicates are only resolved within a chunk.
	ModeParallel ImportMode = "parallel"
)

func ParseImportMode(raw string) (ImportMode, bool) {
	switch ImportMode(raw) {
	case ModeStaged:
		return ModeStaged, true
	case ModeParallel:
		return ModeParallel, true
	default:
		return "", false
	}
}

type ImportJob struct {
	ID            string
	Filename      string
	SourcePath    string
	Mode          ImportMode
	Status        Status
	TotalRows     int64
	ProcessedRows int64
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
