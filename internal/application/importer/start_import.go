package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
	"github.com/mohammadpnp/product-import/internal/logctx"
)

type StartImportInput struct {
	Filename   string
	SourcePath string
}

type StartImportOutput struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type StartImport interface {
	Execute(ctx context.Context, in StartImportInput) (StartImportOutput, error)
}

type importJobCreator interface {
	Create(ctx context.Context, filename, sourcePath string, mode catalog.ImportMode) (catalog.ImportJob, error)
	Fail(ctx context.Context, jobID string, reason string) error
}

type taskEnqueuer interface {
	Enqueue(ctx context.Context, spec catalog.TaskSpec) (string, error)
}

type startImport struct {
	jobs        importJobCreator
	queue       taskEnqueuer
	progress    catalog.ProgressReporter
	mode        catalog.ImportMode
	maxAttempts int
}

func NewStartImport(jobs importJobCreator, queue taskEnqueuer, progress catalog.ProgressReporter, mode catalog.ImportMode, maxAttempts int) StartImport {
	if _, ok := catalog.ParseImportMode(string(mode)); !ok {
		mode = catalog.ModeStaged
	}
	return &startImport{
		jobs:        jobs,
		queue:       queue,
		progress:    progress,
		mode:        mode,
		maxAttempts: maxAttempts,
	}
}

// Execute creates a pending job for an uploaded file and dispatches its first
// phase. Staged jobs start with a stage task, parallel jobs with a split task.
func (uc *startImport) Execute(ctx context.Context, in StartImportInput) (StartImportOutput, error) {
	sourcePath := strings.TrimSpace(in.SourcePath)
	if sourcePath == "" || strings.ToLower(filepath.Ext(sourcePath)) != ".csv" {
		return StartImportOutput{}, ErrInvalidImportSource
	}

	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		filename = filepath.Base(sourcePath)
	}

	job, err := uc.jobs.Create(ctx, filename, sourcePath, uc.mode)
	if err != nil {
		return StartImportOutput{}, fmt.Errorf("%w: %v", ErrEnqueueImportJob, err)
	}

	ctx = logctx.WithStr(ctx, "job_id", job.ID)
	report(ctx, uc.progress, job.ID, catalog.StatusUpdate(catalog.StatusPending))

	spec, err := firstPhase(job, uc.mode, uc.maxAttempts)
	if err == nil {
		_, err = uc.queue.Enqueue(ctx, spec)
	}
	if err != nil {
		reason := fmt.Sprintf("dispatch first phase: %v", err)
		if failErr := uc.jobs.Fail(ctx, job.ID, reason); failErr != nil {
			logctx.FromContext(ctx).Error().Err(failErr).Msg("mark undispatched job failed")
		}
		report(ctx, uc.progress, job.ID, catalog.FailureUpdate(reason))
		return StartImportOutput{}, fmt.Errorf("%w: %v", ErrEnqueueImportJob, err)
	}

	logctx.FromContext(ctx).Info().Str("mode", string(uc.mode)).Str("filename", filename).Msg("import job accepted")

	return StartImportOutput{
		JobID:  job.ID,
		Status: string(catalog.StatusPending),
	}, nil
}

func firstPhase(job catalog.ImportJob, mode catalog.ImportMode, maxAttempts int) (catalog.TaskSpec, error) {
	var (
		kind    catalog.TaskKind
		payload any
	)
	switch mode {
	case catalog.ModeParallel:
		kind, payload = catalog.TaskSplit, catalog.SplitPayload{SourcePath: job.SourcePath}
	default:
		kind, payload = catalog.TaskStage, catalog.StagePayload{SourcePath: job.SourcePath}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return catalog.TaskSpec{}, err
	}
	return catalog.TaskSpec{
		Queue:       catalog.QueueImports,
		Kind:        kind,
		JobID:       job.ID,
		Payload:     raw,
		MaxAttempts: maxAttempts,
	}, nil
}

// report publishes progress on a best-effort basis. The job row is the system
// of record, so a failed write is only logged.
func report(ctx context.Context, reporter catalog.ProgressReporter, jobID string, update catalog.ProgressUpdate) {
	if reporter == nil {
		return
	}
	if err := reporter.Report(ctx, jobID, update); err != nil {
		logctx.FromContext(ctx).Warn().Err(err).Msg("report progress")
	}
}
