package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
	"github.com/mohammadpnp/product-import/internal/logctx"
)

const defaultReportEvery = 5000

type ImportSource interface {
	Open(ctx context.Context, sourcePath string) (io.ReadCloser, error)
}

type RecordParser interface {
	Open(r io.Reader) (catalog.RecordSource, error)
	ReadAll(r io.Reader) ([]catalog.Record, error)
}

type ChunkSplitter interface {
	Split(ctx context.Context, r io.Reader, workDir string) (catalog.ChunkManifest, error)
}

type StagingStore interface {
	Stage(ctx context.Context, jobID string, src catalog.RecordSource) (int64, error)
	Merge(ctx context.Context, jobID string) (catalog.MergeResult, error)
	PurgeStaged(ctx context.Context, jobID string) (int64, error)
}

type ChunkUpserter interface {
	UpsertChunk(ctx context.Context, records []catalog.Record) (catalog.MergeResult, error)
}

type OrchestratorDeps struct {
	Jobs     catalog.ImportJobRepository
	Queue    catalog.TaskQueue
	Progress catalog.ProgressReporter
	Source   ImportSource
	Parser   RecordParser
	Splitter ChunkSplitter
	Staging  StagingStore
	Chunks   ChunkUpserter
}

type OrchestratorConfig struct {
	// WorkDir is the root under which split jobs get their chunk directories.
	WorkDir     string
	ReportEvery int
	MaxAttempts int
}

// Orchestrator runs one phase of an import job per task and owns the job's
// status. Every phase re-reads the job first so external cancellation takes
// effect at phase boundaries.
type Orchestrator struct {
	deps OrchestratorDeps
	cfg  OrchestratorConfig
}

func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig) *Orchestrator {
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "product-import")
	}
	if cfg.ReportEvery <= 0 {
		cfg.ReportEvery = defaultReportEvery
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

func (o *Orchestrator) Handle(ctx context.Context, task catalog.Task) error {
	job, err := o.deps.Jobs.Get(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		logctx.FromContext(ctx).Info().Str("status", string(job.Status)).Msg("job already finished, skipping task")
		return nil
	}

	switch task.Kind {
	case catalog.TaskStage:
		return o.stage(ctx, job, task)
	case catalog.TaskMerge:
		return o.merge(ctx, job)
	case catalog.TaskSplit:
		return o.split(ctx, job, task)
	case catalog.TaskChunk:
		return o.chunk(ctx, job, task)
	case catalog.TaskFinalize:
		return o.finalize(ctx, job, task)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTask, task.Kind)
	}
}

// stage is phase 1 of a staged import: parse the source and bulk-load every
// row into the staging area, then hand the job to the merge queue.
func (o *Orchestrator) stage(ctx context.Context, job catalog.ImportJob, task catalog.Task) error {
	if job.Status.Reached(catalog.StatusImporting) {
		return nil
	}

	var payload catalog.StagePayload
	if err := decodePayload(task, &payload); err != nil {
		return err
	}

	if err := o.enter(ctx, &job, catalog.StatusParsing, catalog.StatusUpdate(catalog.StatusParsing)); err != nil {
		return err
	}

	rc, err := o.deps.Source.Open(ctx, sourcePathOf(payload.SourcePath, job))
	if err != nil {
		return fmt.Errorf("open import source: %w", err)
	}
	defer rc.Close()

	records, err := o.deps.Parser.Open(rc)
	if err != nil {
		return fmt.Errorf("parse header: %w", err)
	}

	if err := o.enter(ctx, &job, catalog.StatusStaging, catalog.CountsUpdate(catalog.StatusStaging, 0, 0)); err != nil {
		return err
	}

	src := &reportingSource{
		src:   records,
		every: int64(o.cfg.ReportEvery),
		report: func(n int64) {
			o.report(ctx, job.ID, catalog.CountsUpdate(catalog.StatusStaging, n, n))
		},
	}
	staged, err := o.deps.Staging.Stage(ctx, job.ID, src)
	if err != nil {
		return fmt.Errorf("stage records: %w", err)
	}

	if err := o.deps.Jobs.SetCounts(ctx, job.ID, staged, staged); err != nil {
		return err
	}
	o.report(ctx, job.ID, catalog.CountsUpdate(catalog.StatusStaging, staged, staged))

	if _, err := o.deps.Queue.Enqueue(ctx, catalog.TaskSpec{
		Queue:       catalog.QueueMerge,
		Kind:        catalog.TaskMerge,
		JobID:       job.ID,
		MaxAttempts: o.cfg.MaxAttempts,
	}); err != nil {
		return fmt.Errorf("enqueue merge: %w", err)
	}

	logctx.FromContext(ctx).Info().Int64("staged", staged).Msg("staging committed, merge dispatched")
	return nil
}

// merge is phase 2 of a staged import. The merge is idempotent, so a redelivered
// task simply merges again; staged rows are purged only after it committed.
func (o *Orchestrator) merge(ctx context.Context, job catalog.ImportJob) error {
	if err := o.enter(ctx, &job, catalog.StatusImporting, catalog.CountsUpdate(catalog.StatusImporting, 0, 1)); err != nil {
		return err
	}

	result, err := o.deps.Staging.Merge(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("merge staged records: %w", err)
	}
	o.report(ctx, job.ID, catalog.CountsUpdate(catalog.StatusImporting, 1, 1))

	purged, err := o.deps.Staging.PurgeStaged(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("purge staged records: %w", err)
	}

	if err := o.deps.Jobs.Complete(ctx, job.ID, job.TotalRows); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	o.report(ctx, job.ID, catalog.CompletedUpdate(job.TotalRows, job.TotalRows))

	logctx.FromContext(ctx).Info().
		Int64("inserted", result.InsertedCount).
		Int64("updated", result.UpdatedCount).
		Int64("written", result.Total()).
		Int64("purged", purged).
		Msg("import job completed")
	return nil
}

// split fans a parallel import out into one chunk task per chunk file plus a
// finalize task that runs after all of them.
func (o *Orchestrator) split(ctx context.Context, job catalog.ImportJob, task catalog.Task) error {
	if job.Status.Reached(catalog.StatusImporting) {
		return nil
	}

	var payload catalog.SplitPayload
	if err := decodePayload(task, &payload); err != nil {
		return err
	}

	if err := o.enter(ctx, &job, catalog.StatusParsing, catalog.StatusUpdate(catalog.StatusParsing)); err != nil {
		return err
	}

	rc, err := o.deps.Source.Open(ctx, sourcePathOf(payload.SourcePath, job))
	if err != nil {
		return fmt.Errorf("open import source: %w", err)
	}
	defer rc.Close()

	// Each attempt splits into its own directory so a redelivered split never
	// rewrites files that chunk tasks of an earlier attempt may be reading.
	workDir := filepath.Join(o.cfg.WorkDir, fmt.Sprintf("%s-%d", job.ID, task.Attempts))
	manifest, err := o.deps.Splitter.Split(ctx, rc, workDir)
	if err != nil {
		removeWorkDir(ctx, workDir)
		return fmt.Errorf("split source: %w", err)
	}

	if err := o.deps.Jobs.SetCounts(ctx, job.ID, manifest.TotalRows, 0); err != nil {
		removeWorkDir(ctx, workDir)
		return err
	}
	o.report(ctx, job.ID, catalog.CountsUpdate(catalog.StatusParsing, 0, manifest.TotalRows))

	units := make([]catalog.TaskSpec, 0, len(manifest.Chunks))
	for _, chunk := range manifest.Chunks {
		raw, err := json.Marshal(catalog.ChunkPayload{
			Path:     chunk.Path,
			Index:    chunk.Index,
			WorkDir:  manifest.WorkDir,
			JobTotal: manifest.TotalRows,
		})
		if err != nil {
			removeWorkDir(ctx, workDir)
			return err
		}
		units = append(units, catalog.TaskSpec{
			Queue:       catalog.QueueChunks,
			Kind:        catalog.TaskChunk,
			JobID:       job.ID,
			Payload:     raw,
			MaxAttempts: o.cfg.MaxAttempts,
		})
	}

	finalize, err := json.Marshal(catalog.FinalizePayload{WorkDir: manifest.WorkDir, Total: manifest.TotalRows})
	if err != nil {
		removeWorkDir(ctx, workDir)
		return err
	}
	groupID, err := o.deps.Queue.EnqueueGroup(ctx, job.ID, units, catalog.TaskSpec{
		Queue:       catalog.QueueChunks,
		Kind:        catalog.TaskFinalize,
		JobID:       job.ID,
		Payload:     finalize,
		MaxAttempts: o.cfg.MaxAttempts,
	})
	if err != nil {
		removeWorkDir(ctx, workDir)
		return fmt.Errorf("enqueue chunk group: %w", err)
	}

	// Small inputs can finish the whole group before this point.
	err = o.enter(ctx, &job, catalog.StatusImporting, catalog.CountsUpdate(catalog.StatusImporting, 0, manifest.TotalRows))
	if err != nil && !errors.Is(err, catalog.ErrInvalidTransition) {
		return err
	}

	logctx.FromContext(ctx).Info().
		Str("group_id", groupID).
		Int("chunks", len(units)).
		Int64("rows", manifest.TotalRows).
		Msg("chunks dispatched")
	return nil
}

// chunk upserts one chunk file. Duplicates are resolved inside the chunk only;
// two chunks carrying the same key race at the storage layer.
func (o *Orchestrator) chunk(ctx context.Context, job catalog.ImportJob, task catalog.Task) error {
	var payload catalog.ChunkPayload
	if err := decodePayload(task, &payload); err != nil {
		return err
	}
	ctx = logctx.WithInt(ctx, "chunk", payload.Index)

	rc, err := o.deps.Source.Open(ctx, payload.Path)
	if err != nil {
		return fmt.Errorf("open chunk %d: %w", payload.Index, err)
	}
	defer rc.Close()

	records, err := o.deps.Parser.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read chunk %d: %w", payload.Index, err)
	}

	result, err := o.deps.Chunks.UpsertChunk(ctx, DedupeLastWins(records))
	if err != nil {
		return fmt.Errorf("upsert chunk %d: %w", payload.Index, err)
	}

	if task.GroupID == "" {
		return fmt.Errorf("%w: chunk task without group", ErrInvalidTask)
	}
	progress, err := o.deps.Queue.CompleteInGroup(ctx, task.ID, task.GroupID, int64(len(records)))
	if err != nil {
		return fmt.Errorf("complete chunk %d: %w", payload.Index, err)
	}
	o.report(ctx, job.ID, catalog.CountsUpdate(catalog.StatusImporting, progress.Processed, payload.JobTotal))

	logctx.FromContext(ctx).Debug().
		Int("rows", len(records)).
		Int64("inserted", result.InsertedCount).
		Int64("updated", result.UpdatedCount).
		Int64("written", result.Total()).
		Int("pending", progress.Pending).
		Msg("chunk upserted")
	return nil
}

// finalize runs once after every chunk of a group completed.
func (o *Orchestrator) finalize(ctx context.Context, job catalog.ImportJob, task catalog.Task) error {
	var payload catalog.FinalizePayload
	if err := decodePayload(task, &payload); err != nil {
		return err
	}

	if payload.Processed != payload.Total {
		logctx.FromContext(ctx).Warn().
			Int64("processed", payload.Processed).
			Int64("total", payload.Total).
			Msg("chunk totals disagree with split")
	}

	if err := o.deps.Jobs.Complete(ctx, job.ID, payload.Processed); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	o.report(ctx, job.ID, catalog.CompletedUpdate(payload.Processed, payload.Total))
	removeWorkDir(ctx, payload.WorkDir)

	logctx.FromContext(ctx).Info().Int64("processed", payload.Processed).Msg("import job completed")
	return nil
}

// RecordRetry notes a failed attempt that will run again. The job keeps its
// phase status.
func (o *Orchestrator) RecordRetry(ctx context.Context, task catalog.Task, cause error) {
	if err := o.deps.Jobs.RecordError(ctx, task.JobID, cause.Error()); err != nil {
		logctx.FromContext(ctx).Warn().Err(err).Msg("record attempt error")
	}
	o.report(ctx, task.JobID, catalog.ErrorUpdate(cause.Error()))
}

// Abort gives up on a task: the job is marked failed with the cause, a fan-out
// group stops before its finalize step, and chunk files are removed.
func (o *Orchestrator) Abort(ctx context.Context, task catalog.Task, cause error) error {
	reason := cause.Error()
	if task.GroupID != "" {
		reason = fmt.Sprintf("%v: %s", catalog.ErrFanoutFailed, reason)
		if err := o.deps.Queue.FailGroup(ctx, task.GroupID, reason); err != nil {
			logctx.FromContext(ctx).Error().Err(err).Msg("fail task group")
		}
	}

	switch task.Kind {
	case catalog.TaskChunk:
		var payload catalog.ChunkPayload
		if decodePayload(task, &payload) == nil {
			removeWorkDir(ctx, payload.WorkDir)
		}
	case catalog.TaskFinalize:
		var payload catalog.FinalizePayload
		if decodePayload(task, &payload) == nil {
			removeWorkDir(ctx, payload.WorkDir)
		}
	}

	err := o.deps.Jobs.Fail(ctx, task.JobID, reason)
	if errors.Is(err, catalog.ErrInvalidTransition) || errors.Is(err, catalog.ErrJobNotFound) {
		logctx.FromContext(ctx).Info().Err(err).Msg("job already settled, not marking failed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	o.report(ctx, task.JobID, catalog.FailureUpdate(reason))
	return nil
}

// enter moves the job to next and announces it. A job already past next is
// left alone so redelivered tasks never move the status backwards.
func (o *Orchestrator) enter(ctx context.Context, job *catalog.ImportJob, next catalog.Status, update catalog.ProgressUpdate) error {
	if job.Status != next && job.Status.Reached(next) {
		return nil
	}
	if err := o.deps.Jobs.Transition(ctx, job.ID, next); err != nil {
		return fmt.Errorf("enter %s: %w", next, err)
	}
	job.Status = next
	o.report(ctx, job.ID, update)
	return nil
}

func (o *Orchestrator) report(ctx context.Context, jobID string, update catalog.ProgressUpdate) {
	report(ctx, o.deps.Progress, jobID, update)
}

func decodePayload(task catalog.Task, v any) error {
	if len(task.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(task.Payload, v); err != nil {
		return fmt.Errorf("%w: decode %s payload: %v", ErrInvalidTask, task.Kind, err)
	}
	return nil
}

func sourcePathOf(fromPayload string, job catalog.ImportJob) string {
	if fromPayload != "" {
		return fromPayload
	}
	return job.SourcePath
}

func removeWorkDir(ctx context.Context, dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logctx.FromContext(ctx).Warn().Err(err).Str("work_dir", dir).Msg("remove chunk directory")
	}
}

// reportingSource counts records as the staging loader pulls them and reports
// every `every` records.
type reportingSource struct {
	src    catalog.RecordSource
	every  int64
	count  int64
	report func(n int64)
}

func (s *reportingSource) Next() (catalog.Record, error) {
	rec, err := s.src.Next()
	if err != nil {
		return rec, err
	}
	s.count++
	if s.every > 0 && s.count%s.every == 0 {
		s.report(s.count)
	}
	return rec, nil
}
