package importer_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	app "github.com/mohammadpnp/product-import/internal/application/importer"
	"github.com/mohammadpnp/product-import/internal/domain/catalog"
	"github.com/mohammadpnp/product-import/internal/infrastructure/csvsource"
)

type memJobs struct {
	mu        sync.Mutex
	jobs      map[string]*catalog.ImportJob
	createErr error
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]*catalog.ImportJob{}}
}

func (m *memJobs) Create(ctx context.Context, filename, sourcePath string, mode catalog.ImportMode) (catalog.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return catalog.ImportJob{}, m.createErr
	}
	job := &catalog.ImportJob{
		ID:         uuid.NewString(),
		Filename:   filename,
		SourcePath: sourcePath,
		Mode:       mode,
		Status:     catalog.StatusPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	m.jobs[job.ID] = job
	return *job, nil
}

func (m *memJobs) Get(ctx context.Context, jobID string) (catalog.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return catalog.ImportJob{}, catalog.ErrJobNotFound
	}
	return *job, nil
}

func (m *memJobs) Transition(ctx context.Context, jobID string, next catalog.Status) error {
	return m.move(jobID, next, func(job *catalog.ImportJob) {})
}

func (m *memJobs) SetCounts(ctx context.Context, jobID string, total, processed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return catalog.ErrJobNotFound
	}
	job.TotalRows, job.ProcessedRows = total, min(processed, total)
	return nil
}

func (m *memJobs) RecordError(ctx context.Context, jobID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok && !job.Status.Terminal() {
		job.ErrorMessage = reason
	}
	return nil
}

func (m *memJobs) Complete(ctx context.Context, jobID string, processed int64) error {
	return m.move(jobID, catalog.StatusCompleted, func(job *catalog.ImportJob) {
		job.ProcessedRows = processed
		job.ErrorMessage = ""
	})
}

func (m *memJobs) Fail(ctx context.Context, jobID string, reason string) error {
	return m.move(jobID, catalog.StatusFailed, func(job *catalog.ImportJob) {
		job.ErrorMessage = reason
	})
}

func (m *memJobs) move(jobID string, next catalog.Status, mutate func(job *catalog.ImportJob)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return catalog.ErrJobNotFound
	}
	if !job.Status.CanTransitionTo(next) {
		return catalog.ErrInvalidTransition
	}
	job.Status = next
	mutate(job)
	job.UpdatedAt = time.Now()
	return nil
}

func (m *memJobs) job(t *testing.T, jobID string) catalog.ImportJob {
	t.Helper()
	job, err := m.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("job %s: %v", jobID, err)
	}
	return job
}

type memProgress struct {
	mu        sync.Mutex
	snapshots map[string]catalog.ProgressSnapshot
	statuses  map[string][]catalog.Status
}

func newMemProgress() *memProgress {
	return &memProgress{
		snapshots: map[string]catalog.ProgressSnapshot{},
		statuses:  map[string][]catalog.Status{},
	}
}

func (p *memProgress) Report(ctx context.Context, jobID string, update catalog.ProgressUpdate) error {
	if update.Empty() {
		return catalog.ErrEmptyProgressUpdate
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	snap := update.Apply(p.snapshots[jobID])
	p.snapshots[jobID] = snap
	seen := p.statuses[jobID]
	if len(seen) == 0 || seen[len(seen)-1] != snap.Status {
		p.statuses[jobID] = append(seen, snap.Status)
	}
	return nil
}

func (p *memProgress) snapshot(jobID string) catalog.ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshots[jobID]
}

func (p *memProgress) distinctStatuses(jobID string) []catalog.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]catalog.Status(nil), p.statuses[jobID]...)
}

type memTask struct {
	task      catalog.Task
	status    string
	lastError string
}

type memGroup struct {
	pending   int
	processed int64
	failed    bool
	finalize  catalog.TaskSpec
}

type memQueue struct {
	mu         sync.Mutex
	tasks      []*memTask
	groups     map[string]*memGroup
	retries    []time.Duration
	enqueueErr error
}

func newMemQueue() *memQueue {
	return &memQueue{groups: map[string]*memGroup{}}
}

func (q *memQueue) Enqueue(ctx context.Context, spec catalog.TaskSpec) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	return q.add(spec, ""), nil
}

func (q *memQueue) add(spec catalog.TaskSpec, groupID string) string {
	maxAttempts := spec.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	id := fmt.Sprintf("task-%d", len(q.tasks)+1)
	q.tasks = append(q.tasks, &memTask{
		task: catalog.Task{
			ID:          id,
			Queue:       spec.Queue,
			Kind:        spec.Kind,
			JobID:       spec.JobID,
			Payload:     spec.Payload,
			MaxAttempts: maxAttempts,
			GroupID:     groupID,
		},
		status: "queued",
	})
	return id
}

func (q *memQueue) EnqueueGroup(ctx context.Context, jobID string, units []catalog.TaskSpec, finalize catalog.TaskSpec) (string, error) {
	if len(units) == 0 {
		_, err := q.Enqueue(ctx, finalize)
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	groupID := fmt.Sprintf("group-%d", len(q.groups)+1)
	q.groups[groupID] = &memGroup{pending: len(units), finalize: finalize}
	for _, unit := range units {
		q.add(unit, groupID)
	}
	return groupID, nil
}

func (q *memQueue) ClaimNext(ctx context.Context, queue string, lease time.Duration) (*catalog.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.tasks {
		if t.task.Queue == queue && t.status == "queued" {
			t.status = "running"
			t.task.Attempts++
			task := t.task
			return &task, nil
		}
	}
	return nil, nil
}

func (q *memQueue) Heartbeat(ctx context.Context, taskID string, lease time.Duration) error {
	return nil
}

func (q *memQueue) Complete(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.find(taskID).status = "succeeded"
	return nil
}

func (q *memQueue) CompleteInGroup(ctx context.Context, taskID, groupID string, processed int64) (catalog.GroupProgress, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	group, ok := q.groups[groupID]
	if !ok {
		return catalog.GroupProgress{}, errors.New("unknown group")
	}
	t := q.find(taskID)
	if t.status != "running" {
		return catalog.GroupProgress{Pending: group.pending, Processed: group.processed}, nil
	}
	t.status = "succeeded"
	group.pending--
	group.processed += processed

	if group.pending == 0 && !group.failed {
		var payload catalog.FinalizePayload
		if len(group.finalize.Payload) > 0 {
			if err := json.Unmarshal(group.finalize.Payload, &payload); err != nil {
				return catalog.GroupProgress{}, err
			}
		}
		payload.Processed = group.processed
		raw, _ := json.Marshal(payload)
		spec := group.finalize
		spec.Payload = raw
		q.add(spec, "")
	}
	return catalog.GroupProgress{Pending: group.pending, Processed: group.processed}, nil
}

func (q *memQueue) Retry(ctx context.Context, taskID string, reason string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := q.find(taskID)
	t.status = "queued"
	t.lastError = reason
	q.retries = append(q.retries, delay)
	return nil
}

func (q *memQueue) Fail(ctx context.Context, taskID string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := q.find(taskID)
	t.status = "failed"
	t.lastError = reason
	return nil
}

func (q *memQueue) FailGroup(ctx context.Context, groupID string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if group, ok := q.groups[groupID]; ok {
		group.failed = true
	}
	for _, t := range q.tasks {
		if t.task.GroupID == groupID && t.status == "queued" {
			t.status = "failed"
			t.lastError = reason
		}
	}
	return nil
}

func (q *memQueue) find(taskID string) *memTask {
	for _, t := range q.tasks {
		if t.task.ID == taskID {
			return t
		}
	}
	panic("unknown task " + taskID)
}

func (q *memQueue) byKind(kind catalog.TaskKind) []memTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []memTask
	for _, t := range q.tasks {
		if t.task.Kind == kind {
			out = append(out, *t)
		}
	}
	return out
}

func (q *memQueue) claimAny() *catalog.Task {
	for _, queue := range []string{catalog.QueueImports, catalog.QueueMerge, catalog.QueueChunks} {
		task, _ := q.ClaimNext(context.Background(), queue, time.Minute)
		if task != nil {
			return task
		}
	}
	return nil
}

type fakeStaging struct {
	mu         sync.Mutex
	staged     map[string][]catalog.Record
	products   map[string]catalog.Record
	stageErrs  []error
	stageCalls int
	mergeCalls int
}

func newFakeStaging() *fakeStaging {
	return &fakeStaging{staged: map[string][]catalog.Record{}, products: map[string]catalog.Record{}}
}

func (f *fakeStaging) Stage(ctx context.Context, jobID string, src catalog.RecordSource) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stageCalls++
	var rows []catalog.Record
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		rows = append(rows, rec)

		if len(f.stageErrs) > 0 && len(rows) == 1 {
			injected := f.stageErrs[0]
			f.stageErrs = f.stageErrs[1:]
			if injected != nil {
				f.staged[jobID] = rows
				return 0, injected
			}
		}
	}
	f.staged[jobID] = rows
	return int64(len(rows)), nil
}

func (f *fakeStaging) Merge(ctx context.Context, jobID string) (catalog.MergeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mergeCalls++
	var result catalog.MergeResult
	for _, rec := range app.DedupeLastWins(f.staged[jobID]) {
		if _, ok := f.products[rec.Key()]; ok {
			result.UpdatedCount++
		} else {
			result.InsertedCount++
		}
		f.products[rec.Key()] = rec
	}
	return result, nil
}

func (f *fakeStaging) PurgeStaged(ctx context.Context, jobID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := int64(len(f.staged[jobID]))
	delete(f.staged, jobID)
	return n, nil
}

type fakeChunks struct {
	mu       sync.Mutex
	calls    [][]catalog.Record
	products map[string]catalog.Record
	failKey  string
}

func newFakeChunks() *fakeChunks {
	return &fakeChunks{products: map[string]catalog.Record{}}
}

func (f *fakeChunks) UpsertChunk(ctx context.Context, records []catalog.Record) (catalog.MergeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range records {
		if f.failKey != "" && rec.Key() == f.failKey {
			return catalog.MergeResult{}, errors.New("deadlock detected")
		}
	}
	f.calls = append(f.calls, records)
	var result catalog.MergeResult
	for _, rec := range records {
		if _, ok := f.products[rec.Key()]; ok {
			result.UpdatedCount++
		} else {
			result.InsertedCount++
		}
		f.products[rec.Key()] = rec
	}
	return result, nil
}

// fakeFiles serves uploads from memory and anything else, such as chunk files,
// from disk.
type fakeFiles map[string]string

func (f fakeFiles) Open(ctx context.Context, sourcePath string) (io.ReadCloser, error) {
	if data, ok := f[sourcePath]; ok {
		return io.NopCloser(strings.NewReader(data)), nil
	}
	return os.Open(sourcePath)
}

type harness struct {
	jobs     *memJobs
	queue    *memQueue
	progress *memProgress
	staging  *fakeStaging
	chunks   *fakeChunks
	files    fakeFiles
	workDir  string
	start    app.StartImport
	worker   *app.ImportWorker
}

func newHarness(t *testing.T, mode catalog.ImportMode, chunkSize int) *harness {
	t.Helper()

	h := &harness{
		jobs:     newMemJobs(),
		queue:    newMemQueue(),
		progress: newMemProgress(),
		staging:  newFakeStaging(),
		chunks:   newFakeChunks(),
		files:    fakeFiles{},
		workDir:  t.TempDir(),
	}

	orchestrator := app.NewOrchestrator(app.OrchestratorDeps{
		Jobs:     h.jobs,
		Queue:    h.queue,
		Progress: h.progress,
		Source:   h.files,
		Parser:   csvsource.Format{},
		Splitter: csvsource.NewSplitter(chunkSize),
		Staging:  h.staging,
		Chunks:   h.chunks,
	}, app.OrchestratorConfig{WorkDir: h.workDir, ReportEvery: 2, MaxAttempts: 3})

	h.start = app.NewStartImport(h.jobs, h.queue, h.progress, mode, 3)
	h.worker = app.NewImportWorker(h.queue, orchestrator, app.ImportWorkerConfig{
		LeaseDuration:  time.Minute,
		AttemptTimeout: 5 * time.Second,
		RetryBase:      time.Second,
	})
	return h
}

func (h *harness) upload(t *testing.T, name, data string) string {
	t.Helper()

	path := "uploads/" + name
	h.files[path] = data
	out, err := h.start.Execute(context.Background(), app.StartImportInput{Filename: name, SourcePath: path})
	if err != nil {
		t.Fatalf("start import: %v", err)
	}
	return out.JobID
}

func harnessParser() app.RecordParser {
	return csvsource.Format{}
}

// drain runs queued tasks one at a time until every queue is empty.
func (h *harness) drain(t *testing.T) {
	t.Helper()

	for i := 0; i < 200; i++ {
		task := h.queue.claimAny()
		if task == nil {
			return
		}
		_ = h.worker.ProcessTask(context.Background(), *task)
	}
	t.Fatal("queues did not drain")
}
