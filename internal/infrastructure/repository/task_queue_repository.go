package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
	"github.com/mohammadpnp/product-import/internal/infrastructure/db/models"
)

const (
	taskQueued    = "queued"
	taskRunning   = "running"
	taskSucceeded = "succeeded"
	taskFailed    = "failed"
)

const defaultMaxAttempts = 3

// TaskQueueRepository is a Postgres work queue. Delivery is at least once:
// a running task whose lease lapses is handed to the next claimer.
type TaskQueueRepository struct {
	db *gorm.DB
}

func NewTaskQueueRepository(db *gorm.DB) *TaskQueueRepository {
	return &TaskQueueRepository{db: db}
}

func (r *TaskQueueRepository) Enqueue(ctx context.Context, spec catalog.TaskSpec) (string, error) {
	row := newTaskRow(spec, nil)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("enqueue %s task: %w", spec.Kind, err)
	}
	return row.ID, nil
}

// EnqueueGroup dispatches units as one fan-out. finalize runs once, after the
// last unit completes; its payload's "processed" field receives the sum of the
// units' processed counts. With no units finalize is queued immediately.
func (r *TaskQueueRepository) EnqueueGroup(ctx context.Context, jobID string, units []catalog.TaskSpec, finalize catalog.TaskSpec) (string, error) {
	if len(units) == 0 {
		if _, err := r.Enqueue(ctx, finalize); err != nil {
			return "", err
		}
		return "", nil
	}

	group := models.TaskGroup{
		ID:                  uuid.NewString(),
		JobID:               jobID,
		TotalUnits:          len(units),
		Pending:             len(units),
		FinalizeQueue:       finalize.Queue,
		FinalizeKind:        string(finalize.Kind),
		FinalizePayload:     datatypes.JSON(payloadOrEmpty(finalize.Payload)),
		FinalizeMaxAttempts: maxAttemptsOrDefault(finalize.MaxAttempts),
	}

	rows := make([]models.Task, 0, len(units))
	for _, unit := range units {
		rows = append(rows, newTaskRow(unit, &group.ID))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return fmt.Errorf("create task group: %w", err)
		}
		if err := tx.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("create group tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return group.ID, nil
}

func (r *TaskQueueRepository) ClaimNext(ctx context.Context, queue string, lease time.Duration) (*catalog.Task, error) {
	var row models.Task
	result := r.db.WithContext(ctx).Raw(`
UPDATE import_tasks
SET status = 'running',
    attempts = attempts + 1,
    lease_expires_at = NOW() + make_interval(secs => ?),
    updated_at = NOW()
WHERE id = (
    SELECT id FROM import_tasks
    WHERE queue = ?
      AND ((status = 'queued' AND run_after <= NOW())
        OR (status = 'running' AND lease_expires_at < NOW()))
    ORDER BY run_after, created_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING *
`, lease.Seconds(), queue).Scan(&row)
	if result.Error != nil {
		return nil, fmt.Errorf("claim task from %s: %w", queue, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	task := toDomainTask(row)
	return &task, nil
}

func (r *TaskQueueRepository) Heartbeat(ctx context.Context, taskID string, lease time.Duration) error {
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND status = ?", taskID, taskRunning).
		Update("lease_expires_at", gorm.Expr("NOW() + make_interval(secs => ?)", lease.Seconds())).Error
	if err != nil {
		return fmt.Errorf("heartbeat task: %w", err)
	}
	return nil
}

func (r *TaskQueueRepository) Complete(ctx context.Context, taskID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ?", taskID).
		Updates(map[string]any{"status": taskSucceeded, "lease_expires_at": nil}).Error
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// CompleteInGroup completes one fan-out unit and folds its processed count into
// the group. A redelivered unit that already completed does not count twice.
func (r *TaskQueueRepository) CompleteInGroup(ctx context.Context, taskID, groupID string, processed int64) (catalog.GroupProgress, error) {
	var progress catalog.GroupProgress

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		done := tx.Model(&models.Task{}).
			Where("id = ? AND status = ?", taskID, taskRunning).
			Updates(map[string]any{"status": taskSucceeded, "lease_expires_at": nil})
		if done.Error != nil {
			return fmt.Errorf("complete group task: %w", done.Error)
		}

		var group models.TaskGroup
		if done.RowsAffected == 0 {
			if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
				return fmt.Errorf("load task group: %w", err)
			}
			progress = catalog.GroupProgress{Pending: group.Pending, Processed: group.Processed}
			return nil
		}

		if err := tx.Raw(`
UPDATE import_task_groups
SET pending = pending - 1,
    processed = processed + ?,
    updated_at = NOW()
WHERE id = ?
RETURNING *
`, processed, groupID).Scan(&group).Error; err != nil {
			return fmt.Errorf("update task group: %w", err)
		}
		progress = catalog.GroupProgress{Pending: group.Pending, Processed: group.Processed}

		if group.Pending > 0 || group.Failed {
			return nil
		}

		payload, err := withProcessed(json.RawMessage(group.FinalizePayload), group.Processed)
		if err != nil {
			return err
		}
		finalize := newTaskRow(catalog.TaskSpec{
			Queue:       group.FinalizeQueue,
			Kind:        catalog.TaskKind(group.FinalizeKind),
			JobID:       group.JobID,
			Payload:     payload,
			MaxAttempts: group.FinalizeMaxAttempts,
		}, nil)
		if err := tx.Create(&finalize).Error; err != nil {
			return fmt.Errorf("enqueue finalize task: %w", err)
		}
		return nil
	})
	if err != nil {
		return catalog.GroupProgress{}, err
	}
	return progress, nil
}

func (r *TaskQueueRepository) Retry(ctx context.Context, taskID string, reason string, delay time.Duration) error {
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"status":           taskQueued,
			"last_error":       truncateReason(reason),
			"lease_expires_at": nil,
			"run_after":        gorm.Expr("NOW() + make_interval(secs => ?)", delay.Seconds()),
		}).Error
	if err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	return nil
}

func (r *TaskQueueRepository) Fail(ctx context.Context, taskID string, reason string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ?", taskID).
		Updates(map[string]any{"status": taskFailed, "last_error": truncateReason(reason), "lease_expires_at": nil}).Error
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// FailGroup stops a fan-out: finalize will never be queued and units that
// have not started are failed with the same reason.
func (r *TaskQueueRepository) FailGroup(ctx context.Context, groupID string, reason string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.TaskGroup{}).Where("id = ?", groupID).Update("failed", true).Error; err != nil {
			return fmt.Errorf("fail task group: %w", err)
		}
		if err := tx.Model(&models.Task{}).
			Where("group_id = ? AND status = ?", groupID, taskQueued).
			Updates(map[string]any{"status": taskFailed, "last_error": truncateReason(reason)}).Error; err != nil {
			return fmt.Errorf("fail queued group tasks: %w", err)
		}
		return nil
	})
}

func newTaskRow(spec catalog.TaskSpec, groupID *string) models.Task {
	return models.Task{
		ID:          uuid.NewString(),
		Queue:       spec.Queue,
		Kind:        string(spec.Kind),
		JobID:       spec.JobID,
		Payload:     datatypes.JSON(payloadOrEmpty(spec.Payload)),
		Status:      taskQueued,
		MaxAttempts: maxAttemptsOrDefault(spec.MaxAttempts),
		RunAfter:    time.Now(),
		GroupID:     groupID,
	}
}

func toDomainTask(row models.Task) catalog.Task {
	task := catalog.Task{
		ID:          row.ID,
		Queue:       row.Queue,
		Kind:        catalog.TaskKind(row.Kind),
		JobID:       row.JobID,
		Payload:     json.RawMessage(row.Payload),
		Attempts:    row.Attempts,
		MaxAttempts: row.MaxAttempts,
	}
	if row.GroupID != nil {
		task.GroupID = *row.GroupID
	}
	return task
}

func withProcessed(payload json.RawMessage, processed int64) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("decode finalize payload: %w", err)
		}
	}
	fields["processed"] = json.RawMessage(fmt.Sprintf("%d", processed))
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode finalize payload: %w", err)
	}
	return out, nil
}

func payloadOrEmpty(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("{}")
	}
	return payload
}

func maxAttemptsOrDefault(n int) int {
	if n <= 0 {
		return defaultMaxAttempts
	}
	return n
}
