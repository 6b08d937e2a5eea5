package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
	"github.com/mohammadpnp/product-import/internal/infrastructure/db/models"
)

const maxReasonLen = 1000

type ImportJobRepository struct {
	db *gorm.DB
}

func NewImportJobRepository(db *gorm.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

func (r *ImportJobRepository) Create(ctx context.Context, filename, sourcePath string, mode catalog.ImportMode) (catalog.ImportJob, error) {
	row := models.ImportJob{
		ID:         uuid.NewString(),
		Filename:   filename,
		SourcePath: sourcePath,
		Mode:       string(mode),
		Status:     string(catalog.StatusPending),
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return catalog.ImportJob{}, fmt.Errorf("create import job: %w", err)
	}
	return toDomainJob(row), nil
}

func (r *ImportJobRepository) Get(ctx context.Context, jobID string) (catalog.ImportJob, error) {
	var row models.ImportJob
	err := r.db.WithContext(ctx).First(&row, "id = ?", jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return catalog.ImportJob{}, catalog.ErrJobNotFound
		}
		return catalog.ImportJob{}, fmt.Errorf("get import job: %w", err)
	}
	return toDomainJob(row), nil
}

// Transition moves the job to next only if its current status allows it, so a
// job failed externally cannot be revived by a late phase.
func (r *ImportJobRepository) Transition(ctx context.Context, jobID string, next catalog.Status) error {
	return r.update(ctx, jobID, next, map[string]any{"status": string(next)})
}

func (r *ImportJobRepository) SetCounts(ctx context.Context, jobID string, total, processed int64) error {
	if processed > total {
		processed = total
	}
	err := r.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{"total_rows": total, "processed_rows": processed}).Error
	if err != nil {
		return fmt.Errorf("set import job counts: %w", err)
	}
	return nil
}

// RecordError stores the reason of a failed attempt that will be retried. The
// status is left alone.
func (r *ImportJobRepository) RecordError(ctx context.Context, jobID string, reason string) error {
	err := r.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("id = ? AND status NOT IN ?", jobID, terminalStatuses()).
		Update("error_message", truncateReason(reason)).Error
	if err != nil {
		return fmt.Errorf("record import job error: %w", err)
	}
	return nil
}

func (r *ImportJobRepository) Complete(ctx context.Context, jobID string, processed int64) error {
	return r.update(ctx, jobID, catalog.StatusCompleted, map[string]any{
		"status":         string(catalog.StatusCompleted),
		"total_rows":     processed,
		"processed_rows": processed,
		"error_message":  nil,
	})
}

func (r *ImportJobRepository) Fail(ctx context.Context, jobID string, reason string) error {
	return r.update(ctx, jobID, catalog.StatusFailed, map[string]any{
		"status":        string(catalog.StatusFailed),
		"error_message": truncateReason(reason),
	})
}

func (r *ImportJobRepository) update(ctx context.Context, jobID string, next catalog.Status, fields map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("id = ? AND status IN ?", jobID, statusStrings(next.Predecessors())).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("update import job to %s: %w", next, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", catalog.ErrInvalidTransition, current.Status, next)
}

func toDomainJob(row models.ImportJob) catalog.ImportJob {
	job := catalog.ImportJob{
		ID:            row.ID,
		Filename:      row.Filename,
		SourcePath:    row.SourcePath,
		Mode:          catalog.ImportMode(row.Mode),
		Status:        catalog.Status(row.Status),
		TotalRows:     row.TotalRows,
		ProcessedRows: row.ProcessedRows,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.ErrorMessage != nil {
		job.ErrorMessage = *row.ErrorMessage
	}
	return job
}

func statusStrings(statuses []catalog.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func terminalStatuses() []string {
	return []string{string(catalog.StatusCompleted), string(catalog.StatusFailed)}
}

// truncateReason keeps at most maxReasonLen bytes without splitting a UTF-8
// sequence, which Postgres would reject.
func truncateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxReasonLen {
		return reason
	}
	cut := maxReasonLen
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
