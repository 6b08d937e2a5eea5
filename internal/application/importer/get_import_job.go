package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
)

type GetImportJobInput struct {
	ID string
}

type GetImportJobOutput struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	Mode          string    `json:"mode"`
	Status        string    `json:"status"`
	TotalRows     int64     `json:"total_rows"`
	ProcessedRows int64     `json:"processed_rows"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type GetImportJob interface {
	Execute(ctx context.Context, in GetImportJobInput) (GetImportJobOutput, error)
}

type importJobGetter interface {
	Get(ctx context.Context, jobID string) (catalog.ImportJob, error)
}

type getImportJob struct {
	jobs importJobGetter
}

func NewGetImportJob(jobs importJobGetter) GetImportJob {
	return &getImportJob{jobs: jobs}
}

func (uc *getImportJob) Execute(ctx context.Context, in GetImportJobInput) (GetImportJobOutput, error) {
	if err := validateJobID(in.ID); err != nil {
		return GetImportJobOutput{}, err
	}

	job, err := uc.jobs.Get(ctx, in.ID)
	if err != nil {
		if errors.Is(err, catalog.ErrJobNotFound) {
			return GetImportJobOutput{}, ErrImportJobNotFound
		}
		return GetImportJobOutput{}, fmt.Errorf("%w: %v", ErrGetImportJob, err)
	}

	return GetImportJobOutput{
		ID:            job.ID,
		Filename:      job.Filename,
		Mode:          string(job.Mode),
		Status:        string(job.Status),
		TotalRows:     job.TotalRows,
		ProcessedRows: job.ProcessedRows,
		ErrorMessage:  job.ErrorMessage,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}, nil
}

func validateJobID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidJobID
	}
	return nil
}
