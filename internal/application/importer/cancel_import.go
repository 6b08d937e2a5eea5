package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
	"github.com/mohammadpnp/product-import/internal/logctx"
)

const cancelledReason = "cancelled by request"

type CancelImportInput struct {
	ID string
}

type CancelImport interface {
	Execute(ctx context.Context, in CancelImportInput) error
}

type importJobFailer interface {
	Fail(ctx context.Context, jobID string, reason string) error
}

type cancelImport struct {
	jobs     importJobFailer
	progress catalog.ProgressReporter
}

func NewCancelImport(jobs importJobFailer, progress catalog.ProgressReporter) CancelImport {
	return &cancelImport{jobs: jobs, progress: progress}
}

// Execute forces the job to failed. Work already running is not interrupted;
// the next phase boundary sees the terminal status and stops.
func (uc *cancelImport) Execute(ctx context.Context, in CancelImportInput) error {
	if err := validateJobID(in.ID); err != nil {
		return err
	}

	err := uc.jobs.Fail(ctx, in.ID, cancelledReason)
	switch {
	case errors.Is(err, catalog.ErrJobNotFound):
		return ErrImportJobNotFound
	case errors.Is(err, catalog.ErrInvalidTransition):
		return ErrImportJobFinished
	case err != nil:
		return fmt.Errorf("%w: %v", ErrCancelImportJob, err)
	}

	ctx = logctx.WithStr(ctx, "job_id", in.ID)
	report(ctx, uc.progress, in.ID, catalog.FailureUpdate(cancelledReason))
	logctx.FromContext(ctx).Info().Msg("import job cancelled")
	return nil
}
