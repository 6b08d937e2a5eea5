package echo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	app "github.com/mohammadpnp/product-import/internal/application/importer"
	"github.com/mohammadpnp/product-import/internal/logctx"
)

const uploadField = "file"

type uploadStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
}

type ImportHandler struct {
	uploads uploadStore
	start   app.StartImport
	get     app.GetImportJob
	cancel  app.CancelImport
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

func NewImportHandler(uploads uploadStore, start app.StartImport, get app.GetImportJob, cancel app.CancelImport) *ImportHandler {
	return &ImportHandler{
		uploads: uploads,
		start:   start,
		get:     get,
		cancel:  cancel,
	}
}

// UploadProducts stores a multipart CSV upload and starts its import job.
func (h *ImportHandler) UploadProducts(c echo.Context) error {
	header, err := c.FormFile(uploadField)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "missing_file",
			Message: `multipart field "file" is required`,
		}})
	}
	if strings.ToLower(filepath.Ext(header.Filename)) != ".csv" {
		return invalidSource(c)
	}
	if header.Size == 0 {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "empty_file",
			Message: "uploaded file is empty",
		}})
	}

	ctx := c.Request().Context()
	src, err := header.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_request",
			Message: "failed to read uploaded file",
		}})
	}
	defer src.Close()

	sourcePath, err := h.uploads.Save(ctx, header.Filename, src)
	if err != nil {
		logctx.FromContext(ctx).Error().Err(err).Str("filename", header.Filename).Msg("store upload")
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to store upload",
		}})
	}

	out, err := h.start.Execute(ctx, app.StartImportInput{
		Filename:   header.Filename,
		SourcePath: sourcePath,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidImportSource) {
			return invalidSource(c)
		}
		logctx.FromContext(ctx).Error().Err(err).Msg("start import")
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to enqueue import job",
		}})
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: out})
}

func (h *ImportHandler) GetImport(c echo.Context) error {
	out, err := h.get.Execute(c.Request().Context(), app.GetImportJobInput{
		ID: c.Param("id"),
	})
	if err != nil {
		return jobError(c, err, "failed to get import job")
	}

	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ImportHandler) CancelImport(c echo.Context) error {
	id := c.Param("id")
	if err := h.cancel.Execute(c.Request().Context(), app.CancelImportInput{ID: id}); err != nil {
		if errors.Is(err, app.ErrImportJobFinished) {
			return c.JSON(http.StatusConflict, apiResponse{Error: &errorBody{
				Code:    "job_finished",
				Message: "import job already finished",
			}})
		}
		return jobError(c, err, "failed to cancel import job")
	}

	return c.JSON(http.StatusOK, apiResponse{Data: map[string]string{
		"job_id": id,
		"status": "failed",
	}})
}

func invalidSource(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
		Code:    "invalid_source",
		Message: "file must be a .csv file",
	}})
}

func jobError(c echo.Context, err error, internalMessage string) error {
	switch {
	case errors.Is(err, app.ErrInvalidJobID):
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "invalid_job_id",
			Message: "id must be a valid UUID",
		}})
	case errors.Is(err, app.ErrImportJobNotFound):
		return c.JSON(http.StatusNotFound, apiResponse{Error: &errorBody{
			Code:    "not_found",
			Message: "import job not found",
		}})
	}

	logctx.FromContext(c.Request().Context()).Error().Err(err).Msg(internalMessage)
	return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
		Code:    "internal_error",
		Message: internalMessage,
	}})
}
