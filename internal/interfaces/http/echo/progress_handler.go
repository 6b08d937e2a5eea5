package echo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
	"github.com/mohammadpnp/product-import/internal/logctx"
)

const sseDone = "[DONE]"

type progressStreamer interface {
	Stream(ctx context.Context, jobID string) (<-chan catalog.ProgressEvent, error)
}

// ProgressHandler serves a job's progress as server-sent events. poll tails the
// stored snapshot; push, when set, follows the job's pub/sub channel and is
// selected with ?mode=push.
type ProgressHandler struct {
	poll progressStreamer
	push progressStreamer

	closing   chan struct{}
	closeOnce sync.Once
}

func NewProgressHandler(poll, push progressStreamer) *ProgressHandler {
	return &ProgressHandler{poll: poll, push: push, closing: make(chan struct{})}
}

// Close ends every open stream. Register it with the server's shutdown so
// connected observers do not hold shutdown until their jobs finish.
func (h *ProgressHandler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

func (h *ProgressHandler) StreamProgress(c echo.Context) error {
	jobID := c.Param("id")
	if _, err := uuid.Parse(jobID); err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "invalid_job_id",
			Message: "id must be a valid UUID",
		}})
	}

	streamer := h.poll
	if c.QueryParam("mode") == "push" && h.push != nil {
		streamer = h.push
	}

	ctx, cancel := context.WithCancel(logctx.WithStr(c.Request().Context(), "job_id", jobID))
	defer cancel()
	go func() {
		select {
		case <-h.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	events, err := streamer.Stream(ctx, jobID)
	if err != nil {
		logctx.FromContext(ctx).Error().Err(err).Msg("open progress stream")
		return c.JSON(http.StatusServiceUnavailable, apiResponse{Error: &errorBody{
			Code:    "stream_unavailable",
			Message: "progress stream unavailable",
		}})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for ev := range events {
		data := []byte(sseDone)
		if !ev.Done {
			if data, err = json.Marshal(ev.Snapshot); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
			return nil
		}
		res.Flush()
		if ev.Done {
			return nil
		}
	}
	return nil
}
