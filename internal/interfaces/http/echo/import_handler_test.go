package echo_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	app "github.com/mohammadpnp/product-import/internal/application/importer"
	httpecho "github.com/mohammadpnp/product-import/internal/interfaces/http/echo"
)

type fakeUploads struct {
	saved    map[string]string
	err      error
	lastPath string
}

func (f *fakeUploads) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.lastPath = "uploads/" + filename
	f.saved[f.lastPath] = string(data)
	return f.lastPath, nil
}

type fakeStartImport struct {
	in     app.StartImportInput
	output app.StartImportOutput
	err    error
}

func (f *fakeStartImport) Execute(ctx context.Context, in app.StartImportInput) (app.StartImportOutput, error) {
	f.in = in
	if f.err != nil {
		return app.StartImportOutput{}, f.err
	}
	return f.output, nil
}

type fakeGetImport struct {
	output app.GetImportJobOutput
	err    error
}

func (f *fakeGetImport) Execute(ctx context.Context, in app.GetImportJobInput) (app.GetImportJobOutput, error) {
	if f.err != nil {
		return app.GetImportJobOutput{}, f.err
	}
	return f.output, nil
}

type fakeCancelImport struct {
	err error
}

func (f *fakeCancelImport) Execute(ctx context.Context, in app.CancelImportInput) error {
	return f.err
}

type handlerDeps struct {
	uploads *fakeUploads
	start   *fakeStartImport
	get     *fakeGetImport
	cancel  *fakeCancelImport
	stream  *fakeStreamer
}

func newServer(deps handlerDeps) *echo.Echo {
	if deps.uploads == nil {
		deps.uploads = &fakeUploads{}
	}
	if deps.start == nil {
		deps.start = &fakeStartImport{}
	}
	if deps.get == nil {
		deps.get = &fakeGetImport{}
	}
	if deps.cancel == nil {
		deps.cancel = &fakeCancelImport{}
	}
	if deps.stream == nil {
		deps.stream = &fakeStreamer{}
	}

	e := echo.New()
	httpecho.RegisterRoutes(e,
		httpecho.NewImportHandler(deps.uploads, deps.start, deps.get, deps.cancel),
		httpecho.NewProgressHandler(deps.stream, nil),
	)
	return e
}

func multipartUpload(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unexpected json: %v", err)
	}
	return got
}

func TestUploadProductsSuccess(t *testing.T) {
	t.Parallel()

	uploads := &fakeUploads{}
	start := &fakeStartImport{output: app.StartImportOutput{JobID: "job-1", Status: "pending"}}
	e := newServer(handlerDeps{uploads: uploads, start: start})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, multipartUpload(t, "file", "products.csv", "sku,name\nA,1\n"))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	data, ok := decodeBody(t, rec)["data"].(map[string]any)
	if !ok || data["job_id"] != "job-1" || data["status"] != "pending" {
		t.Fatalf("unexpected data payload: %#v", data)
	}
	if uploads.saved["uploads/products.csv"] != "sku,name\nA,1\n" {
		t.Fatalf("upload not stored: %#v", uploads.saved)
	}
	if start.in.SourcePath != "uploads/products.csv" || start.in.Filename != "products.csv" {
		t.Fatalf("unexpected start input: %+v", start.in)
	}
}

func TestUploadProductsRejectsBadRequests(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode string
	}{
		{
			name:     "missing file field",
			req:      func(t *testing.T) *http.Request { return multipartUpload(t, "upload", "products.csv", "sku\n") },
			wantCode: "missing_file",
		},
		{
			name:     "not a csv",
			req:      func(t *testing.T) *http.Request { return multipartUpload(t, "file", "products.json", "[]") },
			wantCode: "invalid_source",
		},
		{
			name:     "empty file",
			req:      func(t *testing.T) *http.Request { return multipartUpload(t, "file", "products.csv", "") },
			wantCode: "empty_file",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			uploads := &fakeUploads{}
			e := newServer(handlerDeps{uploads: uploads})
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, tc.req(t))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			body, _ := decodeBody(t, rec)["error"].(map[string]any)
			if body["code"] != tc.wantCode {
				t.Fatalf("expected %s, got %#v", tc.wantCode, body)
			}
			if len(uploads.saved) != 0 {
				t.Fatal("rejected upload must not be stored")
			}
		})
	}
}

func TestUploadProductsStartFailure(t *testing.T) {
	t.Parallel()

	e := newServer(handlerDeps{start: &fakeStartImport{err: app.ErrEnqueueImportJob}})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, multipartUpload(t, "file", "products.csv", "sku\nA\n"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestGetImport(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		get    *fakeGetImport
		status int
	}{
		{name: "found", get: &fakeGetImport{output: app.GetImportJobOutput{ID: "job-1", Status: "staging"}}, status: http.StatusOK},
		{name: "invalid id", get: &fakeGetImport{err: app.ErrInvalidJobID}, status: http.StatusBadRequest},
		{name: "not found", get: &fakeGetImport{err: app.ErrImportJobNotFound}, status: http.StatusNotFound},
		{name: "internal", get: &fakeGetImport{err: errors.New("db down")}, status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := newServer(handlerDeps{get: tc.get})
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/imports/job-1", nil))

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestCancelImport(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "cancelled", status: http.StatusOK},
		{name: "finished", err: app.ErrImportJobFinished, status: http.StatusConflict},
		{name: "not found", err: app.ErrImportJobNotFound, status: http.StatusNotFound},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := newServer(handlerDeps{cancel: &fakeCancelImport{err: tc.err}})
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/imports/job-1/cancel", nil))

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}
