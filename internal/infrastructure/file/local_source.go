package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const uploadsDir = "uploads"

var ErrEmptyUpload = errors.New("empty upload")

// LocalSource keeps uploaded files under BaseDir and opens them again for the
// import workers. Relative paths resolve against BaseDir.
type LocalSource struct {
	BaseDir string
}

func NewLocalSource(baseDir string) *LocalSource {
	if baseDir == "" {
		baseDir = "."
	}
	return &LocalSource{BaseDir: baseDir}
}

func (s *LocalSource) Open(ctx context.Context, sourcePath string) (io.ReadCloser, error) {
	_ = ctx

	file, err := os.Open(s.resolve(sourcePath))
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", sourcePath, err)
	}
	return file, nil
}

// Save writes r to uploads/<name>-<random><ext> and returns that path relative
// to BaseDir. A partially written file is removed.
func (s *LocalSource) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	_ = ctx

	if err := os.MkdirAll(filepath.Join(s.BaseDir, uploadsDir), 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}

	rel := filepath.Join(uploadsDir, uniqueName(filename))
	path := s.resolve(rel)
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	written, err := io.Copy(out, r)
	if err == nil && written == 0 {
		err = ErrEmptyUpload
	}
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("save upload: %w", err)
	}
	return rel, nil
}

func (s *LocalSource) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.BaseDir, path)
}

func uniqueName(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "upload"
	}
	return fmt.Sprintf("%s-%s%s", stem, uuid.NewString()[:8], strings.ToLower(ext))
}
