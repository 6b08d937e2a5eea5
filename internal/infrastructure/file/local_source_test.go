package file

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalSourceSaveAndOpen(t *testing.T) {
	t.Parallel()

	src := NewLocalSource(t.TempDir())
	rel, err := src.Save(context.Background(), "../../Products.CSV", strings.NewReader("sku\nA\n"))
	require.NoError(t, err)
	require.Equal(t, uploadsDir, filepath.Dir(rel))
	require.True(t, strings.HasPrefix(filepath.Base(rel), "Products-"))
	require.Equal(t, ".csv", filepath.Ext(rel))

	rc, err := src.Open(context.Background(), rel)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "sku\nA\n", string(data))
}

func TestLocalSourceSaveUniqueNames(t *testing.T) {
	t.Parallel()

	src := NewLocalSource(t.TempDir())
	first, err := src.Save(context.Background(), "p.csv", strings.NewReader("sku\n"))
	require.NoError(t, err)
	second, err := src.Save(context.Background(), "p.csv", strings.NewReader("sku\n"))
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestLocalSourceSaveRejectsEmpty(t *testing.T) {
	t.Parallel()

	src := NewLocalSource(t.TempDir())
	_, err := src.Save(context.Background(), "p.csv", strings.NewReader(""))
	require.True(t, errors.Is(err, ErrEmptyUpload))
}

func TestLocalSourceOpenMissing(t *testing.T) {
	t.Parallel()

	_, err := NewLocalSource(t.TempDir()).Open(context.Background(), "uploads/missing.csv")
	require.Error(t, err)
}
