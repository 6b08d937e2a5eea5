package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
)

const DefaultChunkSize = 50000

type Splitter struct {
	ChunkSize int
}

func NewSplitter(chunkSize int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Splitter{ChunkSize: chunkSize}
}

// Split streams r into chunk_<n>.csv files under workDir, each carrying a copy
// of the header and at most ChunkSize rows. Every row is validated against the
// header before it is written, so malformed input fails the split.
func (s *Splitter) Split(ctx context.Context, r io.Reader, workDir string) (catalog.ChunkManifest, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return catalog.ChunkManifest{}, fmt.Errorf("create work dir: %w", err)
	}

	manifest := catalog.ChunkManifest{WorkDir: workDir}

	reader, err := NewReader(r)
	if err != nil {
		return catalog.ChunkManifest{}, err
	}
	manifest.Header = reader.Header().Raw

	var current *chunkWriter
	closeCurrent := func() error {
		if current == nil {
			return nil
		}
		chunk, err := current.close()
		current = nil
		if err != nil {
			return err
		}
		manifest.Chunks = append(manifest.Chunks, chunk)
		return nil
	}

	for {
		fields, line, err := reader.nextFields()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			current.abort()
			return catalog.ChunkManifest{}, err
		}
		if _, err := reader.header.Record(line, fields); err != nil {
			current.abort()
			return catalog.ChunkManifest{}, err
		}

		if manifest.TotalRows%int64(s.ChunkSize) == 0 {
			if err := ctx.Err(); err != nil {
				current.abort()
				return catalog.ChunkManifest{}, err
			}
			if err := closeCurrent(); err != nil {
				return catalog.ChunkManifest{}, err
			}
			index := len(manifest.Chunks) + 1
			current, err = openChunk(filepath.Join(workDir, fmt.Sprintf("chunk_%d.csv", index)), index, manifest.Header)
			if err != nil {
				return catalog.ChunkManifest{}, err
			}
		}

		if err := current.write(fields); err != nil {
			current.abort()
			return catalog.ChunkManifest{}, err
		}
		manifest.TotalRows++
	}

	if err := closeCurrent(); err != nil {
		return catalog.ChunkManifest{}, err
	}
	return manifest, nil
}

type chunkWriter struct {
	chunk catalog.Chunk
	file  *os.File
	csv   *csv.Writer
}

func openChunk(path string, index int, header []string) (*chunkWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create chunk %d: %w", index, err)
	}

	w := &chunkWriter{chunk: catalog.Chunk{Index: index, Path: path}, file: f, csv: csv.NewWriter(f)}
	if err := w.csv.Write(header); err != nil {
		w.abort()
		return nil, fmt.Errorf("write chunk %d header: %w", index, err)
	}
	return w, nil
}

func (w *chunkWriter) write(fields []string) error {
	if err := w.csv.Write(fields); err != nil {
		return fmt.Errorf("write chunk %d: %w", w.chunk.Index, err)
	}
	w.chunk.Rows++
	return nil
}

func (w *chunkWriter) close() (catalog.Chunk, error) {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = w.file.Close()
		return catalog.Chunk{}, fmt.Errorf("flush chunk %d: %w", w.chunk.Index, err)
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return catalog.Chunk{}, fmt.Errorf("sync chunk %d: %w", w.chunk.Index, err)
	}
	if err := w.file.Close(); err != nil {
		return catalog.Chunk{}, fmt.Errorf("close chunk %d: %w", w.chunk.Index, err)
	}
	return w.chunk, nil
}

func (w *chunkWriter) abort() {
	if w == nil {
		return
	}
	_ = w.file.Close()
}
