// Package csvsource turns delimited files into typed catalog records, either
// as a single streaming pass or by splitting them into chunk files.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
)

// Reader streams records from one CSV input. The header is parsed when the
// reader is created; an empty input yields a reader with no records.
type Reader struct {
	csv    *csv.Reader
	header catalog.Header
	empty  bool
}

func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	fields, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Reader{csv: cr, empty: true}, nil
	}
	if err != nil {
		return nil, malformed(err)
	}

	header, err := catalog.ParseHeader(fields)
	if err != nil {
		return nil, err
	}
	return &Reader{csv: cr, header: header}, nil
}

func (r *Reader) Header() catalog.Header {
	return r.header
}

// Next returns the next record or io.EOF. The returned error wraps
// catalog.ErrMalformedInput for rows that cannot be aligned to the header.
func (r *Reader) Next() (catalog.Record, error) {
	fields, line, err := r.nextFields()
	if err != nil {
		return catalog.Record{}, err
	}

	rec, err := r.header.Record(line, fields)
	if err != nil {
		return catalog.Record{}, err
	}
	return rec, nil
}

// nextFields returns the raw fields of the next row. The slice is reused by
// the following call.
func (r *Reader) nextFields() ([]string, int64, error) {
	if r.empty {
		return nil, 0, io.EOF
	}

	fields, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, io.EOF
	}
	if err != nil {
		return nil, 0, malformed(err)
	}

	line, _ := r.csv.FieldPos(0)
	return fields, int64(line), nil
}

func malformed(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return fmt.Errorf("%w: line %d: %v", catalog.ErrMalformedInput, parseErr.Line, parseErr.Err)
	}
	return fmt.Errorf("read csv: %w", err)
}

// ReadAll loads every record of a small input, such as a chunk file.
func ReadAll(r io.Reader) ([]catalog.Record, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}

	var records []catalog.Record
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// Format exposes the package as a record parser for the import pipeline.
type Format struct{}

func (Format) Open(r io.Reader) (catalog.RecordSource, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	return reader, nil
}

func (Format) ReadAll(r io.Reader) ([]catalog.Record, error) {
	return ReadAll(r)
}
