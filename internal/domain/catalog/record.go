package catalog

import (
	"fmt"
	"strings"
)

const (
	ColumnSKU         = "sku"
	ColumnName        = "name"
	ColumnDescription = "description"
)

const utf8BOM = "\uFEFF"

// NormalizeKey returns the case-insensitive form of a natural key.
func NormalizeKey(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}

// Header maps the known catalog columns to their position in a source row.
// Columns the catalog does not know about are carried in Raw but never read.
type Header struct {
	Raw         []string
	sku         int
	name        int
	description int
}

// ParseHeader validates a header row once so every later row can be read by
// position. A leading byte order mark is ignored.
func ParseHeader(fields []string) (Header, error) {
	if len(fields) == 0 {
		return Header{}, fmt.Errorf("%w: empty header", ErrMalformedInput)
	}

	h := Header{Raw: append([]string(nil), fields...), sku: -1, name: -1, description: -1}
	seen := make(map[string]bool, len(fields))
	for i, field := range fields {
		if i == 0 {
			field = strings.TrimPrefix(field, utf8BOM)
			h.Raw[0] = field
		}
		column := strings.ToLower(strings.TrimSpace(field))
		if column == "" {
			continue
		}
		if seen[column] {
			return Header{}, fmt.Errorf("%w: duplicate header column %q", ErrMalformedInput, column)
		}
		seen[column] = true

		switch column {
		case ColumnSKU:
			h.sku = i
		case ColumnName:
			h.name = i
		case ColumnDescription:
			h.description = i
		}
	}

	if h.sku < 0 {
		return Header{}, fmt.Errorf("%w: header is missing required column %q", ErrMalformedInput, ColumnSKU)
	}
	return h, nil
}

// Width is the number of fields every row must carry.
func (h Header) Width() int {
	return len(h.Raw)
}

// Record is one source row aligned to the header. Line is the 1-based line of
// the row in its source file, header included.
type Record struct {
	Line        int64
	SKU         string
	Name        string
	Description string
}

func (r Record) Key() string {
	return NormalizeKey(r.SKU)
}

// Record builds a typed record from raw fields. Rows whose arity differs from
// the header, or whose natural key is blank, are malformed.
func (h Header) Record(line int64, fields []string) (Record, error) {
	if len(fields) != h.Width() {
		return Record{}, fmt.Errorf("%w: line %d has %d fields, header has %d", ErrMalformedInput, line, len(fields), h.Width())
	}

	rec := Record{Line: line, SKU: fields[h.sku]}
	if h.name >= 0 {
		rec.Name = fields[h.name]
	}
	if h.description >= 0 {
		rec.Description = fields[h.description]
	}
	if rec.Key() == "" {
		return Record{}, fmt.Errorf("%w: line %d has an empty %s", ErrMalformedInput, line, ColumnSKU)
	}
	return rec, nil
}
