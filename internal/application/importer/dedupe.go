package importer

import "github.com/mohammadpnp/product-import/internal/domain/catalog"

// DedupeLastWins keeps one record per normalized key. A later record replaces
// the values of an earlier one but keeps its position.
func DedupeLastWins(records []catalog.Record) []catalog.Record {
	index := make(map[string]int, len(records))
	out := make([]catalog.Record, 0, len(records))
	for _, rec := range records {
		key := rec.Key()
		if i, ok := index[key]; ok {
			out[i] = rec
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out
}
