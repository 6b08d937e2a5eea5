package catalog

// MergeResult counts the catalog rows one merge or chunk upsert wrote.
type MergeResult struct {
	InsertedCount int64
	UpdatedCount  int64
}

func (r MergeResult) Total() int64 {
	return r.InsertedCount + r.UpdatedCount
}
