package catalog

type Chunk struct {
	Index int
	Path  string
	Rows  int
}

// ChunkManifest describes the output of a split. WorkDir holds every chunk
// file and is removed as a unit once the job no longer needs it.
type ChunkManifest struct {
	WorkDir   string
	Header    []string
	Chunks    []Chunk
	TotalRows int64
}
