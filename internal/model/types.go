package model

// ScanResult is the outcome of a directory scan. Files has no defined order.
type ScanResult struct {
	Files                 []string `json:"files"`
	SkippedDirectoryCount int      `json:"skipped_directories"`
	IOErrorCount          int      `json:"io_errors"`
}

// EmbeddingMap maps an image path to its embedding vector.
type EmbeddingMap map[string][]float32

// Paths returns the keys of the map in no particular order.
func (m EmbeddingMap) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	return paths
}

// ProcessResult is the outcome of a completed embedding pipeline run.
type ProcessResult struct {
	Embeddings       EmbeddingMap
	SkippedFileCount int
}

// Cluster is a group of two or more images considered similar.
type Cluster []string

// ClusterList is the result of a single clustering request.
type ClusterList []Cluster

// ImageCount returns the total number of images across all clusters.
func (l ClusterList) ImageCount() int {
	n := 0
	for _, c := range l {
		n += len(c)
	}
	return n
}
