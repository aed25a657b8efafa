package cmd

import (
	"path/filepath"
	"testing"

	"github.com/kozaktomas/dejaview/internal/index"
)

func TestWithoutPath(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "a.jpg")

	matches := []index.Match{
		{Path: filepath.Join(dir, "b.jpg"), Similarity: 0.99},
		{Path: filepath.Join(dir, ".", "a.jpg"), Similarity: 1},
		{Path: filepath.Join(dir, "c.jpg"), Similarity: 0.9},
	}

	got := withoutPath(matches, source)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %v", got)
	}
	for _, m := range got {
		if filepath.Base(m.Path) == "a.jpg" {
			t.Errorf("source path not removed: %v", got)
		}
	}
}
