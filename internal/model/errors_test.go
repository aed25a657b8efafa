package model

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestExtractorInitErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *ExtractorInitError
		contains []string
	}{
		{
			"missing components",
			&ExtractorInitError{Extractor: "remote", Missing: []string{"libcudnn.so.8", "libcublas.so.11"}},
			[]string{"remote", "libcudnn.so.8, libcublas.so.11"},
		},
		{
			"wrapped cause only",
			&ExtractorInitError{Extractor: "remote", Err: errors.New("connection refused")},
			[]string{"remote", "connection refused"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.err.Error()
			for _, s := range tc.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q; want it to contain %q", msg, s)
				}
			}
		})
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	denied := &DirectoryAccessDeniedError{Path: "/x", Err: fs.ErrPermission}
	if !errors.Is(denied, fs.ErrPermission) {
		t.Error("DirectoryAccessDeniedError should unwrap to fs.ErrPermission")
	}

	read := &FileReadError{Path: "/x/a.png", Err: fs.ErrNotExist}
	if !errors.Is(read, fs.ErrNotExist) {
		t.Error("FileReadError should unwrap to fs.ErrNotExist")
	}

	var initErr *ExtractorInitError
	wrapped := &ExtractorRuntimeError{BatchSize: 3, Err: &ExtractorInitError{Extractor: "remote"}}
	if !errors.As(wrapped, &initErr) {
		t.Error("ExtractorRuntimeError should expose a wrapped ExtractorInitError")
	}
}

func TestClusterListImageCount(t *testing.T) {
	list := ClusterList{{"a", "b"}, {"c", "d", "e"}}
	if got := list.ImageCount(); got != 5 {
		t.Errorf("ImageCount() = %d; want 5", got)
	}
}
