// Package scanner walks a directory tree and collects image files.
package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/dejaview/internal/model"
)

// cancelCheckInterval is how many directory entries are handled between
// cancellation checks inside a single directory.
const cancelCheckInterval = 256

// readDir lists a directory. Tests replace it to simulate unreadable directories.
var readDir = os.ReadDir

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// IsImageFile reports whether path has one of the supported image extensions.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Options configures a scan.
type Options struct {
	// Concurrency bounds the number of directories listed in parallel.
	// Zero means 4 * GOMAXPROCS.
	Concurrency int
	Logger      logrus.FieldLogger
}

type scan struct {
	ctx    context.Context
	group  *errgroup.Group
	logger logrus.FieldLogger

	mu      sync.Mutex
	files   []string
	skipped int
	ioErrs  int
}

// Scan lists all image files under root. Directories that cannot be read are
// counted and skipped. A missing root yields an empty result with both
// counters set to one. Returns model.ErrCancelled if ctx is done first.
func Scan(ctx context.Context, root string, opts Options) (*model.ScanResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.WithField("root", root).Warn("Scan root does not exist")
		return &model.ScanResult{Files: []string{}, SkippedDirectoryCount: 1, IOErrorCount: 1}, nil
	case errors.Is(err, fs.ErrPermission):
		logger.WithField("root", root).Warn("Scan root is not accessible")
		return &model.ScanResult{Files: []string{}, SkippedDirectoryCount: 1}, nil
	case err != nil:
		logger.WithError(err).WithField("root", root).Warn("Cannot stat scan root")
		return &model.ScanResult{Files: []string{}, IOErrorCount: 1}, nil
	case !info.IsDir():
		logger.WithField("root", root).Warn("Scan root is not a directory")
		return &model.ScanResult{Files: []string{}, IOErrorCount: 1}, nil
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4 * runtime.GOMAXPROCS(0)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	s := &scan{ctx: gctx, group: group, logger: logger, files: []string{}}
	s.spawn(root)

	if err := group.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, model.ErrCancelled
		}
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, model.ErrCancelled
	}

	logger.WithFields(logrus.Fields{
		"root":        root,
		"files":       len(s.files),
		"skippedDirs": s.skipped,
		"ioErrors":    s.ioErrs,
	}).Debug("Scan finished")

	return &model.ScanResult{
		Files:                 s.files,
		SkippedDirectoryCount: s.skipped,
		IOErrorCount:          s.ioErrs,
	}, nil
}

// spawn lists dir on a new goroutine if the group has room, otherwise inline.
// Listing inline when saturated keeps a full group from deadlocking on itself.
func (s *scan) spawn(dir string) {
	task := func() error { return s.listDir(dir) }
	if s.group.TryGo(task) {
		return
	}
	// The only error listDir returns is cancellation, which Scan picks up
	// from the parent context.
	_ = task()
}

func (s *scan) listDir(dir string) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	entries, err := readDir(dir)
	if err != nil {
		s.recordDirError(dir, err)
		// ReadDir may still return the entries it read before failing.
		if len(entries) == 0 {
			return nil
		}
	}

	var found []string
	for i, entry := range entries {
		if i > 0 && i%cancelCheckInterval == 0 {
			if err := s.ctx.Err(); err != nil {
				return err
			}
		}

		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			s.spawn(path)
			continue
		}
		if IsImageFile(path) {
			found = append(found, path)
		}
	}

	if len(found) > 0 {
		s.mu.Lock()
		s.files = append(s.files, found...)
		s.mu.Unlock()
	}
	return nil
}

func (s *scan) recordDirError(dir string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if errors.Is(err, fs.ErrPermission) {
		s.skipped++
		s.logger.WithError(&model.DirectoryAccessDeniedError{Path: dir, Err: err}).Warn("Skipping directory")
		return
	}
	s.ioErrs++
	s.logger.WithError(&model.DirectoryIOError{Path: dir, Err: err}).Warn("Skipping directory")
}
