// Package pipeline turns a list of image paths into embeddings. Files are
// read in batches on a bounded I/O pool and each batch is handed to a
// dedicated compute worker that calls the extractor.
package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/dejaview/internal/config"
	"github.com/kozaktomas/dejaview/internal/fingerprint"
	"github.com/kozaktomas/dejaview/internal/model"
	"github.com/kozaktomas/dejaview/internal/progress"
)

// Options tunes a Pipeline. Zero values fall back to the defaults below.
type Options struct {
	BatchSize        int     // forced batch size, 0 = estimate
	DefaultBatchSize int     // used when the estimate is impossible
	SampleSize       int     // paths sampled for the footprint estimate
	MemoryFraction   float64 // share of free accelerator memory one batch may use
	ReadConcurrency  int     // parallel file reads
	ComputeWorkers   int     // goroutines calling the extractor
	Logger           logrus.FieldLogger
}

const (
	defaultBatchSize       = 100
	defaultSampleSize      = 20
	defaultMemoryFraction  = 0.8
	defaultReadConcurrency = 16
	defaultComputeWorkers  = 1
)

// OptionsFromConfig maps the pipeline section of the config onto Options.
func OptionsFromConfig(c config.PipelineConfig, logger logrus.FieldLogger) Options {
	return Options{
		BatchSize:        c.BatchSize,
		DefaultBatchSize: c.DefaultBatchSize,
		MemoryFraction:   c.MemoryFraction,
		ReadConcurrency:  c.ReadConcurrency,
		ComputeWorkers:   c.ComputeWorkers,
		Logger:           logger,
	}
}

// Pipeline computes embeddings with a shared extractor.
type Pipeline struct {
	extractor fingerprint.Extractor
	opts      Options
	log       logrus.FieldLogger
}

// New creates a pipeline around extractor.
func New(extractor fingerprint.Extractor, opts Options) *Pipeline {
	if opts.DefaultBatchSize <= 0 {
		opts.DefaultBatchSize = defaultBatchSize
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = defaultSampleSize
	}
	if opts.MemoryFraction <= 0 || opts.MemoryFraction > 1 {
		opts.MemoryFraction = defaultMemoryFraction
	}
	if opts.ReadConcurrency <= 0 {
		opts.ReadConcurrency = defaultReadConcurrency
	}
	if opts.ComputeWorkers <= 0 {
		opts.ComputeWorkers = defaultComputeWorkers
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{extractor: extractor, opts: opts, log: log}
}

// job is one partition of the input after its files were read.
type job struct {
	total  int // paths in the partition, read failures included
	paths  []string
	images [][]byte
}

// run holds the state shared by the workers of a single Process call.
type run struct {
	store     sync.Map // path -> []float32
	skipped   atomic.Int64
	processed atomic.Int64
	total     int
	report    progress.Sink
}

// Process embeds every path and returns the embeddings of the files that
// succeeded together with the number that did not.
//
// Read and extraction failures are counted, not returned. Returns
// *model.ExtractorInitError if the extractor cannot start and
// model.ErrCancelled if ctx is done before all batches were processed.
func (p *Pipeline) Process(ctx context.Context, paths []string, sink progress.Sink) (*model.ProcessResult, error) {
	report := progress.Monotonic(sink)
	if len(paths) == 0 {
		report(100)
		return &model.ProcessResult{Embeddings: model.EmbeddingMap{}}, nil
	}
	if ctx.Err() != nil {
		return nil, model.ErrCancelled
	}

	if err := p.extractor.Initialize(ctx); err != nil {
		// A probe interrupted by the caller is a cancellation, not a broken extractor.
		if ctx.Err() != nil {
			return nil, model.ErrCancelled
		}
		var initErr *model.ExtractorInitError
		if errors.As(err, &initErr) {
			return nil, err
		}
		return nil, &model.ExtractorInitError{Extractor: p.extractor.Profile().Name, Err: err}
	}

	batchSize := p.EstimateBatchSize(ctx, paths)
	p.log.WithFields(logrus.Fields{
		"files":      len(paths),
		"batch_size": batchSize,
		"extractor":  p.extractor.Profile().Name,
	}).Info("Embedding started")

	r := &run{total: len(paths), report: report}

	jobs := make(chan *job, p.opts.ComputeWorkers)
	compute, cctx := errgroup.WithContext(ctx)
	for range p.opts.ComputeWorkers {
		compute.Go(func() error {
			for j := range jobs {
				if cctx.Err() != nil {
					continue
				}
				if err := p.compute(cctx, r, j); err != nil {
					return err
				}
			}
			return nil
		})
	}

	readPool := new(errgroup.Group)
	readPool.SetLimit(p.opts.ReadConcurrency)

	for start := 0; start < len(paths); start += batchSize {
		if cctx.Err() != nil {
			break
		}
		end := min(start+batchSize, len(paths))
		j := p.read(cctx, readPool, r, paths[start:end])
		if cctx.Err() != nil {
			break
		}
		select {
		case jobs <- j:
		case <-cctx.Done():
		}
	}
	close(jobs)

	if err := compute.Wait(); err != nil && ctx.Err() == nil {
		return nil, err
	}
	if ctx.Err() != nil {
		p.log.WithField("processed", r.processed.Load()).Info("Embedding cancelled")
		return nil, model.ErrCancelled
	}

	result := &model.ProcessResult{
		Embeddings:       make(model.EmbeddingMap, len(paths)),
		SkippedFileCount: int(r.skipped.Load()),
	}
	r.store.Range(func(key, value any) bool {
		result.Embeddings[key.(string)] = value.([]float32)
		return true
	})

	p.log.WithFields(logrus.Fields{
		"embedded": len(result.Embeddings),
		"skipped":  result.SkippedFileCount,
	}).Info("Embedding finished")

	return result, nil
}

// read loads the files of one partition on the I/O pool. Unreadable files
// are counted as skipped and left out of the job.
func (p *Pipeline) read(ctx context.Context, pool *errgroup.Group, r *run, paths []string) *job {
	buffers := make([][]byte, len(paths))
	ok := make([]bool, len(paths))

	for i, path := range paths {
		pool.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				r.skipped.Add(1)
				p.log.WithError(&model.FileReadError{Path: path, Err: err}).Warn("Skipping file")
				return nil
			}
			buffers[i] = data
			ok[i] = true
			return nil
		})
	}
	_ = pool.Wait()

	j := &job{total: len(paths)}
	for i := range paths {
		if ok[i] {
			j.paths = append(j.paths, paths[i])
			j.images = append(j.images, buffers[i])
		}
	}
	return j
}

// compute runs the extractor on one job and stores the results. A failed
// batch of several files is retried one file at a time so that only the
// files that really fail are skipped. Only initialization failures are
// returned.
func (p *Pipeline) compute(ctx context.Context, r *run, j *job) error {
	defer func() {
		r.report(progress.Percent(int(r.processed.Add(int64(j.total))), r.total))
	}()

	if len(j.images) == 0 {
		return nil
	}

	vectors, err := p.runBatch(ctx, j.images)
	if err == nil {
		for i, path := range j.paths {
			r.store.Store(path, vectors[i])
		}
		return nil
	}
	if isFatal(err) {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	if len(j.images) == 1 {
		r.skipped.Add(1)
		p.log.WithError(err).WithField("path", j.paths[0]).Warn("Skipping file")
		return nil
	}

	p.log.WithError(err).WithField("batch_size", len(j.images)).Warn("Batch failed, retrying files one by one")
	for i, path := range j.paths {
		if ctx.Err() != nil {
			return nil
		}
		vectors, err := p.runBatch(ctx, j.images[i:i+1])
		if err != nil {
			if isFatal(err) {
				return err
			}
			r.skipped.Add(1)
			p.log.WithError(err).WithField("path", path).Warn("Skipping file")
			continue
		}
		r.store.Store(path, vectors[0])
	}
	return nil
}

// runBatch calls the extractor and checks that it returned one vector per image.
func (p *Pipeline) runBatch(ctx context.Context, images [][]byte) ([][]float32, error) {
	vectors, err := p.extractor.RunBatch(ctx, images)
	if err != nil {
		return nil, &model.ExtractorRuntimeError{BatchSize: len(images), Err: err}
	}
	if len(vectors) != len(images) {
		return nil, &model.ExtractorRuntimeError{
			BatchSize: len(images),
			Err:       errors.New("extractor returned a different number of vectors than images"),
		}
	}
	return vectors, nil
}

func isFatal(err error) bool {
	var initErr *model.ExtractorInitError
	return errors.As(err, &initErr)
}
