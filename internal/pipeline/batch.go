package pipeline

import (
	"bufio"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/dejaview/internal/config"
)

// EstimateBatchSize returns the number of images processed per extractor call.
//
// A forced BatchSize wins. Otherwise the per-image footprint is estimated
// from the headers of the first SampleSize paths and divided into
// MemoryFraction of the extractor's free memory. When either side is
// unknown the default is used.
func (p *Pipeline) EstimateBatchSize(ctx context.Context, paths []string) int {
	if p.opts.BatchSize > 0 {
		return p.opts.BatchSize
	}

	profile := p.extractor.Profile()
	perImage := estimateImageBytes(paths[:min(len(paths), p.opts.SampleSize)], profile)
	if perImage <= 0 {
		p.log.WithField("extractor", profile.Name).Debug("Image footprint unknown, using default batch size")
		return p.opts.DefaultBatchSize
	}

	mem := p.extractor.AvailableMemory(ctx)
	if mem == 0 {
		p.log.WithField("extractor", profile.Name).Debug("Accelerator memory unknown, using default batch size")
		return p.opts.DefaultBatchSize
	}

	size := max(1, int(math.Floor(p.opts.MemoryFraction*float64(mem)/perImage)))
	p.log.WithFields(logrus.Fields{
		"bytes_per_image": int64(perImage),
		"memory_free":     mem,
		"batch_size":      size,
	}).Debug("Estimated batch size")
	return size
}

// estimateImageBytes averages the decoded size of the sample, with each
// side padded up to the model's minimum input size. Returns 0 if no sample
// could be decoded or the profile does not describe its tensor layout.
func estimateImageBytes(sample []string, profile config.ModelProfile) float64 {
	if profile.Channels <= 0 || profile.BytesPerValue <= 0 {
		return 0
	}

	var sumW, sumH float64
	n := 0
	for _, path := range sample {
		w, h, err := imageSize(path)
		if err != nil {
			continue
		}
		sumW += float64(max(w, profile.MinSize))
		sumH += float64(max(h, profile.MinSize))
		n++
	}
	if n == 0 {
		return 0
	}

	avgW, avgH := sumW/float64(n), sumH/float64(n)
	return avgW * avgH * float64(profile.Channels) * float64(profile.BytesPerValue)
}

// imageSize reads only as much of the file as the decoder needs for its header.
func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
