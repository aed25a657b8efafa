package fingerprint

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/dejaview/internal/config"
)

// Extractor turns raw image bytes into embedding vectors.
//
// Implementations are shared by reference across the pipeline and must be
// safe for concurrent use once initialized. Initialize runs its work at most
// once per instance; later calls return the first result.
type Extractor interface {
	// Initialize prepares the extractor. A failure is returned as
	// *model.ExtractorInitError and is fatal for the session.
	Initialize(ctx context.Context) error
	// RunBatch returns one vector per input image, in input order.
	RunBatch(ctx context.Context, images [][]byte) ([][]float32, error)
	// AvailableMemory reports free accelerator memory in bytes, 0 if unknown.
	AvailableMemory(ctx context.Context) uint64
	// Profile describes the input size the model works with.
	Profile() config.ModelProfile
}

// NewExtractor builds the extractor selected in cfg.
func NewExtractor(cfg *config.Config, logger logrus.FieldLogger) (Extractor, error) {
	switch cfg.Extractor {
	case config.ExtractorPHash, "":
		return NewPHashExtractor(cfg.GetModelProfile("phash")), nil
	case config.ExtractorRemote:
		return NewRemoteExtractor(cfg.Embedding.URL, cfg.GetModelProfile(cfg.Embedding.Model), logger), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q (expected %s or %s)",
			cfg.Extractor, config.ExtractorPHash, config.ExtractorRemote)
	}
}
