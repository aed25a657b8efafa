package fingerprint

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/kozaktomas/dejaview/internal/config"
)

// dctSize is the side of the grayscale thumbnail the DCT runs on.
const dctSize = 32

// hashBits is the length of the perceptual hash and of the resulting vector.
const hashBits = 64

// PHashExtractor computes embeddings in-process from a DCT perceptual hash.
// Each hash bit becomes +1 or -1, so the cosine similarity of two vectors is
// 1 - 2*hamming/64. It needs no accelerator and reports memory as unknown.
type PHashExtractor struct {
	profile config.ModelProfile

	once     sync.Once
	cosTable [][]float64
}

// NewPHashExtractor creates a new perceptual hash extractor
func NewPHashExtractor(profile config.ModelProfile) *PHashExtractor {
	if profile.Name == "" {
		profile.Name = config.ExtractorPHash
	}
	if profile.Dim == 0 {
		profile.Dim = hashBits
	}
	return &PHashExtractor{profile: profile}
}

// Initialize precomputes the DCT cosine table.
func (e *PHashExtractor) Initialize(_ context.Context) error {
	e.once.Do(func() {
		e.cosTable = make([][]float64, dctSize)
		for i := range e.cosTable {
			e.cosTable[i] = make([]float64, dctSize)
			for j := range dctSize {
				e.cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(dctSize)))
			}
		}
	})
	return nil
}

// AvailableMemory is always unknown for the in-process extractor.
func (e *PHashExtractor) AvailableMemory(context.Context) uint64 {
	return 0
}

// Profile returns the model input profile.
func (e *PHashExtractor) Profile() config.ModelProfile {
	return e.profile
}

// RunBatch decodes each image (honoring EXIF orientation) and returns its
// hash vector. Any undecodable image fails the whole call.
func (e *PHashExtractor) RunBatch(ctx context.Context, images [][]byte) ([][]float32, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(images))
	for i, data := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image %d: %w", i, err)
		}
		vectors[i] = hashVector(e.computePHash(img))
	}
	return vectors, nil
}

// hashVector maps each bit of hash, most significant first, to +1 or -1.
func hashVector(hash uint64) []float32 {
	v := make([]float32, hashBits)
	for i := range hashBits {
		if hash&(1<<(hashBits-1-i)) != 0 {
			v[i] = 1
		} else {
			v[i] = -1
		}
	}
	return v
}

// computePHash computes a 64-bit perceptual hash using DCT.
func (e *PHashExtractor) computePHash(img image.Image) uint64 {
	resized := resizeImage(img, dctSize, dctSize)
	gray := toGrayscale(resized)
	dct := computeDCT(gray, e.cosTable)

	// Top-left 8x8 low frequencies, DC component (0,0) excluded.
	lowFreq := make([]float64, hashBits)
	idx := 0
	for u := range 8 {
		for v := range 8 {
			if u == 0 && v == 0 {
				continue
			}
			lowFreq[idx] = dct[u][v]
			idx++
		}
	}
	// One slot is left by the skipped DC term.
	lowFreq[idx] = dct[8][0]

	median := computeMedian(lowFreq)

	var hash uint64
	for i := range hashBits {
		if lowFreq[i] > median {
			hash |= 1 << (hashBits - 1 - i)
		}
	}
	return hash
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// ResizeImage resizes an image to fit within maxSize while keeping aspect ratio.
// Returns JPEG-encoded bytes, or the input unchanged if it already fits.
func ResizeImage(data []byte, maxSize int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= maxSize && cfg.Height <= maxSize {
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	resized := imaging.Fit(img, maxSize, maxSize, imaging.Linear)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}

	return gray
}

// computeDCT computes the 2D DCT-II of a square grayscale image using a
// precomputed cosine table of the same size.
func computeDCT(gray [][]float64, cosTable [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	for u := range size {
		for v := range size {
			var sum float64
			for x := range size {
				for y := range size {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}

	return dct
}

// computeMedian returns the median value from a slice.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
