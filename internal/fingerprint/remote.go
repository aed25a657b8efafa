package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/dejaview/internal/config"
	"github.com/kozaktomas/dejaview/internal/model"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	// Images above this size are downscaled before upload; the model pads
	// to a few hundred pixels anyway.
	maxUploadSize = 1920
)

// RemoteExtractor computes embeddings on an embedding server that hosts
// the pretrained model (and owns the accelerator).
type RemoteExtractor struct {
	baseURL string
	profile config.ModelProfile
	client  *http.Client
	logger  logrus.FieldLogger

	initMu   sync.Mutex
	initDone bool
	initErr  error
}

// NewRemoteExtractor creates a new remote extractor
func NewRemoteExtractor(baseURL string, profile config.ModelProfile, logger logrus.FieldLogger) *RemoteExtractor {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RemoteExtractor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		profile: profile,
		client:  &http.Client{},
		logger:  logger,
	}
}

// healthResponse represents the response from the /health endpoint
type healthResponse struct {
	Status                string   `json:"status"`
	Model                 string   `json:"model"`
	Dim                   int      `json:"dim"`
	Accelerator           string   `json:"accelerator"`
	AcceleratorMemoryFree uint64   `json:"accelerator_memory_free"`
	Missing               []string `json:"missing"`
}

// batchResponse represents the response from the /embed/images endpoint
type batchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model"`
	Dim        int         `json:"dim"`
}

func (c *RemoteExtractor) health(ctx context.Context) (*healthResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	var h healthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return &h, resp.StatusCode, nil
}

// Initialize checks that the embedding server is up and has everything it
// needs to run the model. The first completed probe decides the outcome for
// the lifetime of the extractor. A probe cut short by ctx is not remembered,
// so a later call probes again.
func (c *RemoteExtractor) Initialize(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initDone {
		return c.initErr
	}
	err := c.probe(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	c.initDone, c.initErr = true, err
	return err
}

func (c *RemoteExtractor) probe(ctx context.Context) error {
	h, status, err := c.health(ctx)
	if err != nil {
		return &model.ExtractorInitError{
			Extractor: config.ExtractorRemote,
			Err:       fmt.Errorf("embedding server %s: %w", c.baseURL, err),
		}
	}
	if len(h.Missing) > 0 || status != http.StatusOK || h.Status != "ok" {
		return &model.ExtractorInitError{
			Extractor: config.ExtractorRemote,
			Missing:   h.Missing,
			Err:       fmt.Errorf("embedding server %s not ready (status %d, %q)", c.baseURL, status, h.Status),
		}
	}

	if h.Dim > 0 {
		c.profile.Dim = h.Dim
	}
	c.logger.WithFields(logrus.Fields{
		"url":         c.baseURL,
		"model":       h.Model,
		"dim":         h.Dim,
		"accelerator": h.Accelerator,
	}).Info("Embedding server ready")
	return nil
}

// AvailableMemory asks the server for free accelerator memory.
// Any failure is reported as 0 (unknown).
func (c *RemoteExtractor) AvailableMemory(ctx context.Context) uint64 {
	h, status, err := c.health(ctx)
	if err != nil || status != http.StatusOK {
		c.logger.WithError(err).WithField("status", status).Debug("Accelerator memory query failed")
		return 0
	}
	return h.AcceleratorMemoryFree
}

// Profile returns the model input profile.
func (c *RemoteExtractor) Profile() config.ModelProfile {
	return c.profile
}

// RunBatch uploads all images in one multipart request and returns their
// embeddings in the same order.
func (c *RemoteExtractor) RunBatch(ctx context.Context, images [][]byte) ([][]float32, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, nil
	}

	body, err := c.postMultipartImages(ctx, "/embed/images", images)
	if err != nil {
		return nil, err
	}

	var batchResp batchResponse
	if err := json.Unmarshal(body, &batchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(batchResp.Embeddings) != len(images) {
		return nil, fmt.Errorf("server returned %d embeddings for %d images", len(batchResp.Embeddings), len(images))
	}
	for i, emb := range batchResp.Embeddings {
		if len(emb) == 0 {
			return nil, fmt.Errorf("empty embedding returned for image %d", i)
		}
	}

	return batchResp.Embeddings, nil
}

// postMultipartImages constructs a multipart form with one "files" part per
// image and posts it to the given endpoint.
func (c *RemoteExtractor) postMultipartImages(ctx context.Context, endpoint string, images [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for i, data := range images {
		data, err := ResizeImage(data, maxUploadSize)
		if err != nil {
			return nil, err
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="image-%d"`, i))
		h.Set("Content-Type", detectMIMEType(data))
		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write image data: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "application/octet-stream"
}
