package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/dejaview/internal/config"
	"github.com/kozaktomas/dejaview/internal/model"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeServer struct {
	health      healthResponse
	healthCode  int
	healthCalls atomic.Int32
	// embed returns the embedding for the i-th uploaded file.
	embed func(i int, data []byte) []float32
	drop  bool
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		f.healthCalls.Add(1)
		code := f.healthCode
		if code == 0 {
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(f.health)
	})
	mux.HandleFunc("/embed/images", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		files := r.MultipartForm.File["files"]
		resp := batchResponse{Model: f.health.Model, Dim: f.health.Dim}
		for i, fh := range files {
			file, err := fh.Open()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			data, _ := io.ReadAll(file)
			file.Close()
			resp.Embeddings = append(resp.Embeddings, f.embed(i, data))
		}
		if f.drop && len(resp.Embeddings) > 0 {
			resp.Embeddings = resp.Embeddings[1:]
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func readyServer() *fakeServer {
	return &fakeServer{
		health: healthResponse{
			Status:                "ok",
			Model:                 "mobilenet_v2",
			Dim:                   3,
			Accelerator:           "cuda:0",
			AcceleratorMemoryFree: 8 << 30,
		},
		embed: func(i int, _ []byte) []float32 { return []float32{float32(i), 1, 0} },
	}
}

func TestRemoteExtractorRunBatch(t *testing.T) {
	fake := readyServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := NewRemoteExtractor(srv.URL, config.ModelProfile{Name: "mobilenet_v2", MinSize: 224}, quietLogger())
	images := [][]byte{
		encodeJPEG(createTestImage(10, 10, color.White)),
		encodePNG(createTestImage(10, 10, color.Black)),
		encodeJPEG(createGradientImage(20, 20)),
	}

	vectors, err := e.RunBatch(context.Background(), images)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
	if e.Profile().Dim != 3 {
		t.Errorf("expected profile dim from server (3), got %d", e.Profile().Dim)
	}
}

func TestRemoteExtractorInitializeOnce(t *testing.T) {
	fake := readyServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := NewRemoteExtractor(srv.URL, config.ModelProfile{}, quietLogger())

	done := make(chan error, 10)
	for range 10 {
		go func() { done <- e.Initialize(context.Background()) }()
	}
	for range 10 {
		if err := <-done; err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
	}

	if calls := fake.healthCalls.Load(); calls != 1 {
		t.Errorf("expected exactly one health probe, got %d", calls)
	}
}

func TestRemoteExtractorMissingDependencies(t *testing.T) {
	fake := readyServer()
	fake.health.Status = "degraded"
	fake.health.Missing = []string{"libcudnn.so.8", "onnxruntime-gpu"}
	fake.healthCode = http.StatusServiceUnavailable
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := NewRemoteExtractor(srv.URL, config.ModelProfile{}, quietLogger())

	err := e.Initialize(context.Background())
	var initErr *model.ExtractorInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected ExtractorInitError, got %v", err)
	}
	if len(initErr.Missing) != 2 {
		t.Errorf("expected 2 missing components, got %v", initErr.Missing)
	}
	if !strings.Contains(err.Error(), "libcudnn.so.8") {
		t.Errorf("error should name the missing component: %v", err)
	}

	// The failure sticks: RunBatch reports it without another probe.
	if _, err := e.RunBatch(context.Background(), [][]byte{{1}}); !errors.As(err, &initErr) {
		t.Errorf("RunBatch should return the init error, got %v", err)
	}
	if calls := fake.healthCalls.Load(); calls != 1 {
		t.Errorf("expected one probe, got %d", calls)
	}
}

func TestRemoteExtractorCancelledProbeNotCached(t *testing.T) {
	fake := readyServer()
	probing := make(chan struct{})
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.Handle("/", fake.handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(probing)
			<-r.Context().Done()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fake.health)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewRemoteExtractor(srv.URL, config.ModelProfile{}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-probing
		cancel()
	}()
	if err := e.Initialize(ctx); err == nil {
		t.Fatal("expected an error from an interrupted probe")
	}

	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize after a cancelled probe failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected two health probes, got %d", got)
	}
}

func TestRemoteExtractorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := NewRemoteExtractor(url, config.ModelProfile{}, quietLogger())

	var initErr *model.ExtractorInitError
	if err := e.Initialize(context.Background()); !errors.As(err, &initErr) {
		t.Fatalf("expected ExtractorInitError, got %v", err)
	}
	if mem := e.AvailableMemory(context.Background()); mem != 0 {
		t.Errorf("AvailableMemory = %d; want 0 when unreachable", mem)
	}
}

func TestRemoteExtractorAvailableMemory(t *testing.T) {
	fake := readyServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := NewRemoteExtractor(srv.URL, config.ModelProfile{}, quietLogger())
	if mem := e.AvailableMemory(context.Background()); mem != 8<<30 {
		t.Errorf("AvailableMemory = %d; want %d", mem, uint64(8<<30))
	}
}

func TestRemoteExtractorCountMismatch(t *testing.T) {
	fake := readyServer()
	fake.drop = true
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := NewRemoteExtractor(srv.URL, config.ModelProfile{}, quietLogger())
	images := [][]byte{
		encodeJPEG(createTestImage(10, 10, color.White)),
		encodeJPEG(createTestImage(10, 10, color.Black)),
	}

	if _, err := e.RunBatch(context.Background(), images); err == nil {
		t.Error("expected error when server returns fewer embeddings than images")
	}
}

func TestRemoteExtractorEmptyBatch(t *testing.T) {
	fake := readyServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e := NewRemoteExtractor(srv.URL, config.ModelProfile{}, quietLogger())
	vectors, err := e.RunBatch(context.Background(), nil)
	if err != nil || len(vectors) != 0 {
		t.Errorf("expected empty result, got %v, %v", vectors, err)
	}
}

func TestNewRemoteExtractorDefaults(t *testing.T) {
	e := NewRemoteExtractor("", config.ModelProfile{}, nil)
	if e.baseURL != defaultEmbeddingURL {
		t.Errorf("baseURL = %s; want %s", e.baseURL, defaultEmbeddingURL)
	}

	e = NewRemoteExtractor("http://gpu:8000/", config.ModelProfile{}, nil)
	if e.baseURL != "http://gpu:8000" {
		t.Errorf("trailing slash not trimmed: %s", e.baseURL)
	}
}
