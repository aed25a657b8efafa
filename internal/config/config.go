package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

// Extractor kinds.
const (
	ExtractorPHash  = "phash"
	ExtractorRemote = "remote"
)

type Config struct {
	Extractor  string // phash or remote, defaults to phash
	Embedding  EmbeddingConfig
	Pipeline   PipelineConfig
	Similarity SimilarityConfig
	LogLevel   string
	Models     ModelsConfig
}

type EmbeddingConfig struct {
	URL   string // defaults to http://localhost:8000
	Model string // defaults to mobilenet_v2
}

type PipelineConfig struct {
	BatchSize        int     // forced batch size, 0 = estimate from accelerator memory
	DefaultBatchSize int     // used when the estimate is not possible (default 100)
	ReadConcurrency  int     // parallel file reads per batch (default 16)
	ComputeWorkers   int     // dedicated extraction workers (default 1)
	MemoryFraction   float64 // share of free accelerator memory a batch may use (default 0.8)
}

type SimilarityConfig struct {
	Threshold float64 // cosine similarity needed to link two images (default 0.9)
}

type ModelsConfig struct {
	Models map[string]ModelProfile `yaml:"models"`
}

// ModelProfile describes the input an extractor model expects.
type ModelProfile struct {
	Name          string `yaml:"-"`
	MinSize       int    `yaml:"min_size"`
	Channels      int    `yaml:"channels"`
	BytesPerValue int    `yaml:"bytes_per_value"`
	Dim           int    `yaml:"dim"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// Embedded file, so this only happens if the build itself is broken.
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}
	for name, p := range models.Models {
		p.Name = name
		models.Models[name] = p
	}

	return &Config{
		Extractor: envString("DEJAVIEW_EXTRACTOR", ExtractorPHash),
		Embedding: EmbeddingConfig{
			URL:   os.Getenv("EMBEDDING_URL"),
			Model: envString("EMBEDDING_MODEL", "mobilenet_v2"),
		},
		Pipeline: PipelineConfig{
			BatchSize:        envInt("PIPELINE_BATCH_SIZE", 0),
			DefaultBatchSize: envInt("PIPELINE_DEFAULT_BATCH_SIZE", 100),
			ReadConcurrency:  envInt("PIPELINE_READ_CONCURRENCY", 16),
			ComputeWorkers:   envInt("PIPELINE_COMPUTE_WORKERS", 1),
			MemoryFraction:   envFloat("PIPELINE_MEMORY_FRACTION", 0.8),
		},
		Similarity: SimilarityConfig{
			Threshold: envFloat("SIMILARITY_THRESHOLD", 0.9),
		},
		LogLevel: envString("LOG_LEVEL", "info"),
		Models:   models,
	}
}

// GetModelProfile returns the profile for a model. Unknown models get the
// name set and zero requirements, which the pipeline treats as "unknown".
func (c *Config) GetModelProfile(modelName string) ModelProfile {
	if profile, ok := c.Models.Models[modelName]; ok {
		return profile
	}
	return ModelProfile{Name: modelName}
}
