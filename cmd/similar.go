package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/dejaview/internal/config"
	"github.com/kozaktomas/dejaview/internal/fingerprint"
	"github.com/kozaktomas/dejaview/internal/index"
	"github.com/kozaktomas/dejaview/internal/model"
)

var similarCmd = &cobra.Command{
	Use:   "similar <image> <dir>",
	Short: "Find the images in a directory that look most like a given image",
	Long: `Embed every image under a directory, build an in-memory HNSW index and
list the nearest neighbours of the given image. The query image itself is
left out of the results. Nothing is stored between runs.

Examples:
  # Ten most similar images
  dejaview similar photo.jpg ~/Pictures

  # Only close matches
  dejaview similar photo.jpg ~/Pictures --threshold 0.95 --limit 50

  # Output as JSON
  dejaview similar photo.jpg ~/Pictures --json`,
	Args: cobra.ExactArgs(2),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().Int("limit", 10, "Maximum number of results")
	similarCmd.Flags().Float64("threshold", 0.8, "Minimum cosine similarity of a result")
	addEmbeddingFlags(similarCmd)
}

// SimilarOutput represents the JSON output structure for the similar command
type SimilarOutput struct {
	Source    string        `json:"source"`
	Root      string        `json:"root"`
	Threshold float64       `json:"threshold"`
	Results   []index.Match `json:"results"`
	Count     int           `json:"count"`
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	source, root := args[0], args[1]
	limit := mustGetInt(cmd, "limit")
	threshold := mustGetFloat64(cmd, "threshold")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	applyEmbeddingFlags(cmd, cfg)

	log := logrus.WithFields(logrus.Fields{
		"run":    uuid.NewString(),
		"root":   root,
		"source": source,
	})

	data, err := os.ReadFile(source)
	if err != nil {
		return &model.FileReadError{Path: source, Err: err}
	}

	extractor, err := fingerprint.NewExtractor(cfg, log)
	if err != nil {
		return err
	}

	emb, err := embedDirectory(ctx, cfg, extractor, root, log)
	if err != nil {
		return err
	}

	vectors, err := extractor.RunBatch(ctx, [][]byte{data})
	if err != nil {
		if ctx.Err() != nil {
			return model.ErrCancelled
		}
		return fmt.Errorf("failed to embed %s: %w", source, err)
	}
	if len(vectors) != 1 {
		return &model.ExtractorRuntimeError{BatchSize: 1, Err: fmt.Errorf("got %d vectors", len(vectors))}
	}

	idx := index.New()
	if err := idx.Build(emb.Process.Embeddings); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	log.WithField("indexed", idx.Len()).Debug("Index built")

	var results []index.Match
	if idx.Len() > 0 {
		// One extra result in case the source itself is part of the directory.
		matches, err := idx.Search(vectors[0], limit+1, threshold)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		results = withoutPath(matches, source)
		if len(results) > limit {
			results = results[:limit]
		}
	}

	if jsonOutput {
		if results == nil {
			results = []index.Match{}
		}
		return outputJSON(SimilarOutput{
			Source:    source,
			Root:      root,
			Threshold: threshold,
			Results:   results,
			Count:     len(results),
		})
	}

	if len(results) == 0 {
		fmt.Println("No similar images found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tDISTANCE\tSIMILARITY")
	fmt.Fprintln(w, "----\t--------\t----------")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.4f\t%.2f%%\n", r.Path, r.Distance, r.Similarity*100)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d results (%d images indexed)\n", len(results), idx.Len())
	return nil
}

// withoutPath drops the match that refers to the same file as path.
func withoutPath(matches []index.Match, path string) []index.Match {
	target, err := filepath.Abs(path)
	if err != nil {
		target = filepath.Clean(path)
	}

	out := make([]index.Match, 0, len(matches))
	for _, m := range matches {
		p, err := filepath.Abs(m.Path)
		if err != nil {
			p = filepath.Clean(m.Path)
		}
		if p == target {
			continue
		}
		out = append(out, m)
	}
	return out
}
