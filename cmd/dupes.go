package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/dejaview/internal/cluster"
	"github.com/kozaktomas/dejaview/internal/config"
	"github.com/kozaktomas/dejaview/internal/fingerprint"
	"github.com/kozaktomas/dejaview/internal/model"
)

var dupesCmd = &cobra.Command{
	Use:   "dupes <dir>",
	Short: "Find groups of similar or duplicate images",
	Long: `Scan a directory, compute an embedding for every image and print the
groups of images whose cosine similarity is at least the threshold.
Similarity is transitive: if A~B and B~C then A, B and C form one group.

Examples:
  # Find near duplicates with the default threshold (0.9)
  dejaview dupes ~/Pictures

  # Looser grouping
  dejaview dupes ~/Pictures --threshold 0.8

  # Use the remote embedding server with fixed batches
  dejaview dupes ~/Pictures --extractor remote --batch-size 32

  # Output as JSON
  dejaview dupes ~/Pictures --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDupes,
}

func init() {
	rootCmd.AddCommand(dupesCmd)

	dupesCmd.Flags().Float64("threshold", 0.9, "Minimum cosine similarity to link two images (default SIMILARITY_THRESHOLD or 0.9)")
	addEmbeddingFlags(dupesCmd)
}

// DupesOutput represents the JSON output structure for the dupes command
type DupesOutput struct {
	Root         string            `json:"root"`
	Threshold    float64           `json:"threshold"`
	Clusters     model.ClusterList `json:"clusters"`
	Count        int               `json:"count"`
	SkippedFiles int               `json:"skipped_files"`
	SkippedDirs  int               `json:"skipped_dirs"`
	IOErrors     int               `json:"io_errors"`
}

func runDupes(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	root := args[0]
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	applyEmbeddingFlags(cmd, cfg)
	threshold := cfg.Similarity.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = mustGetFloat64(cmd, "threshold")
	}

	log := logrus.WithFields(logrus.Fields{
		"run":  uuid.NewString(),
		"root": root,
	})

	extractor, err := fingerprint.NewExtractor(cfg, log)
	if err != nil {
		return err
	}

	emb, err := embedDirectory(ctx, cfg, extractor, root, log)
	if err != nil {
		return err
	}

	_, sink := newStageBar("Clustering")
	clusters, err := cluster.Cluster(ctx, emb.Process.Embeddings, threshold, sink)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"clusters":  len(clusters),
		"images":    clusters.ImageCount(),
		"threshold": threshold,
	}).Info("Clustering finished")

	if jsonOutput {
		return outputJSON(DupesOutput{
			Root:         root,
			Threshold:    threshold,
			Clusters:     clusters,
			Count:        len(clusters),
			SkippedFiles: emb.Process.SkippedFileCount,
			SkippedDirs:  emb.Scan.SkippedDirectoryCount,
			IOErrors:     emb.Scan.IOErrorCount,
		})
	}

	printClusterTable(clusters)
	fmt.Printf("\nTotal: %d groups, %d images (%d embedded, %d files skipped, %d directories skipped, %d I/O errors)\n",
		len(clusters), clusters.ImageCount(), len(emb.Process.Embeddings),
		emb.Process.SkippedFileCount, emb.Scan.SkippedDirectoryCount, emb.Scan.IOErrorCount)

	return nil
}

// printClusterTable prints one row per image, grouped by cluster.
func printClusterTable(clusters model.ClusterList) {
	if len(clusters) == 0 {
		fmt.Println("No similar images found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tSIZE\tPATH")
	fmt.Fprintln(w, "-----\t----\t----")
	for i, c := range clusters {
		for j, path := range c {
			if j == 0 {
				fmt.Fprintf(w, "%d\t%d\t%s\n", i+1, len(c), path)
				continue
			}
			fmt.Fprintf(w, "\t\t%s\n", path)
		}
	}
	w.Flush()
}
