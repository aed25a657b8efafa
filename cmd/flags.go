package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/dejaview/internal/config"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetFloat64 gets a float64 flag value or panics if the flag doesn't exist.
func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	val, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// addEmbeddingFlags registers the flags shared by every command that embeds a directory.
func addEmbeddingFlags(cmd *cobra.Command) {
	cmd.Flags().Int("batch-size", 0, "Images per extractor call (0 = estimate from accelerator memory)")
	cmd.Flags().String("extractor", "", "Feature extractor: phash or remote (default DEJAVIEW_EXTRACTOR or phash)")
	cmd.Flags().Bool("json", false, "Output as JSON")
}

// applyEmbeddingFlags overrides cfg with the flags the user set explicitly.
func applyEmbeddingFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("batch-size") {
		cfg.Pipeline.BatchSize = mustGetInt(cmd, "batch-size")
	}
	if cmd.Flags().Changed("extractor") {
		cfg.Extractor = mustGetString(cmd, "extractor")
	}
}
