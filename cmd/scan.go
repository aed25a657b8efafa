package cmd

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/dejaview/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "List the images found under a directory",
	Long: `Recursively list PNG and JPEG files under a directory.

Directories that cannot be read are counted and skipped.

Examples:
  # List images
  dejaview scan ~/Pictures

  # Output as JSON
  dejaview scan ~/Pictures --json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Bool("json", false, "Output as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	result, err := scanner.Scan(cmd.Context(), args[0], scanner.Options{Logger: logrus.StandardLogger()})
	if err != nil {
		return err
	}
	sort.Strings(result.Files)

	if jsonOutput {
		return outputJSON(result)
	}

	for _, f := range result.Files {
		fmt.Println(f)
	}
	fmt.Printf("\nTotal: %d images", len(result.Files))
	if result.SkippedDirectoryCount > 0 || result.IOErrorCount > 0 {
		fmt.Printf(" (%d directories skipped, %d I/O errors)", result.SkippedDirectoryCount, result.IOErrorCount)
	}
	fmt.Println()

	return nil
}
