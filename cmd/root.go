package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/dejaview/internal/config"
	"github.com/kozaktomas/dejaview/internal/model"
)

// exitCancelled is the conventional exit status after SIGINT.
const exitCancelled = 130

var rootCmd = &cobra.Command{
	Use:   "dejaview",
	Short: "Find similar and duplicate images in a directory tree",
	Long: `DejaView scans a directory tree for PNG and JPEG images, computes an
embedding for each one and groups images whose embeddings are close under
cosine similarity.

Embeddings come from an in-process perceptual hash (default) or from a remote
embedding server running the MobileNetV2 model.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err == nil {
		return
	}
	if errors.Is(err, model.ErrCancelled) {
		fmt.Fprintln(os.Stderr, "cancelled")
		os.Exit(exitCancelled)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default LOG_LEVEL or info)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// setupLogging configures the standard logrus logger. Logs go to stderr so
// that --json output on stdout stays parseable.
func setupLogging(cmd *cobra.Command, _ []string) error {
	level := mustGetString(cmd, "log-level")
	if level == "" {
		level = config.Load().LogLevel
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
