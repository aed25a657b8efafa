package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/dejaview/internal/config"
	"github.com/kozaktomas/dejaview/internal/fingerprint"
	"github.com/kozaktomas/dejaview/internal/model"
	"github.com/kozaktomas/dejaview/internal/pipeline"
	"github.com/kozaktomas/dejaview/internal/scanner"
)

// directoryEmbeddings is the outcome of scanning and embedding one root.
type directoryEmbeddings struct {
	Scan    *model.ScanResult
	Process *model.ProcessResult
}

// embedDirectory runs the scan and embedding stages, each with its own
// progress indicator on stderr.
func embedDirectory(ctx context.Context, cfg *config.Config, extractor fingerprint.Extractor, root string, log logrus.FieldLogger) (*directoryEmbeddings, error) {
	spinner := newSpinner("Scanning")
	scan, err := scanner.Scan(ctx, root, scanner.Options{Logger: log})
	if err != nil {
		_ = spinner.Exit()
		return nil, err
	}
	_ = spinner.Add(len(scan.Files))
	_ = spinner.Finish()

	log.WithFields(logrus.Fields{
		"files":        len(scan.Files),
		"skipped_dirs": scan.SkippedDirectoryCount,
		"io_errors":    scan.IOErrorCount,
	}).Info("Scan finished")

	_, sink := newStageBar("Embedding")
	p := pipeline.New(extractor, pipeline.OptionsFromConfig(cfg.Pipeline, log))
	result, err := p.Process(ctx, scan.Files, sink)
	if err != nil {
		return nil, err
	}

	return &directoryEmbeddings{Scan: scan, Process: result}, nil
}

// outputJSON writes data to stdout as indented JSON.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
