package cmd

import (
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/dejaview/internal/progress"
)

// newStageBar creates a 0-100 bar on stderr and returns a sink feeding it.
func newStageBar(description string) (*progressbar.ProgressBar, progress.Sink) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionOnCompletion(func() { _, _ = os.Stderr.WriteString("\n") }),
	)
	return bar, func(percent int) { _ = bar.Set(percent) }
}

// newSpinner is used for stages whose total is not known up front.
func newSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() { _, _ = os.Stderr.WriteString("\n") }),
	)
}
