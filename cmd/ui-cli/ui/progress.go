// Package ui provides terminal output helpers for the ui-cli operator
// tool: spinners, progress bars, and colored status lines.
package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Init applies the --no-color flag globally.
func Init(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// ProgressBar wraps a progressbar instance for deterministic progress
// display over a known item count.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar builds a progress bar with the given total and label.
func NewProgressBar(total int64, description string) *ProgressBar {
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("keys"),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
		progressbar.OptionFullWidth(),
	)
	return &ProgressBar{bar: bar}
}

// Add advances the bar by n.
func (p *ProgressBar) Add(n int) { _ = p.bar.Add(n) }

// Finish completes the bar.
func (p *ProgressBar) Finish() { _ = p.bar.Finish() }

// Spinner wraps a spinner instance for indeterminate waits (e.g. script
// reload, index creation).
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner builds a spinner with the given suffix message.
func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return &Spinner{s: s}
}

// Start starts the animation.
func (s *Spinner) Start() { s.s.Start() }

// Stop stops the animation.
func (s *Spinner) Stop() { s.s.Stop() }

// Success prints a green-check status line.
func Success(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

// Warn prints a yellow-warn status line.
func Warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, "%s %s\n", color.YellowString("⚠"), fmt.Sprintf(format, args...))
}

// Fail prints a red-cross status line to stderr.
func Fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("✗"), fmt.Sprintf(format, args...))
}

// MultiProgress renders several concurrent indeterminate counters side by
// side, for commands that walk more than one keyspace at once (e.g. the
// thought and knowledge-graph scans backfill-embeddings runs in parallel).
type MultiProgress struct {
	p *mpb.Progress
}

// NewMultiProgress builds a multi-bar display.
func NewMultiProgress() *MultiProgress {
	return &MultiProgress{p: mpb.New(mpb.WithWidth(50), mpb.WithOutput(os.Stderr))}
}

// AddCounter adds a named, total-less counter bar that only tracks items
// processed so far, incremented via the returned function.
func (m *MultiProgress) AddCounter(name string) (increment func(n int), done func()) {
	bar := m.p.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d processed", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 12})),
	)
	return func(n int) { bar.SetTotal(bar.Current()+int64(n), false); bar.IncrBy(n) },
		func() { bar.SetTotal(bar.Current(), true) }
}

// Wait blocks until every bar added to m has completed.
func (m *MultiProgress) Wait() { m.p.Wait() }

// Section prints an underlined section header.
func Section(title string) {
	fmt.Fprintf(os.Stdout, "\n%s\n", color.CyanString(title))
	underline := ""
	for range title {
		underline += "-"
	}
	fmt.Fprintf(os.Stdout, "%s\n", underline)
}
