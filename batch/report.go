package batch

import (
	"fmt"
	"io"
	"time"

	"github.com/achilleasa/framebatch/engine"
	"github.com/achilleasa/framebatch/renderer"
	"github.com/olekukonko/tablewriter"
)

// The outcome of rendering one frame.
type FrameResult struct {
	Index int

	// Destination of the frame image.
	Output string

	// Digest of the composed render description.
	Digest string

	// Wall time spent on the frame.
	Duration time.Duration

	Stats renderer.FrameStats
	Err   error

	// True if the frame was skipped because its output already existed.
	Skipped bool
}

type Report struct {
	Results []FrameResult
	Elapsed time.Duration

	// True if the batch stopped after a failed frame.
	Aborted bool
}

// Get the frames that failed.
func (r *Report) Failed() []FrameResult {
	return r.filter(func(res FrameResult) bool { return res.Err != nil })
}

// Get the frames that were rendered and relocated.
func (r *Report) Succeeded() []FrameResult {
	return r.filter(func(res FrameResult) bool { return res.Err == nil && !res.Skipped })
}

// Get the frames skipped on resume.
func (r *Report) Skipped() []FrameResult {
	return r.filter(func(res FrameResult) bool { return res.Skipped })
}

func (r *Report) filter(keep func(FrameResult) bool) []FrameResult {
	var out []FrameResult
	for _, res := range r.Results {
		if keep(res) {
			out = append(out, res)
		}
	}
	return out
}

// Write a table listing the failed frames.
func (r *Report) Table(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frame", "Error kind", "Error", "Time"})
	for _, res := range r.Failed() {
		table.Append([]string{
			fmt.Sprintf("%d", res.Index),
			engine.KindOf(res.Err).String(),
			res.Err.Error(),
			res.Duration.String(),
		})
	}
	table.SetFooter([]string{
		"",
		fmt.Sprintf("%d rendered", len(r.Succeeded())),
		fmt.Sprintf("%d failed, %d skipped", len(r.Failed()), len(r.Skipped())),
		r.Elapsed.String(),
	})
	table.Render()
}
