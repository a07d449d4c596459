package cmd

import (
	"fmt"

	"github.com/achilleasa/framebatch/output"
	"github.com/achilleasa/framebatch/scene"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// List the frames of the job with their substitution value and
// destination.
func PlanBatch(ctx *cli.Context) error {
	job, err := loadJob(ctx)
	if err != nil {
		return err
	}

	var pending int
	table := tablewriter.NewWriter(ctx.App.Writer)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frame", "Parameter", "Destination", "Status"})
	for frame := job.Frames.First; frame < job.Frames.Total; frame++ {
		status := "pending"
		if job.Output.Resume && output.Exists(job.Output.Dir, job.Output.Prefix, frame) {
			status = "skip (exists)"
		} else {
			pending++
		}

		table.Append([]string{
			fmt.Sprintf("%d", frame),
			scene.FrameParameter(frame),
			output.DestinationPath(job.Output.Dir, job.Output.Prefix, frame),
			status,
		})
	}
	table.SetFooter([]string{"", "", "TO RENDER", fmt.Sprintf("%d", pending)})

	table.Render()
	return nil
}
