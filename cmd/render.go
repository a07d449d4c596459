package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/achilleasa/framebatch/batch"
	"github.com/achilleasa/framebatch/config"
	"github.com/achilleasa/framebatch/engine"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
	"k8s.io/utils/clock"
)

// Render every frame of the job.
func RenderBatch(ctx *cli.Context) error {
	job, err := loadJob(ctx)
	if err != nil {
		return err
	}

	driver, err := newDriver(job)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := driver.Run(runCtx)
	if report != nil && len(report.Failed()) != 0 {
		var buf bytes.Buffer
		report.Table(&buf)
		logger.Warningf("failed frames\n%s", buf.String())
	}
	if err != nil {
		return err
	}

	if report.Aborted || len(report.Failed()) != 0 {
		return cli.NewExitError(fmt.Sprintf("%d of %d frames failed", len(report.Failed()), len(report.Results)), 1)
	}
	return nil
}

// Render a single frame of the job.
func RenderFrame(ctx *cli.Context) error {
	job, err := loadJob(ctx)
	if err != nil {
		return err
	}

	frame, err := frameArg(ctx, job)
	if err != nil {
		return err
	}

	driver, err := newDriver(job)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(job.Output.Dir, 0755); err != nil {
		return engine.IOError("create output dir", job.Output.Dir, err)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := driver.RenderFrame(runCtx, frame)
	if res.Err != nil {
		return res.Err
	}

	displayFrameStats(res)
	return nil
}

func newDriver(job *config.Job) (*batch.Driver, error) {
	clk := clock.RealClock{}
	eng, err := newEngine(job, clk)
	if err != nil {
		return nil, err
	}
	if err = ensureDir(job.Template.WorkingPath); err != nil {
		return nil, engine.IOError("create working dir", job.Template.WorkingPath, err)
	}
	return batch.NewDriverFromJob(job, eng, clk, os.Stdout)
}

func displayFrameStats(res batch.FrameResult) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frame", "Output", "Polls", "Halt reason", "Engine stats", "Render time"})
	table.Append([]string{
		fmt.Sprintf("%d", res.Index),
		res.Output,
		fmt.Sprintf("%d", res.Stats.Polls),
		string(res.Stats.HaltReason),
		res.Stats.Last.String(),
		res.Stats.RenderTime.String(),
	})
	table.SetFooter([]string{"", "", "", "", "TOTAL", res.Duration.String()})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}
