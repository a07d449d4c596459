package cmd

import (
	"os"

	"github.com/achilleasa/framebatch/batch"
	"github.com/achilleasa/framebatch/config"
	"github.com/achilleasa/framebatch/engine"
	"github.com/achilleasa/framebatch/scene"
	"github.com/urfave/cli"
	"k8s.io/utils/clock"
)

// Write the composed render description for a frame without rendering it.
func DescribeFrame(ctx *cli.Context) error {
	job, err := loadJob(ctx)
	if err != nil {
		return err
	}

	frame, err := frameArg(ctx, job)
	if err != nil {
		return err
	}

	tpl, err := newTemplate(job)
	if err != nil {
		return err
	}

	desc, err := tpl.Build(frame)
	if err != nil {
		return err
	}
	logger.Infof("frame %d description digest: %s", frame, desc.Digest())

	out := ctx.String("out")
	if out == "" {
		_, err = ctx.App.Writer.Write([]byte(desc.Text))
		return err
	}

	if err = ensureDir(out); err != nil {
		return engine.IOError("write description", out, err)
	}
	if err = os.WriteFile(out, []byte(desc.Text), 0644); err != nil {
		return engine.IOError("write description", out, err)
	}
	logger.Noticef("wrote frame %d description to %s", frame, out)
	return nil
}

func newTemplate(job *config.Job) (*scene.Template, error) {
	clk := clock.RealClock{}
	eng, err := newEngine(job, clk)
	if err != nil {
		return nil, err
	}
	if err = ensureDir(job.Template.WorkingPath); err != nil {
		return nil, engine.IOError("create working dir", job.Template.WorkingPath, err)
	}
	return batch.NewTemplate(job, eng, clk)
}
