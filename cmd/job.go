package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/achilleasa/framebatch/config"
	"github.com/achilleasa/framebatch/engine"
	"github.com/achilleasa/framebatch/engine/console"
	"github.com/achilleasa/framebatch/engine/sim"
	"github.com/urfave/cli"
	"k8s.io/utils/clock"
)

// Flags that override job file values.
var JobFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "frames",
		Usage: "total number of frames",
	},
	cli.IntFlag{
		Name:  "first",
		Usage: "index of the first frame to render",
	},
	cli.DurationFlag{
		Name:  "deadline",
		Usage: "wall-clock render time per frame",
	},
	cli.DurationFlag{
		Name:  "poll",
		Usage: "interval between render statistics polls",
	},
	cli.StringFlag{
		Name:  "prefix",
		Usage: "filename prefix for frame images",
	},
	cli.StringFlag{
		Name:  "out-dir",
		Usage: "directory for frame images",
	},
	cli.StringFlag{
		Name:  "engine",
		Usage: "rendering engine backend (console or sim)",
	},
	cli.BoolFlag{
		Name:  "resume",
		Usage: "skip frames whose image already exists",
	},
	cli.StringFlag{
		Name:  "on-failure",
		Usage: "what to do when a frame fails (continue or abort)",
	},
}

// Load the job file selected by the global flags, apply command flag
// overrides and validate the result. Logging is configured from the job.
func loadJob(ctx *cli.Context) (*config.Job, error) {
	job, err := config.NewLoader(config.LoadOptions{
		ConfigPath:    ctx.GlobalString("config"),
		OverridesPath: ctx.GlobalString("overrides"),
	}).Load()
	if err != nil {
		setupLogging(ctx, nil)
		return nil, err
	}

	if ctx.IsSet("frames") {
		job.Frames.Total = ctx.Int("frames")
	}
	if ctx.IsSet("first") {
		job.Frames.First = ctx.Int("first")
	}
	if ctx.IsSet("deadline") {
		job.Halting.Deadline = ctx.Duration("deadline")
	}
	if ctx.IsSet("poll") {
		job.Halting.PollInterval = ctx.Duration("poll")
	}
	if ctx.IsSet("prefix") {
		job.Output.Prefix = ctx.String("prefix")
	}
	if ctx.IsSet("out-dir") {
		job.Output.Dir = ctx.String("out-dir")
	}
	if ctx.IsSet("engine") {
		job.Engine.Type = ctx.String("engine")
	}
	if ctx.IsSet("resume") {
		job.Output.Resume = ctx.Bool("resume")
	}
	if ctx.IsSet("on-failure") {
		job.Batch.OnFailure = ctx.String("on-failure")
	}

	setupLogging(ctx, job)
	if err = job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Create the engine backend selected by the job.
func newEngine(job *config.Job, clk clock.Clock) (engine.Engine, error) {
	switch job.Engine.Type {
	case config.EngineConsole:
		return console.New(clk, console.Options{
			Binary:    job.Engine.Console.Binary,
			Args:      job.Engine.Console.Args,
			WorkDir:   job.Engine.Console.WorkDir,
			Deadline:  job.Halting.Deadline,
			StopGrace: job.Engine.Console.StopGrace,
		}), nil
	case config.EngineSim:
		dir := job.Engine.Sim.OutputDir
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, engine.IOError("create sim output dir", dir, err)
		}
		return sim.New(clk, sim.Options{
			OutputDir:    dir,
			PassDuration: job.Engine.Sim.PassDuration,
			ImageSize:    job.Engine.Sim.ImageSize,
		}), nil
	}
	return nil, fmt.Errorf("unsupported engine type %q", job.Engine.Type)
}

// Parse the frame index argument.
func frameArg(ctx *cli.Context, job *config.Job) (int, error) {
	if ctx.NArg() != 1 {
		return 0, errors.New("expected a single frame index argument")
	}
	frame, err := strconv.Atoi(ctx.Args().First())
	if err != nil || frame < 0 {
		return 0, fmt.Errorf("invalid frame index %q", ctx.Args().First())
	}
	if frame >= job.Frames.Total {
		logger.Warningf("frame %d is outside the job range [0, %d)", frame, job.Frames.Total)
	}
	return frame, nil
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
