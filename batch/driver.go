// Package batch renders a range of animation frames one after the other.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/achilleasa/framebatch/config"
	"github.com/achilleasa/framebatch/engine"
	"github.com/achilleasa/framebatch/log"
	"github.com/achilleasa/framebatch/output"
	"github.com/achilleasa/framebatch/props"
	"github.com/achilleasa/framebatch/renderer"
	"github.com/achilleasa/framebatch/scene"
	"k8s.io/utils/clock"
)

// Timing state threaded through a batch run.
type RunState struct {
	GlobalStart time.Time
	FrameStart  time.Time
	TotalFrames int
}

type Options struct {
	// Render frames in [First, Total).
	First int
	Total int

	OutputDir string
	Prefix    string

	// Skip frames whose destination already exists.
	Resume bool

	// Stop the batch after the first failed frame.
	AbortOnFailure bool

	// Render configuration shared by every frame.
	RenderConfiguration *props.Properties
}

// The Driver renders frames in increasing index order.
type Driver struct {
	logger     log.Logger
	template   *scene.Template
	controller *renderer.Controller
	clock      clock.PassiveClock
	progress   io.Writer
	opts       Options
}

// Create a new batch driver. Progress lines are written to progress; a nil
// writer disables them.
func NewDriver(tpl *scene.Template, ctrl *renderer.Controller, clk clock.PassiveClock, progress io.Writer, opts Options) *Driver {
	if progress == nil {
		progress = io.Discard
	}
	return &Driver{
		logger:     log.New("batch"),
		template:   tpl,
		controller: ctrl,
		clock:      clk,
		progress:   progress,
		opts:       opts,
	}
}

// Create a batch driver for a job. The render configuration is parsed
// once and reused for every frame.
func NewDriverFromJob(job *config.Job, eng engine.Engine, clk clock.Clock, progress io.Writer) (*Driver, error) {
	tpl, err := NewTemplate(job, eng, clk)
	if err != nil {
		return nil, err
	}

	cfgText, err := job.RenderConfiguration()
	if err != nil {
		return nil, engine.IOError("load render configuration", job.Render.ConfigPath, err)
	}

	cfg, err := eng.ParseConfiguration(cfgText)
	if err != nil {
		return nil, err
	}
	if err = engine.ValidateConfiguration(cfg); err != nil {
		return nil, err
	}

	rendererOpts := renderer.Options{
		PollInterval: job.Halting.PollInterval,
		Deadline:     job.Halting.Deadline,
	}
	if job.Halting.UseEngineBudget {
		rendererOpts.EngineBudget = renderer.EngineBudgetFromConfig(cfg)
	}

	return NewDriver(tpl, renderer.NewController(eng, clk, rendererOpts), clk, progress, Options{
		First:               job.Frames.First,
		Total:               job.Frames.Total,
		OutputDir:           job.Output.Dir,
		Prefix:              job.Output.Prefix,
		Resume:              job.Output.Resume,
		AbortOnFailure:      job.Batch.OnFailure == config.OnFailureAbort,
		RenderConfiguration: cfg,
	}), nil
}

// Create the scene template for a job.
func NewTemplate(job *config.Job, eng engine.Engine, clk clock.PassiveClock) (*scene.Template, error) {
	static, err := job.StaticFragment()
	if err != nil {
		return nil, engine.IOError("load static fragment", job.Scene.StaticPath, err)
	}

	return scene.NewTemplate(eng, clk, scene.TemplateOptions{
		Path:            job.Template.Path,
		WorkingPath:     job.Template.WorkingPath,
		Marker:          job.Template.Marker,
		StaticFragment:  static,
		FragmentKeys:    job.Template.Fragments,
		MissingFragment: job.MissingFragmentPolicy(),
	}), nil
}

// Get the driver options.
func (d *Driver) Options() Options {
	return d.opts
}

// Render every frame of the batch. The returned error is only set when the
// batch could not run at all or ctx was cancelled; per-frame failures are
// recorded in the report.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	if err := os.MkdirAll(d.opts.OutputDir, 0755); err != nil {
		return nil, engine.IOError("create output dir", d.opts.OutputDir, err)
	}

	state := RunState{
		GlobalStart: d.clock.Now(),
		TotalFrames: d.opts.Total,
	}
	report := &Report{}

	d.logger.Noticef("rendering frames %d to %d into %s", d.opts.First, d.opts.Total-1, d.opts.OutputDir)
	for frame := d.opts.First; frame < d.opts.Total; frame++ {
		if err := ctx.Err(); err != nil {
			report.Elapsed = d.clock.Since(state.GlobalStart)
			return report, err
		}

		res := d.renderFrame(ctx, frame, &state)
		report.Results = append(report.Results, res)

		if res.Err != nil && ctx.Err() != nil {
			report.Elapsed = d.clock.Since(state.GlobalStart)
			return report, ctx.Err()
		}

		fmt.Fprintf(d.progress, "%d/%d Done in %.3f | Total : %.3f.\r",
			frame+1, state.TotalFrames, res.Duration.Seconds(), d.clock.Since(state.GlobalStart).Seconds())

		if res.Err != nil {
			d.logger.Errorf("frame %d failed (%s): %v", frame, engine.KindOf(res.Err), res.Err)
			if d.opts.AbortOnFailure {
				report.Aborted = true
				break
			}
		}
	}

	report.Elapsed = d.clock.Since(state.GlobalStart)
	fmt.Fprintf(d.progress, "\nDone in %.3f seconds.\n", report.Elapsed.Seconds())

	if report.Aborted {
		d.logger.Warningf("batch aborted after %d frames", len(report.Results))
	} else {
		d.logger.Noticef("rendered %d frames (%d failed, %d skipped) in %s", len(report.Succeeded()), len(report.Failed()), len(report.Skipped()), report.Elapsed)
	}
	return report, nil
}

// Render a single frame through the batch pipeline.
func (d *Driver) RenderFrame(ctx context.Context, frame int) FrameResult {
	state := RunState{GlobalStart: d.clock.Now(), TotalFrames: d.opts.Total}
	return d.renderFrame(ctx, frame, &state)
}

func (d *Driver) renderFrame(ctx context.Context, frame int, state *RunState) FrameResult {
	state.FrameStart = d.clock.Now()
	res := FrameResult{
		Index:  frame,
		Output: output.DestinationPath(d.opts.OutputDir, d.opts.Prefix, frame),
	}

	if d.opts.Resume && output.Exists(d.opts.OutputDir, d.opts.Prefix, frame) {
		d.logger.Infof("frame %d: %s exists; skipping", frame, res.Output)
		res.Skipped = true
		return res
	}

	desc, err := d.template.Build(frame)
	if err != nil {
		res.Err = err
		res.Duration = d.clock.Since(state.FrameStart)
		return res
	}
	res.Digest = desc.Digest()

	artifact, stats, err := d.controller.Render(ctx, desc.Text, d.opts.RenderConfiguration)
	res.Stats = stats
	if err == nil {
		_, err = output.Relocate(artifact, d.opts.OutputDir, d.opts.Prefix, frame)
	}
	res.Err = err
	res.Duration = d.clock.Since(state.FrameStart)

	if err == nil {
		d.logger.Debugf("frame %d: %s after %d polls (%s)", frame, stats.HaltReason, stats.Polls, stats.Last)
	}
	return res
}
