// Package config loads batch render jobs from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/achilleasa/framebatch/scene"
)

var ErrInvalidJob = errors.New("config: invalid job")

const (
	OnFailureContinue = "continue"
	OnFailureAbort    = "abort"

	EngineConsole = "console"
	EngineSim     = "sim"
)

type Frames struct {
	Total int `yaml:"total"`
	First int `yaml:"first"`
}

type Template struct {
	Path            string   `yaml:"path"`
	WorkingPath     string   `yaml:"working_path"`
	Marker          string   `yaml:"marker"`
	Fragments       []string `yaml:"fragments"`
	MissingFragment string   `yaml:"missing_fragment"`
}

type Scene struct {
	// Empty selects the embedded static fragment.
	StaticPath string `yaml:"static_path"`
}

type Render struct {
	// Empty selects the embedded render configuration.
	ConfigPath string `yaml:"config_path"`
}

type Halting struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	Deadline        time.Duration `yaml:"deadline"`
	UseEngineBudget bool          `yaml:"use_engine_budget"`
}

type Output struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
	Resume bool   `yaml:"resume"`
}

type Batch struct {
	OnFailure string `yaml:"on_failure"`
}

type Console struct {
	Binary    string        `yaml:"binary"`
	Args      []string      `yaml:"args"`
	WorkDir   string        `yaml:"work_dir"`
	StopGrace time.Duration `yaml:"stop_grace"`
}

type Sim struct {
	OutputDir    string        `yaml:"output_dir"`
	PassDuration time.Duration `yaml:"pass_duration"`
	ImageSize    int           `yaml:"image_size"`
}

type Engine struct {
	Type    string  `yaml:"type"`
	Console Console `yaml:"console"`
	Sim     Sim     `yaml:"sim"`
}

type Log struct {
	Level string `yaml:"level"`
}

// A batch render job.
type Job struct {
	Frames   Frames   `yaml:"frames"`
	Template Template `yaml:"template"`
	Scene    Scene    `yaml:"scene"`
	Render   Render   `yaml:"render"`
	Halting  Halting  `yaml:"halting"`
	Output   Output   `yaml:"output"`
	Batch    Batch    `yaml:"batch"`
	Engine   Engine   `yaml:"engine"`
	Log      Log      `yaml:"log"`
}

// Get the default job: 500 frames of the water animation.
func Default() *Job {
	return &Job{
		Frames: Frames{Total: 500},
		Template: Template{
			Path:            "./render/modele.scn",
			WorkingPath:     "./render/render.scn",
			Marker:          "$",
			Fragments:       append([]string(nil), scene.DefaultFragmentKeys...),
			MissingFragment: string(scene.FailOnMissing),
		},
		Halting: Halting{
			PollInterval:    500 * time.Millisecond,
			Deadline:        5 * time.Second,
			UseEngineBudget: true,
		},
		Output: Output{
			Dir:    "images",
			Prefix: "water",
		},
		Batch: Batch{OnFailure: OnFailureContinue},
		Engine: Engine{
			Type: EngineConsole,
			Console: Console{
				Binary:    "luxcoreconsole",
				Args:      []string{},
				WorkDir:   "./render/session",
				StopGrace: 10 * time.Second,
			},
			Sim: Sim{
				OutputDir:    "./render/session",
				PassDuration: 100 * time.Millisecond,
				ImageSize:    32,
			},
		},
		Log: Log{Level: "notice"},
	}
}

// Check the job for values the batch cannot run with.
func (j *Job) Validate() error {
	switch {
	case j.Frames.Total <= 0:
		return fmt.Errorf("%w: frames.total must be positive; got %d", ErrInvalidJob, j.Frames.Total)
	case j.Frames.First < 0 || j.Frames.First >= j.Frames.Total:
		return fmt.Errorf("%w: frames.first must be in [0, %d); got %d", ErrInvalidJob, j.Frames.Total, j.Frames.First)
	case len([]rune(j.Template.Marker)) != 1:
		return fmt.Errorf("%w: template.marker must be a single character; got %q", ErrInvalidJob, j.Template.Marker)
	case j.Template.Path == "" || j.Template.WorkingPath == "":
		return fmt.Errorf("%w: template.path and template.working_path are required", ErrInvalidJob)
	case j.Halting.PollInterval <= 0:
		return fmt.Errorf("%w: halting.poll_interval must be positive; got %s", ErrInvalidJob, j.Halting.PollInterval)
	case j.Halting.Deadline <= 0:
		return fmt.Errorf("%w: halting.deadline must be positive; got %s", ErrInvalidJob, j.Halting.Deadline)
	case j.Output.Prefix == "":
		return fmt.Errorf("%w: output.prefix is required", ErrInvalidJob)
	case j.Batch.OnFailure != OnFailureContinue && j.Batch.OnFailure != OnFailureAbort:
		return fmt.Errorf("%w: unknown batch.on_failure %q", ErrInvalidJob, j.Batch.OnFailure)
	case j.Engine.Type != EngineConsole && j.Engine.Type != EngineSim:
		return fmt.Errorf("%w: unknown engine.type %q", ErrInvalidJob, j.Engine.Type)
	}

	if _, err := scene.ParseMissingFragmentPolicy(j.Template.MissingFragment); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidJob, err)
	}
	return nil
}

// Get the missing fragment policy.
func (j *Job) MissingFragmentPolicy() scene.MissingFragmentPolicy {
	policy, _ := scene.ParseMissingFragmentPolicy(j.Template.MissingFragment)
	return policy
}

// Get the static scene fragment text.
func (j *Job) StaticFragment() (string, error) {
	return readOrDefault(j.Scene.StaticPath, scene.DefaultStaticFragment)
}

// Get the render configuration text.
func (j *Job) RenderConfiguration() (string, error) {
	return readOrDefault(j.Render.ConfigPath, scene.DefaultRenderConfiguration)
}

func readOrDefault(path, def string) (string, error) {
	if path == "" {
		return def, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return string(data), nil
}
