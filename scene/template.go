package scene

import (
	"os"
	"strconv"
	"strings"
	"github.com/achilleasa/framebatch/asset"
	"github.com/achilleasa/framebatch/engine"
	"github.com/achilleasa/framebatch/log"
	"github.com/achilleasa/framebatch/props"
	"k8s.io/utils/clock"
)

// Get the value substituted into the template for a frame: the decimal
// representation of the frame index.
func FrameParameter(frame int) string {
	return strconv.Itoa(frame)
}

// Copy the template (a local path or http/https URL) to destPath.
func LoadWorkingCopy(templatePath, destPath string) error {
	res, err := asset.NewResource(templatePath)
	if err != nil {
		return engine.IOError("load template", templatePath, err)
	}
	defer res.Close()

	if _, err = res.CopyTo(destPath); err != nil {
		return engine.IOError("write working copy", destPath, err)
	}
	return nil
}

// Replace every occurrence of marker in text with value.
func Substitute(text, marker, value string) string {
	if marker == "" {
		return text
	}
	return strings.ReplaceAll(text, marker, value)
}

// Regenerate the working file from the template and substitute value for
// every marker occurrence.
func PrepareWorkingFile(templatePath, workingPath, marker, value string) error {
	if err := LoadWorkingCopy(templatePath, workingPath); err != nil {
		return err
	}

	contents, err := os.ReadFile(workingPath)
	if err != nil {
		return engine.IOError("read working copy", workingPath, err)
	}

	err = os.WriteFile(workingPath, []byte(Substitute(string(contents), marker, value)), 0644)
	if err != nil {
		return engine.IOError("write working copy", workingPath, err)
	}
	return nil
}

// Run the engine's description parser on the working file.
func PreParse(eng engine.Engine, workingPath string) (Fragments, error) {
	sc, cfg, err := eng.ParseDescription(workingPath)
	if err != nil {
		return Fragments{}, err
	}
	return Fragments{Scene: sc, Config: cfg}, nil
}

type TemplateOptions struct {
	// Template source and the working copy rewritten for every frame.
	Path        string
	WorkingPath string

	// The placeholder replaced by the frame parameter.
	Marker string

	// Scene fragment appended to every frame description.
	StaticFragment string

	// Keys queried from the preliminary parse and re-embedded into the
	// final description.
	FragmentKeys []string

	// What to do when a queried key is not defined.
	MissingFragment MissingFragmentPolicy
}

// A scene template bound to an engine.
type Template struct {
	logger log.Logger
	engine engine.Engine
	clock  clock.PassiveClock
	opts   TemplateOptions
}

// Create a new template.
func NewTemplate(eng engine.Engine, clk clock.PassiveClock, opts TemplateOptions) *Template {
	return &Template{
		logger: log.New("scene template"),
		engine: eng,
		clock:  clk,
		opts:   opts,
	}
}

// Get the template options.
func (t *Template) Options() TemplateOptions {
	return t.opts
}

// Build the render description for a frame.
func (t *Template) Build(frame int) (*Description, error) {
	start := t.clock.Now()
	value := FrameParameter(frame)

	err := PrepareWorkingFile(t.opts.Path, t.opts.WorkingPath, t.opts.Marker, value)
	if err != nil {
		return nil, err
	}

	prelim, err := t.PreParse()
	if err != nil {
		return nil, err
	}

	desc, err := ComposeFinalDescription(t.opts.StaticFragment, prelim, t.opts.FragmentKeys, t.opts.MissingFragment)
	if err != nil {
		return nil, err
	}
	desc.Frame = frame
	desc.BuildTime = t.clock.Since(start)

	for _, key := range desc.Missing {
		t.logger.Warningf("frame %d: fragment %q is not defined; omitting it", frame, key)
	}
	t.logger.Debugf("built description for frame %d (%d bytes, digest %s) in %d ms", frame, len(desc.Text), desc.Digest(), desc.BuildTime.Milliseconds())

	return desc, nil
}

// Pre-parse the current working file.
func (t *Template) PreParse() (Fragments, error) {
	return PreParse(t.engine, t.opts.WorkingPath)
}

// Parse the render configuration text with the template's engine.
func (t *Template) ParseConfiguration(text string) (*props.Properties, error) {
	return t.engine.ParseConfiguration(text)
}
