package engine

import (
	"fmt"
	"time"

	"github.com/achilleasa/framebatch/props"
)

// An engine-native scene object built from a scene property set.
type Scene interface {
	// Get the scene properties the object was built from.
	Properties() *props.Properties
}

// Statistics sampled from a running session.
type Stats struct {
	// Time spent rendering as reported by the engine.
	Elapsed time.Duration

	// Completed passes and samples per pixel.
	Pass    int
	Samples float64

	// Convergence in the [0, 1] range.
	Convergence float64

	// True if the engine reached one of its own halt conditions.
	Done bool
}

func (s Stats) String() string {
	return fmt.Sprintf("elapsed %s, pass %d, %.1f spp, %.1f%% converged", s.Elapsed, s.Pass, s.Samples, s.Convergence*100)
}

// A render session bound to one (scene, configuration) pair. Sessions are
// single use.
type Session interface {
	// Start rendering.
	Start() error

	// Refresh and return session statistics.
	Poll() (Stats, error)

	// Halt rendering.
	Stop() error

	// Persist the rendered film and return the path to the written artifact.
	SaveOutput() (string, error)
}

// The Engine interface is implemented by all rendering engine backends.
type Engine interface {
	// Parse a scene description file into its scene and configuration
	// property sets.
	ParseDescription(path string) (scene, cfg *props.Properties, err error)

	// Parse a render configuration property string.
	ParseConfiguration(text string) (*props.Properties, error)

	// Build an engine-native scene from a scene property set.
	BuildScene(sceneProps *props.Properties) (Scene, error)

	// Create a session for the supplied configuration and scene.
	CreateSession(cfg *props.Properties, sc Scene) (Session, error)
}
