package renderer

import (
	"time"

	"github.com/achilleasa/framebatch/engine"
)

// The reason a running session was stopped.
type HaltReason string

const (
	// The effective deadline elapsed.
	HaltDeadline HaltReason = "deadline"

	// The engine reached one of its own halt conditions.
	HaltEngine HaltReason = "engine"

	// The render context was cancelled.
	HaltCancelled HaltReason = "cancelled"
)

type FrameStats struct {
	// Number of statistics polls while the session was running.
	Polls int

	// Time between session start and stop as measured by the controller.
	RenderTime time.Duration

	// The last statistics snapshot reported by the engine.
	Last engine.Stats

	HaltReason HaltReason
}
