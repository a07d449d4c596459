package renderer

import (
	"time"

	"github.com/achilleasa/framebatch/props"
)

type Options struct {
	// Time between two consecutive statistics polls.
	PollInterval time.Duration

	// Wall-clock limit enforced by the controller; zero disables it.
	Deadline time.Duration

	// Limit the engine enforces on its own (batch.halttime); zero
	// disables it.
	EngineBudget time.Duration
}

// Get the deadline after which a running session is stopped. When both
// halting tiers are set the shorter one wins. A zero value means the
// session only halts when the engine reports it is done.
func (o Options) EffectiveDeadline() time.Duration {
	switch {
	case o.Deadline <= 0:
		return max(o.EngineBudget, 0)
	case o.EngineBudget <= 0:
		return o.Deadline
	}
	return min(o.Deadline, o.EngineBudget)
}

// Read the engine halt time (batch.halttime, in seconds) from a render
// configuration. Missing or malformed values yield a zero budget.
func EngineBudgetFromConfig(cfg *props.Properties) time.Duration {
	if cfg == nil {
		return 0
	}
	seconds, err := cfg.Float("batch.halttime")
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
