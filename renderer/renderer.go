package renderer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/achilleasa/framebatch/engine"
	"github.com/achilleasa/framebatch/log"
	"github.com/achilleasa/framebatch/props"
	"k8s.io/utils/clock"
)

type State uint8

const (
	Created State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// The Controller drives render sessions on an engine. At most one session
// may be live at any time.
type Controller struct {
	sync.Mutex

	logger log.Logger
	engine engine.Engine
	clock  clock.Clock
	opts   Options

	live *Session
}

// Create a new controller.
func NewController(eng engine.Engine, clk clock.Clock, opts Options) *Controller {
	return &Controller{
		logger: log.New("renderer"),
		engine: eng,
		clock:  clk,
		opts:   opts,
	}
}

// Get the controller options.
func (c *Controller) Options() Options {
	return c.opts
}

// Build a scene from a description string and create a session for it. The
// session stays live until it is closed.
func (c *Controller) Create(description string, cfg *props.Properties) (*Session, error) {
	c.Lock()
	defer c.Unlock()

	if c.live != nil {
		return nil, ErrSessionLive
	}

	sceneProps, err := props.Parse(description)
	if err != nil {
		return nil, engine.ParseError("parse description", "", err)
	}

	sc, err := c.engine.BuildScene(sceneProps)
	if err != nil {
		return nil, err
	}

	es, err := c.engine.CreateSession(cfg, sc)
	if err != nil {
		return nil, err
	}

	c.live = &Session{
		controller: c,
		session:    es,
		state:      Created,
	}
	return c.live, nil
}

func (c *Controller) release(s *Session) {
	c.Lock()
	if c.live == s {
		c.live = nil
	}
	c.Unlock()
}

// Render a frame description and return the path to the engine artifact.
// The session is always stopped and closed before returning.
func (c *Controller) Render(ctx context.Context, description string, cfg *props.Properties) (string, FrameStats, error) {
	sess, err := c.Create(description, cfg)
	if err != nil {
		return "", FrameStats{}, err
	}
	defer sess.Close()

	if err = sess.Start(); err != nil {
		return "", FrameStats{}, err
	}

	stats, err := sess.RunUntilDeadline(ctx)
	if err != nil {
		return "", stats, err
	}

	artifact, err := sess.RetrieveOutput()
	return artifact, stats, err
}

// A render session with a Created -> Running -> Stopped lifecycle.
type Session struct {
	sync.Mutex

	controller *Controller
	session    engine.Session

	state     State
	closed    bool
	startedAt time.Time
	stoppedAt time.Time
}

// Get the session state.
func (s *Session) State() State {
	s.Lock()
	defer s.Unlock()
	return s.state
}

// Start rendering. If the engine fails to start the session moves to the
// stopped state.
func (s *Session) Start() error {
	s.Lock()
	defer s.Unlock()

	switch {
	case s.closed:
		return ErrSessionClosed
	case s.state == Running:
		return ErrAlreadyStarted
	case s.state == Stopped:
		return ErrAlreadyStopped
	}

	now := s.controller.clock.Now()
	if err := s.session.Start(); err != nil {
		s.state = Stopped
		s.startedAt, s.stoppedAt = now, now
		return err
	}

	s.state = Running
	s.startedAt = now
	return nil
}

// Poll the engine for statistics.
func (s *Session) Poll() (engine.Stats, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.checkRunning(); err != nil {
		return engine.Stats{}, err
	}
	return s.session.Poll()
}

// Halt rendering.
func (s *Session) Stop() error {
	s.Lock()
	defer s.Unlock()

	if err := s.checkRunning(); err != nil {
		return err
	}

	err := s.session.Stop()
	s.state = Stopped
	s.stoppedAt = s.controller.clock.Now()
	return err
}

func (s *Session) checkRunning() error {
	switch {
	case s.closed:
		return ErrSessionClosed
	case s.state == Created:
		return ErrNotStarted
	case s.state == Stopped:
		return ErrAlreadyStopped
	}
	return nil
}

// Ask the engine to persist the rendered film and return the path to the
// written artifact.
func (s *Session) RetrieveOutput() (string, error) {
	s.Lock()
	defer s.Unlock()

	switch {
	case s.closed:
		return "", ErrSessionClosed
	case s.state != Stopped:
		return "", ErrNotStopped
	}
	return s.session.SaveOutput()
}

// Get the time between session start and stop.
func (s *Session) RenderTime() time.Duration {
	s.Lock()
	defer s.Unlock()

	switch s.state {
	case Running:
		return s.controller.clock.Since(s.startedAt)
	case Stopped:
		return s.stoppedAt.Sub(s.startedAt)
	}
	return 0
}

// Stop the session if it is still running and release it so the
// controller can create a new one. Close is idempotent.
func (s *Session) Close() error {
	var err error
	if s.State() == Running {
		err = s.Stop()
	}

	s.Lock()
	s.closed = true
	s.Unlock()

	s.controller.release(s)
	return err
}

// Poll the running session every PollInterval and stop it once the
// effective deadline elapses, the engine reports it is done or ctx is
// cancelled. Stop is called even if polling fails.
func (s *Session) RunUntilDeadline(ctx context.Context) (FrameStats, error) {
	var (
		stats    FrameStats
		pollErr  error
		opts     = s.controller.opts
		deadline = opts.EffectiveDeadline()
		logger   = s.controller.logger
		clk      = s.controller.clock
	)

	if state := s.State(); state != Running {
		if state == Created {
			return stats, ErrNotStarted
		}
		return stats, ErrAlreadyStopped
	}

	s.Lock()
	startedAt := s.startedAt
	s.Unlock()

	for stats.HaltReason == "" {
		if ctx.Err() != nil {
			stats.HaltReason = HaltCancelled
			break
		}

		clk.Sleep(opts.PollInterval)

		last, err := s.Poll()
		if err != nil {
			pollErr = err
			break
		}
		stats.Polls++
		stats.Last = last
		logger.Debugf("poll %d: %s", stats.Polls, last)

		switch {
		case deadline > 0 && clk.Since(startedAt) >= deadline:
			stats.HaltReason = HaltDeadline
		case last.Done:
			stats.HaltReason = HaltEngine
		case ctx.Err() != nil:
			stats.HaltReason = HaltCancelled
		}
	}

	stopErr := s.Stop()
	stats.RenderTime = s.RenderTime()

	if pollErr != nil {
		logger.Errorf("polling failed after %d polls: %v", stats.Polls, pollErr)
		return stats, pollErr
	}
	if stopErr != nil && !errors.Is(stopErr, ErrAlreadyStopped) {
		return stats, stopErr
	}

	logger.Infof("session halted (%s) after %d polls; render time %s", stats.HaltReason, stats.Polls, stats.RenderTime)
	if stats.HaltReason == HaltCancelled {
		return stats, ctx.Err()
	}
	return stats, nil
}
