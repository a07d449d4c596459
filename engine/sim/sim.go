// Package sim provides an in-process engine that simulates render progress
// against a clock and writes a small placeholder image on save. It is used
// for dry runs and tests.
package sim

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/achilleasa/framebatch/engine"
	"github.com/achilleasa/framebatch/log"
	"github.com/achilleasa/framebatch/props"
	"github.com/twmb/murmur3"
	"k8s.io/utils/clock"
)

var (
	ErrAlreadyStarted = errors.New("sim engine: session already started")
	ErrNotRunning     = errors.New("sim engine: session is not running")
	ErrStillRunning   = errors.New("sim engine: session must be stopped before saving")
)

type Options struct {
	// Directory where film outputs are written.
	OutputDir string

	// Simulated time per rendering pass; one sample per pixel is added
	// per pass.
	PassDuration time.Duration

	// Width and height of the written placeholder image.
	ImageSize int
}

type Engine struct {
	logger log.Logger
	clock  clock.PassiveClock
	opts   Options
}

// Create a new simulated engine.
func New(clk clock.PassiveClock, opts Options) *Engine {
	if opts.PassDuration <= 0 {
		opts.PassDuration = 100 * time.Millisecond
	}
	if opts.ImageSize <= 0 {
		opts.ImageSize = 32
	}
	return &Engine{
		logger: log.New("sim engine"),
		clock:  clk,
		opts:   opts,
	}
}

func (e *Engine) ParseDescription(path string) (*props.Properties, *props.Properties, error) {
	return engine.ParseDescriptionFile(path)
}

func (e *Engine) ParseConfiguration(text string) (*props.Properties, error) {
	cfg, err := props.Parse(text)
	if err != nil {
		return nil, engine.ParseError("parse configuration", "", err)
	}
	return cfg, nil
}

func (e *Engine) BuildScene(sceneProps *props.Properties) (engine.Scene, error) {
	if err := engine.ValidateScene(sceneProps); err != nil {
		return nil, err
	}
	return engine.NewScene(sceneProps), nil
}

func (e *Engine) CreateSession(cfg *props.Properties, sc engine.Scene) (engine.Session, error) {
	if err := engine.ValidateConfiguration(cfg); err != nil {
		return nil, err
	}
	filename, _ := engine.FilmOutputFilename(cfg)

	s := &session{
		engine:   e,
		scene:    sc,
		filename: filename,
	}

	if haltTime, err := cfg.Float("batch.halttime"); err == nil {
		s.haltTime = time.Duration(haltTime * float64(time.Second))
	}
	if haltSpp, err := cfg.Float("batch.haltspp"); err == nil {
		s.haltSpp = haltSpp
	}

	return s, nil
}

type session struct {
	sync.Mutex

	engine   *Engine
	scene    engine.Scene
	filename string

	// Engine-side halt conditions; zero disables a condition.
	haltTime time.Duration
	haltSpp  float64

	startedAt time.Time
	running   bool
	stopped   bool
	stats     engine.Stats
}

func (s *session) Start() error {
	s.Lock()
	defer s.Unlock()

	if s.running || s.stopped {
		return engine.RuntimeError("start session", ErrAlreadyStarted)
	}
	s.startedAt = s.engine.clock.Now()
	s.running = true
	return nil
}

func (s *session) Poll() (engine.Stats, error) {
	s.Lock()
	defer s.Unlock()

	if !s.running {
		return s.stats, engine.RuntimeError("poll session", ErrNotRunning)
	}
	s.update()
	return s.stats, nil
}

// Recompute stats for the current clock time. Must be called while holding
// the session lock.
func (s *session) update() {
	elapsed := s.engine.clock.Since(s.startedAt)
	if s.haltTime > 0 && elapsed > s.haltTime {
		elapsed = s.haltTime
	}

	pass := int(elapsed / s.engine.opts.PassDuration)
	samples := float64(pass)
	if s.haltSpp > 0 && samples > s.haltSpp {
		samples = s.haltSpp
	}

	s.stats = engine.Stats{
		Elapsed:     elapsed,
		Pass:        pass,
		Samples:     samples,
		Convergence: 1.0 - 1.0/(1.0+samples),
		Done:        (s.haltTime > 0 && elapsed >= s.haltTime) || (s.haltSpp > 0 && samples >= s.haltSpp),
	}
}

func (s *session) Stop() error {
	s.Lock()
	defer s.Unlock()

	if !s.running {
		return engine.RuntimeError("stop session", ErrNotRunning)
	}
	s.update()
	s.running = false
	s.stopped = true
	return nil
}

func (s *session) SaveOutput() (string, error) {
	s.Lock()
	defer s.Unlock()

	if !s.stopped {
		return "", engine.RuntimeError("save output", ErrStillRunning)
	}

	path := filepath.Join(s.engine.opts.OutputDir, s.filename)
	f, err := os.Create(path)
	if err != nil {
		return "", engine.IOError("save output", path, err)
	}

	err = png.Encode(f, s.placeholder())
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", engine.IOError("save output", path, err)
	}

	s.engine.logger.Debugf("saved film output to %s (%s)", path, s.stats)
	return path, nil
}

// Generate an image whose colors depend on the scene contents and the
// number of accumulated samples.
func (s *session) placeholder() image.Image {
	hasher := murmur3.New64()
	hasher.Write([]byte(s.scene.Properties().String()))
	seed := hasher.Sum64()

	size := s.engine.opts.ImageSize
	brightness := uint8(255 * s.stats.Convergence)
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(seed>>16) ^ uint8(x*255/size),
				G: uint8(seed>>8) ^ uint8(y*255/size),
				B: uint8(seed) ^ brightness,
				A: 255,
			})
		}
	}
	return img
}
