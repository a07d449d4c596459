// Package console drives an external engine binary (luxcoreconsole by
// default). Each session writes the scene and render configuration to a
// work directory and runs the binary on the configuration file; progress is
// scraped from the process output.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/achilleasa/framebatch/engine"
	"github.com/achilleasa/framebatch/log"
	"github.com/achilleasa/framebatch/props"
	"k8s.io/utils/clock"
)

const (
	sceneFile  = "scene.scn"
	configFile = "render.cfg"
)

var (
	ErrAlreadyStarted = errors.New("console engine: session already started")
	ErrNotRunning     = errors.New("console engine: session is not running")
	ErrStillRunning   = errors.New("console engine: session must be stopped before saving")
	ErrNoArtifact     = errors.New("console engine: engine did not produce a film output")
)

// Matches progress lines such as
// [Elapsed time:   5/150sec][Samples   12/0][Convergence 0.5%][Avg. samples/sec  1.23M on 0.0K tris]
var progressRegex = regexp.MustCompile(`\[Elapsed time:\s*(\d+)(?:/\d+)?sec\]\s*\[Samples\s*(\d+)(?:/\d+)?\](?:\s*\[Convergence\s*([\d.]+)%\])?`)

type Options struct {
	// The engine binary and any arguments preceding the configuration file.
	Binary string
	Args   []string

	// Directory for the generated scene and configuration files.
	WorkDir string

	// Working directory of the engine process; film outputs with relative
	// names are resolved against it. Empty means the current directory.
	Dir string

	// Wall-clock render time per session. The engine halt time
	// (batch.halttime) is capped to it so the engine halts and writes its
	// film outputs before the session is stopped. Zero leaves the
	// configured halt time untouched.
	Deadline time.Duration

	// How long Stop waits for the engine to halt by itself before
	// interrupting it, and again after the interrupt before killing it.
	StopGrace time.Duration
}

type Engine struct {
	logger log.Logger
	clock  clock.Clock
	opts   Options
}

// Create a new console engine.
func New(clk clock.Clock, opts Options) *Engine {
	if opts.Binary == "" {
		opts.Binary = "luxcoreconsole"
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 10 * time.Second
	}
	return &Engine{
		logger: log.New("console engine"),
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
	if !filepath.IsAbs(filename) && e.opts.Dir != "" {
		filename = filepath.Join(e.opts.Dir, filename)
	}

	return &session{
		engine:   e,
		cfg:      cfg,
		scene:    sc,
		artifact: filename,
	}, nil
}

type session struct {
	sync.Mutex

	engine   *Engine
	cfg      *props.Properties
	scene    engine.Scene
	artifact string

	cmd     *exec.Cmd
	exited  chan struct{}
	exitErr error

	lastProgress string
	stopping     bool
	stopped      bool
}

func (s *session) Start() error {
	s.Lock()
	defer s.Unlock()

	if s.cmd != nil || s.stopped {
		return engine.RuntimeError("start session", ErrAlreadyStarted)
	}

	cfgPath, err := s.writeInputs()
	if err != nil {
		return err
	}

	// Never pick up an artifact left behind by an earlier session.
	if err = os.Remove(s.artifact); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return engine.IOError("remove stale output", s.artifact, err)
	}

	pr, pw := io.Pipe()
	cmd := exec.Command(s.engine.opts.Binary, append(append([]string{}, s.engine.opts.Args...), cfgPath)...)
	cmd.Dir = s.engine.opts.Dir
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err = cmd.Start(); err != nil {
		pw.Close()
		return engine.RuntimeError("start session", err)
	}
	s.engine.logger.Infof("started %s (pid %d)", s.engine.opts.Binary, cmd.Process.Pid)

	s.cmd = cmd
	s.exited = make(chan struct{})
	go s.consume(pr)
	go func() {
		err := cmd.Wait()
		pw.Close()
		s.Lock()
		s.exitErr = err
		s.Unlock()
		close(s.exited)
	}()

	return nil
}

// Write the scene and configuration files and return the configuration path.
func (s *session) writeInputs() (string, error) {
	workDir, err := filepath.Abs(s.engine.opts.WorkDir)
	if err != nil {
		return "", engine.IOError("resolve work dir", s.engine.opts.WorkDir, err)
	}
	if err = os.MkdirAll(workDir, 0755); err != nil {
		return "", engine.IOError("create work dir", workDir, err)
	}

	scenePath := filepath.Join(workDir, sceneFile)
	if err = os.WriteFile(scenePath, []byte(s.scene.Properties().String()), 0644); err != nil {
		return "", engine.IOError("write scene", scenePath, err)
	}

	cfg := props.New()
	cfg.Merge(s.cfg)
	if secs, capped := haltTime(s.cfg, s.engine.opts.Deadline); capped {
		s.engine.logger.Debugf("capping batch.halttime to %d seconds", secs)
		cfg.Set("batch.halttime", strconv.Itoa(secs))
	}

	cfgPath := filepath.Join(workDir, configFile)
	cfgText := cfg.String() + "scene.file = \"" + scenePath + "\"\n"
	if err = os.WriteFile(cfgPath, []byte(cfgText), 0644); err != nil {
		return "", engine.IOError("write configuration", cfgPath, err)
	}

	return cfgPath, nil
}

// Get the halt time in whole seconds that does not exceed deadline. The
// second result is false if the configured halt time already satisfies it.
func haltTime(cfg *props.Properties, deadline time.Duration) (int, bool) {
	if deadline <= 0 {
		return 0, false
	}
	secs := max(int(math.Ceil(deadline.Seconds())), 1)
	if configured, err := cfg.Float("batch.halttime"); err == nil && configured > 0 && configured <= float64(secs) {
		return 0, false
	}
	return secs, true
}

// Read process output and remember the latest progress line.
func (s *session) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.engine.logger.Debug(line)
		if progressRegex.MatchString(line) {
			s.Lock()
			s.lastProgress = line
			s.Unlock()
		}
	}
}

func (s *session) Poll() (engine.Stats, error) {
	s.Lock()
	defer s.Unlock()

	if s.cmd == nil || s.stopped {
		return engine.Stats{}, engine.RuntimeError("poll session", ErrNotRunning)
	}

	stats := parseProgress(s.lastProgress)
	select {
	case <-s.exited:
		if s.exitErr != nil {
			return stats, engine.RuntimeError("poll session", fmt.Errorf("engine exited: %w", s.exitErr))
		}
		stats.Done = true
	default:
	}

	return stats, nil
}

// Extract statistics from a progress line.
func parseProgress(line string) engine.Stats {
	var stats engine.Stats
	m := progressRegex.FindStringSubmatch(line)
	if m == nil {
		return stats
	}

	secs, _ := strconv.Atoi(m[1])
	samples, _ := strconv.Atoi(m[2])
	stats.Elapsed = time.Duration(secs) * time.Second
	stats.Pass = samples
	stats.Samples = float64(samples)
	if m[3] != "" {
		convergence, _ := strconv.ParseFloat(m[3], 64)
		stats.Convergence = convergence / 100
	}
	return stats
}

func (s *session) Stop() error {
	s.Lock()
	if s.cmd == nil || s.stopped || s.stopping {
		s.Unlock()
		return engine.RuntimeError("stop session", ErrNotRunning)
	}
	s.stopping = true
	cmd, exited := s.cmd, s.exited
	s.Unlock()

	grace := s.engine.opts.StopGrace
	select {
	case <-exited:
	case <-s.engine.clock.After(grace):
		s.engine.logger.Warningf("engine did not halt within %s; interrupting it", grace)
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			_ = cmd.Process.Kill()
		}
		select {
		case <-exited:
		case <-s.engine.clock.After(grace):
			s.engine.logger.Warningf("engine did not exit within %s; killing it", grace)
			_ = cmd.Process.Kill()
			<-exited
		}
	}

	s.Lock()
	s.stopping = false
	s.stopped = true
	s.Unlock()
	return nil
}

func (s *session) SaveOutput() (string, error) {
	s.Lock()
	defer s.Unlock()

	if !s.stopped {
		return "", engine.RuntimeError("save output", ErrStillRunning)
	}

	info, err := os.Stat(s.artifact)
	if err != nil {
		return "", engine.IOError("save output", s.artifact, fmt.Errorf("%w: %w", ErrNoArtifact, err))
	}
	if info.Size() == 0 {
		return "", engine.IOError("save output", s.artifact, ErrNoArtifact)
	}

	return s.artifact, nil
}
