package renderer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/achilleasa/framebatch/engine"
	"github.com/achilleasa/framebatch/props"
	testingclock "k8s.io/utils/clock/testing"
)

const testDescription = "scene.objects.water.vertices = 0 0 0 1 0 0 0 1 0\nscene.objects.water.faces = 0 1 2\n"

type mockSession struct {
	startErr error
	pollErr  error
	stopErr  error

	// Report Done on this poll; zero never reports it.
	doneAfter int
	// Fail on this poll; zero never fails.
	failAfter int

	starts, polls, stops, saves int
}

func (s *mockSession) Start() error {
	s.starts++
	return s.startErr
}

func (s *mockSession) Poll() (engine.Stats, error) {
	s.polls++
	if s.failAfter > 0 && s.polls >= s.failAfter {
		return engine.Stats{}, s.pollErr
	}
	return engine.Stats{Pass: s.polls, Done: s.doneAfter > 0 && s.polls >= s.doneAfter}, nil
}

func (s *mockSession) Stop() error {
	s.stops++
	return s.stopErr
}

func (s *mockSession) SaveOutput() (string, error) {
	s.saves++
	return "normal.png", nil
}

type mockEngine struct {
	session  *mockSession
	buildErr error
	scenes   int
}

func (e *mockEngine) ParseDescription(path string) (*props.Properties, *props.Properties, error) {
	return engine.ParseDescriptionFile(path)
}

func (e *mockEngine) ParseConfiguration(text string) (*props.Properties, error) {
	return props.Parse(text)
}

func (e *mockEngine) BuildScene(sceneProps *props.Properties) (engine.Scene, error) {
	if e.buildErr != nil {
		return nil, e.buildErr
	}
	e.scenes++
	return engine.NewScene(sceneProps), nil
}

func (e *mockEngine) CreateSession(cfg *props.Properties, sc engine.Scene) (engine.Session, error) {
	return e.session, nil
}

func newTestController(sess *mockSession, opts Options) (*Controller, *testingclock.FakeClock) {
	clk := testingclock.NewFakeClock(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewController(&mockEngine{session: sess}, clk, opts), clk
}

func TestEffectiveDeadline(t *testing.T) {
	type spec struct {
		deadline time.Duration
		budget   time.Duration
		exp      time.Duration
	}

	specs := []spec{
		{5 * time.Second, 150 * time.Second, 5 * time.Second},
		{5 * time.Second, 2 * time.Second, 2 * time.Second},
		{0, 150 * time.Second, 150 * time.Second},
		{5 * time.Second, 0, 5 * time.Second},
		{0, 0, 0},
	}

	for specIndex, s := range specs {
		got := Options{Deadline: s.deadline, EngineBudget: s.budget}.EffectiveDeadline()
		if got != s.exp {
			t.Errorf("[spec %d] expected effective deadline %s; got %s", specIndex, s.exp, got)
		}
	}
}

func TestEngineBudgetFromConfig(t *testing.T) {
	type spec struct {
		cfg string
		exp time.Duration
	}

	specs := []spec{
		{"batch.halttime = 150\n", 150 * time.Second},
		{"batch.halttime = \"2.5\"\n", 2500 * time.Millisecond},
		{"batch.halttime = 0\n", 0},
		{"film.width = 10\n", 0},
		{"batch.halttime = never\n", 0},
	}

	for specIndex, s := range specs {
		cfg, err := props.Parse(s.cfg)
		if err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
		if got := EngineBudgetFromConfig(cfg); got != s.exp {
			t.Errorf("[spec %d] expected budget %s; got %s", specIndex, s.exp, got)
		}
	}
}

func TestRunUntilDeadline(t *testing.T) {
	type spec struct {
		opts      Options
		doneAfter int
		expPolls  int
		expTime   time.Duration
		expReason HaltReason
	}

	specs := []spec{
		{
			opts:      Options{PollInterval: 500 * time.Millisecond, Deadline: 5 * time.Second, EngineBudget: 150 * time.Second},
			expPolls:  10,
			expTime:   5 * time.Second,
			expReason: HaltDeadline,
		},
		{
			opts:      Options{PollInterval: 500 * time.Millisecond, Deadline: 5 * time.Second, EngineBudget: 2 * time.Second},
			expPolls:  4,
			expTime:   2 * time.Second,
			expReason: HaltDeadline,
		},
		{
			opts:      Options{PollInterval: 400 * time.Millisecond, Deadline: time.Second},
			expPolls:  3,
			expTime:   1200 * time.Millisecond,
			expReason: HaltDeadline,
		},
		{
			opts:      Options{PollInterval: 500 * time.Millisecond, Deadline: 5 * time.Second},
			doneAfter: 3,
			expPolls:  3,
			expTime:   1500 * time.Millisecond,
			expReason: HaltEngine,
		},
		{
			opts:      Options{PollInterval: time.Second},
			doneAfter: 7,
			expPolls:  7,
			expTime:   7 * time.Second,
			expReason: HaltEngine,
		},
	}

	for specIndex, s := range specs {
		sess := &mockSession{doneAfter: s.doneAfter}
		ctrl, _ := newTestController(sess, s.opts)

		artifact, stats, err := ctrl.Render(context.Background(), testDescription, props.New())
		if err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
		if artifact != "normal.png" {
			t.Errorf("[spec %d] expected artifact normal.png; got %s", specIndex, artifact)
		}
		if stats.Polls != s.expPolls || sess.polls != s.expPolls {
			t.Errorf("[spec %d] expected %d polls; got %d (engine saw %d)", specIndex, s.expPolls, stats.Polls, sess.polls)
		}
		if stats.RenderTime != s.expTime {
			t.Errorf("[spec %d] expected render time %s; got %s", specIndex, s.expTime, stats.RenderTime)
		}
		if stats.HaltReason != s.expReason {
			t.Errorf("[spec %d] expected halt reason %s; got %s", specIndex, s.expReason, stats.HaltReason)
		}
		if sess.starts != 1 || sess.stops != 1 || sess.saves != 1 {
			t.Errorf("[spec %d] expected one start, stop and save; got %d, %d, %d", specIndex, sess.starts, sess.stops, sess.saves)
		}
	}
}

func TestPollErrorStillStops(t *testing.T) {
	pollErr := engine.RuntimeError("poll", errors.New("engine crashed"))
	sess := &mockSession{failAfter: 2, pollErr: pollErr}
	ctrl, _ := newTestController(sess, Options{PollInterval: 500 * time.Millisecond, Deadline: 5 * time.Second})

	_, stats, err := ctrl.Render(context.Background(), testDescription, props.New())
	if !errors.Is(err, pollErr) {
		t.Fatalf("expected poll error; got %v", err)
	}
	if stats.Polls != 1 {
		t.Fatalf("expected 1 successful poll; got %d", stats.Polls)
	}
	if sess.stops != 1 {
		t.Fatalf("expected session to be stopped once; got %d", sess.stops)
	}
	if sess.saves != 0 {
		t.Fatal("expected no output to be retrieved after a failed render")
	}
}

func TestCancelledRender(t *testing.T) {
	sess := &mockSession{}
	ctrl, _ := newTestController(sess, Options{PollInterval: 500 * time.Millisecond, Deadline: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, stats, err := ctrl.Render(ctx, testDescription, props.New())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled; got %v", err)
	}
	if stats.HaltReason != HaltCancelled || stats.Polls != 0 {
		t.Fatalf("expected cancelled halt with no polls; got %s after %d polls", stats.HaltReason, stats.Polls)
	}
	if sess.stops != 1 {
		t.Fatalf("expected session to be stopped once; got %d", sess.stops)
	}
}

func TestSessionStateMachine(t *testing.T) {
	ctrl, clk := newTestController(&mockSession{}, Options{PollInterval: time.Second})

	sess, err := ctrl.Create(testDescription, props.New())
	if err != nil {
		t.Fatal(err)
	}
	if sess.State() != Created {
		t.Fatalf("expected state %s; got %s", Created, sess.State())
	}

	if err = sess.Stop(); err != ErrNotStarted {
		t.Fatalf("expected ErrNotStarted for Stop before Start; got %v", err)
	}
	if _, err = sess.Poll(); err != ErrNotStarted {
		t.Fatalf("expected ErrNotStarted for Poll before Start; got %v", err)
	}
	if _, err = sess.RetrieveOutput(); err != ErrNotStopped {
		t.Fatalf("expected ErrNotStopped; got %v", err)
	}

	if err = sess.Start(); err != nil {
		t.Fatal(err)
	}
	if err = sess.Start(); err != ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted; got %v", err)
	}
	if _, err = sess.RetrieveOutput(); err != ErrNotStopped {
		t.Fatalf("expected ErrNotStopped while running; got %v", err)
	}

	clk.Step(3 * time.Second)
	if err = sess.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := sess.RenderTime(); got != 3*time.Second {
		t.Fatalf("expected render time 3s; got %s", got)
	}
	if err = sess.Stop(); err != ErrAlreadyStopped {
		t.Fatalf("expected ErrAlreadyStopped; got %v", err)
	}
	if err = sess.Start(); err != ErrAlreadyStopped {
		t.Fatalf("expected ErrAlreadyStopped for restart; got %v", err)
	}
	if _, err = sess.RunUntilDeadline(context.Background()); err != ErrAlreadyStopped {
		t.Fatalf("expected ErrAlreadyStopped; got %v", err)
	}

	artifact, err := sess.RetrieveOutput()
	if err != nil || artifact != "normal.png" {
		t.Fatalf("expected artifact normal.png; got %q (%v)", artifact, err)
	}

	if err = sess.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err = sess.RetrieveOutput(); err != ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed; got %v", err)
	}
}

func TestOneLiveSession(t *testing.T) {
	ctrl, _ := newTestController(&mockSession{}, Options{PollInterval: time.Second})

	first, err := ctrl.Create(testDescription, props.New())
	if err != nil {
		t.Fatal(err)
	}
	if _, err = ctrl.Create(testDescription, props.New()); err != ErrSessionLive {
		t.Fatalf("expected ErrSessionLive; got %v", err)
	}

	if err = first.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err = ctrl.Create(testDescription, props.New()); err != nil {
		t.Fatalf("expected a new session after closing the previous one; got %v", err)
	}
}

func TestCloseStopsRunningSession(t *testing.T) {
	mock := &mockSession{}
	ctrl, _ := newTestController(mock, Options{PollInterval: time.Second})

	sess, err := ctrl.Create(testDescription, props.New())
	if err != nil {
		t.Fatal(err)
	}
	if err = sess.Start(); err != nil {
		t.Fatal(err)
	}
	if err = sess.Close(); err != nil {
		t.Fatal(err)
	}
	if mock.stops != 1 {
		t.Fatalf("expected Close to stop the running session; got %d stops", mock.stops)
	}
	if err = sess.Close(); err != nil {
		t.Fatalf("expected Close to be idempotent; got %v", err)
	}
}

func TestStartFailure(t *testing.T) {
	startErr := engine.RuntimeError("start", errors.New("no device"))
	mock := &mockSession{startErr: startErr}
	ctrl, _ := newTestController(mock, Options{PollInterval: time.Second, Deadline: 5 * time.Second})

	_, _, err := ctrl.Render(context.Background(), testDescription, props.New())
	if !errors.Is(err, startErr) {
		t.Fatalf("expected start error; got %v", err)
	}
	if mock.polls != 0 || mock.stops != 0 {
		t.Fatalf("expected no polls or stops after a failed start; got %d, %d", mock.polls, mock.stops)
	}

	// The failed session must not block the next frame
	mock.startErr = nil
	if _, _, err = ctrl.Render(context.Background(), testDescription, props.New()); err != nil {
		t.Fatal(err)
	}
}

func TestCreateErrors(t *testing.T) {
	ctrl, _ := newTestController(&mockSession{}, Options{PollInterval: time.Second})

	_, err := ctrl.Create("scene.camera.type perspective\n", props.New())
	if engine.KindOf(err) != engine.KindParse {
		t.Fatalf("expected a ParseError for a malformed description; got %v", err)
	}

	buildErr := engine.ParseError("build scene", "", errors.New("incomplete object"))
	ctrl = NewController(&mockEngine{session: &mockSession{}, buildErr: buildErr}, testingclock.NewFakeClock(time.Now()), Options{})
	if _, err = ctrl.Create(testDescription, props.New()); !errors.Is(err, buildErr) {
		t.Fatalf("expected build error; got %v", err)
	}

	// Failed creates leave no live session behind
	ctrl.engine.(*mockEngine).buildErr = nil
	if _, err = ctrl.Create(testDescription, props.New()); err != nil {
		t.Fatal(err)
	}
}

func TestStateString(t *testing.T) {
	type spec struct {
		state State
		exp   string
	}

	specs := []spec{
		{Created, "created"},
		{Running, "running"},
		{Stopped, "stopped"},
		{State(9), "unknown"},
	}

	for specIndex, s := range specs {
		if got := s.state.String(); got != s.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, s.exp, got)
		}
	}
}
