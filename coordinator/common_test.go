package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iqap-dev/iqap-runner/blueprint"
	"github.com/iqap-dev/iqap-runner/events"
	"github.com/iqap-dev/iqap-runner/executor"
	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/queue"
	"github.com/iqap-dev/iqap-runner/storage"
	"github.com/iqap-dev/iqap-runner/testcase"
	"github.com/iqap-dev/iqap-runner/testrun"
	"github.com/iqap-dev/iqap-runner/testutil"
	"github.com/iqap-dev/iqap-runner/visual"
)

// testPNG encodes a small solid-color image so visual checks decode cleanly.
func testPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeProvider serves a fixed blueprint.
type fakeProvider struct {
	bp  *blueprint.UIBlueprint
	err error
}

func (f *fakeProvider) Get(ctx context.Context, url string) (*blueprint.UIBlueprint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bp, nil
}

// fakeSession is a scriptable browser session.
type fakeSession struct {
	clicks       []string
	fills        map[string]string
	hidden       map[string]bool
	crashOnClick bool
	navErr       error
	screenshot   []byte
	closed       bool
}

func newSession(screenshot []byte) *fakeSession {
	return &fakeSession{
		fills:      make(map[string]string),
		hidden:     make(map[string]bool),
		screenshot: screenshot,
	}
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error { return f.navErr }

func (f *fakeSession) Click(ctx context.Context, el *blueprint.ElementDescriptor) error {
	if f.crashOnClick {
		return fmt.Errorf("%w: page closed underneath click", executor.ErrSessionCrashed)
	}
	f.clicks = append(f.clicks, el.LogicalID)
	return nil
}

func (f *fakeSession) Fill(ctx context.Context, el *blueprint.ElementDescriptor, value string) error {
	f.fills[el.LogicalID] = value
	return nil
}

func (f *fakeSession) IsVisible(ctx context.Context, el *blueprint.ElementDescriptor) (bool, error) {
	return !f.hidden[el.LogicalID], nil
}

func (f *fakeSession) BoundingBox(ctx context.Context, el *blueprint.ElementDescriptor) (blueprint.BoundingBox, error) {
	if f.hidden[el.LogicalID] {
		return blueprint.BoundingBox{}, nil
	}
	return blueprint.BoundingBox{Width: 100, Height: 20}, nil
}

func (f *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	return f.screenshot, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

// blockingSession parks inside its first Click until released, so a test can
// act while a step is in flight.
type blockingSession struct {
	*fakeSession
	entered chan struct{}
	release chan struct{}
}

func newBlockingSession(screenshot []byte) *blockingSession {
	return &blockingSession{
		fakeSession: newSession(screenshot),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (b *blockingSession) Click(ctx context.Context, el *blueprint.ElementDescriptor) error {
	close(b.entered)
	<-b.release
	return b.fakeSession.Click(ctx, el)
}

// sessionFactory hands out scripted sessions in order, reusing the last one
// once exhausted.
func sessionFactory(sessions ...*fakeSession) executor.SessionFactory {
	i := 0
	return func(ctx context.Context) (executor.Session, error) {
		s := sessions[i]
		if i < len(sessions)-1 {
			i++
		}
		return s, nil
	}
}

// testEnv bundles a coordinator with its observable collaborators.
type testEnv struct {
	coord     *Coordinator
	runs      testrun.Store
	cases     testcase.Store
	emitter   *events.MemoryEmitter
	queue     *queue.MemoryQueue
	artifacts storage.BlobStorage
}

func loginBlueprint() *blueprint.UIBlueprint {
	return &blueprint.UIBlueprint{
		URL: "https://www.saucedemo.com",
		Elements: []blueprint.ElementDescriptor{
			{LogicalID: "username-field", Role: "input", Attributes: map[string]string{"id": "user-name"}},
			{LogicalID: "login-button", Role: "button", VisibleText: "Login"},
			{LogicalID: "dashboard-header", Role: "heading", VisibleText: "Products"},
		},
	}
}

func setupEnv(t *testing.T, provider blueprint.Provider, factory executor.SessionFactory) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &testcase.TestCase{}, &testcase.ParameterSet{}, &testrun.TestRun{})

	log := logger.NewTestLogger()
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		runs:      testrun.NewMySQLStore(db, log),
		cases:     testcase.NewMySQLStore(db, log),
		emitter:   events.NewMemoryEmitter(),
		queue:     queue.NewMemoryQueue(16),
		artifacts: blobs,
	}
	t.Cleanup(func() { env.queue.Close() })

	env.coord = New(Config{
		Runs:       env.runs,
		Cases:      env.cases,
		Blueprints: provider,
		Executor:   executor.NewExecutor(log),
		Sessions:   factory,
		Checker:    visual.NewChecker(blobs, 0, log),
		Artifacts:  blobs,
		Emitter:    env.emitter,
		Queue:      env.queue,
		Logger:     log,
	})

	return env
}

// createLoginCase persists the standard login test case.
func createLoginCase(t *testing.T, env *testEnv) *testcase.TestCase {
	t.Helper()
	tc := &testcase.TestCase{
		Name:      "Login flow",
		Objective: "Verify a standard user can log in",
		TargetURL: "https://www.saucedemo.com",
		Steps: testcase.Steps{
			{Index: 1, Action: testcase.ActionEnterText, TargetElement: "username-field", DataKey: "Username"},
			{Index: 2, Action: testcase.ActionClick, TargetElement: "login-button"},
			{Index: 3, Action: testcase.ActionVerifyVisible, TargetElement: "dashboard-header"},
		},
	}
	require.NoError(t, env.cases.Create(context.Background(), tc))
	return tc
}

func createParamSet(t *testing.T, env *testEnv, tc *testcase.TestCase, position uint, username string) *testcase.ParameterSet {
	t.Helper()
	ps := &testcase.ParameterSet{
		TestCaseID: tc.ID,
		Name:       username,
		Position:   position,
		Values:     testcase.Params{"Username": username},
	}
	require.NoError(t, env.cases.CreateParameterSet(context.Background(), ps))
	return ps
}
