package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gradeforge/gradeforge/internal/logger"
	"github.com/gradeforge/gradeforge/internal/pipeline"
	"github.com/gradeforge/gradeforge/internal/stage"
	"github.com/gradeforge/gradeforge/internal/store"
	"github.com/gradeforge/gradeforge/internal/store/memstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const startTag = "StartSource"

// startValue is the fixture's only non-grading variant: it carries
// concatenated template+user source through a single trivial stage.
type startValue struct{ source string }

func (startValue) Tag() string { return startTag }

func newFixture(t *testing.T) (*Orchestrator, store.Store) {
	t.Helper()
	ctx := context.Background()

	tags := pipeline.NewTagMap()
	require.NoError(t, tags.Register(startTag, func() pipeline.Value { return startValue{} }))
	require.NoError(t, tags.Register(pipeline.GradingTag, func() pipeline.Value {
		return pipeline.TestReport{Tests: map[string]pipeline.TestOutcome{}}
	}))

	st := memstore.New()
	log, err := logger.New(logger.Options{})
	require.NoError(t, err)

	o := New(tags, st, 2, log)

	o.AddGenerator(startTag, GeneratorPair{
		TemplateGenerator: func(_ context.Context, templateSource string) (pipeline.Value, error) {
			return startValue{source: templateSource}, nil
		},
		SourceAdder: func(_ context.Context, starting pipeline.Value, userSource string) (pipeline.Value, error) {
			sv := starting.(startValue)
			return startValue{source: sv.source + userSource}, nil
		},
	})

	err = stage.Register[struct{}](ctx, o.Stages, startTag, pipeline.GradingTag,
		func(_ context.Context, in pipeline.Value, _ struct{}) (pipeline.Value, error) {
			sv := in.(startValue)
			outcome := pipeline.TestOutcome{
				Build:  pipeline.BuildStatus{Kind: pipeline.Built},
				Run:    pipeline.RunStatus{Kind: pipeline.Ok},
				Points: float64(len(sv.source)),
			}
			return pipeline.TestReport{Tests: map[string]pipeline.TestOutcome{"t1": outcome}}, nil
		}, false)
	require.NoError(t, err)

	require.NoError(t, st.EnableEdge(ctx, startTag, pipeline.GradingTag, "{}"))

	return o, st
}

func registerAndLogin(t *testing.T, st store.Store) store.User[store.AuthenticatedRole] {
	t.Helper()
	ctx := context.Background()
	_, err := st.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	authed, err := st.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)
	return authed
}

func TestAddExerciseAcceptsSelfGradingTemplate(t *testing.T) {
	ctx := context.Background()
	o, st := newFixture(t)

	require.NoError(t, o.AddExercise(ctx, "ex1", startTag, "tmpl"))

	names, err := st.ListExercises(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ex1"}, names)
}

func TestProcessSubmissionRunsPlanAndCommitsResult(t *testing.T) {
	ctx := context.Background()
	o, st := newFixture(t)
	require.NoError(t, o.AddExercise(ctx, "ex1", startTag, "tmpl-"))

	user := registerAndLogin(t, st)

	report, err := o.ProcessSubmission(ctx, "ex1", "user-src", user)
	require.NoError(t, err)
	require.Len(t, report.Tests, 1)
	require.True(t, report.AllFullMarks())
}

func TestProcessSubmissionUnknownExerciseFails(t *testing.T) {
	ctx := context.Background()
	o, st := newFixture(t)
	user := registerAndLogin(t, st)

	_, err := o.ProcessSubmission(ctx, "does-not-exist", "src", user)
	require.Error(t, err)
}

func TestProcessSubmissionReleasesAdmissionPermit(t *testing.T) {
	ctx := context.Background()
	o, st := newFixture(t)
	require.NoError(t, o.AddExercise(ctx, "ex1", startTag, "tmpl-"))
	user := registerAndLogin(t, st)

	for i := 0; i < 5; i++ {
		_, err := o.ProcessSubmission(ctx, "ex1", "src", user)
		require.NoError(t, err)
	}
	require.Equal(t, int64(0), o.Admission.InFlight())
}

// failingRunnable is a plugin whose Run always errors, exercising the
// RaiseShutdown-on-error path of Orchestrator.Run.
type failingRunnable struct{ ran chan struct{} }

func (f *failingRunnable) Name() string { return "failing-runnable" }
func (f *failingRunnable) OnAdd(_ context.Context, _ *Orchestrator) error { return nil }
func (f *failingRunnable) Run(_ context.Context, _ *Reference, raiseShutdown func()) error {
	close(f.ran)
	return errors.New("boom")
}

func TestRunnableErrorRaisesShutdown(t *testing.T) {
	ctx := context.Background()
	o, _ := newFixture(t)

	plugin := &failingRunnable{ran: make(chan struct{})}
	require.NoError(t, o.AddPlugin(ctx, plugin))

	o.Run(ctx)

	select {
	case <-plugin.ran:
	case <-time.After(time.Second):
		t.Fatal("runnable never started")
	}

	o.Wait()

	select {
	case <-o.ShutdownSignal():
	default:
		t.Fatal("shutdown was not raised after runnable error")
	}
}

func TestRunFreezesTagMap(t *testing.T) {
	ctx := context.Background()
	o, _ := newFixture(t)

	o.Run(ctx)

	err := o.Tags.Register("LateTag", func() pipeline.Value { return startValue{} })
	require.Error(t, err)
}

func TestProcessSubmissionAfterShutdownFails(t *testing.T) {
	ctx := context.Background()
	o, st := newFixture(t)
	require.NoError(t, o.AddExercise(ctx, "ex1", startTag, "tmpl-"))
	user := registerAndLogin(t, st)

	o.RaiseShutdown()

	_, err := o.ProcessSubmission(ctx, "ex1", "src", user)
	require.Error(t, err)
}

func TestRaiseShutdownIsIdempotent(t *testing.T) {
	o, _ := newFixture(t)
	o.RaiseShutdown()
	require.NotPanics(t, func() { o.RaiseShutdown() })
}
