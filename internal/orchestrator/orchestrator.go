// Package orchestrator implements the Orchestrator runtime: plugin
// registration and lifecycle, submission processing, exercise
// registration, and cooperative shutdown.
//
// Plugin lives in this package rather than a separate internal/plugin
// package because it is defined in terms of the Orchestrator itself;
// splitting it out would create an import cycle (see DESIGN.md).
package orchestrator

import (
	"context"
	"sync"

	"github.com/gradeforge/gradeforge/internal/admission"
	"github.com/gradeforge/gradeforge/internal/logger"
	"github.com/gradeforge/gradeforge/internal/pipeline"
	"github.com/gradeforge/gradeforge/internal/stage"
	"github.com/gradeforge/gradeforge/internal/store"
	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
)

// GeneratorPair turns an exercise's template source into a starting
// Pipeline Value, and then adds the submitter's source to it.
type GeneratorPair struct {
	// TemplateGenerator parses template-source into the starting variant.
	TemplateGenerator func(ctx context.Context, templateSource string) (pipeline.Value, error)
	// SourceAdder merges user-source into an already-generated starting
	// variant, producing the variant that feeds the plan.
	SourceAdder func(ctx context.Context, starting pipeline.Value, userSource string) (pipeline.Value, error)
}

// Plugin registers stages, enables edges, installs more plugins, or
// adds exercises during OnAdd, which runs synchronously in
// registration order.
type Plugin interface {
	Name() string
	OnAdd(ctx context.Context, o *Orchestrator) error
}

// Runnable is the optional second half of the Plugin Lifecycle: a
// background task spawned once Run begins, given a stateless
// Reference and a function to raise the shutdown signal.
type Runnable interface {
	Run(ctx context.Context, ref *Reference, raiseShutdown func()) error
}

// Orchestrator is the main struct: stage registry, tag map, generator
// map, persistence, admission control, and the plugin list.
type Orchestrator struct {
	Tags       *pipeline.TagMap
	Stages     *stage.Registry
	Store      store.Store
	Admission  *admission.Controller
	Log        *logger.Logger

	generators map[string]GeneratorPair
	plugins    []Plugin

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New constructs an Orchestrator. capacity is the Admission
// Controller's permit count.
func New(tags *pipeline.TagMap, st store.Store, capacity int64, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		Tags:       tags,
		Stages:     stage.NewRegistry(tags),
		Store:      st,
		Admission:  admission.New(capacity),
		Log:        log,
		generators: make(map[string]GeneratorPair),
		shutdownCh: make(chan struct{}),
	}
}

// AddGenerator registers the generator pair for startingTag. A
// generator already registered for the same tag is replaced.
func (o *Orchestrator) AddGenerator(startingTag string, pair GeneratorPair) {
	o.generators[startingTag] = pair
}

// AddPlugin runs p's OnAdd synchronously, then appends it to the
// insertion-ordered plugin list.
func (o *Orchestrator) AddPlugin(ctx context.Context, p Plugin) error {
	if err := p.OnAdd(ctx, o); err != nil {
		return err
	}
	o.plugins = append(o.plugins, p)
	return nil
}

// Reference is a stateless, shareable handle to a running
// Orchestrator, handed to plugin Run tasks.
type Reference struct {
	o *Orchestrator
}

// ProcessSubmission delegates to the Orchestrator.
func (r *Reference) ProcessSubmission(ctx context.Context, exerciseName, userSource string, user store.User[store.AuthenticatedRole]) (pipeline.TestReport, error) {
	return r.o.ProcessSubmission(ctx, exerciseName, userSource, user)
}

// Store exposes the persistence layer without requiring the caller to
// hold a role-qualified user.
func (r *Reference) Store() store.Store { return r.o.Store }

// Run drains the plugin list, spawning each Runnable concurrently, and
// returns a Reference immediately. Run tasks continue in the
// background until they complete or shutdown is observed.
func (o *Orchestrator) Run(ctx context.Context) *Reference {
	o.Tags.Freeze()

	ref := &Reference{o: o}

	toRun := o.plugins
	o.plugins = nil

	for _, p := range toRun {
		runnable, ok := p.(Runnable)
		if !ok {
			continue
		}
		o.wg.Add(1)
		go func(name string, r Runnable) {
			defer o.wg.Done()
			if err := r.Run(ctx, ref, o.RaiseShutdown); err != nil {
				o.Log.Error(err, "plugin run exited with error: "+name)
				o.RaiseShutdown()
			}
		}(p.Name(), runnable)
	}

	return ref
}

// RaiseShutdown signals cooperative shutdown. Safe to call from
// multiple plugins or more than once; only the first call has effect.
func (o *Orchestrator) RaiseShutdown() {
	o.shutdownOnce.Do(func() { close(o.shutdownCh) })
}

// ShutdownSignal returns the channel that closes when shutdown is
// raised. Stages should select on it at suspension points.
func (o *Orchestrator) ShutdownSignal() <-chan struct{} { return o.shutdownCh }

// Wait blocks until every spawned Runnable task has returned, used
// after RaiseShutdown to await in-flight completion.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) cancelled() bool {
	select {
	case <-o.shutdownCh:
		return true
	default:
		return false
	}
}

// ProcessSubmission resolves an exercise, acquires an admission
// permit, threads the submission through the resolved plan, and
// records the result before releasing the permit.
func (o *Orchestrator) ProcessSubmission(ctx context.Context, exerciseName, userSource string, user store.User[store.AuthenticatedRole]) (pipeline.TestReport, error) {
	if o.cancelled() {
		return pipeline.TestReport{}, gferrors.NewShutdownError()
	}

	if logger.CorrelationID(ctx) == "" {
		ctx = logger.WithCorrelationID(ctx, logger.NewCorrelationID())
	}
	log := o.Log.WithContext(ctx)

	submissionID, err := o.Store.CreateSubmission(ctx, user.UserID, exerciseName, userSource)
	if err != nil {
		return pipeline.TestReport{}, err
	}

	release, err := o.Admission.Acquire(ctx)
	if err != nil {
		return pipeline.TestReport{}, gferrors.NewShutdownError()
	}

	ex, getErr := o.Store.GetExercise(ctx, exerciseName)
	var report pipeline.TestReport
	var runErr error
	if getErr != nil {
		runErr = getErr
	} else {
		report, runErr = o.runPipelineFor(ctx, ex, userSource)
	}
	release()
	if runErr != nil {
		log.Error(runErr, "submission pipeline failed for "+exerciseName)
		return pipeline.TestReport{}, runErr
	}

	if err := o.Store.CommitResult(ctx, submissionID, user.UserID, report); err != nil {
		log.Error(err, "commit result failed for "+exerciseName)
		return pipeline.TestReport{}, err
	}
	return report, nil
}

// runPipelineFor executes the generation-through-grading steps for an
// already-resolved exercise record: look up its generator pair,
// derive the plan, and thread the Pipeline Value through every stage.
// Shared by ProcessSubmission (exercise resolved from the store) and
// AddExercise (exercise not yet persisted, validated against its own
// source).
func (o *Orchestrator) runPipelineFor(ctx context.Context, ex store.Exercise, userSource string) (pipeline.TestReport, error) {
	gen, ok := o.generators[ex.StartingTag]
	if !ok {
		return pipeline.TestReport{}, gferrors.NewNotFoundError(ex.StartingTag, gferrors.NoGenerator)
	}

	steps, err := o.Store.Plan(ctx, ex.StartingTag)
	if err != nil {
		return pipeline.TestReport{}, err
	}

	starting, err := gen.TemplateGenerator(ctx, ex.TemplateSource)
	if err != nil {
		return pipeline.TestReport{}, err
	}
	cur, err := gen.SourceAdder(ctx, starting, userSource)
	if err != nil {
		return pipeline.TestReport{}, err
	}

	for _, step := range steps {
		select {
		case <-o.shutdownCh:
			return pipeline.TestReport{}, gferrors.NewShutdownError()
		default:
		}

		fn, err := o.Stages.Lookup(step.InTag, step.OutTag)
		if err != nil {
			return pipeline.TestReport{}, err
		}
		cur, err = fn(ctx, cur, step.Config)
		if err != nil {
			return pipeline.TestReport{}, err
		}
	}

	report, ok := cur.(pipeline.TestReport)
	if !ok {
		return pipeline.TestReport{}, gferrors.NewValidationError(cur.Tag(), "", gferrors.TerminalMismatch)
	}
	return report, nil
}

// AddExercise validates and persists a new exercise: it
// runs the pipeline against the template's own source as both
// template and reference solution, and accepts only if every test
// built and ran cleanly at full points.
func (o *Orchestrator) AddExercise(ctx context.Context, name, startingTag, templateSource string) error {
	candidate := store.Exercise{Name: name, StartingTag: startingTag, TemplateSource: templateSource}
	report, err := o.runPipelineFor(ctx, candidate, templateSource)
	if err != nil {
		return err
	}
	if !report.AllFullMarks() {
		return gferrors.NewValidationError(name, "", gferrors.SelfGradeFailed)
	}
	return o.Store.PutExercise(ctx, name, startingTag, templateSource)
}
