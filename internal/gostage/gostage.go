// Package gostage is a reference Compile/Run stage pair that
// type-checks and executes each synthesized program in-process using
// an embedded Go interpreter instead of shelling out to `go
// build`/`go run`: interp.New + i.Use(stdlib.Symbols) + i.Eval, with a
// goroutine/ctx.Done race enforcing a timeout.
package gostage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"golang.org/x/sync/errgroup"

	"github.com/gradeforge/gradeforge/internal/pipeline"
	"github.com/gradeforge/gradeforge/internal/stage"
	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
)

// CompileConfig is the opaque config the Compile stage edge carries.
// Empty today; reserved for a future allow/deny package list (mirrors
// YaegiExecutor.allowedPackages, not yet exposed at the stage level).
type CompileConfig struct{}

// RunConfig is the opaque config the Run stage edge carries.
type RunConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// defaultTimeout applies when RunConfig.TimeoutSeconds is unset.
const defaultTimeout = 5 * time.Second

// programSet holds the interpreters compiled for one Compiled value's
// tests, keyed by the opaque Workdir id so a single process can run
// many submissions' interpreters concurrently without collision.
var (
	mu       sync.Mutex
	programs = make(map[string]map[string]*interp.Interpreter)
)

// Register installs the Compile (GeneratedPrograms -> Compiled) and
// Run (Compiled -> TestReport) stages into reg.
func Register(ctx context.Context, reg *stage.Registry) error {
	if err := stage.Register[CompileConfig](ctx, reg, "GeneratedPrograms", "Compiled", compile, false); err != nil {
		return err
	}
	return stage.Register[RunConfig](ctx, reg, "Compiled", pipeline.GradingTag, run, false)
}

func compile(_ context.Context, in pipeline.Value, _ CompileConfig) (pipeline.Value, error) {
	generated, ok := in.(pipeline.GeneratedPrograms)
	if !ok {
		return nil, gferrors.NewValidationError(in.Tag(), "", gferrors.WrongVariant)
	}

	workdir := uuid.NewString()
	perTest := make(map[string]pipeline.TestOutcome, len(generated.Entries))
	interpreters := make(map[string]*interp.Interpreter, len(generated.Entries))

	for name, entry := range generated.Entries {
		i := interp.New(interp.Options{})
		if err := i.Use(stdlib.Symbols); err != nil {
			return nil, gferrors.NewExternalError(name, gferrors.CompileToolchain, err)
		}

		if _, err := i.Eval(entry.Source); err != nil {
			perTest[name] = pipeline.TestOutcome{
				Build:   pipeline.BuildStatus{Kind: pipeline.BuildError, Detail: err.Error()},
				Run:     pipeline.RunStatus{Kind: pipeline.NotRun},
				Points:  0,
				Visible: entry.Visible,
			}
			continue
		}
		if _, err := i.Eval("main.main"); err != nil {
			perTest[name] = pipeline.TestOutcome{
				Build:   pipeline.BuildStatus{Kind: pipeline.BuildError, Detail: err.Error()},
				Run:     pipeline.RunStatus{Kind: pipeline.NotRun},
				Points:  0,
				Visible: entry.Visible,
			}
			continue
		}

		perTest[name] = pipeline.TestOutcome{
			Build:   pipeline.BuildStatus{Kind: pipeline.Built},
			Run:     pipeline.RunStatus{Kind: pipeline.NotRun},
			Points:  entry.Points,
			Visible: entry.Visible,
		}
		interpreters[name] = i
	}

	mu.Lock()
	programs[workdir] = interpreters
	mu.Unlock()

	return pipeline.Compiled{Workdir: workdir, PerTest: perTest}, nil
}

func run(ctx context.Context, in pipeline.Value, cfg RunConfig) (pipeline.Value, error) {
	compiled, ok := in.(pipeline.Compiled)
	if !ok {
		return nil, gferrors.NewValidationError(in.Tag(), "", gferrors.WrongVariant)
	}

	mu.Lock()
	interpreters := programs[compiled.Workdir]
	delete(programs, compiled.Workdir)
	mu.Unlock()

	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	tests := make(map[string]pipeline.TestOutcome, len(compiled.PerTest))
	var resultsMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for name, outcome := range compiled.PerTest {
		name, outcome := name, outcome
		if outcome.Build.Kind != pipeline.Built {
			resultsMu.Lock()
			tests[name] = outcome
			resultsMu.Unlock()
			continue
		}

		i := interpreters[name]
		g.Go(func() error {
			runStatus := runOne(gctx, i, timeout)
			points := outcome.Points
			if runStatus.Kind == pipeline.RunError {
				points = 0
			}
			resultsMu.Lock()
			tests[name] = pipeline.TestOutcome{Build: outcome.Build, Run: runStatus, Points: points, Visible: outcome.Visible}
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return pipeline.TestReport{Tests: tests}, nil
}

func runOne(ctx context.Context, i *interp.Interpreter, timeout time.Duration) pipeline.RunStatus {
	mainFunc, err := i.Eval("main.main")
	if err != nil {
		return pipeline.RunStatus{Kind: pipeline.RunError, Detail: err.Error()}
	}
	fn, ok := mainFunc.Interface().(func())
	if !ok {
		return pipeline.RunStatus{Kind: pipeline.RunError, Detail: "main has unexpected signature"}
	}

	done := make(chan struct{})
	var panicked interface{}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = r
			}
			close(done)
		}()
		fn()
	}()

	select {
	case <-done:
		if panicked != nil {
			return pipeline.RunStatus{Kind: pipeline.RunError, Detail: fmt.Sprintf("panic: %v", panicked)}
		}
		return pipeline.RunStatus{Kind: pipeline.Ok}
	case <-time.After(timeout):
		return pipeline.RunStatus{Kind: pipeline.RunError, Detail: "timed out"}
	case <-ctx.Done():
		return pipeline.RunStatus{Kind: pipeline.RunError, Detail: ctx.Err().Error()}
	}
}
