package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gradeforge/gradeforge/internal/goexercise"
	"github.com/gradeforge/gradeforge/internal/logger"
	"github.com/gradeforge/gradeforge/internal/orchestrator"
	"github.com/gradeforge/gradeforge/internal/pipeline"
	"github.com/gradeforge/gradeforge/internal/store/memstore"
)

const submitTestTemplate = `package tmpl

type S struct{}

func (s S) greet() string { return "hi" }

//gradeforge:testcase points=1
//gradeforge:override S.greet
func test1() {
	s := S{}
	s.greet()
}
`

func newTestApp(t *testing.T) *AppContext {
	t.Helper()
	ctx := context.Background()

	st := memstore.New()
	log, err := logger.New(logger.Options{})
	require.NoError(t, err)

	o := orchestrator.New(pipeline.NewTagMap(), st, 2, log)
	require.NoError(t, o.AddPlugin(ctx, goexercise.Plugin{}))
	require.NoError(t, o.AddExercise(ctx, "greeter", goexercise.StartingTag, submitTestTemplate))

	ref := o.Run(ctx)
	user, err := loginCLIUser(ctx, st)
	require.NoError(t, err)

	return &AppContext{Logger: log, Ref: ref, User: user}
}

func TestSubmitCommandPrintsTestReport(t *testing.T) {
	app := newTestApp(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "solution.go")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

	cmd := newSubmitCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--exercise-name", "greeter", "--file-path", path})

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "\"test1\"")
}

func TestSubmitCommandRejectsMissingFile(t *testing.T) {
	app := newTestApp(t)

	cmd := newSubmitCmd(app)
	cmd.SetArgs([]string{"--exercise-name", "greeter", "--file-path", "/no/such/file"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	require.Error(t, cmd.Execute())
}
