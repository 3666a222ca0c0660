// Package store defines the Persistence Interface: the contract the
// orchestrator core requires of any backing store, plus two
// realizations, an in-memory reference store (memstore) and a
// sqlite-backed store (sqlitestore).
package store

import (
	"context"

	"github.com/gradeforge/gradeforge/internal/graph"
	"github.com/gradeforge/gradeforge/internal/pipeline"
)

// Exercise is a persisted Exercise Record.
type Exercise struct {
	Name           string
	StartingTag    string
	TemplateSource string
}

// Submission is a persisted Submission. Result is nil until
// commit-result lands.
type Submission struct {
	SubmissionID int64
	UserID       int64
	ExerciseName string
	Source       string
	Result       *pipeline.TestReport
}

// Store is the full Persistence Interface. Every operation must be
// concurrency-safe; list operations must preserve insertion order.
// Role-qualified return types enforce at compile time that a caller
// cannot invoke a privileged operation without first establishing the
// corresponding role.
type Store interface {
	// User ops.
	Register(ctx context.Context, username, password string) (User[Unauthenticated], error)
	Login(ctx context.Context, username, password string) (User[AuthenticatedRole], error)
	LookupByUsername(ctx context.Context, username string) (User[Unauthenticated], error)
	LookupByToken(ctx context.Context, token string) (User[AuthenticatedRole], error)
	GetAdmin(ctx context.Context, token string) (User[AdminRole], error)
	ListUsers(ctx context.Context) ([]User[Unauthenticated], error)

	// Exercise ops.
	PutExercise(ctx context.Context, name, startingTag, templateSource string) error
	GetExercise(ctx context.Context, name string) (Exercise, error)
	ListExercises(ctx context.Context) ([]string, error)

	// Edge ops.
	EnableEdge(ctx context.Context, inTag, outTag, config string) error
	Plan(ctx context.Context, startTag string) ([]graph.Step, error)

	// Submission ops.
	CreateSubmission(ctx context.Context, userID int64, exerciseName, source string) (int64, error)
	CommitResult(ctx context.Context, submissionID, userID int64, report pipeline.TestReport) error
}
