// Package memstore is the in-memory reference Store realization, used
// by orchestrator self-grading checks and tests: a monotonic id
// counter, ordered user/exercise/submission collections guarded by a
// single mutex, and a 20-character alphanumeric session token.
// Passwords are hashed with bcrypt rather than stored in plaintext.
package memstore

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gradeforge/gradeforge/internal/graph"
	"github.com/gradeforge/gradeforge/internal/pipeline"
	"github.com/gradeforge/gradeforge/internal/store"
	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
)

const tokenCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

type userRecord struct {
	userID       int64
	username     string
	passwordHash string
	lastLogin    *time.Time
	sessionToken string
	admin        bool
}

type edgeRecord struct {
	outTag, config string
}

// Store is the in-memory Persistence Interface realization.
type Store struct {
	mu sync.Mutex

	nextUserID       int64
	nextSubmissionID int64

	usersByName map[string]*userRecord
	usersOrder  []string
	tokenOwner  map[string]string // session token -> username

	exercises      map[string]store.Exercise
	exercisesOrder []string

	edges map[string]edgeRecord // inTag -> outTag/config

	submissions map[int64]*store.Submission
}

// New returns an empty Store. The first registered user becomes the
// sole administrator, matching a typical bootstrap convention; all
// later registrants are non-admin.
func New() *Store {
	return &Store{
		usersByName: make(map[string]*userRecord),
		tokenOwner:  make(map[string]string),
		exercises:   make(map[string]store.Exercise),
		edges:       make(map[string]edgeRecord),
		submissions: make(map[int64]*store.Submission),
	}
}

func newToken() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = tokenCharset[int(b)%len(tokenCharset)]
	}
	return string(buf), nil
}

func (s *Store) toUnauthenticated(u *userRecord) store.User[store.Unauthenticated] {
	return store.User[store.Unauthenticated]{
		UserID:       u.userID,
		Username:     u.username,
		PasswordHash: u.passwordHash,
		LastLogin:    u.lastLogin,
		SessionToken: u.sessionToken,
		Admin:        u.admin,
	}
}

// Register implements store.Store.
func (s *Store) Register(_ context.Context, username, password string) (store.User[store.Unauthenticated], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByName[username]; exists {
		return store.User[store.Unauthenticated]{}, gferrors.NewValidationError(username, "", gferrors.UserAlreadyExists)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User[store.Unauthenticated]{}, gferrors.NewExternalError("bcrypt", gferrors.PersistenceIO, err)
	}

	s.nextUserID++
	rec := &userRecord{
		userID:       s.nextUserID,
		username:     username,
		passwordHash: string(hash),
		admin:        len(s.usersOrder) == 0,
	}
	s.usersByName[username] = rec
	s.usersOrder = append(s.usersOrder, username)

	return s.toUnauthenticated(rec), nil
}

// Login implements store.Store.
func (s *Store) Login(_ context.Context, username, password string) (store.User[store.AuthenticatedRole], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.usersByName[username]
	if !ok {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewAuthError(username, gferrors.Unauthorized)
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.passwordHash), []byte(password)) != nil {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewAuthError(username, gferrors.Unauthorized)
	}

	token, err := newToken()
	if err != nil {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewExternalError("token generation", gferrors.PersistenceIO, err)
	}
	now := time.Now()
	rec.lastLogin = &now
	if rec.sessionToken != "" {
		delete(s.tokenOwner, rec.sessionToken)
	}
	rec.sessionToken = token
	s.tokenOwner[token] = username

	return store.User[store.AuthenticatedRole]{
		UserID:       rec.userID,
		Username:     rec.username,
		PasswordHash: rec.passwordHash,
		LastLogin:    rec.lastLogin,
		SessionToken: rec.sessionToken,
		Admin:        rec.admin,
	}, nil
}

// LookupByUsername implements store.Store.
func (s *Store) LookupByUsername(_ context.Context, username string) (store.User[store.Unauthenticated], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.usersByName[username]
	if !ok {
		return store.User[store.Unauthenticated]{}, gferrors.NewAuthError(username, gferrors.Unauthorized)
	}
	return s.toUnauthenticated(rec), nil
}

// LookupByToken implements store.Store.
func (s *Store) LookupByToken(_ context.Context, token string) (store.User[store.AuthenticatedRole], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username, ok := s.tokenOwner[token]
	if !ok {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewAuthError("", gferrors.TokenMissing)
	}
	rec := s.usersByName[username]
	return store.User[store.AuthenticatedRole]{
		UserID:       rec.userID,
		Username:     rec.username,
		PasswordHash: rec.passwordHash,
		LastLogin:    rec.lastLogin,
		SessionToken: rec.sessionToken,
		Admin:        rec.admin,
	}, nil
}

// GetAdmin implements store.Store.
func (s *Store) GetAdmin(ctx context.Context, token string) (store.User[store.AdminRole], error) {
	authenticated, err := s.LookupByToken(ctx, token)
	if err != nil {
		return store.User[store.AdminRole]{}, err
	}
	if !authenticated.Admin {
		return store.User[store.AdminRole]{}, gferrors.NewAuthError(authenticated.Username, gferrors.Unauthorized)
	}
	return store.Reinterpret[store.AuthenticatedRole, store.AdminRole](authenticated), nil
}

// ListUsers implements store.Store, preserving registration order.
func (s *Store) ListUsers(_ context.Context) ([]store.User[store.Unauthenticated], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.User[store.Unauthenticated], 0, len(s.usersOrder))
	for _, name := range s.usersOrder {
		out = append(out, s.toUnauthenticated(s.usersByName[name]))
	}
	return out, nil
}

// PutExercise implements store.Store.
func (s *Store) PutExercise(_ context.Context, name, startingTag, templateSource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.exercises[name]; !exists {
		s.exercisesOrder = append(s.exercisesOrder, name)
	}
	s.exercises[name] = store.Exercise{Name: name, StartingTag: startingTag, TemplateSource: templateSource}
	return nil
}

// GetExercise implements store.Store.
func (s *Store) GetExercise(_ context.Context, name string) (store.Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.exercises[name]
	if !ok {
		return store.Exercise{}, gferrors.NewNotFoundError(name, gferrors.NoSuchExercise)
	}
	return ex, nil
}

// ListExercises implements store.Store, preserving insertion order.
func (s *Store) ListExercises(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.exercisesOrder))
	copy(out, s.exercisesOrder)
	return out, nil
}

// EnableEdge implements store.Store.
func (s *Store) EnableEdge(_ context.Context, inTag, outTag, config string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make([]graph.Edge, 0, len(s.edges))
	for in, e := range s.edges {
		existing = append(existing, graph.Edge{InTag: in, OutTag: e.outTag, Config: e.config})
	}

	candidate := graph.Edge{InTag: inTag, OutTag: outTag, Config: config}
	if err := graph.ValidateAdmission(existing, candidate); err != nil {
		return err
	}

	s.edges[inTag] = edgeRecord{outTag: outTag, config: config}
	return nil
}

// Plan implements store.Store.
func (s *Store) Plan(_ context.Context, startTag string) ([]graph.Step, error) {
	s.mu.Lock()
	edges := make([]graph.Edge, 0, len(s.edges))
	for in, e := range s.edges {
		edges = append(edges, graph.Edge{InTag: in, OutTag: e.outTag, Config: e.config})
	}
	s.mu.Unlock()

	return graph.Plan(edges, startTag)
}

// CreateSubmission implements store.Store.
func (s *Store) CreateSubmission(_ context.Context, userID int64, exerciseName, source string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubmissionID++
	id := s.nextSubmissionID
	s.submissions[id] = &store.Submission{
		SubmissionID: id,
		UserID:       userID,
		ExerciseName: exerciseName,
		Source:       source,
	}
	return id, nil
}

// CommitResult implements store.Store.
func (s *Store) CommitResult(_ context.Context, submissionID, userID int64, report pipeline.TestReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[submissionID]
	if !ok {
		return gferrors.NewAuthError("submission", gferrors.OwnershipMismatch)
	}
	if sub.UserID != userID {
		return gferrors.NewAuthError("submission", gferrors.OwnershipMismatch)
	}
	sub.Result = &report
	return nil
}

var _ store.Store = (*Store)(nil)
