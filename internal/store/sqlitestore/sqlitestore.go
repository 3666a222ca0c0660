// Package sqlitestore implements the Persistence Interface over
// modernc.org/sqlite (pure-Go, no cgo): users, exercises,
// enabled_edges, submissions, test_results.
package sqlitestore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"
	"golang.org/x/crypto/bcrypt"

	"github.com/gradeforge/gradeforge/internal/graph"
	"github.com/gradeforge/gradeforge/internal/pipeline"
	"github.com/gradeforge/gradeforge/internal/store"
	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	last_login TIMESTAMP NULL,
	session_token TEXT NULL,
	admin BOOLEAN NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS exercises (
	name TEXT PRIMARY KEY,
	tag TEXT NOT NULL,
	source TEXT NOT NULL,
	seq INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS enabled_edges (
	in_tag TEXT UNIQUE NOT NULL,
	out_tag TEXT NOT NULL,
	config TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS submissions (
	submission_id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(user_id),
	name TEXT NOT NULL,
	source TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS test_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	submission_id INTEGER NOT NULL REFERENCES submissions(submission_id),
	test_name TEXT NOT NULL,
	build_status TEXT NOT NULL,
	run_status TEXT NOT NULL,
	points REAL NOT NULL
);
`

const tokenCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Store is the sqlite-backed Persistence Interface realization.
type Store struct {
	db *sql.DB
}

// Open connects to dsn (a sqlite DSN, or ":memory:") and ensures the
// schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, gferrors.NewExternalError("sqlite open", gferrors.PersistenceIO, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers so the store stays internally synchronized

	if _, err := db.Exec(schema); err != nil {
		return nil, gferrors.NewExternalError("sqlite schema", gferrors.PersistenceIO, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

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

// Register implements store.Store.
func (s *Store) Register(ctx context.Context, username, password string) (store.User[store.Unauthenticated], error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE username = ?`, username).Scan(&count); err != nil {
		return store.User[store.Unauthenticated]{}, gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	if count > 0 {
		return store.User[store.Unauthenticated]{}, gferrors.NewValidationError(username, "", gferrors.UserAlreadyExists)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User[store.Unauthenticated]{}, gferrors.NewExternalError("bcrypt", gferrors.PersistenceIO, err)
	}

	var isFirst int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&isFirst); err != nil {
		return store.User[store.Unauthenticated]{}, gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	admin := isFirst == 0

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, admin) VALUES (?, ?, ?)`, username, string(hash), admin)
	if err != nil {
		return store.User[store.Unauthenticated]{}, gferrors.NewExternalError("sqlite insert", gferrors.PersistenceIO, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.User[store.Unauthenticated]{}, gferrors.NewExternalError("sqlite insert", gferrors.PersistenceIO, err)
	}

	return store.User[store.Unauthenticated]{
		UserID: id, Username: username, PasswordHash: string(hash), Admin: admin,
	}, nil
}

// Login implements store.Store.
func (s *Store) Login(ctx context.Context, username, password string) (store.User[store.AuthenticatedRole], error) {
	var (
		id       int64
		hash     string
		admin    bool
	)
	err := s.db.QueryRowContext(ctx, `SELECT user_id, password_hash, admin FROM users WHERE username = ?`, username).
		Scan(&id, &hash, &admin)
	if err == sql.ErrNoRows {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewAuthError(username, gferrors.Unauthorized)
	}
	if err != nil {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewAuthError(username, gferrors.Unauthorized)
	}

	token, err := newToken()
	if err != nil {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewExternalError("token generation", gferrors.PersistenceIO, err)
	}
	now := time.Now().UTC()

	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = ?, session_token = ? WHERE user_id = ?`, now, token, id); err != nil {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewExternalError("sqlite update", gferrors.PersistenceIO, err)
	}

	return store.User[store.AuthenticatedRole]{
		UserID: id, Username: username, PasswordHash: hash, LastLogin: &now, SessionToken: token, Admin: admin,
	}, nil
}

// LookupByUsername implements store.Store.
func (s *Store) LookupByUsername(ctx context.Context, username string) (store.User[store.Unauthenticated], error) {
	var (
		id    int64
		hash  string
		admin bool
	)
	err := s.db.QueryRowContext(ctx, `SELECT user_id, password_hash, admin FROM users WHERE username = ?`, username).
		Scan(&id, &hash, &admin)
	if err == sql.ErrNoRows {
		return store.User[store.Unauthenticated]{}, gferrors.NewAuthError(username, gferrors.Unauthorized)
	}
	if err != nil {
		return store.User[store.Unauthenticated]{}, gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	return store.User[store.Unauthenticated]{UserID: id, Username: username, PasswordHash: hash, Admin: admin}, nil
}

func (s *Store) lookupByToken(ctx context.Context, token string) (store.User[store.AuthenticatedRole], error) {
	var (
		id        int64
		username  string
		hash      string
		admin     bool
		lastLogin sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, password_hash, admin, last_login FROM users WHERE session_token = ?`, token).
		Scan(&id, &username, &hash, &admin, &lastLogin)
	if err == sql.ErrNoRows {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewAuthError("", gferrors.TokenMissing)
	}
	if err != nil {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	u := store.User[store.AuthenticatedRole]{
		UserID: id, Username: username, PasswordHash: hash, SessionToken: token, Admin: admin,
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return u, nil
}

// LookupByToken implements store.Store.
func (s *Store) LookupByToken(ctx context.Context, token string) (store.User[store.AuthenticatedRole], error) {
	return s.lookupByToken(ctx, token)
}

// GetAdmin implements store.Store.
func (s *Store) GetAdmin(ctx context.Context, token string) (store.User[store.AdminRole], error) {
	authenticated, err := s.lookupByToken(ctx, token)
	if err != nil {
		return store.User[store.AdminRole]{}, err
	}
	if !authenticated.Admin {
		return store.User[store.AdminRole]{}, gferrors.NewAuthError(authenticated.Username, gferrors.Unauthorized)
	}
	return store.Reinterpret[store.AuthenticatedRole, store.AdminRole](authenticated), nil
}

// ListUsers implements store.Store, ordered by user_id (insertion order).
func (s *Store) ListUsers(ctx context.Context) ([]store.User[store.Unauthenticated], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, username, password_hash, admin FROM users ORDER BY user_id`)
	if err != nil {
		return nil, gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	defer rows.Close()

	var out []store.User[store.Unauthenticated]
	for rows.Next() {
		var u store.User[store.Unauthenticated]
		if err := rows.Scan(&u.UserID, &u.Username, &u.PasswordHash, &u.Admin); err != nil {
			return nil, gferrors.NewExternalError("sqlite scan", gferrors.PersistenceIO, err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// PutExercise implements store.Store.
func (s *Store) PutExercise(ctx context.Context, name, startingTag, templateSource string) error {
	var seq int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM exercises`).Scan(&seq); err != nil {
		return gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exercises (name, tag, source, seq) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET tag = excluded.tag, source = excluded.source`,
		name, startingTag, templateSource, seq)
	if err != nil {
		return gferrors.NewExternalError("sqlite insert", gferrors.PersistenceIO, err)
	}
	return nil
}

// GetExercise implements store.Store.
func (s *Store) GetExercise(ctx context.Context, name string) (store.Exercise, error) {
	var ex store.Exercise
	ex.Name = name
	err := s.db.QueryRowContext(ctx, `SELECT tag, source FROM exercises WHERE name = ?`, name).
		Scan(&ex.StartingTag, &ex.TemplateSource)
	if err == sql.ErrNoRows {
		return store.Exercise{}, gferrors.NewNotFoundError(name, gferrors.NoSuchExercise)
	}
	if err != nil {
		return store.Exercise{}, gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	return ex, nil
}

// ListExercises implements store.Store, preserving insertion order.
func (s *Store) ListExercises(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM exercises ORDER BY seq`)
	if err != nil {
		return nil, gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, gferrors.NewExternalError("sqlite scan", gferrors.PersistenceIO, err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// EnableEdge implements store.Store.
func (s *Store) EnableEdge(ctx context.Context, inTag, outTag, config string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT in_tag, out_tag, config FROM enabled_edges`)
	if err != nil {
		return gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	var existing []graph.Edge
	for rows.Next() {
		var e graph.Edge
		if err := rows.Scan(&e.InTag, &e.OutTag, &e.Config); err != nil {
			rows.Close()
			return gferrors.NewExternalError("sqlite scan", gferrors.PersistenceIO, err)
		}
		existing = append(existing, e)
	}
	rows.Close()

	candidate := graph.Edge{InTag: inTag, OutTag: outTag, Config: config}
	if err := graph.ValidateAdmission(existing, candidate); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO enabled_edges (in_tag, out_tag, config) VALUES (?, ?, ?)`, inTag, outTag, config); err != nil {
		return gferrors.NewExternalError("sqlite insert", gferrors.PersistenceIO, err)
	}
	return nil
}

// Plan implements store.Store.
func (s *Store) Plan(ctx context.Context, startTag string) ([]graph.Step, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT in_tag, out_tag, config FROM enabled_edges`)
	if err != nil {
		return nil, gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	defer rows.Close()

	var edges []graph.Edge
	for rows.Next() {
		var e graph.Edge
		if err := rows.Scan(&e.InTag, &e.OutTag, &e.Config); err != nil {
			return nil, gferrors.NewExternalError("sqlite scan", gferrors.PersistenceIO, err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, gferrors.NewExternalError("sqlite rows", gferrors.PersistenceIO, err)
	}

	return graph.Plan(edges, startTag)
}

// CreateSubmission implements store.Store.
func (s *Store) CreateSubmission(ctx context.Context, userID int64, exerciseName, source string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (user_id, name, source) VALUES (?, ?, ?)`, userID, exerciseName, source)
	if err != nil {
		return 0, gferrors.NewExternalError("sqlite insert", gferrors.PersistenceIO, err)
	}
	return res.LastInsertId()
}

// CommitResult implements store.Store.
func (s *Store) CommitResult(ctx context.Context, submissionID, userID int64, report pipeline.TestReport) error {
	var ownerID int64
	if err := s.db.QueryRowContext(ctx, `SELECT user_id FROM submissions WHERE submission_id = ?`, submissionID).Scan(&ownerID); err != nil {
		if err == sql.ErrNoRows {
			return gferrors.NewAuthError("submission", gferrors.OwnershipMismatch)
		}
		return gferrors.NewExternalError("sqlite select", gferrors.PersistenceIO, err)
	}
	if ownerID != userID {
		return gferrors.NewAuthError("submission", gferrors.OwnershipMismatch)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gferrors.NewExternalError("sqlite begin", gferrors.PersistenceIO, err)
	}
	defer tx.Rollback()

	for name, outcome := range report.Tests {
		buildStatus, err := json.Marshal(outcome.Build)
		if err != nil {
			return gferrors.NewExternalError("json marshal", gferrors.PersistenceIO, err)
		}
		runStatus, err := json.Marshal(outcome.Run)
		if err != nil {
			return gferrors.NewExternalError("json marshal", gferrors.PersistenceIO, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO test_results (submission_id, test_name, build_status, run_status, points) VALUES (?, ?, ?, ?, ?)`,
			submissionID, name, string(buildStatus), string(runStatus), outcome.Points); err != nil {
			return gferrors.NewExternalError("sqlite insert", gferrors.PersistenceIO, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return gferrors.NewExternalError("sqlite commit", gferrors.PersistenceIO, err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
