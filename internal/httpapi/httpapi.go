// Package httpapi exposes the orchestrator over four endpoints:
// /register, /login, /list_problems, and /submit. It is a thin
// net/http.ServeMux handler: JSON responses, one handler method per
// route, no templating or static asset serving.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gradeforge/gradeforge/internal/logger"
	"github.com/gradeforge/gradeforge/internal/orchestrator"
	"github.com/gradeforge/gradeforge/internal/store"
	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
)

// correlationHeader is the incoming header a caller may set to thread
// its own request id through gradeforge's logging; a missing or empty
// header gets a fresh one instead.
const correlationHeader = "X-Correlation-ID"

// CookieName is the session cookie set on login and read on submit.
const CookieName = "auth_token"

// API is the HTTP surface bound to one running Orchestrator.
type API struct {
	o *orchestrator.Orchestrator
}

// New builds an API over o.
func New(o *orchestrator.Orchestrator) *API {
	return &API{o: o}
}

// Routes registers the four contract endpoints on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /register", a.handleRegister)
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("GET /list_problems", a.handleListProblems)
	mux.HandleFunc("POST /submit", a.handleSubmit)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, gferrors.NewValidationError("form", err.Error(), gferrors.WrongVariant))
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")

	if _, err := a.o.Store.Register(r.Context(), username, password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, gferrors.NewValidationError("form", err.Error(), gferrors.WrongVariant))
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")

	authed, err := a.o.Store.Login(r.Context(), username, password)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    authed.SessionToken,
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(24 * time.Hour),
	})
	w.WriteHeader(http.StatusOK)
}

func (a *API) handleListProblems(w http.ResponseWriter, r *http.Request) {
	names, err := a.o.Store.ListExercises(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user, err := a.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, gferrors.NewValidationError("form", err.Error(), gferrors.WrongVariant))
		return
	}

	problem := r.FormValue("problem")
	source := r.FormValue("source")

	report, err := a.o.ProcessSubmission(withCorrelationID(r), problem, source, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// withCorrelationID returns r's context carrying the caller-supplied
// X-Correlation-ID, or a freshly generated one if absent.
func withCorrelationID(r *http.Request) context.Context {
	id := r.Header.Get(correlationHeader)
	if id == "" {
		id = logger.NewCorrelationID()
	}
	return logger.WithCorrelationID(r.Context(), id)
}

func (a *API) authenticate(r *http.Request) (store.User[store.AuthenticatedRole], error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return store.User[store.AuthenticatedRole]{}, gferrors.NewAuthError(CookieName, gferrors.TokenMissing)
	}
	return a.o.Store.LookupByToken(r.Context(), cookie.Value)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps a pkg/errors kind to an explicit status code (Open
// Question decision, DESIGN.md): NotFoundError -> 404, AuthError ->
// 401/403, ValidationError -> 422, ExternalError -> 500, shutdown ->
// 503.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var notFound *gferrors.NotFoundError
	var authErr *gferrors.AuthError
	var validationErr *gferrors.ValidationError
	var externalErr *gferrors.ExternalError
	var shutdownErr *gferrors.ShutdownError

	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &authErr):
		if errors.Is(err, gferrors.OwnershipMismatch) {
			status = http.StatusForbidden
		} else {
			status = http.StatusUnauthorized
		}
	case errors.As(err, &validationErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &externalErr):
		status = http.StatusInternalServerError
	case errors.As(err, &shutdownErr):
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, errorBody{Error: err.Error()})
}
