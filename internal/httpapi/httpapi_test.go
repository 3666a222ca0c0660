package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gradeforge/gradeforge/internal/goexercise"
	"github.com/gradeforge/gradeforge/internal/logger"
	"github.com/gradeforge/gradeforge/internal/orchestrator"
	"github.com/gradeforge/gradeforge/internal/pipeline"
	"github.com/gradeforge/gradeforge/internal/store/memstore"
)

const dummyTemplate = `package tmpl

type S struct{}

func (s S) greet() string { return "hi" }

//gradeforge:testcase points=1
//gradeforge:override S.greet
func test1() {
	s := S{}
	s.greet()
}

//gradeforge:testcase points=1
//gradeforge:override S.greet
func test2() {
	s := S{}
	s.greet()
}
`

func newTestAPI(t *testing.T) *API {
	t.Helper()
	ctx := context.Background()

	tags := pipeline.NewTagMap()
	st := memstore.New()
	log, err := logger.New(logger.Options{})
	require.NoError(t, err)

	o := orchestrator.New(tags, st, 2, log)
	require.NoError(t, o.AddPlugin(ctx, goexercise.Plugin{}))
	require.NoError(t, o.AddExercise(ctx, "DummyExercise", goexercise.StartingTag, dummyTemplate))

	return New(o)
}

func newMux(t *testing.T) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	newTestAPI(t).Routes(mux)
	return mux
}

func form(values map[string]string) *strings.Reader {
	v := url.Values{}
	for k, val := range values {
		v.Set(k, val)
	}
	return strings.NewReader(v.Encode())
}

func postForm(mux *http.ServeMux, path string, values map[string]string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, form(values))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestRegisterLoginSubmitHappyPath(t *testing.T) {
	mux := newMux(t)

	regRec := postForm(mux, "/register", map[string]string{"username": "u1", "password": "p1"}, nil)
	require.Equal(t, http.StatusOK, regRec.Code)

	loginRec := postForm(mux, "/login", map[string]string{"username": "u1", "password": "p1"}, nil)
	require.Equal(t, http.StatusOK, loginRec.Code)

	var tokenCookie *http.Cookie
	for _, c := range loginRec.Result().Cookies() {
		if c.Name == CookieName {
			tokenCookie = c
		}
	}
	require.NotNil(t, tokenCookie)

	submitRec := postForm(mux, "/submit", map[string]string{"problem": "DummyExercise", "source": ""}, []*http.Cookie{tokenCookie})
	require.Equal(t, http.StatusOK, submitRec.Code)

	var report pipeline.TestReport
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &report))
	require.True(t, report.AllFullMarks())
	require.Len(t, report.Tests, 2)
}

func TestRegisterDuplicateUserReturns422(t *testing.T) {
	mux := newMux(t)

	require.Equal(t, http.StatusOK, postForm(mux, "/register", map[string]string{"username": "u1", "password": "p1"}, nil).Code)
	rec := postForm(mux, "/register", map[string]string{"username": "u1", "password": "p1"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLoginWrongPasswordReturns401(t *testing.T) {
	mux := newMux(t)

	require.Equal(t, http.StatusOK, postForm(mux, "/register", map[string]string{"username": "u1", "password": "p1"}, nil).Code)
	rec := postForm(mux, "/login", map[string]string{"username": "u1", "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitWithoutCookieReturns401(t *testing.T) {
	mux := newMux(t)
	rec := postForm(mux, "/submit", map[string]string{"problem": "DummyExercise", "source": ""}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitUnknownExerciseReturns404(t *testing.T) {
	mux := newMux(t)

	require.Equal(t, http.StatusOK, postForm(mux, "/register", map[string]string{"username": "u1", "password": "p1"}, nil).Code)
	loginRec := postForm(mux, "/login", map[string]string{"username": "u1", "password": "p1"}, nil)
	var tokenCookie *http.Cookie
	for _, c := range loginRec.Result().Cookies() {
		if c.Name == CookieName {
			tokenCookie = c
		}
	}
	require.NotNil(t, tokenCookie)

	rec := postForm(mux, "/submit", map[string]string{"problem": "no-such", "source": ""}, []*http.Cookie{tokenCookie})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProblemsReturnsRegisteredExercises(t *testing.T) {
	mux := newMux(t)

	req := httptest.NewRequest(http.MethodGet, "/list_problems", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	require.Contains(t, names, "DummyExercise")
}
