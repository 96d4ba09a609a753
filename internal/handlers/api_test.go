package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ad/go-hooks-academy/internal/events"
	"github.com/ad/go-hooks-academy/internal/models"
	"github.com/ad/go-hooks-academy/internal/services"
	"github.com/ad/go-hooks-academy/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestServer(stores store.Stores) *echo.Echo {
	logger := zerolog.Nop()
	h := New(
		services.NewAuthService(stores.Users, logger),
		services.NewProgressTracker(stores.Progress, stores.Attempts, events.Nop{}, logger),
		services.NewStatisticsCalculator(stores.Progress, stores.Attempts),
	)

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	h.Routes(e.Group("/api"))
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func expectMessage(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	expectStatus(t, rec, status)
	if got := decode[errorResponse](t, rec).Message; got != message {
		t.Fatalf("message = %q, want %q", got, message)
	}
}

func TestEndToEndScenario(t *testing.T) {
	e := newTestServer(store.NewMemoryStores())

	rec := do(t, e, http.MethodPost, "/api/register", `{"username":"kim","password":"p1"}`)
	expectStatus(t, rec, http.StatusCreated)
	if u := decode[userResponse](t, rec); u.ID != 1 || u.Username != "kim" {
		t.Fatalf("register = %+v", u)
	}
	if strings.Contains(rec.Body.String(), "p1") {
		t.Fatalf("password leaked in response: %s", rec.Body.String())
	}

	rec = do(t, e, http.MethodPost, "/api/login", `{"username":"kim","password":"wrong"}`)
	expectMessage(t, rec, http.StatusUnauthorized, "Invalid credentials")

	rec = do(t, e, http.MethodPost, "/api/progress", `{"userId":1,"tutorialId":"useEffect","completed":true}`)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"lastViewed":null`) {
		t.Errorf("lastViewed should serialize as null: %s", rec.Body.String())
	}
	p := decode[models.Progress](t, rec)
	if !p.Completed || p.QuizCompleted || p.LastViewed != nil {
		t.Fatalf("progress = %+v", p)
	}

	rec = do(t, e, http.MethodPost, "/api/quiz/attempt",
		`{"userId":1,"tutorialId":"useEffect","score":90,"answers":{"q1":"b"},"attemptedAt":"2024-05-01T10:00:00Z"}`)
	expectStatus(t, rec, http.StatusOK)
	a := decode[models.QuizAttempt](t, rec)
	if a.ID != 1 || a.Score != 90 || string(a.Answers) != `{"q1":"b"}` {
		t.Fatalf("attempt = %+v", a)
	}

	rec = do(t, e, http.MethodGet, "/api/progress/1", "")
	expectStatus(t, rec, http.StatusOK)
	list := decode[[]models.Progress](t, rec)
	if len(list) != 1 || !list[0].Completed || !list[0].QuizCompleted {
		t.Fatalf("progress after attempt = %+v", list)
	}
}

func TestRegisterDuplicateIsConflict(t *testing.T) {
	e := newTestServer(store.NewMemoryStores())
	expectStatus(t, do(t, e, http.MethodPost, "/api/register", `{"username":"kim","password":"p1"}`), http.StatusCreated)

	rec := do(t, e, http.MethodPost, "/api/register", `{"username":"kim","password":"other"}`)
	expectMessage(t, rec, http.StatusConflict, "Username already exists")
}

func TestLoginSuccess(t *testing.T) {
	e := newTestServer(store.NewMemoryStores())
	expectStatus(t, do(t, e, http.MethodPost, "/api/register", `{"username":"kim","password":"p1"}`), http.StatusCreated)

	rec := do(t, e, http.MethodPost, "/api/login", `{"username":"kim","password":"p1"}`)
	expectStatus(t, rec, http.StatusOK)
	if u := decode[userResponse](t, rec); u.ID != 1 || u.Username != "kim" {
		t.Fatalf("login = %+v", u)
	}

	rec = do(t, e, http.MethodPost, "/api/login", `{"username":"nobody","password":"p1"}`)
	expectMessage(t, rec, http.StatusUnauthorized, "Invalid credentials")
}

func TestMalformedInputIsBadRequest(t *testing.T) {
	e := newTestServer(store.NewMemoryStores())

	cases := []struct {
		name, method, path, body string
	}{
		{"broken json", http.MethodPost, "/api/progress", `{"userId":`},
		{"wrong type", http.MethodPost, "/api/progress", `{"userId":"one","tutorialId":"x"}`},
		{"missing user", http.MethodPost, "/api/progress", `{"tutorialId":"useState"}`},
		{"missing tutorial", http.MethodPost, "/api/progress", `{"userId":1}`},
		{"missing score", http.MethodPost, "/api/quiz/attempt", `{"userId":1,"tutorialId":"useState"}`},
		{"empty register", http.MethodPost, "/api/register", `{"username":"","password":""}`},
		{"non numeric user", http.MethodGet, "/api/progress/abc", ""},
		{"non numeric attempts user", http.MethodGet, "/api/quiz/attempts/abc/useState", ""},
		{"non numeric patch id", http.MethodPatch, "/api/progress/x", `{"completed":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, e, tc.method, tc.path, tc.body)
			expectStatus(t, rec, http.StatusBadRequest)
			if decode[errorResponse](t, rec).Message == "" {
				t.Errorf("expected a message")
			}
		})
	}
}

func TestPatchProgress(t *testing.T) {
	e := newTestServer(store.NewMemoryStores())

	rec := do(t, e, http.MethodPost, "/api/progress", `{"userId":3,"tutorialId":"useRef","completed":true,"lastViewed":"2024-01-02T03:04:05Z"}`)
	expectStatus(t, rec, http.StatusOK)
	created := decode[models.Progress](t, rec)

	rec = do(t, e, http.MethodPatch, "/api/progress/1", `{"completed":null,"quizCompleted":true}`)
	expectStatus(t, rec, http.StatusOK)
	p := decode[models.Progress](t, rec)
	if p.ID != created.ID || !p.Completed || !p.QuizCompleted {
		t.Fatalf("patched = %+v", p)
	}
	if p.LastViewed == nil || !p.LastViewed.Equal(*created.LastViewed) {
		t.Fatalf("lastViewed changed: %v", p.LastViewed)
	}

	rec = do(t, e, http.MethodPatch, "/api/progress/99", `{"completed":true}`)
	expectMessage(t, rec, http.StatusNotFound, "progress 99 not found")
}

func TestQuizScoreMarksQuizCompleted(t *testing.T) {
	e := newTestServer(store.NewMemoryStores())

	rec := do(t, e, http.MethodPost, "/api/progress", `{"userId":1,"tutorialId":"useMemo","quizScore":70}`)
	expectStatus(t, rec, http.StatusOK)
	if p := decode[models.Progress](t, rec); !p.QuizCompleted || p.Completed {
		t.Fatalf("progress = %+v", p)
	}

	rec = do(t, e, http.MethodPost, "/api/progress", `{"userId":1,"tutorialId":"useCallback","quizScore":70,"quizCompleted":false}`)
	expectStatus(t, rec, http.StatusOK)
	if p := decode[models.Progress](t, rec); p.QuizCompleted {
		t.Fatalf("explicit quizCompleted ignored: %+v", p)
	}

	rec = do(t, e, http.MethodPost, "/api/progress", `{"userId":1,"tutorialId":"useId","quizScore":null}`)
	expectStatus(t, rec, http.StatusOK)
	if p := decode[models.Progress](t, rec); p.QuizCompleted {
		t.Fatalf("null quizScore marked quiz completed: %+v", p)
	}
}

func TestQuizAttemptsAreListedPerTutorial(t *testing.T) {
	e := newTestServer(store.NewMemoryStores())

	for _, body := range []string{
		`{"userId":1,"tutorialId":"useState","score":40,"answers":[]}`,
		`{"userId":1,"tutorialId":"useState","score":80,"answers":[]}`,
		`{"userId":1,"tutorialId":"useEffect","score":50,"answers":[]}`,
	} {
		expectStatus(t, do(t, e, http.MethodPost, "/api/quiz/attempt", body), http.StatusOK)
	}

	rec := do(t, e, http.MethodGet, "/api/quiz/attempts/1/useState", "")
	expectStatus(t, rec, http.StatusOK)
	attempts := decode[[]models.QuizAttempt](t, rec)
	if len(attempts) != 2 || attempts[0].Score != 40 || attempts[1].Score != 80 {
		t.Fatalf("attempts = %+v", attempts)
	}
	if attempts[0].AttemptedAt.IsZero() {
		t.Errorf("attemptedAt was not defaulted")
	}

	rec = do(t, e, http.MethodGet, "/api/quiz/attempts/2/useState", "")
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("unknown user should get [], got %s", rec.Body.String())
	}
}

func TestEmptyProgressIsArray(t *testing.T) {
	e := newTestServer(store.NewMemoryStores())
	rec := do(t, e, http.MethodGet, "/api/progress/5", "")
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", rec.Body.String())
	}
}

func TestUserRoutes(t *testing.T) {
	e := newTestServer(store.NewMemoryStores())
	expectStatus(t, do(t, e, http.MethodPost, "/api/register", `{"username":"kim","password":"p1"}`), http.StatusCreated)
	expectStatus(t, do(t, e, http.MethodPost, "/api/quiz/attempt", `{"userId":1,"tutorialId":"useState","score":60}`), http.StatusOK)

	rec := do(t, e, http.MethodGet, "/api/users/1", "")
	expectStatus(t, rec, http.StatusOK)
	if u := decode[userResponse](t, rec); u.Username != "kim" {
		t.Fatalf("user = %+v", u)
	}

	expectMessage(t, do(t, e, http.MethodGet, "/api/users/2", ""), http.StatusNotFound, "user 2 not found")

	rec = do(t, e, http.MethodGet, "/api/users/1/summary", "")
	expectStatus(t, rec, http.StatusOK)
	s := decode[services.UserSummary](t, rec)
	if s.TotalAttempts != 1 || s.QuizzesCompleted != 1 || s.AverageScore != 60 || len(s.Tutorials) != 1 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	e := newTestServer(store.NewMemoryStores())
	rec := do(t, e, http.MethodGet, "/api/nope", "")
	expectStatus(t, rec, http.StatusNotFound)
	if decode[errorResponse](t, rec).Message == "" {
		t.Errorf("expected a message")
	}
}

type failingProgress struct {
	store.ProgressRepository
}

func (failingProgress) GetUserProgress(context.Context, int64) ([]models.Progress, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreFailureIsInternalError(t *testing.T) {
	stores := store.NewMemoryStores()
	stores.Progress = failingProgress{stores.Progress}
	e := newTestServer(stores)

	rec := do(t, e, http.MethodGet, "/api/progress/1", "")
	expectMessage(t, rec, http.StatusInternalServerError, "disk on fire")
}
