package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ad/go-hooks-academy/internal/models"
	"github.com/ad/go-hooks-academy/internal/services"
	"github.com/ad/go-hooks-academy/internal/store"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	auth    *services.AuthService
	tracker *services.ProgressTracker
	stats   *services.StatisticsCalculator
}

func New(auth *services.AuthService, tracker *services.ProgressTracker, stats *services.StatisticsCalculator) *Handler {
	return &Handler{
		auth:    auth,
		tracker: tracker,
		stats:   stats,
	}
}

func (h *Handler) Routes(g *echo.Group) {
	g.POST("/register", h.RegisterUser)
	g.POST("/login", h.LoginUser)
	g.GET("/users/:userId", h.GetUser)
	g.GET("/users/:userId/summary", h.GetUserSummary)

	g.GET("/progress/:userId", h.GetProgress)
	g.POST("/progress", h.UpdateProgress)
	g.PATCH("/progress/:id", h.PatchProgress)

	g.POST("/quiz/attempt", h.SaveQuizAttempt)
	g.GET("/quiz/attempts/:userId/:tutorialId", h.GetQuizAttempts)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username}
}

type progressRequest struct {
	UserID        int64                      `json:"userId"`
	TutorialID    string                     `json:"tutorialId"`
	Completed     models.Optional[bool]      `json:"completed"`
	QuizCompleted models.Optional[bool]      `json:"quizCompleted"`
	QuizScore     models.Optional[int]       `json:"quizScore"`
	LastViewed    models.Optional[time.Time] `json:"lastViewed"`
}

func (r progressRequest) toUpdate() models.ProgressUpdate {
	patch := models.ProgressPatch{
		Completed:     r.Completed,
		QuizCompleted: r.QuizCompleted,
		LastViewed:    r.LastViewed,
	}
	if _, ok := r.QuizScore.Get(); ok && !r.QuizCompleted.IsSet() {
		patch.QuizCompleted = models.Some(true)
	}
	return models.ProgressUpdate{
		UserID:        r.UserID,
		TutorialID:    r.TutorialID,
		ProgressPatch: patch,
	}
}

type quizAttemptRequest struct {
	UserID      int64           `json:"userId"`
	TutorialID  string          `json:"tutorialId"`
	Score       *int            `json:"score"`
	Answers     json.RawMessage `json:"answers"`
	AttemptedAt *time.Time      `json:"attemptedAt"`
}

func (r quizAttemptRequest) toInput() models.QuizAttemptInput {
	in := models.QuizAttemptInput{
		UserID:     r.UserID,
		TutorialID: r.TutorialID,
		Answers:    r.Answers,
	}
	if r.Score != nil {
		in.Score = *r.Score
	}
	if r.AttemptedAt != nil {
		in.AttemptedAt = *r.AttemptedAt
	}
	return in
}

func bind(c echo.Context, dest interface{}) error {
	if err := c.Bind(dest); err != nil {
		return badRequest("Invalid request body")
	}
	return nil
}

func int64Param(c echo.Context, name string) (int64, error) {
	var v int64
	if err := echo.PathParamsBinder(c).MustInt64(name, &v).BindError(); err != nil {
		return 0, badRequest("invalid " + name)
	}
	return v, nil
}

func (h *Handler) RegisterUser(c echo.Context) error {
	var req credentialsRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.auth.Register(c.Request().Context(), models.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toUserResponse(user))
}

func (h *Handler) LoginUser(c echo.Context) error {
	var req credentialsRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.auth.Login(c.Request().Context(), models.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *Handler) GetUser(c echo.Context) error {
	userID, err := int64Param(c, "userId")
	if err != nil {
		return err
	}

	user, err := h.auth.GetUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	if user == nil {
		return &store.NotFoundError{Entity: "user", ID: userID}
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *Handler) GetUserSummary(c echo.Context) error {
	userID, err := int64Param(c, "userId")
	if err != nil {
		return err
	}

	summary, err := h.stats.Summarize(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) GetProgress(c echo.Context) error {
	userID, err := int64Param(c, "userId")
	if err != nil {
		return err
	}

	progress, err := h.tracker.GetProgress(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, progress)
}

func (h *Handler) UpdateProgress(c echo.Context) error {
	var req progressRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	p, err := h.tracker.UpdateProgress(c.Request().Context(), req.toUpdate())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PatchProgress(c echo.Context) error {
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}
	var patch models.ProgressPatch
	if err := bind(c, &patch); err != nil {
		return err
	}

	p, err := h.tracker.PatchProgress(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SaveQuizAttempt(c echo.Context) error {
	var req quizAttemptRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Score == nil {
		return badRequest("score is required")
	}

	attempt, err := h.tracker.SaveQuizAttempt(c.Request().Context(), req.toInput())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, attempt)
}

func (h *Handler) GetQuizAttempts(c echo.Context) error {
	userID, err := int64Param(c, "userId")
	if err != nil {
		return err
	}

	attempts, err := h.tracker.GetQuizAttempts(c.Request().Context(), userID, c.Param("tutorialId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, attempts)
}
