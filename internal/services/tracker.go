package services

import (
	"context"
	"strings"
	"time"

	"github.com/ad/go-hooks-academy/internal/events"
	"github.com/ad/go-hooks-academy/internal/models"
	"github.com/ad/go-hooks-academy/internal/store"
	"github.com/rs/zerolog"
)

// ProgressTracker validates progress and quiz writes before they reach the
// store and announces every successful write on the event publisher.
type ProgressTracker struct {
	progress  store.ProgressRepository
	attempts  store.QuizAttemptRepository
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewProgressTracker(progress store.ProgressRepository, attempts store.QuizAttemptRepository, publisher events.Publisher, logger zerolog.Logger) *ProgressTracker {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &ProgressTracker{
		progress:  progress,
		attempts:  attempts,
		publisher: publisher,
		logger:    logger.With().Str("component", "tracker").Logger(),
		now:       time.Now,
	}
}

func (t *ProgressTracker) GetProgress(ctx context.Context, userID int64) ([]models.Progress, error) {
	return t.progress.GetUserProgress(ctx, userID)
}

func (t *ProgressTracker) UpdateProgress(ctx context.Context, update models.ProgressUpdate) (*models.Progress, error) {
	if err := validatePair(update.UserID, update.TutorialID); err != nil {
		return nil, err
	}

	p, err := t.progress.UpdateUserProgress(ctx, update)
	if err != nil {
		return nil, err
	}
	t.publishProgress(ctx, p)
	return p, nil
}

// PatchProgress updates the record with the given id. An unknown id yields
// a *store.NotFoundError.
func (t *ProgressTracker) PatchProgress(ctx context.Context, id int64, patch models.ProgressPatch) (*models.Progress, error) {
	if id <= 0 {
		return nil, &store.NotFoundError{Entity: "progress", ID: id}
	}

	p, err := t.progress.UpdateProgress(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	t.publishProgress(ctx, p)
	return p, nil
}

func (t *ProgressTracker) SaveQuizAttempt(ctx context.Context, in models.QuizAttemptInput) (*models.QuizAttempt, error) {
	if err := validatePair(in.UserID, in.TutorialID); err != nil {
		return nil, err
	}
	if in.AttemptedAt.IsZero() {
		in.AttemptedAt = t.now().UTC()
	}

	attempt, err := t.attempts.SaveQuizAttempt(ctx, in)
	if err != nil {
		return nil, err
	}

	score := attempt.Score
	quizCompleted := true
	t.publish(ctx, events.Event{
		Type:          events.TypeQuizAttempted,
		UserID:        attempt.UserID,
		TutorialID:    attempt.TutorialID,
		QuizCompleted: &quizCompleted,
		Score:         &score,
		OccurredAt:    attempt.AttemptedAt,
	})
	return attempt, nil
}

func (t *ProgressTracker) GetQuizAttempts(ctx context.Context, userID int64, tutorialID string) ([]models.QuizAttempt, error) {
	return t.attempts.GetQuizAttempts(ctx, userID, tutorialID)
}

func (t *ProgressTracker) publishProgress(ctx context.Context, p *models.Progress) {
	completed, quizCompleted := p.Completed, p.QuizCompleted
	t.publish(ctx, events.Event{
		Type:          events.TypeProgressUpdated,
		UserID:        p.UserID,
		TutorialID:    p.TutorialID,
		Completed:     &completed,
		QuizCompleted: &quizCompleted,
		OccurredAt:    t.now().UTC(),
	})
}

// publish never fails the caller; the write it reports has already happened.
func (t *ProgressTracker) publish(ctx context.Context, event events.Event) {
	if err := t.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		t.logger.Warn().Err(err).
			Str("event", string(event.Type)).
			Int64("user_id", event.UserID).
			Str("tutorial_id", event.TutorialID).
			Msg("failed to publish event")
	}
}

func validatePair(userID int64, tutorialID string) error {
	if userID <= 0 {
		return invalid("userId must be a positive integer")
	}
	if strings.TrimSpace(tutorialID) == "" {
		return invalid("tutorialId is required")
	}
	return nil
}
