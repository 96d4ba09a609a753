// Package store holds the repository contract and the in-memory backend.
package store

import (
	"context"

	"github.com/ad/go-hooks-academy/internal/models"
)

type UserRepository interface {
	// CreateUser fails with ErrUsernameTaken when the username is in use.
	CreateUser(ctx context.Context, creds models.Credentials) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	// GetUserByUsername matches the username exactly, case included.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type ProgressRepository interface {
	GetUserProgress(ctx context.Context, userID int64) ([]models.Progress, error)
	// UpdateUserProgress upserts the record for (UserID, TutorialID).
	UpdateUserProgress(ctx context.Context, update models.ProgressUpdate) (*models.Progress, error)
	UpdateProgress(ctx context.Context, id int64, patch models.ProgressPatch) (*models.Progress, error)
}

type QuizAttemptRepository interface {
	// SaveQuizAttempt also marks the pair's progress quiz-completed.
	SaveQuizAttempt(ctx context.Context, in models.QuizAttemptInput) (*models.QuizAttempt, error)
	GetQuizAttempts(ctx context.Context, userID int64, tutorialID string) ([]models.QuizAttempt, error)
	GetUserQuizAttempts(ctx context.Context, userID int64) ([]models.QuizAttempt, error)
}

// Stores is the set of repositories handed to the services.
type Stores struct {
	Users    UserRepository
	Progress ProgressRepository
	Attempts QuizAttemptRepository
}

// NewMemoryStores backs every repository with one shared Memory.
func NewMemoryStores() Stores {
	m := NewMemory()
	return Stores{
		Users:    m,
		Progress: m,
		Attempts: m,
	}
}
