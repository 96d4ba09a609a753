package store

import (
	"context"
	"sync"
	"time"

	"github.com/ad/go-hooks-academy/internal/models"
)

// Memory keeps all state in process maps. One mutex covers every
// read-modify-write so upserts and id assignment are atomic.
type Memory struct {
	mu sync.Mutex

	users      map[int64]*models.User
	progress   map[int64][]*models.Progress
	progressID map[int64]*models.Progress
	attempts   map[int64][]models.QuizAttempt

	nextUserID     int64
	nextProgressID int64
	nextAttemptID  int64
}

func NewMemory() *Memory {
	return &Memory{
		users:      make(map[int64]*models.User),
		progress:   make(map[int64][]*models.Progress),
		progressID: make(map[int64]*models.Progress),
		attempts:   make(map[int64][]models.QuizAttempt),
	}
}

func (m *Memory) CreateUser(_ context.Context, creds models.Credentials) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findUserByUsername(creds.Username) != nil {
		return nil, ErrUsernameTaken
	}

	m.nextUserID++
	user := &models.User{
		ID:        m.nextUserID,
		Username:  creds.Username,
		Password:  creds.Password,
		CreatedAt: time.Now().UTC(),
	}
	m.users[user.ID] = user

	u := *user
	return &u, nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	u := *user
	return &u, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.findUserByUsername(username)
	if user == nil {
		return nil, nil
	}
	u := *user
	return &u, nil
}

func (m *Memory) findUserByUsername(username string) *models.User {
	for _, user := range m.users {
		if user.Username == username {
			return user
		}
	}
	return nil
}

func (m *Memory) GetUserProgress(_ context.Context, userID int64) ([]models.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.progress[userID]
	result := make([]models.Progress, 0, len(records))
	for _, p := range records {
		result = append(result, *p)
	}
	return result, nil
}

func (m *Memory) UpdateUserProgress(_ context.Context, update models.ProgressUpdate) (*models.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.findProgress(update.UserID, update.TutorialID); existing != nil {
		existing.Apply(update.ProgressPatch)
		p := *existing
		return &p, nil
	}

	m.nextProgressID++
	created := models.NewProgress(m.nextProgressID, update)
	m.insertProgress(&created)

	p := created
	return &p, nil
}

func (m *Memory) UpdateProgress(_ context.Context, id int64, patch models.ProgressPatch) (*models.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.progressID[id]
	if !ok {
		return nil, &NotFoundError{Entity: "progress", ID: id}
	}
	existing.Apply(patch)
	p := *existing
	return &p, nil
}

func (m *Memory) SaveQuizAttempt(_ context.Context, in models.QuizAttemptInput) (*models.QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAttemptID++
	attempt := models.NewQuizAttempt(m.nextAttemptID, in)
	m.attempts[in.UserID] = append(m.attempts[in.UserID], attempt)

	if existing := m.findProgress(in.UserID, in.TutorialID); existing != nil {
		existing.MarkQuizCompleted(false, attempt.AttemptedAt)
	} else {
		m.nextProgressID++
		created := models.NewProgress(m.nextProgressID, models.ProgressUpdate{
			UserID:     in.UserID,
			TutorialID: in.TutorialID,
		})
		created.MarkQuizCompleted(true, attempt.AttemptedAt)
		m.insertProgress(&created)
	}

	a := attempt
	return &a, nil
}

func (m *Memory) GetQuizAttempts(_ context.Context, userID int64, tutorialID string) ([]models.QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]models.QuizAttempt, 0)
	for _, attempt := range m.attempts[userID] {
		if attempt.TutorialID == tutorialID {
			result = append(result, attempt)
		}
	}
	return result, nil
}

func (m *Memory) GetUserQuizAttempts(_ context.Context, userID int64) ([]models.QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempts := m.attempts[userID]
	result := make([]models.QuizAttempt, len(attempts))
	copy(result, attempts)
	return result, nil
}

func (m *Memory) findProgress(userID int64, tutorialID string) *models.Progress {
	for _, p := range m.progress[userID] {
		if p.TutorialID == tutorialID {
			return p
		}
	}
	return nil
}

func (m *Memory) insertProgress(p *models.Progress) {
	m.progress[p.UserID] = append(m.progress[p.UserID], p)
	m.progressID[p.ID] = p
}
