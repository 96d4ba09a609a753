package services

import (
	"context"
	"time"

	"github.com/ad/go-hooks-academy/internal/store"
)

type TutorialStats struct {
	TutorialID    string    `json:"tutorialId"`
	Attempts      int       `json:"attempts"`
	BestScore     int       `json:"bestScore"`
	LastScore     int       `json:"lastScore"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
}

type UserSummary struct {
	UserID             int64           `json:"userId"`
	TutorialsStarted   int             `json:"tutorialsStarted"`
	TutorialsCompleted int             `json:"tutorialsCompleted"`
	QuizzesCompleted   int             `json:"quizzesCompleted"`
	TotalAttempts      int             `json:"totalAttempts"`
	AverageScore       float64         `json:"averageScore"`
	LastAttemptAt      *time.Time      `json:"lastAttemptAt"`
	Tutorials          []TutorialStats `json:"tutorials"`
}

type StatisticsCalculator struct {
	progress store.ProgressRepository
	attempts store.QuizAttemptRepository
}

func NewStatisticsCalculator(progress store.ProgressRepository, attempts store.QuizAttemptRepository) *StatisticsCalculator {
	return &StatisticsCalculator{
		progress: progress,
		attempts: attempts,
	}
}

// Summarize aggregates one user's progress records and quiz attempts. A user
// with no activity gets a zeroed summary.
func (c *StatisticsCalculator) Summarize(ctx context.Context, userID int64) (*UserSummary, error) {
	summary := &UserSummary{
		UserID:    userID,
		Tutorials: []TutorialStats{},
	}

	progress, err := c.progress.GetUserProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary.TutorialsStarted = len(progress)
	for _, p := range progress {
		if p.Completed {
			summary.TutorialsCompleted++
		}
		if p.QuizCompleted {
			summary.QuizzesCompleted++
		}
	}

	attempts, err := c.attempts.GetUserQuizAttempts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return summary, nil
	}

	index := make(map[string]int)
	total := 0
	for _, a := range attempts {
		total += a.Score

		i, ok := index[a.TutorialID]
		if !ok {
			i = len(summary.Tutorials)
			index[a.TutorialID] = i
			summary.Tutorials = append(summary.Tutorials, TutorialStats{
				TutorialID: a.TutorialID,
				BestScore:  a.Score,
			})
		}
		ts := &summary.Tutorials[i]
		ts.Attempts++
		if a.Score > ts.BestScore {
			ts.BestScore = a.Score
		}
		// Attempts arrive in insertion order, so the latest one wins.
		ts.LastScore = a.Score
		ts.LastAttemptAt = a.AttemptedAt

		if summary.LastAttemptAt == nil || a.AttemptedAt.After(*summary.LastAttemptAt) {
			at := a.AttemptedAt
			summary.LastAttemptAt = &at
		}
	}

	summary.TotalAttempts = len(attempts)
	summary.AverageScore = float64(total) / float64(len(attempts))
	return summary, nil
}
