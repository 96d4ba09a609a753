package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/ad/go-hooks-academy/internal/models"
)

type QuizAttemptRepository struct {
	queue *DBQueue
}

func NewQuizAttemptRepository(queue *DBQueue) *QuizAttemptRepository {
	return &QuizAttemptRepository{queue: queue}
}

// SaveQuizAttempt inserts the attempt and upserts the pair's progress in one
// transaction.
func (r *QuizAttemptRepository) SaveQuizAttempt(ctx context.Context, in models.QuizAttemptInput) (*models.QuizAttempt, error) {
	result, err := r.queue.Execute(ctx, func(db *sql.DB) (interface{}, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		attempt := models.NewQuizAttempt(0, in)
		var answers interface{}
		if attempt.Answers != nil {
			answers = string(attempt.Answers)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO quiz_attempts (user_id, tutorial_id, score, answers, attempted_at)
			VALUES (?, ?, ?, ?, ?)
		`, attempt.UserID, attempt.TutorialID, attempt.Score, answers, attempt.AttemptedAt)
		if err != nil {
			return nil, err
		}
		if attempt.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}

		_, err = upsertProgress(ctx, tx, attempt.UserID, attempt.TutorialID, func(p *models.Progress, isNew bool) {
			p.MarkQuizCompleted(isNew, attempt.AttemptedAt)
		})
		if err != nil {
			return nil, err
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &attempt, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.QuizAttempt), nil
}

func (r *QuizAttemptRepository) GetQuizAttempts(ctx context.Context, userID int64, tutorialID string) ([]models.QuizAttempt, error) {
	return r.list(ctx, `
		SELECT id, user_id, tutorial_id, score, answers, attempted_at
		FROM quiz_attempts WHERE user_id = ? AND tutorial_id = ?
		ORDER BY id
	`, userID, tutorialID)
}

func (r *QuizAttemptRepository) GetUserQuizAttempts(ctx context.Context, userID int64) ([]models.QuizAttempt, error) {
	return r.list(ctx, `
		SELECT id, user_id, tutorial_id, score, answers, attempted_at
		FROM quiz_attempts WHERE user_id = ?
		ORDER BY id
	`, userID)
}

func (r *QuizAttemptRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.QuizAttempt, error) {
	result, err := r.queue.Execute(ctx, func(db *sql.DB) (interface{}, error) {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		attempts := make([]models.QuizAttempt, 0)
		for rows.Next() {
			var attempt models.QuizAttempt
			var answers sql.NullString
			if err := rows.Scan(&attempt.ID, &attempt.UserID, &attempt.TutorialID,
				&attempt.Score, &answers, &attempt.AttemptedAt); err != nil {
				return nil, err
			}
			if answers.Valid {
				attempt.Answers = json.RawMessage(answers.String)
			}
			attempt.AttemptedAt = attempt.AttemptedAt.UTC()
			attempts = append(attempts, attempt)
		}
		return attempts, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.QuizAttempt), nil
}
