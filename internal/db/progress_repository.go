package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ad/go-hooks-academy/internal/models"
	"github.com/ad/go-hooks-academy/internal/store"
)

type ProgressRepository struct {
	queue *DBQueue
}

func NewProgressRepository(queue *DBQueue) *ProgressRepository {
	return &ProgressRepository{queue: queue}
}

const progressColumns = `id, user_id, tutorial_id, completed, quiz_completed, last_viewed`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProgress(row rowScanner) (*models.Progress, error) {
	var progress models.Progress
	var lastViewed sql.NullTime
	err := row.Scan(&progress.ID, &progress.UserID, &progress.TutorialID,
		&progress.Completed, &progress.QuizCompleted, &lastViewed)
	if err != nil {
		return nil, err
	}
	if lastViewed.Valid {
		t := lastViewed.Time.UTC()
		progress.LastViewed = &t
	}
	return &progress, nil
}

func (r *ProgressRepository) GetUserProgress(ctx context.Context, userID int64) ([]models.Progress, error) {
	result, err := r.queue.Execute(ctx, func(db *sql.DB) (interface{}, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT `+progressColumns+`
			FROM user_progress WHERE user_id = ?
			ORDER BY id
		`, userID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		progresses := make([]models.Progress, 0)
		for rows.Next() {
			progress, err := scanProgress(rows)
			if err != nil {
				return nil, err
			}
			progresses = append(progresses, *progress)
		}
		return progresses, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.Progress), nil
}

func (r *ProgressRepository) UpdateUserProgress(ctx context.Context, update models.ProgressUpdate) (*models.Progress, error) {
	return r.inTx(ctx, func(tx *sql.Tx) (*models.Progress, error) {
		return upsertProgress(ctx, tx, update.UserID, update.TutorialID, func(p *models.Progress, _ bool) {
			p.Apply(update.ProgressPatch)
		})
	})
}

func (r *ProgressRepository) UpdateProgress(ctx context.Context, id int64, patch models.ProgressPatch) (*models.Progress, error) {
	return r.inTx(ctx, func(tx *sql.Tx) (*models.Progress, error) {
		progress, err := scanProgress(tx.QueryRowContext(ctx, `
			SELECT `+progressColumns+` FROM user_progress WHERE id = ?
		`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, permanent(&store.NotFoundError{Entity: "progress", ID: id})
		}
		if err != nil {
			return nil, err
		}

		progress.Apply(patch)
		if err := writeProgress(ctx, tx, progress); err != nil {
			return nil, err
		}
		return progress, nil
	})
}

func (r *ProgressRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) (*models.Progress, error)) (*models.Progress, error) {
	result, err := r.queue.Execute(ctx, func(db *sql.DB) (interface{}, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		progress, err := fn(tx)
		if err != nil {
			return nil, err
		}
		return progress, tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Progress), nil
}

// upsertProgress loads the (userID, tutorialID) record, or starts a fresh
// one, lets mutate change it and writes it back.
func upsertProgress(ctx context.Context, tx *sql.Tx, userID int64, tutorialID string, mutate func(p *models.Progress, isNew bool)) (*models.Progress, error) {
	progress, err := scanProgress(tx.QueryRowContext(ctx, `
		SELECT `+progressColumns+`
		FROM user_progress WHERE user_id = ? AND tutorial_id = ?
	`, userID, tutorialID))

	switch {
	case errors.Is(err, sql.ErrNoRows):
		progress = &models.Progress{UserID: userID, TutorialID: tutorialID}
		mutate(progress, true)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_progress (user_id, tutorial_id, completed, quiz_completed, last_viewed)
			VALUES (?, ?, ?, ?, ?)
		`, progress.UserID, progress.TutorialID, progress.Completed, progress.QuizCompleted, progress.LastViewed)
		if err != nil {
			return nil, err
		}
		if progress.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		return progress, nil
	case err != nil:
		return nil, err
	}

	mutate(progress, false)
	if err := writeProgress(ctx, tx, progress); err != nil {
		return nil, err
	}
	return progress, nil
}

func writeProgress(ctx context.Context, tx *sql.Tx, p *models.Progress) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_progress SET completed = ?, quiz_completed = ?, last_viewed = ?
		WHERE id = ?
	`, p.Completed, p.QuizCompleted, p.LastViewed, p.ID)
	return err
}
