package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ad/go-hooks-academy/internal/models"
	"github.com/ad/go-hooks-academy/internal/store"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type UserRepository struct {
	queue *DBQueue
}

func NewUserRepository(queue *DBQueue) *UserRepository {
	return &UserRepository{queue: queue}
}

func (r *UserRepository) CreateUser(ctx context.Context, creds models.Credentials) (*models.User, error) {
	result, err := r.queue.Execute(ctx, func(db *sql.DB) (interface{}, error) {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, creds.Username).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists > 0 {
			return nil, permanent(store.ErrUsernameTaken)
		}

		createdAt := time.Now().UTC()
		res, err := db.ExecContext(ctx, `
			INSERT INTO users (username, password, created_at)
			VALUES (?, ?, ?)
		`, creds.Username, creds.Password, createdAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, permanent(store.ErrUsernameTaken)
			}
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return &models.User{
			ID:        id,
			Username:  creds.Username,
			Password:  creds.Password,
			CreatedAt: createdAt,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.User), nil
}

func (r *UserRepository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `
		SELECT id, username, password, created_at
		FROM users WHERE id = ?
	`, id)
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `
		SELECT id, username, password, created_at
		FROM users WHERE username = ?
	`, username)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	result, err := r.queue.Execute(ctx, func(db *sql.DB) (interface{}, error) {
		var user models.User
		var createdAt sql.NullTime
		err := db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Username, &user.Password, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return (*models.User)(nil), nil
		}
		if err != nil {
			return nil, err
		}
		if createdAt.Valid {
			user.CreatedAt = createdAt.Time.UTC()
		}
		return &user, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.User), nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
