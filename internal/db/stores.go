package db

import "github.com/ad/go-hooks-academy/internal/store"

// NewStores wires the SQLite repositories onto one queue.
func NewStores(queue *DBQueue) store.Stores {
	return store.Stores{
		Users:    NewUserRepository(queue),
		Progress: NewProgressRepository(queue),
		Attempts: NewQuizAttemptRepository(queue),
	}
}
