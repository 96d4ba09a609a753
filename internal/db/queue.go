package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

var ErrQueueClosed = errors.New("db queue closed")

type DBTask struct {
	Ctx  context.Context
	Exec func(*sql.DB) (interface{}, error)
	Resp chan DBResult
}

type DBResult struct {
	Data interface{}
	Err  error
}

// DBQueue runs every task on a single worker goroutine, so tasks never
// interleave and a read-then-write inside one task is atomic.
type DBQueue struct {
	tasks      chan DBTask
	db         *sql.DB
	maxRetry   int
	retryDelay time.Duration
	testMode   bool

	mu     sync.RWMutex
	closed bool
}

func NewDBQueue(db *sql.DB) *DBQueue {
	q := &DBQueue{
		tasks:      make(chan DBTask, 100),
		db:         db,
		maxRetry:   3,
		retryDelay: 100 * time.Millisecond,
		testMode:   false,
	}
	go q.worker()
	return q
}

func NewDBQueueForTest(db *sql.DB) *DBQueue {
	q := &DBQueue{
		tasks:      make(chan DBTask, 100),
		db:         db,
		maxRetry:   3,
		retryDelay: 1 * time.Millisecond, // Minimal delay for tests
		testMode:   true,
	}
	go q.worker()
	return q
}

// Execute enqueues task and waits for its result. A task whose context ends
// before or while it runs is neither started nor retried.
func (q *DBQueue) Execute(ctx context.Context, task func(*sql.DB) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := make(chan DBResult, 1)
	if err := q.enqueue(ctx, DBTask{Ctx: ctx, Exec: task, Resp: resp}); err != nil {
		return nil, err
	}
	result := <-resp
	return result.Data, result.Err
}

func (q *DBQueue) enqueue(ctx context.Context, task DBTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *DBQueue) worker() {
	for task := range q.tasks {
		result := q.executeWithRetry(task)
		task.Resp <- result
	}
}

func (q *DBQueue) executeWithRetry(task DBTask) DBResult {
	var lastErr error
	for attempt := 0; attempt < q.maxRetry; attempt++ {
		if task.Ctx != nil {
			if err := task.Ctx.Err(); err != nil {
				return DBResult{Err: err}
			}
		}
		data, err := task.Exec(q.db)
		if err == nil {
			return DBResult{Data: data, Err: nil}
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return DBResult{Err: perm.err}
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return DBResult{Err: err}
		}
		lastErr = err
		if attempt < q.maxRetry-1 { // Don't sleep after the last attempt
			if q.testMode {
				time.Sleep(q.retryDelay)
			} else {
				time.Sleep(time.Duration(attempt+1) * q.retryDelay)
			}
		}
	}
	return DBResult{Err: lastErr}
}

// Close stops accepting tasks. Tasks already queued still run.
func (q *DBQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}

func (q *DBQueue) DB() *sql.DB {
	return q.db
}

// permanentError marks a task failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
