package db

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    password TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_progress (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    tutorial_id TEXT NOT NULL,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    quiz_completed BOOLEAN NOT NULL DEFAULT FALSE,
    last_viewed DATETIME,
    UNIQUE (user_id, tutorial_id)
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    tutorial_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    answers TEXT,
    attempted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quiz_attempts_user_tutorial
    ON quiz_attempts (user_id, tutorial_id);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Open opens the SQLite file at path, creates the schema and caps the pool
// at one connection; the queue worker is the only client.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_time_format=sqlite&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = "file::memory:?_time_format=sqlite"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := InitSchema(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return sqlDB, nil
}
