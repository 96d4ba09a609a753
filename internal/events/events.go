// Package events publishes progress and quiz notifications for downstream
// consumers such as analytics.
package events

import (
	"context"
	"time"
)

type Type string

const (
	TypeProgressUpdated Type = "progress.updated"
	TypeQuizAttempted   Type = "quiz.attempted"
)

type Event struct {
	Type          Type      `json:"type"`
	UserID        int64     `json:"userId"`
	TutorialID    string    `json:"tutorialId"`
	Completed     *bool     `json:"completed,omitempty"`
	QuizCompleted *bool     `json:"quizCompleted,omitempty"`
	Score         *int      `json:"score,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }
