package models

import (
	"encoding/json"
	"time"
)

type QuizAttempt struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"userId"`
	TutorialID  string          `json:"tutorialId"`
	Score       int             `json:"score"`
	Answers     json.RawMessage `json:"answers"`
	AttemptedAt time.Time       `json:"attemptedAt"`
}

type QuizAttemptInput struct {
	UserID      int64
	TutorialID  string
	Score       int
	Answers     json.RawMessage
	AttemptedAt time.Time
}

func NewQuizAttempt(id int64, in QuizAttemptInput) QuizAttempt {
	var answers json.RawMessage
	if len(in.Answers) > 0 {
		answers = append(answers, in.Answers...)
	}
	return QuizAttempt{
		ID:          id,
		UserID:      in.UserID,
		TutorialID:  in.TutorialID,
		Score:       in.Score,
		Answers:     answers,
		AttemptedAt: in.AttemptedAt.UTC(),
	}
}
