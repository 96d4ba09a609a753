package models

import "time"

type Progress struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"userId"`
	TutorialID    string     `json:"tutorialId"`
	Completed     bool       `json:"completed"`
	QuizCompleted bool       `json:"quizCompleted"`
	LastViewed    *time.Time `json:"lastViewed"`
}

// ProgressPatch carries the mutable progress fields. Only fields set to a
// value are applied; unset and null fields keep what is stored.
type ProgressPatch struct {
	Completed     Optional[bool]      `json:"completed,omitzero"`
	QuizCompleted Optional[bool]      `json:"quizCompleted,omitzero"`
	LastViewed    Optional[time.Time] `json:"lastViewed,omitzero"`
}

// ProgressUpdate addresses a progress record by its (user, tutorial) pair.
type ProgressUpdate struct {
	UserID     int64
	TutorialID string
	ProgressPatch
}

// NewProgress builds the record created by the first update for a pair.
func NewProgress(id int64, update ProgressUpdate) Progress {
	p := Progress{
		ID:         id,
		UserID:     update.UserID,
		TutorialID: update.TutorialID,
	}
	p.Apply(update.ProgressPatch)
	return p
}

// Apply merges patch into p in place.
func (p *Progress) Apply(patch ProgressPatch) {
	if v, ok := patch.Completed.Get(); ok {
		p.Completed = v
	}
	if v, ok := patch.QuizCompleted.Get(); ok {
		p.QuizCompleted = v
	}
	if v, ok := patch.LastViewed.Get(); ok {
		t := v.UTC()
		p.LastViewed = &t
	}
}

// MarkQuizCompleted applies the progress side effect of a saved quiz attempt.
// An existing record only gains quizCompleted; a fresh one is fully completed
// and viewed at attemptedAt.
func (p *Progress) MarkQuizCompleted(isNew bool, attemptedAt time.Time) {
	p.QuizCompleted = true
	if isNew {
		p.Completed = true
		t := attemptedAt.UTC()
		p.LastViewed = &t
	}
}
