package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ad/go-hooks-academy/internal/events"
	"github.com/ad/go-hooks-academy/internal/models"
	"github.com/ad/go-hooks-academy/internal/store"
	"github.com/rs/zerolog"
	"pgregory.net/rapid"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTracker(pub events.Publisher) *ProgressTracker {
	stores := store.NewMemoryStores()
	tr := NewProgressTracker(stores.Progress, stores.Attempts, pub, zerolog.Nop())
	tr.now = func() time.Time { return fixedNow }
	return tr
}

func TestUpdateProgressPublishesResultingFlags(t *testing.T) {
	pub := &recordingPublisher{}
	tr := newTracker(pub)

	p, err := tr.UpdateProgress(context.Background(), models.ProgressUpdate{
		UserID:        1,
		TutorialID:    "useState",
		ProgressPatch: models.ProgressPatch{Completed: models.Some(true)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !p.Completed || p.QuizCompleted {
		t.Fatalf("unexpected progress %+v", p)
	}

	got := pub.published()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	e := got[0]
	if e.Type != events.TypeProgressUpdated || e.UserID != 1 || e.TutorialID != "useState" {
		t.Errorf("unexpected event %+v", e)
	}
	if e.Completed == nil || !*e.Completed || e.QuizCompleted == nil || *e.QuizCompleted {
		t.Errorf("event flags do not match record: %+v", e)
	}
	if e.Score != nil {
		t.Errorf("progress event should carry no score")
	}
	if !e.OccurredAt.Equal(fixedNow) {
		t.Errorf("occurredAt = %v, want %v", e.OccurredAt, fixedNow)
	}
}

func TestWritesRejectInvalidPair(t *testing.T) {
	pub := &recordingPublisher{}
	tr := newTracker(pub)
	ctx := context.Background()

	cases := []struct {
		userID     int64
		tutorialID string
	}{
		{0, "useState"},
		{-3, "useState"},
		{1, ""},
		{1, "  "},
	}
	for _, tc := range cases {
		_, err := tr.UpdateProgress(ctx, models.ProgressUpdate{UserID: tc.userID, TutorialID: tc.tutorialID})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("UpdateProgress(%d, %q) = %v, want ErrInvalidInput", tc.userID, tc.tutorialID, err)
		}
		_, err = tr.SaveQuizAttempt(ctx, models.QuizAttemptInput{UserID: tc.userID, TutorialID: tc.tutorialID})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("SaveQuizAttempt(%d, %q) = %v, want ErrInvalidInput", tc.userID, tc.tutorialID, err)
		}
	}
	if n := len(pub.published()); n != 0 {
		t.Errorf("rejected writes published %d events", n)
	}
}

func TestPatchProgressUnknownID(t *testing.T) {
	tr := newTracker(&recordingPublisher{})
	for _, id := range []int64{0, 42} {
		_, err := tr.PatchProgress(context.Background(), id, models.ProgressPatch{Completed: models.Some(true)})
		if !store.IsNotFound(err) {
			t.Errorf("PatchProgress(%d) = %v, want not found", id, err)
		}
	}
}

func TestPatchProgressByID(t *testing.T) {
	pub := &recordingPublisher{}
	tr := newTracker(pub)
	ctx := context.Background()

	created, err := tr.UpdateProgress(ctx, models.ProgressUpdate{UserID: 2, TutorialID: "useRef"})
	if err != nil {
		t.Fatal(err)
	}
	patched, err := tr.PatchProgress(ctx, created.ID, models.ProgressPatch{QuizCompleted: models.Some(true)})
	if err != nil {
		t.Fatal(err)
	}
	if patched.ID != created.ID || !patched.QuizCompleted || patched.Completed {
		t.Fatalf("unexpected patched record %+v", patched)
	}
	if n := len(pub.published()); n != 2 {
		t.Errorf("expected 2 events, got %d", n)
	}
}

func TestSaveQuizAttemptDefaultsAttemptedAt(t *testing.T) {
	pub := &recordingPublisher{}
	tr := newTracker(pub)

	a, err := tr.SaveQuizAttempt(context.Background(), models.QuizAttemptInput{
		UserID:     1,
		TutorialID: "useEffect",
		Score:      80,
		Answers:    json.RawMessage(`[1,2]`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !a.AttemptedAt.Equal(fixedNow) {
		t.Errorf("attemptedAt = %v, want %v", a.AttemptedAt, fixedNow)
	}

	got := pub.published()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	e := got[0]
	if e.Type != events.TypeQuizAttempted || e.Score == nil || *e.Score != 80 {
		t.Errorf("unexpected event %+v", e)
	}
	if e.QuizCompleted == nil || !*e.QuizCompleted || e.Completed != nil {
		t.Errorf("quiz event flags wrong: %+v", e)
	}
}

func TestSaveQuizAttemptKeepsGivenTime(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tr := newTracker(&recordingPublisher{})
		sec := rapid.Int64Range(1, 4_000_000_000).Draw(rt, "unix")
		at := time.Unix(sec, 0).In(time.FixedZone("X", 3600))

		a, err := tr.SaveQuizAttempt(context.Background(), models.QuizAttemptInput{
			UserID:      1,
			TutorialID:  "useMemo",
			AttemptedAt: at,
		})
		if err != nil {
			rt.Fatal(err)
		}
		if !a.AttemptedAt.Equal(at) {
			rt.Fatalf("attemptedAt = %v, want %v", a.AttemptedAt, at)
		}
		if a.AttemptedAt.Location() != time.UTC {
			rt.Fatalf("attemptedAt not normalized to UTC: %v", a.AttemptedAt.Location())
		}
	})
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	tr := newTracker(&recordingPublisher{err: errBrokerDown})
	ctx := context.Background()

	if _, err := tr.UpdateProgress(ctx, models.ProgressUpdate{UserID: 1, TutorialID: "useState"}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if _, err := tr.SaveQuizAttempt(ctx, models.QuizAttemptInput{UserID: 1, TutorialID: "useState", Score: 1}); err != nil {
		t.Fatalf("SaveQuizAttempt: %v", err)
	}

	list, err := tr.GetProgress(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || !list[0].QuizCompleted {
		t.Errorf("writes did not land: %+v", list)
	}
	attempts, err := tr.GetQuizAttempts(ctx, 1, "useState")
	if err != nil || len(attempts) != 1 {
		t.Errorf("GetQuizAttempts = %+v, %v", attempts, err)
	}
}

func TestNilPublisherFallsBackToNop(t *testing.T) {
	stores := store.NewMemoryStores()
	tr := NewProgressTracker(stores.Progress, stores.Attempts, nil, zerolog.Nop())
	if _, err := tr.UpdateProgress(context.Background(), models.ProgressUpdate{UserID: 1, TutorialID: "useState"}); err != nil {
		t.Fatal(err)
	}
}
