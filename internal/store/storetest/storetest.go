// Package storetest holds the behavior every store backend must share.
// Backends call Run from their own tests with a constructor for fresh,
// empty stores.
package storetest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ad/go-hooks-academy/internal/models"
	"github.com/ad/go-hooks-academy/internal/store"
	"pgregory.net/rapid"
)

type Factory func(t *testing.T) store.Stores

func Run(t *testing.T, newStores Factory) {
	t.Run("CreateAndLookupUser", func(t *testing.T) { testCreateAndLookupUser(t, newStores(t)) })
	t.Run("DuplicateUsername", func(t *testing.T) { testDuplicateUsername(t, newStores(t)) })
	t.Run("UsernameLookupIsCaseSensitive", func(t *testing.T) { testUsernameCaseSensitive(t, newStores(t)) })
	t.Run("EmptyProgress", func(t *testing.T) { testEmptyProgress(t, newStores(t)) })
	t.Run("ProgressDefaults", func(t *testing.T) { testProgressDefaults(t, newStores(t)) })
	t.Run("IdempotentPartialUpdate", func(t *testing.T) { testIdempotentPartialUpdate(t, newStores) })
	t.Run("UpsertUniqueness", func(t *testing.T) { testUpsertUniqueness(t, newStores) })
	t.Run("ProgressInsertionOrder", func(t *testing.T) { testProgressInsertionOrder(t, newStores(t)) })
	t.Run("UpdateProgressByID", func(t *testing.T) { testUpdateProgressByID(t, newStores(t)) })
	t.Run("UpdateProgressUnknownID", func(t *testing.T) { testUpdateProgressUnknownID(t, newStores(t)) })
	t.Run("QuizAttemptsNotDeduplicated", func(t *testing.T) { testQuizAttemptsNotDeduplicated(t, newStores(t)) })
	t.Run("QuizAttemptCreatesProgress", func(t *testing.T) { testQuizAttemptCreatesProgress(t, newStores(t)) })
	t.Run("QuizAttemptPreservesCompleted", func(t *testing.T) { testQuizAttemptPreservesCompleted(t, newStores(t)) })
	t.Run("QuizAttemptFiltering", func(t *testing.T) { testQuizAttemptFiltering(t, newStores(t)) })
	t.Run("QuizAttemptAnswersRoundTrip", func(t *testing.T) { testAnswersRoundTrip(t, newStores(t)) })
	t.Run("ConcurrentUpserts", func(t *testing.T) { testConcurrentUpserts(t, newStores(t)) })
}

var attemptTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func testCreateAndLookupUser(t *testing.T, s store.Stores) {
	ctx := context.Background()

	user, err := s.Users.CreateUser(ctx, models.Credentials{Username: "kim", Password: "p1"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.ID != 1 {
		t.Errorf("Expected first user id 1, got %d", user.ID)
	}
	if user.Username != "kim" || user.Password != "p1" {
		t.Errorf("Unexpected user record: %+v", user)
	}

	second, err := s.Users.CreateUser(ctx, models.Credentials{Username: "lee", Password: "p2"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if second.ID != 2 {
		t.Errorf("Expected second user id 2, got %d", second.ID)
	}

	byID, err := s.Users.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if byID == nil || byID.Username != "kim" {
		t.Errorf("GetUser(%d) = %+v, want kim", user.ID, byID)
	}

	byName, err := s.Users.GetUserByUsername(ctx, "lee")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if byName == nil || byName.ID != second.ID {
		t.Errorf("GetUserByUsername(lee) = %+v, want id %d", byName, second.ID)
	}

	missing, err := s.Users.GetUser(ctx, 999)
	if err != nil {
		t.Fatalf("GetUser(999) returned error: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown id, got %+v", missing)
	}

	missing, err = s.Users.GetUserByUsername(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetUserByUsername(nobody) returned error: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown username, got %+v", missing)
	}
}

func testDuplicateUsername(t *testing.T, s store.Stores) {
	ctx := context.Background()

	if _, err := s.Users.CreateUser(ctx, models.Credentials{Username: "kim", Password: "p1"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	_, err := s.Users.CreateUser(ctx, models.Credentials{Username: "kim", Password: "other"})
	if !errors.Is(err, store.ErrUsernameTaken) {
		t.Fatalf("Expected ErrUsernameTaken, got %v", err)
	}

	user, err := s.Users.GetUserByUsername(ctx, "kim")
	if err != nil {
		t.Fatal(err)
	}
	if user == nil || user.Password != "p1" {
		t.Errorf("Original user must be untouched, got %+v", user)
	}
}

func testUsernameCaseSensitive(t *testing.T, s store.Stores) {
	ctx := context.Background()

	if _, err := s.Users.CreateUser(ctx, models.Credentials{Username: "alice", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	user, err := s.Users.GetUserByUsername(ctx, "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if user != nil {
		t.Errorf("GetUserByUsername(Alice) matched %+v; lookup must be exact", user)
	}

	// Differently cased names are distinct users.
	if _, err := s.Users.CreateUser(ctx, models.Credentials{Username: "Alice", Password: "pw"}); err != nil {
		t.Errorf("CreateUser(Alice) failed after alice exists: %v", err)
	}
}

func testEmptyProgress(t *testing.T, s store.Stores) {
	progress, err := s.Progress.GetUserProgress(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetUserProgress failed: %v", err)
	}
	if progress == nil || len(progress) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", progress)
	}

	attempts, err := s.Attempts.GetQuizAttempts(context.Background(), 42, "useState")
	if err != nil {
		t.Fatalf("GetQuizAttempts failed: %v", err)
	}
	if attempts == nil || len(attempts) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", attempts)
	}
}

func testProgressDefaults(t *testing.T, s store.Stores) {
	p, err := s.Progress.UpdateUserProgress(context.Background(), models.ProgressUpdate{
		UserID:        1,
		TutorialID:    "useEffect",
		ProgressPatch: models.ProgressPatch{Completed: models.Some(true)},
	})
	if err != nil {
		t.Fatalf("UpdateUserProgress failed: %v", err)
	}
	if p.ID == 0 || p.UserID != 1 || p.TutorialID != "useEffect" {
		t.Errorf("Unexpected identity fields: %+v", p)
	}
	if !p.Completed || p.QuizCompleted || p.LastViewed != nil {
		t.Errorf("Expected completed=true quizCompleted=false lastViewed=nil, got %+v", p)
	}
}

func optionalBool(t *rapid.T, label string) models.Optional[bool] {
	switch rapid.IntRange(0, 2).Draw(t, label+"State") {
	case 0:
		return models.Optional[bool]{}
	case 1:
		return models.Null[bool]()
	default:
		return models.Some(rapid.Bool().Draw(t, label))
	}
}

func optionalTime(t *rapid.T, label string) models.Optional[time.Time] {
	switch rapid.IntRange(0, 2).Draw(t, label+"State") {
	case 0:
		return models.Optional[time.Time]{}
	case 1:
		return models.Null[time.Time]()
	default:
		sec := rapid.Int64Range(0, 4102444800).Draw(t, label)
		return models.Some(time.Unix(sec, 0).UTC())
	}
}

func patchGen(t *rapid.T, label string) models.ProgressPatch {
	return models.ProgressPatch{
		Completed:     optionalBool(t, label+"Completed"),
		QuizCompleted: optionalBool(t, label+"QuizCompleted"),
		LastViewed:    optionalTime(t, label+"LastViewed"),
	}
}

func sameProgress(a, b *models.Progress) bool {
	if a.ID != b.ID || a.UserID != b.UserID || a.TutorialID != b.TutorialID ||
		a.Completed != b.Completed || a.QuizCompleted != b.QuizCompleted {
		return false
	}
	if (a.LastViewed == nil) != (b.LastViewed == nil) {
		return false
	}
	return a.LastViewed == nil || a.LastViewed.Equal(*b.LastViewed)
}

func testIdempotentPartialUpdate(t *testing.T, newStores Factory) {
	rapid.Check(t, func(rt *rapid.T) {
		s := newStores(t)
		ctx := context.Background()
		userID := rapid.Int64Range(1, 1000).Draw(rt, "userID")
		tutorialID := rapid.SampledFrom([]string{"useState", "useEffect", "useQuery"}).Draw(rt, "tutorialID")

		initial, err := s.Progress.UpdateUserProgress(ctx, models.ProgressUpdate{
			UserID:        userID,
			TutorialID:    tutorialID,
			ProgressPatch: patchGen(rt, "initial"),
		})
		if err != nil {
			rt.Fatalf("initial update failed: %v", err)
		}

		bare := models.ProgressUpdate{UserID: userID, TutorialID: tutorialID}
		for i := 0; i < 2; i++ {
			got, err := s.Progress.UpdateUserProgress(ctx, bare)
			if err != nil {
				rt.Fatalf("bare update %d failed: %v", i, err)
			}
			if !sameProgress(got, initial) {
				rt.Fatalf("bare update %d changed the record: before %+v after %+v", i, initial, got)
			}
		}
	})
}

func testUpsertUniqueness(t *testing.T, newStores Factory) {
	rapid.Check(t, func(rt *rapid.T) {
		s := newStores(t)
		ctx := context.Background()
		patches := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) models.ProgressPatch {
			return patchGen(t, "patch")
		}), 1, 8).Draw(rt, "patches")

		var (
			firstID int64
			want    models.Progress
		)
		for i, patch := range patches {
			got, err := s.Progress.UpdateUserProgress(ctx, models.ProgressUpdate{
				UserID:        5,
				TutorialID:    "useState",
				ProgressPatch: patch,
			})
			if err != nil {
				rt.Fatalf("update %d failed: %v", i, err)
			}
			if i == 0 {
				firstID = got.ID
				want = models.NewProgress(got.ID, models.ProgressUpdate{UserID: 5, TutorialID: "useState", ProgressPatch: patch})
			} else {
				want.Apply(patch)
			}
			if got.ID != firstID {
				rt.Fatalf("update %d changed id from %d to %d", i, firstID, got.ID)
			}
			if !sameProgress(got, &want) {
				rt.Fatalf("update %d: got %+v, want %+v", i, got, want)
			}
		}

		all, err := s.Progress.GetUserProgress(ctx, 5)
		if err != nil {
			rt.Fatal(err)
		}
		if len(all) != 1 {
			rt.Fatalf("expected exactly one record for the pair, got %d", len(all))
		}
	})
}

func testProgressInsertionOrder(t *testing.T, s store.Stores) {
	ctx := context.Background()
	tutorials := []string{"useState", "useEffect", "useMemo", "useQuery"}

	for _, id := range tutorials {
		if _, err := s.Progress.UpdateUserProgress(ctx, models.ProgressUpdate{UserID: 3, TutorialID: id}); err != nil {
			t.Fatal(err)
		}
	}
	// Another user's records must not leak in.
	if _, err := s.Progress.UpdateUserProgress(ctx, models.ProgressUpdate{UserID: 4, TutorialID: "useState"}); err != nil {
		t.Fatal(err)
	}
	// Updating an older record keeps its position.
	if _, err := s.Progress.UpdateUserProgress(ctx, models.ProgressUpdate{
		UserID: 3, TutorialID: "useState", ProgressPatch: models.ProgressPatch{Completed: models.Some(true)},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Progress.GetUserProgress(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(tutorials) {
		t.Fatalf("Expected %d records, got %d", len(tutorials), len(got))
	}
	for i, id := range tutorials {
		if got[i].TutorialID != id {
			t.Errorf("Record %d: expected %s, got %s", i, id, got[i].TutorialID)
		}
	}
	if !got[0].Completed {
		t.Errorf("Expected useState to be completed after update")
	}
}

func testUpdateProgressByID(t *testing.T, s store.Stores) {
	ctx := context.Background()
	created, err := s.Progress.UpdateUserProgress(ctx, models.ProgressUpdate{UserID: 1, TutorialID: "useRef"})
	if err != nil {
		t.Fatal(err)
	}

	viewed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	updated, err := s.Progress.UpdateProgress(ctx, created.ID, models.ProgressPatch{
		QuizCompleted: models.Some(true),
		LastViewed:    models.Some(viewed),
	})
	if err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if updated.ID != created.ID || updated.Completed || !updated.QuizCompleted {
		t.Errorf("Unexpected record after patch: %+v", updated)
	}
	if updated.LastViewed == nil || !updated.LastViewed.Equal(viewed) {
		t.Errorf("Expected lastViewed %v, got %v", viewed, updated.LastViewed)
	}

	all, err := s.Progress.GetUserProgress(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || !sameProgress(&all[0], updated) {
		t.Errorf("Stored record differs from returned one: %+v vs %+v", all, updated)
	}
}

func testUpdateProgressUnknownID(t *testing.T, s store.Stores) {
	_, err := s.Progress.UpdateProgress(context.Background(), 404, models.ProgressPatch{Completed: models.Some(true)})

	var nf *store.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected *NotFoundError, got %v", err)
	}
	if nf.Entity != "progress" || nf.ID != 404 {
		t.Errorf("Unexpected NotFoundError fields: %+v", nf)
	}
}

func testQuizAttemptsNotDeduplicated(t *testing.T, s store.Stores) {
	ctx := context.Background()

	first, err := s.Attempts.SaveQuizAttempt(ctx, models.QuizAttemptInput{
		UserID: 5, TutorialID: "useState", Score: 40, AttemptedAt: attemptTime,
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Attempts.SaveQuizAttempt(ctx, models.QuizAttemptInput{
		UserID: 5, TutorialID: "useState", Score: 80, AttemptedAt: attemptTime.Add(time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Fatalf("Attempts share id %d", first.ID)
	}

	attempts, err := s.Attempts.GetQuizAttempts(ctx, 5, "useState")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Score != 40 || attempts[1].Score != 80 {
		t.Errorf("Attempts out of insertion order: %+v", attempts)
	}

	progress, err := s.Progress.GetUserProgress(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(progress) != 1 {
		t.Errorf("Two attempts must still leave one progress record, got %d", len(progress))
	}
}

func testQuizAttemptCreatesProgress(t *testing.T, s store.Stores) {
	ctx := context.Background()

	attempt, err := s.Attempts.SaveQuizAttempt(ctx, models.QuizAttemptInput{
		UserID: 5, TutorialID: "useState", Score: 70, AttemptedAt: attemptTime,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !attempt.AttemptedAt.Equal(attemptTime) {
		t.Errorf("attemptedAt = %v, want %v", attempt.AttemptedAt, attemptTime)
	}

	progress, err := s.Progress.GetUserProgress(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(progress) != 1 {
		t.Fatalf("Expected one progress record, got %d", len(progress))
	}
	p := progress[0]
	if p.TutorialID != "useState" || !p.Completed || !p.QuizCompleted {
		t.Errorf("Expected completed and quizCompleted, got %+v", p)
	}
	if p.LastViewed == nil || !p.LastViewed.Equal(attemptTime) {
		t.Errorf("Expected lastViewed %v, got %v", attemptTime, p.LastViewed)
	}
}

func testQuizAttemptPreservesCompleted(t *testing.T, s store.Stores) {
	ctx := context.Background()

	before, err := s.Progress.UpdateUserProgress(ctx, models.ProgressUpdate{
		UserID: 5, TutorialID: "useState",
		ProgressPatch: models.ProgressPatch{Completed: models.Some(false)},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Attempts.SaveQuizAttempt(ctx, models.QuizAttemptInput{
		UserID: 5, TutorialID: "useState", Score: 90, AttemptedAt: attemptTime,
	}); err != nil {
		t.Fatal(err)
	}

	progress, err := s.Progress.GetUserProgress(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(progress) != 1 {
		t.Fatalf("Expected one progress record, got %d", len(progress))
	}
	p := progress[0]
	if p.ID != before.ID {
		t.Errorf("Progress id changed from %d to %d", before.ID, p.ID)
	}
	if p.Completed {
		t.Errorf("completed must stay false after a quiz attempt")
	}
	if !p.QuizCompleted {
		t.Errorf("quizCompleted must become true after a quiz attempt")
	}
	if p.LastViewed != nil {
		t.Errorf("lastViewed must stay untouched on an existing record, got %v", p.LastViewed)
	}
}

func testQuizAttemptFiltering(t *testing.T, s store.Stores) {
	ctx := context.Background()
	inputs := []models.QuizAttemptInput{
		{UserID: 1, TutorialID: "useState", Score: 10},
		{UserID: 1, TutorialID: "useEffect", Score: 20},
		{UserID: 2, TutorialID: "useState", Score: 30},
		{UserID: 1, TutorialID: "useState", Score: 40},
	}
	for i, in := range inputs {
		in.AttemptedAt = attemptTime.Add(time.Duration(i) * time.Second)
		if _, err := s.Attempts.SaveQuizAttempt(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Attempts.GetQuizAttempts(ctx, 1, "useState")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Score != 10 || got[1].Score != 40 {
		t.Errorf("Unexpected filtered attempts: %+v", got)
	}

	all, err := s.Attempts.GetUserQuizAttempts(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 attempts for user 1, got %d", len(all))
	}
	for i, want := range []int{10, 20, 40} {
		if all[i].Score != want {
			t.Errorf("Attempt %d: expected score %d, got %d", i, want, all[i].Score)
		}
	}
}

func testAnswersRoundTrip(t *testing.T, s store.Stores) {
	ctx := context.Background()
	answers := json.RawMessage(`{"q1":"b","q2":["a","c"],"q3":null}`)

	saved, err := s.Attempts.SaveQuizAttempt(ctx, models.QuizAttemptInput{
		UserID: 9, TutorialID: "useQuery", Score: 100, Answers: answers, AttemptedAt: attemptTime,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Attempts.GetQuizAttempts(ctx, 9, "useQuery")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected one attempt, got %d", len(got))
	}
	for _, a := range []models.QuizAttempt{*saved, got[0]} {
		if !jsonEqual(t, a.Answers, answers) {
			t.Errorf("answers = %s, want %s", a.Answers, answers)
		}
	}

	noAnswers, err := s.Attempts.SaveQuizAttempt(ctx, models.QuizAttemptInput{
		UserID: 9, TutorialID: "useMemo", Score: 0, AttemptedAt: attemptTime,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := json.Marshal(noAnswers); err != nil {
		t.Errorf("attempt without answers must marshal: %v", err)
	}
}

func jsonEqual(t *testing.T, a, b json.RawMessage) bool {
	t.Helper()
	var ca, cb bytes.Buffer
	if err := json.Compact(&ca, a); err != nil {
		t.Fatalf("compact %s: %v", a, err)
	}
	if err := json.Compact(&cb, b); err != nil {
		t.Fatalf("compact %s: %v", b, err)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

func testConcurrentUpserts(t *testing.T, s store.Stores) {
	ctx := context.Background()
	const workers = 16

	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Progress.UpdateUserProgress(ctx, models.ProgressUpdate{
				UserID: 11, TutorialID: "useState",
				ProgressPatch: models.ProgressPatch{Completed: models.Some(i%2 == 0)},
			}); err != nil {
				errs <- err
			}
			if _, err := s.Attempts.SaveQuizAttempt(ctx, models.QuizAttemptInput{
				UserID: 11, TutorialID: "useState", Score: i, AttemptedAt: attemptTime,
			}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent write failed: %v", err)
	}

	progress, err := s.Progress.GetUserProgress(ctx, 11)
	if err != nil {
		t.Fatal(err)
	}
	if len(progress) != 1 {
		t.Fatalf("Concurrent upserts produced %d records, want 1", len(progress))
	}
	if !progress[0].QuizCompleted {
		t.Errorf("Expected quizCompleted after concurrent attempts")
	}

	attempts, err := s.Attempts.GetQuizAttempts(ctx, 11, "useState")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != workers {
		t.Errorf("Expected %d attempts, got %d", workers, len(attempts))
	}
	seen := make(map[int64]bool, len(attempts))
	for _, a := range attempts {
		if seen[a.ID] {
			t.Errorf("Duplicate attempt id %d", a.ID)
		}
		seen[a.ID] = true
	}
}
