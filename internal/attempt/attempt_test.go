package attempt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/lessonquiz/internal/store"
	"github.com/at-ishikawa/lessonquiz/internal/store/memstore"
)

func newRepository(t *testing.T) *Repository {
	t.Helper()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return NewRepository(memstore.New(nil), WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
}

func newAttempt(learnerID, lessonID string) Attempt {
	return Attempt{
		LearnerID:   learnerID,
		LessonID:    lessonID,
		QuizID:      "quiz-" + lessonID,
		Status:      StatusInProgress,
		MaxScore:    3,
		QuestionIDs: []string{"q1", "q2", "q3"},
	}
}

func TestRepository_Create(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	created, err := repo.Create(ctx, newAttempt("l1", "lesson"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, StatusInProgress, created.Status)
	assert.Equal(t, []string{"q1", "q2", "q3"}, created.QuestionIDs)
	assert.Empty(t, created.WrongQuestionIDs)
	assert.Empty(t, created.Answers)

	_, err = repo.Create(ctx, newAttempt("l1", "lesson"))
	assert.ErrorIs(t, err, store.ErrConflict, "second open attempt")

	_, err = repo.Create(ctx, newAttempt("l1", "other"))
	assert.NoError(t, err, "different lesson")

	open, ok, err := repo.FindOpen(ctx, "l1", "lesson")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created.ID, open.ID)
}

func TestRepository_UpdateIf(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	created, err := repo.Create(ctx, newAttempt("l1", "lesson"))
	require.NoError(t, err)

	next := created
	next.CurrentQuestionIndex = 1
	next.CorrectCount = 1
	next.EarnedScore = 1
	next.Answers = map[string]any{"q1": "a"}

	updated, ok, err := repo.UpdateIf(ctx, created.ID, created.Version(), next)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, updated.CurrentQuestionIndex)
	assert.Equal(t, map[string]any{"q1": "a"}, updated.Answers)
	assert.Equal(t, "q2", updated.CurrentQuestionID())

	// A second writer holding the old version loses.
	_, ok, err = repo.UpdateIf(ctx, created.ID, created.Version(), next)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_SetPendingDebits(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	created, err := repo.Create(ctx, newAttempt("l1", "lesson"))
	require.NoError(t, err)
	assert.Equal(t, 0, created.PendingHeartDebits)

	next := created
	next.CurrentQuestionIndex = 1
	next.WrongQuestionIDs = []string{"q1"}
	next.PendingHeartDebits = 1
	owing, ok, err := repo.UpdateIf(ctx, created.ID, created.Version(), next)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, owing.PendingHeartDebits)

	claimed, ok, err := repo.SetPendingDebits(ctx, created.ID, 1, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, claimed.PendingHeartDebits)

	_, ok, err = repo.SetPendingDebits(ctx, created.ID, 1, 0)
	require.NoError(t, err)
	assert.False(t, ok, "the debit was already claimed")

	// An update read before the claim must not restore the settled debit.
	stale := owing
	stale.CurrentQuestionIndex = 2
	stale.PendingHeartDebits = 2
	_, ok, err = repo.UpdateIf(ctx, created.ID, owing.Version(), stale)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_TerminalReleasesOpenKey(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	created, err := repo.Create(ctx, newAttempt("l1", "lesson"))
	require.NoError(t, err)

	done := created
	done.Status = StatusFailed
	done.CurrentQuestionIndex = 3
	completedAt := time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC)
	done.CompletedAt = &completedAt
	_, ok, err := repo.UpdateIf(ctx, created.ID, created.Version(), done)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = repo.FindOpen(ctx, "l1", "lesson")
	require.NoError(t, err)
	assert.False(t, ok)

	retry, err := repo.Create(ctx, newAttempt("l1", "lesson"))
	require.NoError(t, err)

	latest, ok, err := repo.Latest(ctx, "l1", "lesson")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, retry.ID, latest.ID)

	got, ok, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completedAt.Equal(*got.CompletedAt))
	assert.Equal(t, "", got.CurrentQuestionID())
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status       Status
		wantOpen     bool
		wantTerminal bool
	}{
		{status: StatusInProgress, wantOpen: true},
		{status: StatusPausedNoHearts, wantOpen: true},
		{status: StatusPassed, wantTerminal: true},
		{status: StatusFailed, wantTerminal: true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.wantOpen, tt.status.Open())
			assert.Equal(t, tt.wantTerminal, tt.status.Terminal())
		})
	}
}
