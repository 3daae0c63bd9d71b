package reward

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_store "github.com/at-ishikawa/lessonquiz/internal/mocks/store"
	"github.com/at-ishikawa/lessonquiz/internal/store"
	"github.com/at-ishikawa/lessonquiz/internal/store/memstore"
)

var fixedNow = time.Date(2026, 5, 1, 23, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func profileOf(t *testing.T, s store.Store, learnerID string) Profile {
	t.Helper()
	row, ok, err := store.FindOne(context.Background(), s, store.CollectionProfiles, store.Where(store.Eq("id", learnerID)))
	require.NoError(t, err)
	require.True(t, ok)
	p, err := decodeProfile(row)
	require.NoError(t, err)
	return p
}

func TestStoreGranter_GrantIfFirstPass(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(nil)
	g := NewGranter(s, WithClock(clock))

	first, err := g.GrantIfFirstPass(ctx, "l1", "lesson-1", 10, "first-steps")
	require.NoError(t, err)
	assert.Equal(t, Result{Granted: true, XP: 10, Streak: 1, BadgeAwarded: true}, first)

	second, err := g.GrantIfFirstPass(ctx, "l1", "lesson-1", 10, "first-steps")
	require.NoError(t, err)
	assert.Equal(t, Result{}, second)

	assert.Equal(t, 10, profileOf(t, s, "l1").XP)
	assert.Equal(t, 1, s.Len(store.CollectionRewards))
	assert.Equal(t, 1, s.Len(store.CollectionAchievements))

	other, err := g.GrantIfFirstPass(ctx, "l1", "lesson-2", 15, "")
	require.NoError(t, err)
	assert.Equal(t, Result{Granted: true, XP: 25, Streak: 1}, other)
}

func TestStoreGranter_Streak(t *testing.T) {
	tests := []struct {
		name         string
		lastActivity any
		streak       int
		location     *time.Location
		wantStreak   int
	}{
		{name: "yesterday extends", lastActivity: "2026-04-30", streak: 3, location: time.UTC, wantStreak: 4},
		{name: "today keeps", lastActivity: "2026-05-01", streak: 3, location: time.UTC, wantStreak: 3},
		{name: "gap restarts", lastActivity: "2026-04-28", streak: 9, location: time.UTC, wantStreak: 1},
		{name: "never active", lastActivity: nil, streak: 0, location: time.UTC, wantStreak: 1},
		{
			// 23:30 UTC is already May 2nd in Tokyo, so May 1st was yesterday there.
			name:         "day boundary follows the zone",
			lastActivity: "2026-05-01",
			streak:       2,
			location:     time.FixedZone("JST", 9*60*60),
			wantStreak:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := memstore.New(nil)
			_, err := s.Insert(ctx, store.CollectionProfiles, store.Record{
				"id":                 "l1",
				"xp":                 100,
				"streak":             tt.streak,
				"last_activity_date": tt.lastActivity,
				"revision":           4,
			})
			require.NoError(t, err)

			g := NewGranter(s, WithClock(clock), WithLocation(tt.location))
			got, err := g.GrantIfFirstPass(ctx, "l1", "lesson-1", 10, "")
			require.NoError(t, err)
			assert.Equal(t, 110, got.XP)
			assert.Equal(t, tt.wantStreak, got.Streak)
		})
	}
}

func TestStoreGranter_PrivilegedFallback(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	denied := fmt.Errorf("%w: row-level security", store.ErrPermissionDenied)

	learnerStore := mock_store.NewMockStore(ctrl)
	learnerStore.EXPECT().Insert(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, denied).AnyTimes()
	learnerStore.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, denied).AnyTimes()
	learnerStore.EXPECT().Find(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, denied).AnyTimes()

	privileged := memstore.New(nil)
	g := NewGranter(learnerStore, WithPrivilegedStore(privileged), WithClock(clock))

	got, err := g.GrantIfFirstPass(ctx, "l1", "lesson-1", 10, "first-steps")
	require.NoError(t, err)
	assert.Equal(t, Result{Granted: true, XP: 10, Streak: 1, BadgeAwarded: true}, got)

	again, err := g.GrantIfFirstPass(ctx, "l1", "lesson-1", 10, "first-steps")
	require.NoError(t, err)
	assert.False(t, again.Granted)
	assert.Equal(t, 10, profileOf(t, privileged, "l1").XP)
}

func TestStoreGranter_DeniedWithoutPrivilegedStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	learnerStore := mock_store.NewMockStore(ctrl)
	learnerStore.EXPECT().
		Insert(gomock.Any(), store.CollectionRewards, gomock.Any()).
		Return(nil, store.ErrPermissionDenied)

	_, err := NewGranter(learnerStore, WithClock(clock)).GrantIfFirstPass(context.Background(), "l1", "lesson-1", 10, "")
	assert.ErrorIs(t, err, store.ErrPermissionDenied)
}

func TestStoreGranter_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(nil)
	g := NewGranter(s, WithClock(clock))

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := g.GrantIfFirstPass(ctx, "l1", "lesson-1", 10, "")
			assert.NoError(t, err)
			if got.Granted {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
	assert.Equal(t, 10, profileOf(t, s, "l1").XP)
}

func TestNextStreak(t *testing.T) {
	day := func(s string) *string { return &s }
	assert.Equal(t, 1, NextStreak(0, nil, "2026-05-01", "2026-04-30"))
	assert.Equal(t, 5, NextStreak(5, day("2026-05-01"), "2026-05-01", "2026-04-30"))
	assert.Equal(t, 6, NextStreak(5, day("2026-04-30"), "2026-05-01", "2026-04-30"))
	assert.Equal(t, 1, NextStreak(5, day("2026-04-01"), "2026-05-01", "2026-04-30"))
	assert.Equal(t, 1, NextStreak(0, day("2026-05-01"), "2026-05-01", "2026-04-30"))
}

// failingStore fails the first reads or updates of chosen collections.
type failingStore struct {
	*memstore.Store
	mu         sync.Mutex
	failFind   map[string]int
	failUpdate map[string]int
}

func (s *failingStore) fail(counts map[string]int, collection string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if counts[collection] > 0 {
		counts[collection]--
		return true
	}
	return false
}

func (s *failingStore) Find(ctx context.Context, collection string, query store.Query) ([]store.Record, error) {
	if s.fail(s.failFind, collection) {
		return nil, fmt.Errorf("%s unavailable", collection)
	}
	return s.Store.Find(ctx, collection, query)
}

func (s *failingStore) Update(ctx context.Context, collection string, filters []store.Condition, patch store.Record) ([]store.Record, error) {
	if s.fail(s.failUpdate, collection) {
		return nil, fmt.Errorf("%s unavailable", collection)
	}
	return s.Store.Update(ctx, collection, filters, patch)
}

func TestStoreGranter_RetryAfterFailure(t *testing.T) {
	tests := []struct {
		name       string
		failFind   map[string]int
		failUpdate map[string]int
		wantRetry  Result
	}{
		{
			name:      "profile read fails before any XP",
			failFind:  map[string]int{store.CollectionProfiles: 1},
			wantRetry: Result{Granted: true, XP: 10, Streak: 1, BadgeAwarded: true},
		},
		{
			name:       "marking the reward fails after the XP",
			failUpdate: map[string]int{store.CollectionRewards: 1},
			wantRetry:  Result{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := &failingStore{
				Store:      memstore.New(nil),
				failFind:   map[string]int{},
				failUpdate: map[string]int{},
			}
			for k, v := range tt.failFind {
				s.failFind[k] = v
			}
			for k, v := range tt.failUpdate {
				s.failUpdate[k] = v
			}
			g := NewGranter(s, WithClock(clock))

			_, err := g.GrantIfFirstPass(ctx, "l1", "lesson-1", 10, "first-steps")
			require.Error(t, err)

			retry, err := g.GrantIfFirstPass(ctx, "l1", "lesson-1", 10, "first-steps")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRetry, retry)

			again, err := g.GrantIfFirstPass(ctx, "l1", "lesson-1", 10, "first-steps")
			require.NoError(t, err)
			assert.Equal(t, Result{}, again)

			profile := profileOf(t, s.Store, "l1")
			assert.Equal(t, 10, profile.XP)
			assert.Equal(t, []string{"lesson-1"}, profile.RewardedLessons)
			assert.Equal(t, 1, s.Len(store.CollectionAchievements))

			row, ok, err := store.FindOne(ctx, s.Store, store.CollectionRewards, store.Where(store.Eq("learner_id", "l1")))
			require.NoError(t, err)
			require.True(t, ok)
			assert.NotNil(t, row["applied_at"])
		})
	}
}

func TestStoreGranter_ZeroXPLessonsKeepEachOther(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(nil)
	g := NewGranter(s, WithClock(clock))

	_, err := g.GrantIfFirstPass(ctx, "l1", "lesson-1", 0, "")
	require.NoError(t, err)
	got, err := g.GrantIfFirstPass(ctx, "l1", "lesson-2", 0, "")
	require.NoError(t, err)
	assert.True(t, got.Granted)

	profile := profileOf(t, s, "l1")
	assert.Equal(t, []string{"lesson-1", "lesson-2"}, profile.RewardedLessons)
	assert.Equal(t, 2, profile.Revision)
}
