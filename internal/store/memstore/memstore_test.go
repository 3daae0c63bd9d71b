package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/lessonquiz/internal/store"
)

func TestStore_Insert(t *testing.T) {
	tests := []struct {
		name     string
		existing []store.Record
		record   store.Record
		wantErr  error
	}{
		{
			name:   "first row",
			record: store.Record{"id": "a1", "open_key": "l1|lesson"},
		},
		{
			name:     "duplicate open key",
			existing: []store.Record{{"id": "a1", "open_key": "l1|lesson"}},
			record:   store.Record{"id": "a2", "open_key": "l1|lesson"},
			wantErr:  store.ErrConflict,
		},
		{
			name: "closed attempts never collide",
			existing: []store.Record{
				{"id": "a1", "open_key": nil},
				{"id": "a2", "open_key": nil},
			},
			record: store.Record{"id": "a3", "open_key": nil},
		},
		{
			name:     "composite key",
			existing: []store.Record{{"id": "r1", "learner_id": "l1", "lesson_id": "x"}},
			record:   store.Record{"id": "r2", "learner_id": "l1", "lesson_id": "x"},
			wantErr:  store.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := New(nil)
			collection := store.CollectionAttempts
			if _, ok := tt.record["lesson_id"]; ok {
				collection = store.CollectionRewards
			}
			for _, r := range tt.existing {
				_, err := s.Insert(ctx, collection, r)
				require.NoError(t, err)
			}

			got, err := s.Insert(ctx, collection, tt.record)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, len(tt.existing), s.Len(collection))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.record, got)
		})
	}
}

func TestStore_Find(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []string{"failed", "passed", "in_progress"} {
		_, err := s.Insert(ctx, store.CollectionAttempts, store.Record{
			"id":         string(rune('a' + i)),
			"learner_id": "l1",
			"status":     status,
			"started_at": base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	tests := []struct {
		name    string
		query   store.Query
		wantIDs []string
	}{
		{
			name:    "latest first",
			query:   store.Where(store.Eq("learner_id", "l1")).OrderBy(store.Desc("started_at")),
			wantIDs: []string{"c", "b", "a"},
		},
		{
			name:    "in filter with limit",
			query:   store.Where(store.In("status", "failed", "passed")).OrderBy(store.Asc("id")).Take(1),
			wantIDs: []string{"a"},
		},
		{
			name:    "no match",
			query:   store.Where(store.Eq("learner_id", "nobody")),
			wantIDs: nil,
		},
		{
			name:    "missing columns are null",
			query:   store.Where(store.IsNull("completed_at")).OrderBy(store.Asc("started_at")),
			wantIDs: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.Find(ctx, store.CollectionAttempts, tt.query)
			require.NoError(t, err)
			var ids []string
			for _, r := range rows {
				ids = append(ids, r["id"].(string))
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	_, err := s.Insert(ctx, store.CollectionHearts, store.Record{"learner_id": "l1", "remaining": 5})
	require.NoError(t, err)

	row, ok, err := store.CompareAndSwap(ctx, s, store.CollectionHearts,
		[]store.Condition{store.Eq("learner_id", "l1"), store.Eq("remaining", 5.0)},
		store.Record{"remaining": 4},
	)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, row["remaining"])

	_, ok, err = store.CompareAndSwap(ctx, s, store.CollectionHearts,
		[]store.Condition{store.Eq("learner_id", "l1"), store.Eq("remaining", 5)},
		store.Record{"remaining": 3},
	)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ConcurrentCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	_, err := s.Insert(ctx, store.CollectionAttempts, store.Record{"id": "a1", "current_question_index": 0})
	require.NoError(t, err)

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.CompareAndSwap(ctx, s, store.CollectionAttempts,
				[]store.Condition{store.Eq("id", "a1"), store.Eq("current_question_index", 0)},
				store.Record{"current_question_index": 1},
			)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestStore_UpdateUniqueViolation(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	_, err := s.Insert(ctx, store.CollectionAttempts, store.Record{"id": "a1", "open_key": "k"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, store.CollectionAttempts, store.Record{"id": "a2", "open_key": nil})
	require.NoError(t, err)

	_, err = s.Update(ctx, store.CollectionAttempts, []store.Condition{store.Eq("id", "a2")}, store.Record{"open_key": "k"})
	assert.ErrorIs(t, err, store.ErrConflict)

	rows, err := s.Find(ctx, store.CollectionAttempts, store.Where(store.Eq("id", "a2")))
	require.NoError(t, err)
	assert.Nil(t, rows[0]["open_key"])
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	_, err := s.Insert(ctx, store.CollectionAttempts, store.Record{"id": "a1", "question_ids": []string{"q1", "q2"}})
	require.NoError(t, err)

	rows, err := s.Find(ctx, store.CollectionAttempts, store.Query{})
	require.NoError(t, err)
	rows[0]["question_ids"].([]string)[0] = "changed"

	rows, err = s.Find(ctx, store.CollectionAttempts, store.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, rows[0]["question_ids"])
}
