// Package store defines the conditional data store the quiz engine persists through.
//
// A Store exposes filtered reads, inserts that report uniqueness violations as ErrConflict,
// and filtered updates that return the rows they changed. An update whose filter matches
// nothing returns an empty result rather than an error; CompareAndSwap builds on that.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

//go:generate mockgen -source=store.go -destination=../mocks/store/mock_store.go -package=mock_store

var (
	// ErrConflict reports a uniqueness violation on insert.
	ErrConflict = errors.New("store: unique constraint violation")
	// ErrPermissionDenied reports that the credential in use may not perform the write.
	ErrPermissionDenied = errors.New("store: permission denied")
)

// Collections used by the engine.
const (
	CollectionHearts          = "hearts"
	CollectionAttempts        = "lesson_quiz_attempts"
	CollectionRewards         = "lesson_rewards"
	CollectionProfiles        = "profiles"
	CollectionAchievements    = "achievements"
	CollectionLessons         = "lessons"
	CollectionSections        = "lesson_sections"
	CollectionSectionProgress = "section_progress"
	CollectionQuizzes         = "quizzes"
	CollectionQuestions       = "quiz_questions"
)

// Record is one row of a collection keyed by column name.
type Record map[string]any

// Store is the read/insert/conditional-update contract of the system of record.
type Store interface {
	Find(ctx context.Context, collection string, query Query) ([]Record, error)
	Insert(ctx context.Context, collection string, record Record) (Record, error)
	Update(ctx context.Context, collection string, filters []Condition, patch Record) ([]Record, error)
}

// CompareAndSwap applies patch to the row matching expect.
// It returns ok=false, without error, when no row matched, which means another writer
// changed the row since it was read.
func CompareAndSwap(ctx context.Context, s Store, collection string, expect []Condition, patch Record) (Record, bool, error) {
	rows, err := s.Update(ctx, collection, expect, patch)
	if err != nil {
		return nil, false, err
	}
	switch len(rows) {
	case 0:
		return nil, false, nil
	case 1:
		return rows[0], true, nil
	default:
		return nil, false, fmt.Errorf("compare and swap on %s matched %d rows", collection, len(rows))
	}
}

// FindOne returns the first row matching query, or ok=false.
func FindOne(ctx context.Context, s Store, collection string, query Query) (Record, bool, error) {
	query.Limit = 1
	rows, err := s.Find(ctx, collection, query)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// Decode converts a record into v through its JSON representation.
func Decode(record Record, v any) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("json.Marshal > %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("json.Unmarshal > %w", err)
	}
	return nil
}

// DecodeAll decodes every record into a new element of the returned slice.
func DecodeAll[T any](records []Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		var v T
		if err := Decode(r, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
