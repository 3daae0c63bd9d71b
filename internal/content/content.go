// Package content reads the lessons, sections and quizzes authored for learners.
package content

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/at-ishikawa/lessonquiz/internal/apperr"
	"github.com/at-ishikawa/lessonquiz/internal/store"
)

// QuizStatusActive marks the quiz served for a lesson.
const QuizStatusActive = "active"

type Lesson struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	XPReward int     `json:"xp_reward"`
	Badge    *string `json:"badge"`
}

type Section struct {
	ID         string `json:"id"`
	LessonID   string `json:"lesson_id"`
	Title      string `json:"title"`
	OrderIndex int    `json:"order_index"`
}

type Quiz struct {
	ID       string `json:"id"`
	LessonID string `json:"lesson_id"`
	Status   string `json:"status"`
}

// Question is immutable once authored. Options and CorrectAnswer are interpreted by the grader of Type.
type Question struct {
	ID            string          `json:"id"`
	QuizID        string          `json:"quiz_id"`
	Type          string          `json:"type"`
	Prompt        string          `json:"prompt"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	Points        int             `json:"points"`
	OrderIndex    int             `json:"order_index"`
}

// Reader is the read-only view of authored content the quiz engine depends on.
type Reader interface {
	Lesson(ctx context.Context, lessonID string) (Lesson, error)
	Sections(ctx context.Context, lessonID string) ([]Section, error)
	CompletedSections(ctx context.Context, learnerID, lessonID string) ([]string, error)
	ActiveQuiz(ctx context.Context, lessonID string) (Quiz, error)
	Questions(ctx context.Context, quizID string) ([]Question, error)
}

// StoreReader implements Reader over a store.Store.
type StoreReader struct {
	store store.Store
}

func NewStoreReader(s store.Store) *StoreReader {
	return &StoreReader{store: s}
}

func (r *StoreReader) Lesson(ctx context.Context, lessonID string) (Lesson, error) {
	row, ok, err := store.FindOne(ctx, r.store, store.CollectionLessons, store.Where(store.Eq("id", lessonID)))
	if err != nil {
		return Lesson{}, fmt.Errorf("find lesson %s: %w", lessonID, err)
	}
	if !ok {
		return Lesson{}, fmt.Errorf("lesson %s: %w", lessonID, apperr.ErrNotFound)
	}
	var lesson Lesson
	if err := store.Decode(row, &lesson); err != nil {
		return Lesson{}, err
	}
	return lesson, nil
}

func (r *StoreReader) Sections(ctx context.Context, lessonID string) ([]Section, error) {
	rows, err := r.store.Find(ctx, store.CollectionSections,
		store.Where(store.Eq("lesson_id", lessonID)).OrderBy(store.Asc("order_index"), store.Asc("id")))
	if err != nil {
		return nil, fmt.Errorf("find sections of %s: %w", lessonID, err)
	}
	return store.DecodeAll[Section](rows)
}

// CompletedSections returns the IDs of the lesson's sections the learner has finished.
func (r *StoreReader) CompletedSections(ctx context.Context, learnerID, lessonID string) ([]string, error) {
	sections, err := r.Sections(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, nil
	}

	ids := make([]any, len(sections))
	for i, s := range sections {
		ids[i] = s.ID
	}
	rows, err := r.store.Find(ctx, store.CollectionSectionProgress,
		store.Where(store.Eq("learner_id", learnerID), store.In("section_id", ids...)))
	if err != nil {
		return nil, fmt.Errorf("find section progress of %s: %w", learnerID, err)
	}

	completed := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row["completed_at"] == nil {
			continue
		}
		if id, ok := row["section_id"].(string); ok {
			completed[id] = true
		}
	}
	var out []string
	for _, s := range sections {
		if completed[s.ID] {
			out = append(out, s.ID)
		}
	}
	return out, nil
}

func (r *StoreReader) ActiveQuiz(ctx context.Context, lessonID string) (Quiz, error) {
	row, ok, err := store.FindOne(ctx, r.store, store.CollectionQuizzes,
		store.Where(store.Eq("lesson_id", lessonID), store.Eq("status", QuizStatusActive)).OrderBy(store.Asc("id")))
	if err != nil {
		return Quiz{}, fmt.Errorf("find quiz of %s: %w", lessonID, err)
	}
	if !ok {
		return Quiz{}, fmt.Errorf("active quiz of lesson %s: %w", lessonID, apperr.ErrNotFound)
	}
	var quiz Quiz
	if err := store.Decode(row, &quiz); err != nil {
		return Quiz{}, err
	}
	return quiz, nil
}

// Questions returns the quiz's questions in authored order.
func (r *StoreReader) Questions(ctx context.Context, quizID string) ([]Question, error) {
	rows, err := r.store.Find(ctx, store.CollectionQuestions,
		store.Where(store.Eq("quiz_id", quizID)).OrderBy(store.Asc("order_index"), store.Asc("id")))
	if err != nil {
		return nil, fmt.Errorf("find questions of %s: %w", quizID, err)
	}
	return store.DecodeAll[Question](rows)
}
