package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/at-ishikawa/lessonquiz/internal/store"
)

// Bundle is an authoring fixture: lessons with their sections and quiz, plus learner progress.
type Bundle struct {
	Lessons  []LessonFixture   `yaml:"lessons"`
	Progress []ProgressFixture `yaml:"progress"`
}

type LessonFixture struct {
	ID       string           `yaml:"id"`
	Title    string           `yaml:"title"`
	XPReward int              `yaml:"xp_reward"`
	Badge    string           `yaml:"badge"`
	Sections []SectionFixture `yaml:"sections"`
	Quiz     *QuizFixture     `yaml:"quiz"`
}

type SectionFixture struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

type QuizFixture struct {
	ID        string            `yaml:"id"`
	Questions []QuestionFixture `yaml:"questions"`
}

type QuestionFixture struct {
	ID            string `yaml:"id"`
	Type          string `yaml:"type"`
	Prompt        string `yaml:"prompt"`
	Points        int    `yaml:"points"`
	Options       any    `yaml:"options"`
	CorrectAnswer any    `yaml:"correct_answer"`
}

// ProgressFixture marks sections as completed by a learner.
type ProgressFixture struct {
	LearnerID  string   `yaml:"learner_id"`
	SectionIDs []string `yaml:"section_ids"`
}

// LoadBundle reads a Bundle from a YAML file.
func LoadBundle(path string) (Bundle, error) {
	var bundle Bundle

	file, err := os.Open(path)
	if err != nil {
		return bundle, fmt.Errorf("os.Open(%s)> %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	if err := yaml.NewDecoder(file).Decode(&bundle); err != nil {
		return bundle, fmt.Errorf("yaml.NewDecoder().Decode()> %w", err)
	}
	return bundle, nil
}

// Questions converts the quiz fixture of a lesson into authored questions.
func (f LessonFixture) Questions() ([]Question, error) {
	if f.Quiz == nil {
		return nil, nil
	}
	out := make([]Question, 0, len(f.Quiz.Questions))
	for i, q := range f.Quiz.Questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return nil, fmt.Errorf("question %s options: %w", q.ID, err)
		}
		answer, err := json.Marshal(q.CorrectAnswer)
		if err != nil {
			return nil, fmt.Errorf("question %s correct answer: %w", q.ID, err)
		}
		points := q.Points
		if points <= 0 {
			points = 1
		}
		out = append(out, Question{
			ID:            q.ID,
			QuizID:        f.Quiz.ID,
			Type:          q.Type,
			Prompt:        q.Prompt,
			Options:       options,
			CorrectAnswer: answer,
			Points:        points,
			OrderIndex:    i,
		})
	}
	return out, nil
}

// SeedResult counts the rows Seed inserted.
type SeedResult struct {
	Inserted int
	Skipped  int
}

// Seed inserts the bundle. Rows that already exist are skipped, so seeding twice is harmless.
func Seed(ctx context.Context, s store.Store, bundle Bundle, now time.Time) (SeedResult, error) {
	var result SeedResult
	insert := func(collection string, record store.Record) error {
		if _, err := s.Insert(ctx, collection, record); err != nil {
			if errors.Is(err, store.ErrConflict) {
				slog.Default().DebugContext(ctx, "seed row exists",
					"collection", collection,
					"id", record["id"])
				result.Skipped++
				return nil
			}
			return fmt.Errorf("seed %s: %w", collection, err)
		}
		result.Inserted++
		return nil
	}

	for _, lesson := range bundle.Lessons {
		var badge any
		if lesson.Badge != "" {
			badge = lesson.Badge
		}
		if err := insert(store.CollectionLessons, store.Record{
			"id":        lesson.ID,
			"title":     lesson.Title,
			"xp_reward": lesson.XPReward,
			"badge":     badge,
		}); err != nil {
			return result, err
		}

		for i, section := range lesson.Sections {
			if err := insert(store.CollectionSections, store.Record{
				"id":          section.ID,
				"lesson_id":   lesson.ID,
				"title":       section.Title,
				"order_index": i,
			}); err != nil {
				return result, err
			}
		}

		if lesson.Quiz == nil {
			continue
		}
		if err := insert(store.CollectionQuizzes, store.Record{
			"id":        lesson.Quiz.ID,
			"lesson_id": lesson.ID,
			"status":    QuizStatusActive,
		}); err != nil {
			return result, err
		}
		questions, err := lesson.Questions()
		if err != nil {
			return result, err
		}
		for _, q := range questions {
			if err := insert(store.CollectionQuestions, store.Record{
				"id":             q.ID,
				"quiz_id":        q.QuizID,
				"type":           q.Type,
				"prompt":         q.Prompt,
				"options":        q.Options,
				"correct_answer": q.CorrectAnswer,
				"points":         q.Points,
				"order_index":    q.OrderIndex,
			}); err != nil {
				return result, err
			}
		}
	}

	for _, progress := range bundle.Progress {
		for _, sectionID := range progress.SectionIDs {
			if err := insert(store.CollectionSectionProgress, store.Record{
				"id":           uuid.NewString(),
				"learner_id":   progress.LearnerID,
				"section_id":   sectionID,
				"completed_at": now.UTC(),
			}); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}
