// Package attempt persists lesson quiz attempts.
//
// At most one attempt per learner and lesson is open at a time. The store enforces this
// through a unique open_key that holds "learner|lesson" while the attempt is open and
// NULL once it is passed or failed.
package attempt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/at-ishikawa/lessonquiz/internal/store"
)

type Status string

const (
	StatusInProgress     Status = "in_progress"
	StatusPausedNoHearts Status = "paused_no_hearts"
	StatusPassed         Status = "passed"
	StatusFailed         Status = "failed"
)

// Open reports whether the attempt still accepts answers or may be resumed.
func (s Status) Open() bool {
	return s == StatusInProgress || s == StatusPausedNoHearts
}

// Terminal reports whether the attempt is finished.
func (s Status) Terminal() bool {
	return s == StatusPassed || s == StatusFailed
}

type Attempt struct {
	ID                   string         `json:"id"`
	LearnerID            string         `json:"learner_id"`
	LessonID             string         `json:"lesson_id"`
	QuizID               string         `json:"quiz_id"`
	Status               Status         `json:"status"`
	CurrentQuestionIndex int            `json:"current_question_index"`
	CorrectCount         int            `json:"correct_count"`
	EarnedScore          int            `json:"earned_score"`
	MaxScore             int            `json:"max_score"`
	QuestionIDs          []string       `json:"question_ids"`
	WrongQuestionIDs     []string       `json:"wrong_question_ids"`
	Answers              map[string]any `json:"answers"`
	// PendingHeartDebits counts wrong answers whose heart has not been taken yet.
	PendingHeartDebits   int            `json:"pending_heart_debits"`
	StartedAt            time.Time      `json:"started_at"`
	CompletedAt          *time.Time     `json:"completed_at"`
}

// CurrentQuestionID returns the question awaiting an answer, or "" once every question is answered.
func (a Attempt) CurrentQuestionID() string {
	if a.CurrentQuestionIndex < 0 || a.CurrentQuestionIndex >= len(a.QuestionIDs) {
		return ""
	}
	return a.QuestionIDs[a.CurrentQuestionIndex]
}

// Version is the part of an attempt a conditional update must still find unchanged.
type Version struct {
	Index              int
	Status             Status
	PendingHeartDebits int
}

func (a Attempt) Version() Version {
	return Version{Index: a.CurrentQuestionIndex, Status: a.Status, PendingHeartDebits: a.PendingHeartDebits}
}

// OpenKey is the uniqueness key of an open attempt.
func OpenKey(learnerID, lessonID string) string {
	return learnerID + "|" + lessonID
}

func openKeyValue(a Attempt) any {
	if a.Status.Open() {
		return OpenKey(a.LearnerID, a.LessonID)
	}
	return nil
}

type Repository struct {
	store store.Store
	now   func() time.Time
}

type Option func(*Repository)

func WithClock(now func() time.Time) Option { return func(r *Repository) { r.now = now } }

func NewRepository(s store.Store, opts ...Option) *Repository {
	r := &Repository{store: s, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewID returns a fresh attempt ID.
func NewID() string {
	return uuid.NewString()
}

// Create stores a new attempt. An open attempt of the same learner and lesson makes it fail
// with store.ErrConflict; the caller should load that attempt instead.
func (r *Repository) Create(ctx context.Context, a Attempt) (Attempt, error) {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = r.now().UTC()
	}
	if a.Answers == nil {
		a.Answers = map[string]any{}
	}
	if a.WrongQuestionIDs == nil {
		a.WrongQuestionIDs = []string{}
	}

	row, err := r.store.Insert(ctx, store.CollectionAttempts, store.Record{
		"id":                     a.ID,
		"learner_id":             a.LearnerID,
		"lesson_id":              a.LessonID,
		"quiz_id":                a.QuizID,
		"status":                 string(a.Status),
		"open_key":               openKeyValue(a),
		"current_question_index": a.CurrentQuestionIndex,
		"correct_count":          a.CorrectCount,
		"earned_score":           a.EarnedScore,
		"max_score":              a.MaxScore,
		"question_ids":           a.QuestionIDs,
		"wrong_question_ids":     a.WrongQuestionIDs,
		"answers":                a.Answers,
		"pending_heart_debits":   a.PendingHeartDebits,
		"started_at":             a.StartedAt,
		"completed_at":           a.CompletedAt,
		"updated_at":             a.StartedAt,
	})
	if err != nil {
		return Attempt{}, fmt.Errorf("create attempt for %s: %w", OpenKey(a.LearnerID, a.LessonID), err)
	}
	return decode(row)
}

// Get loads an attempt by ID.
func (r *Repository) Get(ctx context.Context, id string) (Attempt, bool, error) {
	return r.findOne(ctx, store.Where(store.Eq("id", id)))
}

// FindOpen loads the learner's open attempt of the lesson.
func (r *Repository) FindOpen(ctx context.Context, learnerID, lessonID string) (Attempt, bool, error) {
	return r.findOne(ctx, store.Where(store.Eq("open_key", OpenKey(learnerID, lessonID))))
}

// Latest loads the learner's most recently started attempt of the lesson.
func (r *Repository) Latest(ctx context.Context, learnerID, lessonID string) (Attempt, bool, error) {
	return r.findOne(ctx, store.Where(
		store.Eq("learner_id", learnerID),
		store.Eq("lesson_id", lessonID),
	).OrderBy(store.Desc("started_at"), store.Desc("id")))
}

// UpdateIf writes the mutable fields of next only if the stored attempt still has the expected
// version. ok=false means another request advanced the attempt first.
func (r *Repository) UpdateIf(ctx context.Context, id string, expect Version, next Attempt) (Attempt, bool, error) {
	if next.Answers == nil {
		next.Answers = map[string]any{}
	}
	if next.WrongQuestionIDs == nil {
		next.WrongQuestionIDs = []string{}
	}
	row, ok, err := store.CompareAndSwap(ctx, r.store, store.CollectionAttempts,
		[]store.Condition{
			store.Eq("id", id),
			store.Eq("current_question_index", expect.Index),
			store.Eq("status", string(expect.Status)),
			store.Eq("pending_heart_debits", expect.PendingHeartDebits),
		},
		store.Record{
			"status":                 string(next.Status),
			"open_key":               openKeyValue(next),
			"current_question_index": next.CurrentQuestionIndex,
			"correct_count":          next.CorrectCount,
			"earned_score":           next.EarnedScore,
			"wrong_question_ids":     next.WrongQuestionIDs,
			"answers":                next.Answers,
			"pending_heart_debits":   next.PendingHeartDebits,
			"completed_at":           next.CompletedAt,
			"updated_at":             r.now().UTC(),
		},
	)
	if err != nil {
		return Attempt{}, false, fmt.Errorf("update attempt %s: %w", id, err)
	}
	if !ok {
		return Attempt{}, false, nil
	}
	updated, err := decode(row)
	if err != nil {
		return Attempt{}, false, err
	}
	return updated, true, nil
}

// SetPendingDebits moves the owed heart count of an attempt from one value to another.
// ok=false means another request changed the count first.
func (r *Repository) SetPendingDebits(ctx context.Context, id string, from, to int) (Attempt, bool, error) {
	row, ok, err := store.CompareAndSwap(ctx, r.store, store.CollectionAttempts,
		[]store.Condition{
			store.Eq("id", id),
			store.Eq("pending_heart_debits", from),
		},
		store.Record{
			"pending_heart_debits": to,
			"updated_at":           r.now().UTC(),
		},
	)
	if err != nil {
		return Attempt{}, false, fmt.Errorf("update pending debits of attempt %s: %w", id, err)
	}
	if !ok {
		return Attempt{}, false, nil
	}
	updated, err := decode(row)
	if err != nil {
		return Attempt{}, false, err
	}
	return updated, true, nil
}

func (r *Repository) findOne(ctx context.Context, query store.Query) (Attempt, bool, error) {
	row, ok, err := store.FindOne(ctx, r.store, store.CollectionAttempts, query)
	if err != nil {
		return Attempt{}, false, fmt.Errorf("find attempt: %w", err)
	}
	if !ok {
		return Attempt{}, false, nil
	}
	a, err := decode(row)
	if err != nil {
		return Attempt{}, false, err
	}
	return a, true, nil
}

func decode(row store.Record) (Attempt, error) {
	var a Attempt
	if err := store.Decode(row, &a); err != nil {
		return Attempt{}, fmt.Errorf("decode attempt: %w", err)
	}
	if a.Answers == nil {
		a.Answers = map[string]any{}
	}
	return a, nil
}
