package quiz

import (
	"encoding/json"

	"github.com/at-ishikawa/lessonquiz/internal/hearts"
	"github.com/at-ishikawa/lessonquiz/internal/reward"
)

type StateKind string

const (
	KindInProgress    StateKind = "in_progress"
	KindPaused        StateKind = "paused_no_hearts"
	KindBlockedHearts StateKind = "blocked_hearts"
	KindLocked        StateKind = "locked"
	KindPassed        StateKind = "passed"
	KindFailed        StateKind = "failed"
)

type RestartMode string

const (
	RestartWrongOnly RestartMode = "wrong_only"
	RestartFull      RestartMode = "full"
)

// State is what a learner sees of a lesson quiz. AttemptID is empty for the locked and
// blocked_hearts views, which never create an attempt.
type State struct {
	Kind             StateKind        `json:"kind"`
	LessonID         string           `json:"lesson_id"`
	QuizID           string           `json:"quiz_id,omitempty"`
	AttemptID        string           `json:"attempt_id,omitempty"`
	Question         *QuestionView    `json:"question,omitempty"`
	QuestionIndex    int              `json:"question_index"`
	QuestionCount    int              `json:"question_count"`
	CorrectCount     int              `json:"correct_count"`
	EarnedScore      int              `json:"earned_score"`
	MaxScore         int              `json:"max_score"`
	WrongQuestionIDs []string         `json:"wrong_question_ids,omitempty"`
	Hearts           hearts.Status    `json:"hearts"`
	Progress         ProgressMetadata `json:"progress"`
	Reward           *reward.Result   `json:"reward,omitempty"`
}

// QuestionView is the current question without its answer.
type QuestionView struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Prompt  string `json:"prompt"`
	Points  int    `json:"points"`
	Payload any    `json:"payload"`
}

// ProgressMetadata combines section completion with the attempt for the lesson progress view.
type ProgressMetadata struct {
	SectionsTotal     int    `json:"sections_total"`
	SectionsCompleted int    `json:"sections_completed"`
	QuizUnlocked      bool   `json:"quiz_unlocked"`
	Answered          int    `json:"answered"`
	Total             int    `json:"total"`
	Status            string `json:"status"`
}

type AnswerInput struct {
	LearnerID  string
	LessonID   string
	AttemptID  string
	QuestionID string
	Response   json.RawMessage
}

// AnswerOutcome reports a graded answer. When BlockedByHearts is set nothing was graded.
type AnswerOutcome struct {
	BlockedByHearts bool  `json:"blocked_by_hearts"`
	Correct         bool  `json:"correct"`
	Normalized      any   `json:"normalized_response,omitempty"`
	State           State `json:"state"`
}
