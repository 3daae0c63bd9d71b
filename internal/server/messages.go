package server

import (
	"encoding/json"

	"github.com/at-ishikawa/lessonquiz/internal/hearts"
	"github.com/at-ishikawa/lessonquiz/internal/quiz"
)

type GetStateRequest struct {
	LessonID string `json:"lesson_id" validate:"required"`
}

type GetStateResponse struct {
	State quiz.State `json:"state"`
}

type SubmitAnswerRequest struct {
	LessonID   string          `json:"lesson_id" validate:"required"`
	AttemptID  string          `json:"attempt_id" validate:"required"`
	QuestionID string          `json:"question_id" validate:"required"`
	Response   json.RawMessage `json:"response,omitempty" validate:"required"`
}

type SubmitAnswerResponse struct {
	Outcome quiz.AnswerOutcome `json:"outcome"`
}

type RestartRequest struct {
	LessonID string `json:"lesson_id" validate:"required"`
	Mode     string `json:"mode" validate:"omitempty,oneof=wrong_only full"`
}

type RestartResponse struct {
	State quiz.State `json:"state"`
}

type GetHeartsRequest struct{}

type GetHeartsResponse struct {
	Hearts hearts.Status `json:"hearts"`
}
