// Package server exposes the quiz engine as a Connect RPC service.
package server

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	"github.com/at-ishikawa/lessonquiz/internal/apperr"
	"github.com/at-ishikawa/lessonquiz/internal/identity"
	"github.com/at-ishikawa/lessonquiz/internal/quiz"
)

// QuizHandler serves the quiz procedures for the learner authenticated by the auth interceptor.
type QuizHandler struct {
	service   quiz.Service
	validator *requestValidator
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(service quiz.Service) (*QuizHandler, error) {
	v, err := newRequestValidator()
	if err != nil {
		return nil, fmt.Errorf("newRequestValidator() > %w", err)
	}
	return &QuizHandler{service: service, validator: v}, nil
}

// GetState returns the learner's view of a lesson quiz, starting an attempt when possible.
func (h *QuizHandler) GetState(
	ctx context.Context,
	req *connect.Request[GetStateRequest],
) (*connect.Response[GetStateResponse], error) {
	if err := h.validator.check(req.Msg); err != nil {
		return nil, err
	}
	learnerID, err := learnerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	state, err := h.service.GetState(ctx, learnerID, req.Msg.LessonID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&GetStateResponse{State: state}), nil
}

// SubmitAnswer grades the response to the current question of an attempt.
func (h *QuizHandler) SubmitAnswer(
	ctx context.Context,
	req *connect.Request[SubmitAnswerRequest],
) (*connect.Response[SubmitAnswerResponse], error) {
	if err := h.validator.check(req.Msg); err != nil {
		return nil, err
	}
	learnerID, err := learnerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	outcome, err := h.service.Answer(ctx, quiz.AnswerInput{
		LearnerID:  learnerID,
		LessonID:   req.Msg.LessonID,
		AttemptID:  req.Msg.AttemptID,
		QuestionID: req.Msg.QuestionID,
		Response:   req.Msg.Response,
	})
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&SubmitAnswerResponse{Outcome: outcome}), nil
}

// Restart starts a new attempt, or returns the open one.
func (h *QuizHandler) Restart(
	ctx context.Context,
	req *connect.Request[RestartRequest],
) (*connect.Response[RestartResponse], error) {
	if err := h.validator.check(req.Msg); err != nil {
		return nil, err
	}
	learnerID, err := learnerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	state, err := h.service.Restart(ctx, learnerID, req.Msg.LessonID, quiz.RestartMode(req.Msg.Mode))
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&RestartResponse{State: state}), nil
}

func (h *QuizHandler) GetHearts(
	ctx context.Context,
	_ *connect.Request[GetHeartsRequest],
) (*connect.Response[GetHeartsResponse], error) {
	learnerID, err := learnerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	status, err := h.service.HeartsStatus(ctx, learnerID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&GetHeartsResponse{Hearts: status}), nil
}

func learnerFromContext(ctx context.Context) (string, error) {
	id, ok := identity.FromContext(ctx)
	if !ok || id.LearnerID == "" {
		return "", toConnectError(ctx, fmt.Errorf("no caller identity: %w", apperr.ErrUnauthorized))
	}
	return id.LearnerID, nil
}
