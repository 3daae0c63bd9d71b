package quiz

import (
	"context"

	"github.com/at-ishikawa/lessonquiz/internal/hearts"
)

//go:generate mockgen -source=interface.go -destination=../mocks/quiz/mock_service.go -package=mock_quiz

// Service is the learner-facing surface of the lesson quiz engine.
type Service interface {
	GetState(ctx context.Context, learnerID, lessonID string) (State, error)
	Answer(ctx context.Context, input AnswerInput) (AnswerOutcome, error)
	Restart(ctx context.Context, learnerID, lessonID string, mode RestartMode) (State, error)
	HeartsStatus(ctx context.Context, learnerID string) (hearts.Status, error)
}
