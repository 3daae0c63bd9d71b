package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/lessonquiz/internal/quiz"
)

// learnerCommand loads the configuration, opens the quiz service and hands it to run.
func learnerCommand(run func(ctx context.Context, svc quiz.Service, p *printer) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		p, err := newPrinter(cmd.OutOrStdout(), globals.output)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		svc, ctx, closeService, err := newService(cmd.Context(), cfg, globals)
		if err != nil {
			return err
		}
		defer func() { _ = closeService() }()
		return run(ctx, svc, p)
	}
}

func newStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "state LESSON_ID",
		Short: "Show the quiz of a lesson, starting an attempt when possible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return learnerCommand(func(ctx context.Context, svc quiz.Service, p *printer) error {
				return showState(ctx, svc, p, globals.learnerID, args[0])
			})(cmd, args)
		},
	}
}

func newAnswerCommand() *cobra.Command {
	var attemptID, questionID string
	command := &cobra.Command{
		Use:   "answer LESSON_ID RESPONSE_JSON",
		Short: "Answer the current question of a lesson quiz",
		Example: `  lessonquiz answer lesson-greetings '{"choice_id":"a"}' --learner learner-1
  lessonquiz answer lesson-greetings '{"value":true}' --learner learner-1 --attempt 4c1d...`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return learnerCommand(func(ctx context.Context, svc quiz.Service, p *printer) error {
				return submitAnswer(ctx, svc, p, quiz.AnswerInput{
					LearnerID:  globals.learnerID,
					LessonID:   args[0],
					AttemptID:  attemptID,
					QuestionID: questionID,
					Response:   json.RawMessage(args[1]),
				})
			})(cmd, args)
		},
	}
	command.Flags().StringVar(&attemptID, "attempt", "", "attempt ID; the open attempt when empty")
	command.Flags().StringVar(&questionID, "question", "", "question ID; the current question when empty")
	return command
}

func newRestartCommand() *cobra.Command {
	var full bool
	command := &cobra.Command{
		Use:   "restart LESSON_ID",
		Short: "Start a new attempt, retrying only the missed questions unless --full is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := quiz.RestartWrongOnly
			if full {
				mode = quiz.RestartFull
			}
			return learnerCommand(func(ctx context.Context, svc quiz.Service, p *printer) error {
				state, err := svc.Restart(ctx, globals.learnerID, args[0], mode)
				if err != nil {
					return fmt.Errorf("restart %s: %w", args[0], err)
				}
				return p.state(state)
			})(cmd, args)
		},
	}
	command.Flags().BoolVar(&full, "full", false, "retry every question")
	return command
}

func newHeartsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hearts",
		Short: "Show the learner's hearts",
		Args:  cobra.NoArgs,
		RunE: learnerCommand(func(ctx context.Context, svc quiz.Service, p *printer) error {
			status, err := svc.HeartsStatus(ctx, globals.learnerID)
			if err != nil {
				return fmt.Errorf("hearts of %s: %w", globals.learnerID, err)
			}
			return p.hearts(status)
		}),
	}
}

func showState(ctx context.Context, svc quiz.Service, p *printer, learnerID, lessonID string) error {
	state, err := svc.GetState(ctx, learnerID, lessonID)
	if err != nil {
		return fmt.Errorf("state of %s: %w", lessonID, err)
	}
	return p.state(state)
}

// submitAnswer fills a missing attempt or question from the current state before answering.
func submitAnswer(ctx context.Context, svc quiz.Service, p *printer, input quiz.AnswerInput) error {
	if !json.Valid(input.Response) {
		return errors.New("RESPONSE_JSON is not valid JSON")
	}
	if input.AttemptID == "" || input.QuestionID == "" {
		state, err := svc.GetState(ctx, input.LearnerID, input.LessonID)
		if err != nil {
			return fmt.Errorf("state of %s: %w", input.LessonID, err)
		}
		if state.AttemptID == "" || state.Question == nil {
			return p.state(state)
		}
		if input.AttemptID == "" {
			input.AttemptID = state.AttemptID
		}
		if input.QuestionID == "" {
			input.QuestionID = state.Question.ID
		}
	}

	outcome, err := svc.Answer(ctx, input)
	if err != nil {
		return fmt.Errorf("answer %s: %w", input.QuestionID, err)
	}
	return p.outcome(outcome)
}
