package grading

import (
	"encoding/json"

	"github.com/at-ishikawa/lessonquiz/internal/content"
)

// SingleChoiceGrader grades questions with one correct option.
type SingleChoiceGrader struct{}

type singleChoiceOptions struct {
	Choices []Choice `json:"choices"`
}

type singleChoiceResponse struct {
	ChoiceID *string `json:"choice_id"`
}

// SingleChoicePayload is the learner view of a single choice question.
type SingleChoicePayload struct {
	Choices []Choice `json:"choices"`
}

func (SingleChoiceGrader) Type() string { return TypeSingleChoice }

func (SingleChoiceGrader) definition(q content.Question) (singleChoiceOptions, Choice, error) {
	var opts singleChoiceOptions
	if err := decodeOptions(q, &opts); err != nil {
		return opts, Choice{}, err
	}
	if err := validateChoices(q, "choices", opts.Choices, 2); err != nil {
		return opts, Choice{}, err
	}
	var answer string
	if err := decodeAnswer(q, &answer); err != nil {
		return opts, Choice{}, err
	}
	correct, ok := findChoice(opts.Choices, answer)
	if !ok {
		return opts, Choice{}, invalidDefinition(q, "correct answer %q is not a choice", answer)
	}
	return opts, correct, nil
}

func (g SingleChoiceGrader) BuildPayload(q content.Question) (any, error) {
	opts, _, err := g.definition(q)
	if err != nil {
		return nil, err
	}
	return SingleChoicePayload{Choices: opts.Choices}, nil
}

func (g SingleChoiceGrader) Grade(q content.Question, response json.RawMessage) (GradeResult, error) {
	opts, correct, err := g.definition(q)
	if err != nil {
		return GradeResult{}, err
	}
	var resp singleChoiceResponse
	if err := decodeResponse(q, response, &resp); err != nil {
		return GradeResult{}, err
	}
	if resp.ChoiceID == nil || *resp.ChoiceID == "" {
		return GradeResult{}, invalidResponse(q, "choice_id is required")
	}
	chosen, ok := findChoice(opts.Choices, *resp.ChoiceID)
	if !ok {
		return GradeResult{}, invalidResponse(q, "unknown choice %q", *resp.ChoiceID)
	}
	return GradeResult{
		Correct:    chosen.ID == correct.ID,
		Normalized: chosen.ID,
	}, nil
}
