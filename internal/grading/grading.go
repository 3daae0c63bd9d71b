// Package grading validates learner responses and decides correctness, one Grader per question type.
//
// Graders are pure: they never touch the store. A malformed response fails with
// apperr.ErrInvalidResponse and corrupt authoring data with apperr.ErrInvalidQuestionDefinition;
// neither is ever reported as a wrong answer.
package grading

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/at-ishikawa/lessonquiz/internal/apperr"
	"github.com/at-ishikawa/lessonquiz/internal/content"
)

// Question type tags.
const (
	TypeSingleChoice      = "single_choice"
	TypeBoolean           = "boolean"
	TypeFillInBlank       = "fill_in_blank"
	TypeOrderedTokens     = "ordered_tokens"
	TypeBranchingDialogue = "branching_dialogue"
	TypePairing           = "pairing"
	TypeFreeText          = "free_text"
)

// SupportedTypes lists every question type a lesson quiz may contain.
var SupportedTypes = []string{
	TypeSingleChoice,
	TypeBoolean,
	TypeFillInBlank,
	TypeOrderedTokens,
	TypeBranchingDialogue,
	TypePairing,
	TypeFreeText,
}

// GradeResult is the outcome of grading one response. Normalized is what gets stored in the attempt.
type GradeResult struct {
	Correct    bool
	Normalized any
}

// Grader grades one question type.
type Grader interface {
	Type() string
	// BuildPayload returns what the learner needs to render the question, without the answer.
	BuildPayload(q content.Question) (any, error)
	Grade(q content.Question, response json.RawMessage) (GradeResult, error)
}

// Choice is a selectable option of a question.
type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func invalidResponse(q content.Question, format string, args ...any) error {
	return fmt.Errorf("question %s: %s: %w", q.ID, fmt.Sprintf(format, args...), apperr.ErrInvalidResponse)
}

func invalidDefinition(q content.Question, format string, args ...any) error {
	return fmt.Errorf("question %s (%s): %s: %w", q.ID, q.Type, fmt.Sprintf(format, args...), apperr.ErrInvalidQuestionDefinition)
}

// decodeOptions reads the authored options; absent options decode as the zero value.
func decodeOptions(q content.Question, v any) error {
	if isEmptyJSON(q.Options) {
		return nil
	}
	if err := json.Unmarshal(q.Options, v); err != nil {
		return invalidDefinition(q, "options: %v", err)
	}
	return nil
}

func decodeAnswer(q content.Question, v any) error {
	if isEmptyJSON(q.CorrectAnswer) {
		return invalidDefinition(q, "missing correct answer")
	}
	if err := json.Unmarshal(q.CorrectAnswer, v); err != nil {
		return invalidDefinition(q, "correct answer: %v", err)
	}
	return nil
}

func decodeResponse(q content.Question, response json.RawMessage, v any) error {
	if isEmptyJSON(response) {
		return invalidResponse(q, "missing response")
	}
	if err := json.Unmarshal(response, v); err != nil {
		return invalidResponse(q, "malformed response: %v", err)
	}
	return nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// validateChoices requires at least min choices with distinct, non-empty IDs.
func validateChoices(q content.Question, field string, choices []Choice, min int) error {
	if len(choices) < min {
		return invalidDefinition(q, "%s needs at least %d choices, got %d", field, min, len(choices))
	}
	seen := make(map[string]bool, len(choices))
	for _, c := range choices {
		key := strings.ToLower(c.ID)
		if key == "" {
			return invalidDefinition(q, "%s has a choice without id", field)
		}
		if seen[key] {
			return invalidDefinition(q, "%s has duplicate choice %q", field, c.ID)
		}
		seen[key] = true
	}
	return nil
}

// findChoice matches IDs case-insensitively and returns the authored spelling.
func findChoice(choices []Choice, id string) (Choice, bool) {
	for _, c := range choices {
		if strings.EqualFold(c.ID, id) {
			return c, true
		}
	}
	return Choice{}, false
}
