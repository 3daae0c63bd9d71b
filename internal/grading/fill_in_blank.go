package grading

import (
	"encoding/json"
	"strings"

	"github.com/at-ishikawa/lessonquiz/internal/content"
)

// FillInBlankGrader grades sentences with one or more blanks, each picked from its own choices.
type FillInBlankGrader struct{}

type Blank struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

type fillInBlankOptions struct {
	Text   string  `json:"text"`
	Blanks []Blank `json:"blanks"`
}

type fillInBlankResponse struct {
	Blanks map[string]string `json:"blanks"`
}

// FillInBlankPayload is the learner view of a fill-in-the-blank question.
type FillInBlankPayload struct {
	Text   string  `json:"text"`
	Blanks []Blank `json:"blanks"`
}

func (FillInBlankGrader) Type() string { return TypeFillInBlank }

func findBlank(blanks []Blank, id string) (Blank, bool) {
	for _, b := range blanks {
		if strings.EqualFold(b.ID, id) {
			return b, true
		}
	}
	return Blank{}, false
}

// definition returns the options and the correct choice ID keyed by blank ID.
func (FillInBlankGrader) definition(q content.Question) (fillInBlankOptions, map[string]string, error) {
	var opts fillInBlankOptions
	if err := decodeOptions(q, &opts); err != nil {
		return opts, nil, err
	}
	if len(opts.Blanks) == 0 {
		return opts, nil, invalidDefinition(q, "no blanks")
	}
	seen := make(map[string]bool, len(opts.Blanks))
	for _, b := range opts.Blanks {
		key := strings.ToLower(b.ID)
		if key == "" || seen[key] {
			return opts, nil, invalidDefinition(q, "blank ids must be unique and non-empty")
		}
		seen[key] = true
		if err := validateChoices(q, "blank "+b.ID, b.Choices, 2); err != nil {
			return opts, nil, err
		}
	}

	var answer map[string]string
	if err := decodeAnswer(q, &answer); err != nil {
		return opts, nil, err
	}
	correct := make(map[string]string, len(opts.Blanks))
	for blankID, choiceID := range answer {
		blank, ok := findBlank(opts.Blanks, blankID)
		if !ok {
			return opts, nil, invalidDefinition(q, "correct answer names unknown blank %q", blankID)
		}
		choice, ok := findChoice(blank.Choices, choiceID)
		if !ok {
			return opts, nil, invalidDefinition(q, "correct answer %q is not a choice of blank %q", choiceID, blankID)
		}
		correct[blank.ID] = choice.ID
	}
	for _, b := range opts.Blanks {
		if _, ok := correct[b.ID]; !ok {
			return opts, nil, invalidDefinition(q, "blank %q has no correct answer", b.ID)
		}
	}
	return opts, correct, nil
}

func (g FillInBlankGrader) BuildPayload(q content.Question) (any, error) {
	opts, _, err := g.definition(q)
	if err != nil {
		return nil, err
	}
	return FillInBlankPayload(opts), nil
}

func (g FillInBlankGrader) Grade(q content.Question, response json.RawMessage) (GradeResult, error) {
	opts, correct, err := g.definition(q)
	if err != nil {
		return GradeResult{}, err
	}
	var resp fillInBlankResponse
	if err := decodeResponse(q, response, &resp); err != nil {
		return GradeResult{}, err
	}

	normalized := make(map[string]string, len(opts.Blanks))
	for blankID, choiceID := range resp.Blanks {
		blank, ok := findBlank(opts.Blanks, blankID)
		if !ok {
			return GradeResult{}, invalidResponse(q, "unknown blank %q", blankID)
		}
		if _, dup := normalized[blank.ID]; dup {
			return GradeResult{}, invalidResponse(q, "blank %q answered twice", blank.ID)
		}
		choice, ok := findChoice(blank.Choices, choiceID)
		if !ok {
			return GradeResult{}, invalidResponse(q, "unknown choice %q for blank %q", choiceID, blank.ID)
		}
		normalized[blank.ID] = choice.ID
	}
	if len(normalized) != len(opts.Blanks) {
		return GradeResult{}, invalidResponse(q, "expected %d blanks, got %d", len(opts.Blanks), len(normalized))
	}

	allCorrect := true
	for blankID, choiceID := range correct {
		if normalized[blankID] != choiceID {
			allCorrect = false
			break
		}
	}
	return GradeResult{Correct: allCorrect, Normalized: normalized}, nil
}
