package grading

import (
	"encoding/json"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/at-ishikawa/lessonquiz/internal/content"
)

// FreeTextGrader grades typed answers against a set of accepted strings.
type FreeTextGrader struct{}

type freeTextOptions struct {
	Placeholder string `json:"placeholder"`
}

type freeTextResponse struct {
	Text *string `json:"text"`
}

// FreeTextPayload is the learner view of a free text question.
type FreeTextPayload struct {
	Placeholder string `json:"placeholder"`
}

func (FreeTextGrader) Type() string { return TypeFreeText }

// NormalizeText case-folds s and collapses runs of whitespace to one space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

func (FreeTextGrader) definition(q content.Question) (freeTextOptions, []string, error) {
	var opts freeTextOptions
	if err := decodeOptions(q, &opts); err != nil {
		return opts, nil, err
	}

	var raw any
	if err := decodeAnswer(q, &raw); err != nil {
		return opts, nil, err
	}
	var accepted []string
	switch x := raw.(type) {
	case string:
		accepted = []string{x}
	case []any:
		for _, v := range x {
			s, ok := v.(string)
			if !ok {
				return opts, nil, invalidDefinition(q, "accepted answer %v is not a string", v)
			}
			accepted = append(accepted, s)
		}
	default:
		return opts, nil, invalidDefinition(q, "correct answer must be a string or a list of strings")
	}

	normalized := make([]string, 0, len(accepted))
	for _, s := range accepted {
		n := NormalizeText(s)
		if n == "" {
			return opts, nil, invalidDefinition(q, "blank accepted answer")
		}
		normalized = append(normalized, n)
	}
	if len(normalized) == 0 {
		return opts, nil, invalidDefinition(q, "no accepted answers")
	}
	return opts, normalized, nil
}

func (g FreeTextGrader) BuildPayload(q content.Question) (any, error) {
	opts, _, err := g.definition(q)
	if err != nil {
		return nil, err
	}
	return FreeTextPayload(opts), nil
}

func (g FreeTextGrader) Grade(q content.Question, response json.RawMessage) (GradeResult, error) {
	_, accepted, err := g.definition(q)
	if err != nil {
		return GradeResult{}, err
	}
	var resp freeTextResponse
	if err := decodeResponse(q, response, &resp); err != nil {
		return GradeResult{}, err
	}
	if resp.Text == nil {
		return GradeResult{}, invalidResponse(q, "text is required")
	}
	text := NormalizeText(*resp.Text)
	if text == "" {
		return GradeResult{}, invalidResponse(q, "text is blank")
	}
	return GradeResult{
		Correct:    slices.Contains(accepted, text),
		Normalized: text,
	}, nil
}
