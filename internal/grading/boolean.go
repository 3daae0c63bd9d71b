package grading

import (
	"encoding/json"
	"strings"

	"github.com/at-ishikawa/lessonquiz/internal/content"
)

// BooleanGrader grades true/false statements.
type BooleanGrader struct{}

type booleanOptions struct {
	TrueLabel  string `json:"true_label"`
	FalseLabel string `json:"false_label"`
}

type booleanResponse struct {
	Value any `json:"value"`
}

// BooleanPayload is the learner view of a true/false question.
type BooleanPayload struct {
	TrueLabel  string `json:"true_label"`
	FalseLabel string `json:"false_label"`
}

func (BooleanGrader) Type() string { return TypeBoolean }

// parseBool accepts JSON booleans and "true"/"false" in any case.
func parseBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func (BooleanGrader) definition(q content.Question) (booleanOptions, bool, error) {
	var opts booleanOptions
	if err := decodeOptions(q, &opts); err != nil {
		return opts, false, err
	}
	if opts.TrueLabel == "" {
		opts.TrueLabel = "True"
	}
	if opts.FalseLabel == "" {
		opts.FalseLabel = "False"
	}
	var raw any
	if err := decodeAnswer(q, &raw); err != nil {
		return opts, false, err
	}
	answer, ok := parseBool(raw)
	if !ok {
		return opts, false, invalidDefinition(q, "correct answer %v is not a boolean", raw)
	}
	return opts, answer, nil
}

func (g BooleanGrader) BuildPayload(q content.Question) (any, error) {
	opts, _, err := g.definition(q)
	if err != nil {
		return nil, err
	}
	return BooleanPayload(opts), nil
}

func (g BooleanGrader) Grade(q content.Question, response json.RawMessage) (GradeResult, error) {
	_, answer, err := g.definition(q)
	if err != nil {
		return GradeResult{}, err
	}
	var resp booleanResponse
	if err := decodeResponse(q, response, &resp); err != nil {
		return GradeResult{}, err
	}
	value, ok := parseBool(resp.Value)
	if !ok {
		return GradeResult{}, invalidResponse(q, "value must be true or false")
	}
	return GradeResult{
		Correct:    value == answer,
		Normalized: value,
	}, nil
}
