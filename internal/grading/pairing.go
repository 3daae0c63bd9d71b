package grading

import (
	"encoding/json"
	"maps"

	"github.com/at-ishikawa/lessonquiz/internal/content"
)

// PairingGrader grades matching exercises between a left and a right list.
type PairingGrader struct{}

type pairingOptions struct {
	Left  []Choice `json:"left"`
	Right []Choice `json:"right"`
}

type pairingResponse struct {
	Pairs map[string]string `json:"pairs"`
}

// PairingPayload is the learner view of a pairing question.
type PairingPayload struct {
	Left  []Choice `json:"left"`
	Right []Choice `json:"right"`
}

func (PairingGrader) Type() string { return TypePairing }

// resolvePairs maps ids onto authored ids. It reports the offending id when one is unknown.
func resolvePairs(opts pairingOptions, pairs map[string]string) (map[string]string, string, bool) {
	out := make(map[string]string, len(pairs))
	for leftID, rightID := range pairs {
		left, ok := findChoice(opts.Left, leftID)
		if !ok {
			return nil, "unknown left item " + leftID, false
		}
		if _, dup := out[left.ID]; dup {
			return nil, "left item paired twice " + leftID, false
		}
		right, ok := findChoice(opts.Right, rightID)
		if !ok {
			return nil, "unknown right item " + rightID, false
		}
		out[left.ID] = right.ID
	}
	return out, "", true
}

func (PairingGrader) definition(q content.Question) (pairingOptions, map[string]string, error) {
	var opts pairingOptions
	if err := decodeOptions(q, &opts); err != nil {
		return opts, nil, err
	}
	if err := validateChoices(q, "left", opts.Left, 2); err != nil {
		return opts, nil, err
	}
	if err := validateChoices(q, "right", opts.Right, 2); err != nil {
		return opts, nil, err
	}
	var answer map[string]string
	if err := decodeAnswer(q, &answer); err != nil {
		return opts, nil, err
	}
	correct, reason, ok := resolvePairs(opts, answer)
	if !ok {
		return opts, nil, invalidDefinition(q, "correct answer: %s", reason)
	}
	if len(correct) != len(opts.Left) {
		return opts, nil, invalidDefinition(q, "correct answer pairs %d of %d left items", len(correct), len(opts.Left))
	}
	return opts, correct, nil
}

func (g PairingGrader) BuildPayload(q content.Question) (any, error) {
	opts, _, err := g.definition(q)
	if err != nil {
		return nil, err
	}
	return PairingPayload(opts), nil
}

func (g PairingGrader) Grade(q content.Question, response json.RawMessage) (GradeResult, error) {
	opts, correct, err := g.definition(q)
	if err != nil {
		return GradeResult{}, err
	}
	var resp pairingResponse
	if err := decodeResponse(q, response, &resp); err != nil {
		return GradeResult{}, err
	}
	given, reason, ok := resolvePairs(opts, resp.Pairs)
	if !ok {
		return GradeResult{}, invalidResponse(q, "%s", reason)
	}
	if len(given) != len(opts.Left) {
		return GradeResult{}, invalidResponse(q, "expected %d pairs, got %d", len(opts.Left), len(given))
	}
	return GradeResult{
		Correct:    maps.Equal(given, correct),
		Normalized: given,
	}, nil
}
