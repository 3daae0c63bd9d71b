package grading

import (
	"encoding/json"
	"slices"

	"github.com/at-ishikawa/lessonquiz/internal/content"
)

// OrderedTokensGrader grades sentences assembled from a token bank.
type OrderedTokensGrader struct{}

type orderedTokensOptions struct {
	Tokens []Choice `json:"tokens"`
}

type orderedTokensResponse struct {
	TokenIDs []string `json:"token_ids"`
}

// OrderedTokensPayload is the learner view of a token ordering question.
type OrderedTokensPayload struct {
	Tokens []Choice `json:"tokens"`
}

func (OrderedTokensGrader) Type() string { return TypeOrderedTokens }

// resolveTokens maps ids onto authored token ids, rejecting unknown and repeated tokens.
func resolveTokens(tokens []Choice, ids []string) ([]string, string, bool) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		token, ok := findChoice(tokens, id)
		if !ok {
			return nil, "unknown token " + id, false
		}
		if slices.Contains(out, token.ID) {
			return nil, "duplicate token " + id, false
		}
		out = append(out, token.ID)
	}
	return out, "", true
}

func (OrderedTokensGrader) definition(q content.Question) (orderedTokensOptions, []string, error) {
	var opts orderedTokensOptions
	if err := decodeOptions(q, &opts); err != nil {
		return opts, nil, err
	}
	if err := validateChoices(q, "tokens", opts.Tokens, 2); err != nil {
		return opts, nil, err
	}
	var answer []string
	if err := decodeAnswer(q, &answer); err != nil {
		return opts, nil, err
	}
	if len(answer) == 0 {
		return opts, nil, invalidDefinition(q, "empty correct answer")
	}
	correct, reason, ok := resolveTokens(opts.Tokens, answer)
	if !ok {
		return opts, nil, invalidDefinition(q, "correct answer: %s", reason)
	}
	return opts, correct, nil
}

func (g OrderedTokensGrader) BuildPayload(q content.Question) (any, error) {
	opts, _, err := g.definition(q)
	if err != nil {
		return nil, err
	}
	return OrderedTokensPayload(opts), nil
}

func (g OrderedTokensGrader) Grade(q content.Question, response json.RawMessage) (GradeResult, error) {
	opts, correct, err := g.definition(q)
	if err != nil {
		return GradeResult{}, err
	}
	var resp orderedTokensResponse
	if err := decodeResponse(q, response, &resp); err != nil {
		return GradeResult{}, err
	}
	if len(resp.TokenIDs) == 0 {
		return GradeResult{}, invalidResponse(q, "token_ids is required")
	}
	given, reason, ok := resolveTokens(opts.Tokens, resp.TokenIDs)
	if !ok {
		return GradeResult{}, invalidResponse(q, "%s", reason)
	}
	return GradeResult{
		Correct:    slices.Equal(given, correct),
		Normalized: given,
	}, nil
}
