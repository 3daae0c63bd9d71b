package grading

import (
	"encoding/json"
	"strings"

	"github.com/at-ishikawa/lessonquiz/internal/content"
)

// BranchingDialogueGrader grades conversations where the learner picks a reply at every turn.
type BranchingDialogueGrader struct{}

type Turn struct {
	ID      string   `json:"id"`
	Speaker string   `json:"speaker,omitempty"`
	Line    string   `json:"line"`
	Replies []Choice `json:"replies"`
}

type branchingDialogueOptions struct {
	Turns []Turn `json:"turns"`
}

type branchingDialogueResponse struct {
	Replies map[string]string `json:"replies"`
}

// BranchingDialoguePayload is the learner view of a dialogue question.
type BranchingDialoguePayload struct {
	Turns []Turn `json:"turns"`
}

func (BranchingDialogueGrader) Type() string { return TypeBranchingDialogue }

func findTurn(turns []Turn, id string) (Turn, bool) {
	for _, t := range turns {
		if strings.EqualFold(t.ID, id) {
			return t, true
		}
	}
	return Turn{}, false
}

// definition returns the options and the expected reply ID keyed by turn ID.
func (BranchingDialogueGrader) definition(q content.Question) (branchingDialogueOptions, map[string]string, error) {
	var opts branchingDialogueOptions
	if err := decodeOptions(q, &opts); err != nil {
		return opts, nil, err
	}
	if len(opts.Turns) == 0 {
		return opts, nil, invalidDefinition(q, "no turns")
	}
	seen := make(map[string]bool, len(opts.Turns))
	for _, t := range opts.Turns {
		key := strings.ToLower(t.ID)
		if key == "" || seen[key] {
			return opts, nil, invalidDefinition(q, "turn ids must be unique and non-empty")
		}
		seen[key] = true
		if err := validateChoices(q, "turn "+t.ID, t.Replies, 2); err != nil {
			return opts, nil, err
		}
	}

	var answer map[string]string
	if err := decodeAnswer(q, &answer); err != nil {
		return opts, nil, err
	}
	expected := make(map[string]string, len(opts.Turns))
	for turnID, replyID := range answer {
		turn, ok := findTurn(opts.Turns, turnID)
		if !ok {
			return opts, nil, invalidDefinition(q, "correct answer names unknown turn %q", turnID)
		}
		reply, ok := findChoice(turn.Replies, replyID)
		if !ok {
			return opts, nil, invalidDefinition(q, "correct answer %q is not a reply of turn %q", replyID, turnID)
		}
		expected[turn.ID] = reply.ID
	}
	for _, t := range opts.Turns {
		if _, ok := expected[t.ID]; !ok {
			return opts, nil, invalidDefinition(q, "turn %q has no expected reply", t.ID)
		}
	}
	return opts, expected, nil
}

func (g BranchingDialogueGrader) BuildPayload(q content.Question) (any, error) {
	opts, _, err := g.definition(q)
	if err != nil {
		return nil, err
	}
	return BranchingDialoguePayload(opts), nil
}

func (g BranchingDialogueGrader) Grade(q content.Question, response json.RawMessage) (GradeResult, error) {
	opts, expected, err := g.definition(q)
	if err != nil {
		return GradeResult{}, err
	}
	var resp branchingDialogueResponse
	if err := decodeResponse(q, response, &resp); err != nil {
		return GradeResult{}, err
	}

	normalized := make(map[string]string, len(opts.Turns))
	for turnID, replyID := range resp.Replies {
		turn, ok := findTurn(opts.Turns, turnID)
		if !ok {
			return GradeResult{}, invalidResponse(q, "unknown turn %q", turnID)
		}
		if _, dup := normalized[turn.ID]; dup {
			return GradeResult{}, invalidResponse(q, "turn %q answered twice", turn.ID)
		}
		reply, ok := findChoice(turn.Replies, replyID)
		if !ok {
			return GradeResult{}, invalidResponse(q, "unknown reply %q for turn %q", replyID, turn.ID)
		}
		normalized[turn.ID] = reply.ID
	}
	if len(normalized) != len(opts.Turns) {
		return GradeResult{}, invalidResponse(q, "expected a reply for each of %d turns, got %d", len(opts.Turns), len(normalized))
	}

	allCorrect := true
	for turnID, replyID := range expected {
		if normalized[turnID] != replyID {
			allCorrect = false
			break
		}
	}
	return GradeResult{Correct: allCorrect, Normalized: normalized}, nil
}
