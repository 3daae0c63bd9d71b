package grading

import (
	"fmt"
	"slices"

	"github.com/at-ishikawa/lessonquiz/internal/apperr"
	"github.com/at-ishikawa/lessonquiz/internal/content"
)

// Registry maps a question type to its Grader. It is built once and never mutated,
// so it is safe for concurrent use.
type Registry struct {
	graders map[string]Grader
}

// NewRegistry registers graders. Every grader must handle a supported type, at most once.
func NewRegistry(graders ...Grader) (*Registry, error) {
	m := make(map[string]Grader, len(graders))
	for _, g := range graders {
		tag := g.Type()
		if !IsSupported(tag) {
			return nil, fmt.Errorf("register %q: %w", tag, apperr.ErrUnsupportedQuestionType)
		}
		if _, ok := m[tag]; ok {
			return nil, fmt.Errorf("grader for %q registered twice", tag)
		}
		m[tag] = g
	}
	return &Registry{graders: m}, nil
}

// DefaultRegistry registers the built-in grader of every supported type.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		SingleChoiceGrader{},
		BooleanGrader{},
		FillInBlankGrader{},
		OrderedTokensGrader{},
		BranchingDialogueGrader{},
		PairingGrader{},
		FreeTextGrader{},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// IsSupported reports whether tag is one of the question types lesson quizzes may use.
func IsSupported(tag string) bool {
	return slices.Contains(SupportedTypes, tag)
}

// Require returns the grader of tag. An unknown tag fails with apperr.ErrUnsupportedQuestionType;
// a supported tag without a grader is a wiring bug and fails with apperr.ErrGraderNotRegistered.
func (r *Registry) Require(tag string) (Grader, error) {
	if !IsSupported(tag) {
		return nil, fmt.Errorf("question type %q: %w", tag, apperr.ErrUnsupportedQuestionType)
	}
	g, ok := r.graders[tag]
	if !ok {
		return nil, fmt.Errorf("question type %q: %w", tag, apperr.ErrGraderNotRegistered)
	}
	return g, nil
}

// Validate checks that q can be served and graded.
func (r *Registry) Validate(q content.Question) error {
	g, err := r.Require(q.Type)
	if err != nil {
		return err
	}
	if q.Points <= 0 {
		return fmt.Errorf("question %s: points must be positive: %w", q.ID, apperr.ErrInvalidQuestionDefinition)
	}
	_, err = g.BuildPayload(q)
	return err
}
