package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/at-ishikawa/lessonquiz/internal/app"
	"github.com/at-ishikawa/lessonquiz/internal/config"
	"github.com/at-ishikawa/lessonquiz/internal/content"
	"github.com/at-ishikawa/lessonquiz/internal/hearts"
	mock_quiz "github.com/at-ishikawa/lessonquiz/internal/mocks/quiz"
	"github.com/at-ishikawa/lessonquiz/internal/quiz"
	"github.com/at-ishikawa/lessonquiz/internal/store"
)

func newSeededEngine(t *testing.T) quiz.Service {
	t.Helper()
	ctx := context.Background()
	cfg := &config.Config{
		Store:   config.StoreConfig{Driver: config.StoreDriverMemory},
		Quiz:    config.QuizConfig{MaxHearts: 5, HeartRefillHours: 24, DefaultLessonXP: 10},
		Rewards: config.RewardsConfig{Timezone: "UTC"},
	}
	stores, err := app.OpenStores(cfg)
	require.NoError(t, err)

	bundle, err := content.LoadBundle(filepath.Join("..", "..", "internal", "content", "testdata", "bundle.yml"))
	require.NoError(t, err)
	_, err = content.Seed(ctx, stores.Learner, bundle, time.Now())
	require.NoError(t, err)
	_, err = stores.Learner.Insert(ctx, store.CollectionSectionProgress, store.Record{
		"id":           "progress-2",
		"learner_id":   "learner-1",
		"section_id":   "greetings-practice",
		"completed_at": time.Now(),
	})
	require.NoError(t, err)
	return app.NewEngine(cfg, stores, nil)
}

func TestSubmitAnswer_FillsCurrentQuestion(t *testing.T) {
	ctx := context.Background()
	svc := newSeededEngine(t)

	var out bytes.Buffer
	p, err := newPrinter(&out, outputJSON)
	require.NoError(t, err)

	require.NoError(t, showState(ctx, svc, p, "learner-1", "lesson-greetings"))
	var state quiz.State
	require.NoError(t, json.Unmarshal(out.Bytes(), &state))
	require.NotNil(t, state.Question)

	responses := map[string]string{
		"q-hello":  `{"choice_id":"a"}`,
		"q-polite": `{"value":true}`,
	}
	for range 2 {
		out.Reset()
		current, err := svc.GetState(ctx, "learner-1", "lesson-greetings")
		require.NoError(t, err)
		require.NotNil(t, current.Question)

		err = submitAnswer(ctx, svc, p, quiz.AnswerInput{
			LearnerID: "learner-1",
			LessonID:  "lesson-greetings",
			Response:  json.RawMessage(responses[current.Question.ID]),
		})
		require.NoError(t, err)

		var outcome quiz.AnswerOutcome
		require.NoError(t, json.Unmarshal(out.Bytes(), &outcome))
		assert.True(t, outcome.Correct)
	}

	final, err := svc.GetState(ctx, "learner-1", "lesson-greetings")
	require.NoError(t, err)
	assert.Equal(t, quiz.KindPassed, final.Kind)
	assert.Equal(t, 3, final.EarnedScore)
}

func TestSubmitAnswer_InvalidJSON(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_quiz.NewMockService(ctrl)

	p, err := newPrinter(&bytes.Buffer{}, outputText)
	require.NoError(t, err)
	err = submitAnswer(context.Background(), svc, p, quiz.AnswerInput{
		LearnerID: "learner-1",
		LessonID:  "lesson-greetings",
		Response:  json.RawMessage(`{choice_id:a}`),
	})
	assert.Error(t, err)
}

func TestSubmitAnswer_NoOpenAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mock_quiz.NewMockService(ctrl)
	svc.EXPECT().GetState(gomock.Any(), "learner-1", "lesson-greetings").Return(quiz.State{
		Kind:     quiz.KindLocked,
		LessonID: "lesson-greetings",
		Progress: quiz.ProgressMetadata{SectionsTotal: 2, SectionsCompleted: 1},
		Hearts:   hearts.Status{Remaining: 5, Max: 5},
	}, nil)

	var out bytes.Buffer
	p, err := newPrinter(&out, outputText)
	require.NoError(t, err)
	err = submitAnswer(context.Background(), svc, p, quiz.AnswerInput{
		LearnerID: "learner-1",
		LessonID:  "lesson-greetings",
		Response:  json.RawMessage(`{"choice_id":"a"}`),
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Complete every section first (1/2 done)")
}

func TestPrinter(t *testing.T) {
	refill := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	paused := quiz.State{
		Kind:      quiz.KindPaused,
		LessonID:  "lesson-greetings",
		AttemptID: "attempt-1",
		Question: &quiz.QuestionView{
			ID:     "q-hello",
			Type:   "single_choice",
			Prompt: "How do you greet someone in the morning?",
			Points: 2,
		},
		QuestionCount: 2,
		MaxScore:      3,
		Hearts:        hearts.Status{Remaining: 0, Max: 5, RefillAt: &refill, SecondsUntilRefill: 3600},
	}

	tests := []struct {
		name   string
		format string
		render func(p *printer) error
		want   []string
	}{
		{
			name:   "text state",
			format: outputText,
			render: func(p *printer) error { return p.state(paused) },
			want: []string{
				"Lesson lesson-greetings [paused_no_hearts]",
				"Out of hearts. Refill in 1h0m0s.",
				"Question 1/2  q-hello (single_choice, 2 pt)",
				"Hearts ♡♡♡♡♡ 0/5",
			},
		},
		{
			name:   "text outcome",
			format: outputText,
			render: func(p *printer) error {
				return p.outcome(quiz.AnswerOutcome{Correct: false, State: paused})
			},
			want: []string{"It's wrong.", "Attempt attempt-1  score 0/3"},
		},
		{
			name:   "yaml uses wire names",
			format: outputYAML,
			render: func(p *printer) error { return p.hearts(paused.Hearts) },
			want:   []string{"remaining: 0", "max: 5", "seconds_until_refill: 3600"},
		},
		{
			name:   "json",
			format: outputJSON,
			render: func(p *printer) error { return p.state(paused) },
			want:   []string{`"kind": "paused_no_hearts"`, `"attempt_id": "attempt-1"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p, err := newPrinter(&out, tt.format)
			require.NoError(t, err)
			require.NoError(t, tt.render(p))
			for _, want := range tt.want {
				assert.Contains(t, out.String(), want)
			}
		})
	}

	_, err := newPrinter(&bytes.Buffer{}, "xml")
	assert.Error(t, err)
}
