// Package testutil provides shared test helpers for creating config files and lesson bundle fixtures.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/at-ishikawa/lessonquiz/internal/content"
)

// TestJWTSecret signs learner tokens in tests.
const TestJWTSecret = "test-secret-test-secret-test-secret"

// ConfigOption configures optional fields of the generated config file.
type ConfigOption func(*testConfig)

type testConfig struct {
	driver    string
	maxHearts int
	timezone  string
}

// WithDriver selects the store driver. The default is sqlite under the temporary directory.
func WithDriver(driver string) ConfigOption {
	return func(cfg *testConfig) {
		cfg.driver = driver
	}
}

// WithMaxHearts overrides the hearts capacity.
func WithMaxHearts(n int) ConfigOption {
	return func(cfg *testConfig) {
		cfg.maxHearts = n
	}
}

// WithTimezone sets the time zone streak days are counted in.
func WithTimezone(tz string) ConfigOption {
	return func(cfg *testConfig) {
		cfg.timezone = tz
	}
}

// SetupTestConfig writes config.yml into tmpDir and exports AUTH_JWT_SECRET for the test.
// Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string, opts ...ConfigOption) string {
	t.Helper()

	cfg := testConfig{
		driver:    "sqlite",
		maxHearts: 5,
		timezone:  "UTC",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	configContent := fmt.Sprintf(`server:
  port: 18080
store:
  driver: %s
  sqlite:
    path: %s
quiz:
  max_hearts: %d
  heart_refill_hours: 24
  default_lesson_xp: 10
rewards:
  timezone: %s
`,
		cfg.driver,
		filepath.Join(tmpDir, "quiz.db"),
		cfg.maxHearts,
		cfg.timezone,
	)

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	t.Setenv("AUTH_JWT_SECRET", TestJWTSecret)
	return cfgPath
}

// LessonOption configures optional fields when creating a lesson bundle fixture.
type LessonOption func(*content.Bundle)

// WithCompletedSections marks every section of every lesson as completed by learnerID.
func WithCompletedSections(learnerID string) LessonOption {
	return func(b *content.Bundle) {
		progress := content.ProgressFixture{LearnerID: learnerID}
		for _, lesson := range b.Lessons {
			for _, section := range lesson.Sections {
				progress.SectionIDs = append(progress.SectionIDs, section.ID)
			}
		}
		b.Progress = append(b.Progress, progress)
	}
}

// WithBadge sets the badge awarded on the first pass of the lesson.
func WithBadge(badge string) LessonOption {
	return func(b *content.Bundle) {
		for i := range b.Lessons {
			b.Lessons[i].Badge = badge
		}
	}
}

// CreateLessonBundle writes a bundle with one lesson of two sections and a three-question quiz:
// single_choice q1 (answer "a", 2 points), boolean q2 (answer true) and free_text q3 (answer "good morning").
// Returns the path to the bundle file.
func CreateLessonBundle(t *testing.T, dir, lessonID string, opts ...LessonOption) string {
	t.Helper()

	bundle := content.Bundle{
		Lessons: []content.LessonFixture{
			{
				ID:       lessonID,
				Title:    "Test Lesson",
				XPReward: 20,
				Sections: []content.SectionFixture{
					{ID: lessonID + "-s1", Title: "Section 1"},
					{ID: lessonID + "-s2", Title: "Section 2"},
				},
				Quiz: &content.QuizFixture{
					ID: lessonID + "-quiz",
					Questions: []content.QuestionFixture{
						{
							ID:     "q1",
							Type:   "single_choice",
							Prompt: "Pick the greeting",
							Points: 2,
							Options: map[string]any{
								"choices": []map[string]string{
									{"id": "a", "text": "Hello"},
									{"id": "b", "text": "Table"},
								},
							},
							CorrectAnswer: "a",
						},
						{
							ID:            "q2",
							Type:          "boolean",
							Prompt:        "Hello is a greeting",
							CorrectAnswer: true,
						},
						{
							ID:            "q3",
							Type:          "free_text",
							Prompt:        "Greet someone in the morning",
							CorrectAnswer: "good morning",
						},
					},
				},
			},
		},
	}
	for _, opt := range opts {
		opt(&bundle)
	}

	data, err := yaml.Marshal(bundle)
	require.NoError(t, err)
	path := filepath.Join(dir, lessonID+".yml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
