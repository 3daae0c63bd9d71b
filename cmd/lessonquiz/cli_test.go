package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/lessonquiz/internal/app"
	"github.com/at-ishikawa/lessonquiz/internal/config"
	"github.com/at-ishikawa/lessonquiz/internal/content"
	"github.com/at-ishikawa/lessonquiz/internal/identity"
	"github.com/at-ishikawa/lessonquiz/internal/quiz"
	"github.com/at-ishikawa/lessonquiz/internal/server"
	"github.com/at-ishikawa/lessonquiz/internal/testutil"
)

// execute runs one command line against a fresh root command and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	globals = globalOptions{}
	configFile = ""

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_SQLiteLifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir, testutil.WithMaxHearts(2))
	bundle := testutil.CreateLessonBundle(t, tmpDir, "lesson-1", testutil.WithCompletedSections("learner-1"))

	out, err := execute(t, "migrate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "applied 001_content.sql")

	out, err = execute(t, "seed", "--config", cfgPath, "--file", bundle)
	require.NoError(t, err)
	assert.Contains(t, out, "inserted")

	out, err = execute(t, "seed", "--config", cfgPath, "--file", bundle)
	require.NoError(t, err)
	assert.Contains(t, out, "inserted 0 rows")

	state := func(t *testing.T) quiz.State {
		t.Helper()
		out, err := execute(t, "state", "lesson-1", "--config", cfgPath, "--learner", "learner-1", "-o", "json")
		require.NoError(t, err)
		var s quiz.State
		require.NoError(t, json.Unmarshal([]byte(out), &s))
		return s
	}
	answers := map[string]string{
		"q1": `{"choice_id":"b"}`,
		"q2": `{"value":false}`,
		"q3": `{"text":"good night"}`,
	}

	first := state(t)
	require.Equal(t, quiz.KindInProgress, first.Kind)
	require.NotNil(t, first.Question)
	assert.Equal(t, 3, first.QuestionCount)

	// Two wrong answers use up both hearts, pausing the attempt.
	for range 3 {
		current := state(t)
		if current.Kind != quiz.KindInProgress {
			break
		}
		out, err := execute(t, "answer", "lesson-1", answers[current.Question.ID],
			"--config", cfgPath, "--learner", "learner-1")
		require.NoError(t, err)
		assert.Contains(t, out, "It's wrong.")
	}

	paused := state(t)
	assert.Equal(t, quiz.KindPaused, paused.Kind)
	assert.Equal(t, first.AttemptID, paused.AttemptID)
	assert.Equal(t, 0, paused.Hearts.Remaining)

	out, err = execute(t, "hearts", "--config", cfgPath, "--learner", "learner-1", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "remaining: 0")

	_, err = execute(t, "restart", "lesson-1", "--config", cfgPath, "--learner", "learner-1")
	assert.Error(t, err)
}

func TestCLI_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir, testutil.WithDriver(config.StoreDriverMemory))

	tests := []struct {
		name string
		args []string
	}{
		{name: "state without learner", args: []string{"state", "lesson-1", "--config", cfgPath}},
		{name: "unknown output", args: []string{"hearts", "--config", cfgPath, "--learner", "l1", "-o", "xml"}},
		{name: "migrate memory store", args: []string{"migrate", "--config", cfgPath}},
		{name: "seed without file", args: []string{"seed", "--config", cfgPath}},
		{name: "token without learner", args: []string{"token", "--config", cfgPath}},
		{name: "unknown lesson", args: []string{"state", "missing", "--config", cfgPath, "--learner", "l1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestCLI_RemoteServer(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir, testutil.WithDriver(config.StoreDriverMemory))
	bundlePath := testutil.CreateLessonBundle(t, tmpDir, "lesson-1", testutil.WithCompletedSections("learner-1"))

	loader, err := config.NewConfigLoader(cfgPath)
	require.NoError(t, err)
	cfg, err := loader.Load()
	require.NoError(t, err)
	stores, err := app.OpenStores(cfg)
	require.NoError(t, err)
	bundle, err := content.LoadBundle(bundlePath)
	require.NoError(t, err)
	_, err = content.Seed(context.Background(), stores.Learner, bundle, time.Now())
	require.NoError(t, err)

	handler, err := server.NewQuizHandler(app.NewEngine(cfg, stores, nil))
	require.NoError(t, err)
	verifier := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	path, h := server.NewQuizServiceHandler(handler, connect.WithInterceptors(server.NewAuthInterceptor(verifier)))
	srv := httptest.NewServer(server.NewRouter(path, h, server.RouterOptions{}))
	defer srv.Close()

	// Without --token the CLI signs one with AUTH_JWT_SECRET.
	out, err := execute(t, "state", "lesson-1", "--config", cfgPath, "--learner", "learner-1", "--server", srv.URL, "-o", "json")
	require.NoError(t, err)
	var state quiz.State
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, quiz.KindInProgress, state.Kind)
	require.NotNil(t, state.Question)

	responses := map[string]string{
		"q1": `{"choice_id":"a"}`,
		"q2": `{"value":true}`,
		"q3": `{"text":"Good morning"}`,
	}
	out, err = execute(t, "answer", "lesson-1", responses[state.Question.ID],
		"--config", cfgPath, "--learner", "learner-1", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "It's correct.")

	token, err := execute(t, "token", "--config", cfgPath, "--learner", "learner-2")
	require.NoError(t, err)
	out, err = execute(t, "hearts", "--config", cfgPath, "--learner", "learner-2",
		"--server", srv.URL, "--token", strings.TrimSpace(token))
	require.NoError(t, err)
	assert.Contains(t, out, "Hearts ♥♥♥♥♥ 5/5")

	_, err = execute(t, "hearts", "--config", cfgPath, "--learner", "learner-2", "--server", srv.URL, "--token", "garbage")
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}
