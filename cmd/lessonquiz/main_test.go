package main

import (
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		debugMode bool
		wantLevel slog.Level
	}{
		{
			name:      "debug mode enabled",
			debugMode: true,
			wantLevel: slog.LevelDebug,
		},
		{
			name:      "debug mode disabled",
			debugMode: false,
			wantLevel: slog.LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupLogger(tt.debugMode)
			logger := slog.Default()
			assert.NotNil(t, logger)
			assert.Equal(t, tt.wantLevel <= slog.LevelDebug, logger.Enabled(nil, slog.LevelDebug))
		})
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		command  *cobra.Command
		wantUse  string
		wantFlag string
	}{
		{name: "state", command: newStateCommand(), wantUse: "state LESSON_ID"},
		{name: "answer", command: newAnswerCommand(), wantUse: "answer LESSON_ID RESPONSE_JSON", wantFlag: "attempt"},
		{name: "restart", command: newRestartCommand(), wantUse: "restart LESSON_ID", wantFlag: "full"},
		{name: "hearts", command: newHeartsCommand(), wantUse: "hearts"},
		{name: "seed", command: newSeedCommand(), wantUse: "seed", wantFlag: "file"},
		{name: "migrate", command: newMigrateCommand(), wantUse: "migrate"},
		{name: "token", command: newTokenCommand(), wantUse: "token", wantFlag: "ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantUse, tt.command.Use)
			assert.NotNil(t, tt.command.RunE)
			if tt.wantFlag != "" {
				assert.NotNil(t, tt.command.Flags().Lookup(tt.wantFlag))
			}
		})
	}
}
