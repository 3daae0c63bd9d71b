package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/lessonquiz/internal/config"
)

var (
	configFile string
	globals    globalOptions
)

type globalOptions struct {
	learnerID string
	serverURL string
	token     string
	output    string
}

func main() {
	rootCommand := newRootCommand()
	if err := rootCommand.Execute(); err != nil {
		if _, fprintfErr := fmt.Fprintf(os.Stderr, "failed to execute a command: %+v\n", err); fprintfErr != nil {
			panic(fmt.Errorf("failed to output an error: %w. Reason: %w", err, fprintfErr))
		}
		os.Exit(1)
	}
	os.Exit(0)
}

func newRootCommand() *cobra.Command {
	var debugMode bool
	rootCommand := &cobra.Command{
		Use:           "lessonquiz",
		Short:         "Take lesson quizzes and manage quiz content",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(debugMode)
			return nil
		},
	}
	flags := rootCommand.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug mode")
	flags.StringVar(&globals.learnerID, "learner", "", "learner ID to act as")
	flags.StringVar(&globals.serverURL, "server", "", "quiz server URL; the configured store is used directly when empty")
	flags.StringVar(&globals.token, "token", os.Getenv("LESSONQUIZ_TOKEN"), "bearer token for --server")
	flags.StringVarP(&globals.output, "output", "o", outputText, "output format: text, json or yaml")

	rootCommand.AddCommand(
		newMigrateCommand(),
		newSeedCommand(),
		newTokenCommand(),
		newStateCommand(),
		newAnswerCommand(),
		newRestartCommand(),
		newHeartsCommand(),
	)
	return rootCommand
}

// setupLogger configures the default logger based on debug mode
func setupLogger(debugMode bool) {
	logLevel := slog.LevelInfo
	if debugMode {
		logLevel = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		})),
	)
}

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.Load()
}
