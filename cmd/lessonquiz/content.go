package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/lessonquiz/internal/app"
	"github.com/at-ishikawa/lessonquiz/internal/content"
	"github.com/at-ishikawa/lessonquiz/internal/identity"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to the configured SQL store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stores, err := app.OpenStores(cfg)
			if err != nil {
				return fmt.Errorf("app.OpenStores() > %w", err)
			}
			defer func() { _ = stores.Close() }()

			if stores.DB == nil {
				return fmt.Errorf("store driver %s has no schema to migrate", cfg.Store.Driver)
			}
			applied, err := stores.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func newSeedCommand() *cobra.Command {
	var file string
	command := &cobra.Command{
		Use:   "seed",
		Short: "Load lessons, quizzes and section progress from a YAML bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			bundle, err := content.LoadBundle(file)
			if err != nil {
				return fmt.Errorf("content.LoadBundle() > %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stores, err := app.OpenStores(cfg)
			if err != nil {
				return fmt.Errorf("app.OpenStores() > %w", err)
			}
			defer func() { _ = stores.Close() }()

			target := stores.Learner
			if stores.Privileged != nil {
				target = stores.Privileged
			}
			result, err := content.Seed(cmd.Context(), target, bundle, time.Now())
			if err != nil {
				return fmt.Errorf("content.Seed() > %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d rows, skipped %d existing\n", result.Inserted, result.Skipped)
			return nil
		},
	}
	command.Flags().StringVarP(&file, "file", "f", "", "bundle file")
	return command
}

func newTokenCommand() *cobra.Command {
	var ttl time.Duration
	command := &cobra.Command{
		Use:   "token",
		Short: "Issue a learner token signed with AUTH_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if globals.learnerID == "" {
				return errors.New("--learner is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET environment variable is required")
			}
			token, err := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(globals.learnerID, ttl)
			if err != nil {
				return fmt.Errorf("identity.Issue() > %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	command.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return command
}
