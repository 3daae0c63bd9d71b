package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/at-ishikawa/lessonquiz/internal/app"
	"github.com/at-ishikawa/lessonquiz/internal/bootstrap"
	"github.com/at-ishikawa/lessonquiz/internal/config"
	"github.com/at-ishikawa/lessonquiz/internal/content"
	"github.com/at-ishikawa/lessonquiz/internal/identity"
	"github.com/at-ishikawa/lessonquiz/internal/server"
)

var configFile string

func main() {
	var opts startOptions
	rootCmd := &cobra.Command{
		Use:           "lessonquiz-server",
		Short:         "Lesson quiz service HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply the embedded schema before serving")
	rootCmd.Flags().StringVar(&opts.seedFile, "seed", "", "content bundle to load before serving")

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type startOptions struct {
	migrate  bool
	seedFile string
}

func run(ctx context.Context, opts startOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loadConfig() > %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET environment variable is required")
	}

	lifecycle := bootstrap.New()
	stores, err := openStores(ctx, cfg, opts)
	if err != nil {
		return err
	}
	lifecycle.AddCloser("store", stores)

	engine := app.NewEngine(cfg, stores, prometheus.DefaultRegisterer)
	handler, err := server.NewQuizHandler(engine)
	if err != nil {
		return fmt.Errorf("server.NewQuizHandler() > %w", err)
	}
	verifier := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	path, h := server.NewQuizServiceHandler(handler,
		connect.WithInterceptors(server.NewAuthInterceptor(verifier)),
	)

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.NewRouter(path, h, server.RouterOptions{
			AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lifecycle.AddShutdownHook("http", srv.Shutdown)

	return lifecycle.Run(ctx, func(ctx context.Context) error {
		slog.Default().Info("starting server",
			"addr", srv.Addr,
			"store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}

func openStores(ctx context.Context, cfg *config.Config, opts startOptions) (*app.Stores, error) {
	stores, err := app.OpenStores(cfg)
	if err != nil {
		return nil, fmt.Errorf("app.OpenStores() > %w", err)
	}
	if err := prepare(ctx, stores, opts); err != nil {
		_ = stores.Close()
		return nil, err
	}
	return stores, nil
}

func prepare(ctx context.Context, stores *app.Stores, opts startOptions) error {
	if opts.migrate {
		applied, err := stores.Migrate(ctx)
		if err != nil {
			return err
		}
		slog.Default().Info("schema migrated", "files", applied)
	}
	if opts.seedFile == "" {
		return nil
	}
	bundle, err := content.LoadBundle(opts.seedFile)
	if err != nil {
		return fmt.Errorf("content.LoadBundle() > %w", err)
	}
	result, err := content.Seed(ctx, stores.Learner, bundle, time.Now())
	if err != nil {
		return fmt.Errorf("content.Seed() > %w", err)
	}
	slog.Default().Info("content seeded",
		"inserted", result.Inserted,
		"skipped", result.Skipped)
	return nil
}

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.NewConfigLoader() > %w", err)
	}
	return loader.Load()
}
