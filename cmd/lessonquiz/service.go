package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/at-ishikawa/lessonquiz/internal/app"
	"github.com/at-ishikawa/lessonquiz/internal/config"
	"github.com/at-ishikawa/lessonquiz/internal/identity"
	"github.com/at-ishikawa/lessonquiz/internal/quiz"
	"github.com/at-ishikawa/lessonquiz/internal/server"
)

const issuedTokenTTL = time.Hour

// newService returns the quiz service the learner commands talk to and a func releasing it.
// With --server the remote service is used; otherwise the engine runs over the configured store.
func newService(ctx context.Context, cfg *config.Config, opts globalOptions) (quiz.Service, context.Context, func() error, error) {
	if opts.learnerID == "" {
		return nil, ctx, nil, errors.New("--learner is required")
	}

	if opts.serverURL != "" {
		token := opts.token
		if token == "" {
			if cfg.Auth.JWTSecret == "" {
				return nil, ctx, nil, errors.New("--token or AUTH_JWT_SECRET is required with --server")
			}
			issued, err := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(opts.learnerID, issuedTokenTTL)
			if err != nil {
				return nil, ctx, nil, fmt.Errorf("identity.Issue() > %w", err)
			}
			token = issued
		}
		client := server.NewClient(http.DefaultClient, opts.serverURL,
			connect.WithInterceptors(server.NewTokenInterceptor(token)),
		)
		return client, ctx, func() error { return nil }, nil
	}

	stores, err := app.OpenStores(cfg)
	if err != nil {
		return nil, ctx, nil, fmt.Errorf("app.OpenStores() > %w", err)
	}
	if opts.token != "" {
		ctx = identity.WithIdentity(ctx, identity.Identity{LearnerID: opts.learnerID, Token: opts.token})
	}
	return app.NewEngine(cfg, stores, nil), ctx, stores.Close, nil
}
