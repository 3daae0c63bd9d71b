package server

import (
	"context"

	"connectrpc.com/connect"

	"github.com/at-ishikawa/lessonquiz/internal/identity"
)

// NewAuthInterceptor verifies the bearer token of every request and puts the caller's
// identity into the context.
func NewAuthInterceptor(verifier *identity.Verifier) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}
			id, err := verifier.VerifyHeader(req.Header().Get("Authorization"))
			if err != nil {
				return nil, toConnectError(ctx, err)
			}
			return next(identity.WithIdentity(ctx, id), req)
		}
	}
}

// NewTokenInterceptor attaches token to every outgoing request.
func NewTokenInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient && token != "" {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}
