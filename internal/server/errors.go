package server

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/at-ishikawa/lessonquiz/internal/apperr"
)

const errorDomain = "lessonquiz"

// toConnectError maps the engine's error taxonomy onto Connect codes. ErrorInfo.Reason lets a
// client tell a stale write it should retry from a conflict it should not.
func toConnectError(ctx context.Context, err error) *connect.Error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, apperr.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, apperr.ErrStale):
		connectErr = connect.NewError(connect.CodeAborted, err)
		addDetail(connectErr, &errdetails.RetryInfo{RetryDelay: durationpb.New(0)})
	case errors.Is(err, apperr.ErrConflict):
		connectErr = connect.NewError(connect.CodeFailedPrecondition, err)
	case apperr.IsClientError(err):
		connectErr = connect.NewError(connect.CodeInvalidArgument, err)
	default:
		slog.Default().ErrorContext(ctx, "request failed",
			"reason", apperr.Reason(err),
			"error", err)
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}

	addDetail(connectErr, &errdetails.ErrorInfo{
		Reason: apperr.Reason(err),
		Domain: errorDomain,
	})
	return connectErr
}

func addDetail(connectErr *connect.Error, msg proto.Message) {
	if detail, err := connect.NewErrorDetail(msg); err == nil {
		connectErr.AddDetail(detail)
	}
}
