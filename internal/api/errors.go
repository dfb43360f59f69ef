package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/messenger"
	"github.com/matheus3301/inbox/internal/outbox"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps core errors onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var rej *attachment.Rejection
	var se *backend.StatusError
	switch {
	case errors.Is(err, messenger.ErrSessionInactive):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, backend.ErrUnauthorized):
		return grpcstatus.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, outbox.ErrEmptyMessage), errors.Is(err, outbox.ErrNoRecipient), errors.As(err, &rej):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, outbox.ErrUnknownFailure):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, outbox.ErrStopped):
		return grpcstatus.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.As(err, &se) && se.Status == http.StatusNotFound:
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.As(err, &se) && se.Status < 500:
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	default:
		return grpcstatus.Error(codes.Unavailable, err.Error())
	}
}
