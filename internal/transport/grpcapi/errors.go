package grpcapi

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openagents/network/internal/apierr"
)

func grpcCodeUnimplemented(msg string) error {
	return status.Error(codes.Unimplemented, msg)
}

// statusFromAPIError maps an apierr.Kind onto the nearest gRPC status
// code so a client sees something more specific than Unknown.
func statusFromAPIError(err error) error {
	kind := apierr.KindOf(err)
	switch kind {
	case apierr.AuthenticationRequired, apierr.AuthenticationFailed:
		return status.Error(codes.Unauthenticated, err.Error())
	case apierr.Forbidden:
		return status.Error(codes.PermissionDenied, err.Error())
	case apierr.DuplicateAgent:
		return status.Error(codes.AlreadyExists, err.Error())
	case apierr.UnknownAgent, apierr.UnknownMod:
		return status.Error(codes.NotFound, err.Error())
	case apierr.InvalidEvent:
		return status.Error(codes.InvalidArgument, err.Error())
	case apierr.Timeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case apierr.StorageUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
