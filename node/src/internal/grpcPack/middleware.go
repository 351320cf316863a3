package grpcPack

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
)

// UnaryErrorInterceptor recovers panics and converts KVErrors to gRPC status
// errors
func UnaryErrorInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				recovered := errors.RecoverError(r)
				logger.Error("gRPC handler panicked", zap.String("method", info.FullMethod), zap.Error(recovered))
				resp, err = nil, status.Error(codes.Internal, recovered.Error())
			}
		}()

		resp, err = handler(ctx, req)
		if err != nil {
			return nil, convertError(err)
		}
		return resp, nil
	}
}

// StreamErrorInterceptor is the streaming counterpart of UnaryErrorInterceptor
func StreamErrorInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				recovered := errors.RecoverError(r)
				logger.Error("gRPC stream panicked", zap.String("method", info.FullMethod), zap.Error(recovered))
				err = status.Error(codes.Internal, recovered.Error())
			}
		}()

		return convertError(handler(srv, ss))
	}
}

// convertError converts a KVError to a gRPC status error. Errors that already
// carry a status pass through unchanged.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.IsInvalidInput(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.IsTimeout(err):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.IsTransport(err):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
