package interceptor

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/sanasto/internal/logger"
)

func methodSet(methods []string) func(string) bool {
	if methods == nil {
		return func(string) bool { return true }
	}

	allowed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allowed[m] = struct{}{}
	}
	return func(method string) bool {
		_, ok := allowed[method]
		return ok
	}
}

func logCall(kind, method string, start time.Time, err error) {
	st, _ := status.FromError(err)

	logger.Log.Infow(
		"gRPC "+kind,
		"method", method,
		"duration", time.Since(start),
		"code", st.Code().String(),
		"message", st.Message(),
	)
}

// UnaryLoggingInterceptor logs the given unary methods (all of them for nil)
// with their duration and status code.
func UnaryLoggingInterceptor(methods []string) grpc.UnaryServerInterceptor {
	shouldLog := methodSet(methods)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !shouldLog(info.FullMethod) {
			return handler(ctx, req)
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		logCall("request", info.FullMethod, start, err)

		return resp, err
	}
}

// StreamLoggingInterceptor logs streams when they end.
func StreamLoggingInterceptor(methods []string) grpc.StreamServerInterceptor {
	shouldLog := methodSet(methods)

	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if !shouldLog(info.FullMethod) {
			return handler(srv, stream)
		}

		start := time.Now()
		err := handler(srv, stream)
		logCall("stream", info.FullMethod, start, err)

		return err
	}
}
