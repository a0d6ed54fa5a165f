package grpcserver

import (
	"net"

	"google.golang.org/grpc"

	"github.com/patric-chuzhbe/sanasto/internal/grpcserver/interceptor"
	"github.com/patric-chuzhbe/sanasto/internal/ipchecker"
)

// NewGRPCServer listens on addr and registers handler. A nil checker trusts nobody.
func NewGRPCServer(
	addr string,
	handler *SessionHandler,
	checker *ipchecker.IPChecker,
) (*grpc.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	return newServer(handler, checker), lis, nil
}

func newServer(handler *SessionHandler, checker *ipchecker.IPChecker) *grpc.Server {
	if checker == nil {
		checker, _ = ipchecker.New("")
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptor.UnaryLoggingInterceptor([]string{
				MethodLogin,
				MethodSignup,
				MethodEnterGuest,
				MethodLogout,
				MethodStored,
				MethodStatus,
			}),
			interceptor.UnaryTrustedSubnetInterceptor(checker, []string{
				MethodStatus,
			}),
		),
		grpc.ChainStreamInterceptor(
			interceptor.StreamLoggingInterceptor([]string{
				MethodWatch,
			}),
		),
	)
	RegisterSessionServiceServer(server, handler)

	return server
}
