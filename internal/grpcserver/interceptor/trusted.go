package interceptor

import (
	"context"
	"net"
	"net/netip"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/sanasto/internal/logger"
)

type ipChecker interface {
	Check(clientIP netip.Addr) bool
	IsTrustedSubnetEmpty() bool
}

// clientIP prefers the x-real-ip metadata set by a proxy over the peer address.
func clientIP(ctx context.Context) (netip.Addr, bool) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("x-real-ip"); len(values) > 0 {
			if ip, err := netip.ParseAddr(strings.TrimSpace(values[0])); err == nil {
				return ip, true
			}
		}
	}

	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, false
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return netip.Addr{}, false
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip, true
}

// UnaryTrustedSubnetInterceptor rejects calls to the given methods from
// clients outside the trusted subnet with PermissionDenied.
func UnaryTrustedSubnetInterceptor(checker ipChecker, methods []string) grpc.UnaryServerInterceptor {
	guarded := methodSet(methods)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !guarded(info.FullMethod) {
			return handler(ctx, req)
		}

		if checker.IsTrustedSubnetEmpty() {
			return nil, status.Error(codes.PermissionDenied, "no trusted subnet is configured")
		}

		ip, ok := clientIP(ctx)
		if !ok || !checker.Check(ip) {
			logger.Log.Debugw("rejected call from an untrusted client", "method", info.FullMethod, "ip", ip)
			return nil, status.Error(codes.PermissionDenied, "the client is not in the trusted subnet")
		}

		return handler(ctx, req)
	}
}
