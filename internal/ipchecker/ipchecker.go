// Package ipchecker restricts internal endpoints to clients from a trusted
// subnet (CIDR notation, e.g. "10.0.0.0/8").
package ipchecker

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

var ErrNoClientIP = errors.New("the request carries no usable client IP")

// IPChecker matches client addresses against the trusted subnet. An empty
// subnet trusts nobody.
type IPChecker struct {
	trustedSubnet netip.Prefix
	enabled       bool
}

func New(trustedSubnet string) (*IPChecker, error) {
	if trustedSubnet == "" {
		return &IPChecker{}, nil
	}

	prefix, err := netip.ParsePrefix(trustedSubnet)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/New(): error while `netip.ParsePrefix()` calling: %w", err)
	}

	return &IPChecker{trustedSubnet: prefix.Masked(), enabled: true}, nil
}

func (checker *IPChecker) Check(clientIP netip.Addr) bool {
	return checker.enabled && checker.trustedSubnet.Contains(clientIP.Unmap())
}

// GetClientIP reads X-Real-IP, then the first X-Forwarded-For hop, then RemoteAddr.
func (checker *IPChecker) GetClientIP(request *http.Request) (netip.Addr, error) {
	if ip, err := netip.ParseAddr(strings.TrimSpace(request.Header.Get("X-Real-IP"))); err == nil {
		return ip, nil
	}

	if forwarded := request.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return ip, nil
		}
		return netip.Addr{}, ErrNoClientIP
	}

	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("in internal/ipchecker/ipchecker.go/GetClientIP(): error while `net.SplitHostPort()` calling: %w", err)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, ErrNoClientIP
	}

	return ip, nil
}

func (checker *IPChecker) IsTrustedSubnetEmpty() bool {
	return !checker.enabled
}

// Guard answers 403 to every client outside the trusted subnet.
func (checker *IPChecker) Guard(h http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if checker.IsTrustedSubnetEmpty() {
			response.WriteHeader(http.StatusForbidden)
			return
		}

		clientIP, err := checker.GetClientIP(request)
		if err != nil || !checker.Check(clientIP) {
			response.WriteHeader(http.StatusForbidden)
			return
		}

		h.ServeHTTP(response, request)
	})
}
