// Package transport resolves the address schemes spec.md §4.4/§6
// describes (grpc://, grpcs://, http://, openagents://) and reports which
// schemes need TLS; internal/node starts and stops the concrete transports.
package transport

import (
	"errors"
	"fmt"
	"net/url"
)

// Scheme identifies which concrete transport an address names.
type Scheme string

const (
	SchemeGRPC        Scheme = "grpc"
	SchemeGRPCSecure  Scheme = "grpcs"
	SchemeHTTP        Scheme = "http"
	SchemeOpenAgents  Scheme = "openagents"
)

// ErrDiscoveryNotImplemented is returned by ParseAddress for an
// openagents:// address. That scheme names the client-side discovery
// sweep spec.md §4.4 describes; the node itself never resolves one, it
// only needs to recognize and reject it cleanly.
var ErrDiscoveryNotImplemented = errors.New("transport: openagents:// discovery is a client-side concern, not implemented by the node")

// ParseAddress splits a configured transport address into its scheme
// and host:port/path remainder.
func ParseAddress(addr string) (Scheme, string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", fmt.Errorf("transport: invalid address %q: %w", addr, err)
	}

	switch Scheme(u.Scheme) {
	case SchemeGRPC, SchemeGRPCSecure, SchemeHTTP:
		return Scheme(u.Scheme), u.Host + u.Path, nil
	case SchemeOpenAgents:
		return SchemeOpenAgents, "", ErrDiscoveryNotImplemented
	default:
		return "", "", fmt.Errorf("transport: unrecognized scheme %q in address %q", u.Scheme, addr)
	}
}

// RequiresTLS reports whether scheme implies a TLS-secured listener.
func RequiresTLS(s Scheme) bool {
	return s == SchemeGRPCSecure
}
