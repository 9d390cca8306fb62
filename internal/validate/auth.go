package validate

import (
	"crypto/subtle"
	"net"
	"strings"
)

// Write-surface authentication helpers for the HTTP API.

// TokenEqual compares an offered token against the configured one in constant
// time. Empty configured token means auth is not enabled.
func TokenEqual(configured, offered string) bool {
	if configured == "" || offered == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(offered)) == 1
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// IsLocalhostRequest decides whether a request may use the localhost bypass.
// Two signals must agree: the Host header resolves to a loopback address, and
// no X-Forwarded-For chain is present unless a trusted proxy fronts us. A
// forwarded request claiming localhost via Host alone does not qualify.
func IsLocalhostRequest(hostHeader, xForwardedFor string, trustedProxy bool) bool {
	host := hostHeader
	if h, _, err := net.SplitHostPort(hostHeader); err == nil {
		host = h
	}
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1", "[::1]":
	default:
		return false
	}
	if xForwardedFor != "" && !trustedProxy {
		return false
	}
	return true
}
