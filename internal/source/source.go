package source

import (
	"errors"
	"fmt"
)

// SourceType identifies the kind of external issue tracker.
type SourceType string

const (
	SourceTypeJira SourceType = "jira"
)

// AuthError indicates that authentication has failed or expired for a source.
// It is returned by source clients when a 401 response is received.
type AuthError struct {
	SourceType SourceType
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.SourceType, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ProxyMode selects how a source client reaches its server.
type ProxyMode string

const (
	// ProxyDirect never uses a proxy.
	ProxyDirect ProxyMode = "direct"
	// ProxyAlways sends every request through the configured proxy.
	ProxyAlways ProxyMode = "proxy"
	// ProxyAuto tries a direct connection and falls back to the proxy on a
	// transport failure.
	ProxyAuto ProxyMode = "auto"
)

// ParseProxyMode validates s. Empty means direct.
func ParseProxyMode(s string) (ProxyMode, error) {
	switch ProxyMode(s) {
	case "", ProxyDirect:
		return ProxyDirect, nil
	case ProxyAlways, ProxyAuto:
		return ProxyMode(s), nil
	default:
		return "", fmt.Errorf("unknown proxy mode %q (want direct, proxy or auto)", s)
	}
}
