package preflight

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// CheckModelBackend verifies the remote model server accepts TCP connections.
// The logits endpoint has no cheap probe, so reachability is all that is checked.
func CheckModelBackend(ctx context.Context, endpoint string) Result {
	const name = "Model backend"

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Result{Name: name, Detail: "Not configured"}
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid endpoint %q", endpoint)}
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	dialer := net.Dialer{Timeout: checkTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", endpoint)}
}
