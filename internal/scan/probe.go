// Package scan implements the TCP connect probe engine.
package scan

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/vulnverified/probe/internal/engine"
)

// Probe attempts a single TCP connection to addr:port. A completed handshake
// is Open; an active refusal or any other immediate network error is Closed;
// expiry of the timeout without a definitive answer is Timeout. The attempt
// never outlives the timeout and the socket is released either way. No
// retries are performed.
func Probe(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration) engine.Outcome {
	dialer := net.Dialer{
		Timeout:   timeout,
		KeepAlive: -1, // one-shot connection, no keepalive probes
	}

	conn, err := dialer.DialContext(ctx, "tcp4", netip.AddrPortFrom(addr, port).String())
	if err == nil {
		conn.Close()
		return engine.Open
	}
	return classify(err)
}

// classify folds dial errors into the closed outcome set. Only timeout-class
// failures map to Timeout; refusals, unreachable networks and every other
// error mean something answered before the deadline, which is Closed.
// Cancellation is folded into Timeout as well: an abandoned probe got no
// definitive TCP-level answer.
func classify(err error) engine.Outcome {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return engine.Timeout
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return engine.Timeout
	}
	return engine.Closed
}
