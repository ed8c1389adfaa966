package gateway

import (
	"fmt"
	"net/http"

	"github.com/example/agent-orchestrator/internal/koerrors"
)

// wrapTransportErr classifies a network-level failure (dial/connection
// reset, context deadline) as koerrors.KindModelTransport so the
// Sub-Agent's completeWithRetry (spec.md §4.4 step 5) can recognize it as
// retriable above the HTTP layer, not just inside postJSON's own backoff.
func wrapTransportErr(backend string, err error) error {
	if err == nil {
		return nil
	}
	return koerrors.Wrap(koerrors.KindModelTransport, backend+": transport error", err)
}

// wrapStatusErr classifies a non-2xx HTTP response. 429 becomes
// KindRateLimit and 5xx becomes KindModelTransport, both retriable; other
// client errors (4xx other than 429) are left untyped since retrying a
// bad request or an auth failure never helps.
func wrapStatusErr(backend string, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return koerrors.Wrap(koerrors.KindRateLimit, fmt.Sprintf("%s: rate limited", backend), err)
	case status >= 500:
		return koerrors.Wrap(koerrors.KindModelTransport, fmt.Sprintf("%s: server error %d", backend, status), err)
	default:
		return err
	}
}
