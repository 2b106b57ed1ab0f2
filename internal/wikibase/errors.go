package wikibase

import (
	"fmt"
	"strings"
)

// RemoteError is a failure reported by one of the remote services. Code is
// the API error code when the remote supplied one ("maxlag", "badtoken", ...)
// or the HTTP status text otherwise.
type RemoteError struct {
	Op      string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// retryable reports whether the failure is transient and worth retrying
// inside the client. Replication lag, rate limiting, and server errors
// clear on their own.
func (e *RemoteError) retryable() bool {
	switch e.Code {
	case "maxlag", "ratelimited":
		return true
	}
	return strings.HasPrefix(e.Code, "http-5")
}
