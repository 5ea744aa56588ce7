package transport

import (
	"fmt"
	"net/http"
)

// Kind classifies why a call did not succeed.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindNetwork
	KindRateLimited
	KindServerError
	KindClientError
	KindUnexpectedStatus // a 2xx the caller does not accept as success
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindClientError:
		return "client_error"
	case KindUnexpectedStatus:
		return "unexpected_status"
	default:
		return "unknown"
	}
}

// Error is the only failure type callers of Client observe.
type Error struct {
	Kind       Kind
	Method     string
	URL        string
	StatusCode int // zero for timeouts and network failures
	Attempts   int
	Body       string // truncated response body, when one was received
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s after %d attempt(s)", e.Method, e.URL, e.Kind, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could change the outcome.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork, KindRateLimited, KindServerError:
		return true
	default:
		return false
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	default:
		return KindClientError
	}
}
