package fetch

import (
	"fmt"
)

type ErrorKind int

const (
	// KindNetwork is a connection-level failure, retryable as-is.
	KindNetwork ErrorKind = iota
	// KindTimeout means the deadline expired, retryable with a longer deadline.
	KindTimeout
	// KindStatus is a non-2xx HTTP response.
	KindStatus
	// KindCanceled means the caller's context was canceled.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	case KindCanceled:
		return "canceled"
	}
	return "unknown"
}

type Error struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	cause      error
}

// NewError builds an Error for callers outside the package that speak the
// same taxonomy, like the hosted-API and delegate clients.
func NewError(kind ErrorKind, statusCode int, url string, cause error) *Error {
	return &Error{Kind: kind, StatusCode: statusCode, URL: url, cause: cause}
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	if e.cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the same method may try again: network errors,
// timeouts, 5xx, and the block statuses. Other 4xx are final for the attempt.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindStatus:
		return e.StatusCode >= 500 || e.StatusCode == 403 || e.StatusCode == 429
	}
	return false
}

// RotateProxy reports whether the retry should go through a different proxy:
// the target explicitly pushed back on this one.
func (e *Error) RotateProxy() bool {
	return e.Kind == KindStatus &&
		(e.StatusCode == 403 || e.StatusCode == 429 || e.StatusCode == 503)
}

// BlockSignal reports whether the failure should suspend the proxy in the
// health registry.
func (e *Error) BlockSignal() bool {
	return e.Kind == KindStatus && (e.StatusCode == 403 || e.StatusCode == 429)
}
