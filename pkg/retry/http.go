package retry

import (
	"errors"
	"time"
)

// HTTPStatusError carries an upstream HTTP status through the retry policy so
// backoff can be chosen per status class.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return e.Message
}

// StatusCode extracts an HTTP status from err, or 0.
func StatusCode(err error) int {
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// ErrPermanent marks an error that must not be retried within the current
// tier (a non-429 4xx from an embedding provider, for example).
var ErrPermanent = errors.New("permanent upstream error")

// IsPermanent reports whether err is wrapped as permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string        { return e.err.Error() }
func (e *permanentError) Unwrap() error        { return e.err }
func (e *permanentError) Is(target error) bool { return target == ErrPermanent }

// Permanent marks err so the policies in this package stop retrying it.
// The original error stays reachable through errors.As/Is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// StatusBackoff computes the backoff before attempt n (0-based) given the
// status of the previous failure: 429 waits 2^(n+2) seconds, 5xx waits
// 2^n seconds, anything else gets a second.
func StatusBackoff(status, attempt int) time.Duration {
	switch {
	case status == 429:
		return time.Duration(1<<uint(attempt+2)) * time.Second
	case status >= 500:
		return time.Duration(1<<uint(attempt)) * time.Second
	default:
		return time.Second
	}
}
