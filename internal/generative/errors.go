// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generative

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sony/gobreaker"
)

// ErrUnavailable matches every *UnavailableError via errors.Is. A caller
// receiving it continues without generative output for that document.
var ErrUnavailable = errors.New("generative extractor unavailable")

// errMalformedReply marks a 200 response whose body is not usable.
var errMalformedReply = errors.New("malformed model reply")

// Reason classifies why the generative extractor produced no result.
type Reason string

const (
	ReasonTimeout     Reason = "timeout"
	ReasonUnreachable Reason = "unreachable"
	ReasonRateLimited Reason = "rate_limited"
	ReasonServerError Reason = "server_error"
	ReasonRejected    Reason = "rejected"
	ReasonMalformed   Reason = "malformed"
	ReasonCircuitOpen Reason = "circuit_open"
	ReasonCanceled    Reason = "canceled"
)

// UnavailableError is the only error Extract returns.
type UnavailableError struct {
	Reason Reason
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("generative extractor unavailable (%s): %v", e.Reason, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) true.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// transient reports whether one more attempt may succeed.
func (e *UnavailableError) transient() bool {
	return e.Reason == ReasonTimeout || e.Reason == ReasonServerError
}

// StatusError is returned by backends for a non-200 HTTP response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.Code, e.Body)
}

// classify maps a backend or breaker error to an UnavailableError. parent
// is the caller's context, which distinguishes a caller cancellation from
// a per-attempt timeout.
func classify(parent context.Context, err error) *UnavailableError {
	var status *StatusError
	var netErr net.Error
	switch {
	case parent.Err() != nil:
		return &UnavailableError{Reason: ReasonCanceled, Err: err}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &UnavailableError{Reason: ReasonCircuitOpen, Err: err}
	case errors.Is(err, errMalformedReply):
		return &UnavailableError{Reason: ReasonMalformed, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &UnavailableError{Reason: ReasonTimeout, Err: err}
	case errors.As(err, &status):
		switch {
		case status.Code == 429:
			return &UnavailableError{Reason: ReasonRateLimited, Err: err}
		case status.Code >= 500:
			return &UnavailableError{Reason: ReasonServerError, Err: err}
		}
		return &UnavailableError{Reason: ReasonRejected, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &UnavailableError{Reason: ReasonTimeout, Err: err}
	}
	return &UnavailableError{Reason: ReasonUnreachable, Err: err}
}
