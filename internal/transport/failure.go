package transport

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per failure kind. A *Failure unwraps to the sentinel
// matching its Kind, so callers can use errors.Is without inspecting the
// struct:
//
//	if errors.Is(err, transport.ErrRateLimited) {
//	    // back off further
//	}
var (
	// ErrExit is returned when the command exited non-zero.
	ErrExit = errors.New("command failed")

	// ErrMalformed is returned when the command succeeded but its output
	// could not be decoded.
	ErrMalformed = errors.New("malformed response")

	// ErrAPI is returned when a JSON response carried an errors array.
	ErrAPI = errors.New("api error")

	// ErrRateLimited is returned when retries were exhausted on a rate
	// limited call.
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout is returned when an asynchronous call hit its deadline and
	// was terminated.
	ErrTimeout = errors.New("timed out")

	// ErrUnavailable is returned when the command could not be started at
	// all, usually because the binary is missing.
	ErrUnavailable = errors.New("command unavailable")
)

// Kind classifies a Failure.
type Kind string

const (
	KindExit        Kind = "exit"
	KindMalformed   Kind = "malformed"
	KindAPI         Kind = "api"
	KindRateLimited Kind = "rate-limited"
	KindTimeout     Kind = "timeout"
	KindUnavailable Kind = "unavailable"
)

func (k Kind) sentinel() error {
	switch k {
	case KindMalformed:
		return ErrMalformed
	case KindAPI:
		return ErrAPI
	case KindRateLimited:
		return ErrRateLimited
	case KindTimeout:
		return ErrTimeout
	case KindUnavailable:
		return ErrUnavailable
	default:
		return ErrExit
	}
}

// Failure is the structured error returned for every expected failure mode
// of a remote call.
type Failure struct {
	Kind     Kind
	Command  string
	ExitCode int
	Stderr   string

	// Messages holds the API error messages of a KindAPI failure.
	Messages []string

	// Attempts is how many times the call was tried.
	Attempts int

	Err error
}

func (f *Failure) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", f.Command, f.Kind.sentinel())
	if f.ExitCode != 0 {
		fmt.Fprintf(&sb, " (exit %d)", f.ExitCode)
	}
	switch {
	case len(f.Messages) > 0:
		sb.WriteString(": " + strings.Join(f.Messages, "; "))
	case f.Stderr != "":
		sb.WriteString(": " + f.Stderr)
	case f.Err != nil:
		sb.WriteString(": " + f.Err.Error())
	}
	if f.Attempts > 1 {
		fmt.Fprintf(&sb, " after %d attempts", f.Attempts)
	}
	return sb.String()
}

func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind.sentinel()}
	}
	return []error{f.Kind.sentinel(), f.Err}
}

// AsFailure returns the *Failure in err's chain, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

var rateLimitSignatures = []string{
	"rate limit",
	"ratelimit",
	"rate_limited",
	"abuse detection",
	"http 403",
	"403 forbidden",
	"status 403",
	"too many requests",
	"http 429",
}

// IsRateLimitText reports whether s looks like a rate-limit or HTTP 403
// response.
func IsRateLimitText(s string) bool {
	s = strings.ToLower(s)
	for _, sig := range rateLimitSignatures {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}

// retryable reports whether a failure should be retried.
func (f *Failure) retryable() bool {
	return f.Kind == KindRateLimited
}
