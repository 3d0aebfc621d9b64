package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultBackoff is the delay before the 1st, 2nd, 3rd and 4th retry.
var DefaultBackoff = []time.Duration{60 * time.Second, 120 * time.Second, 300 * time.Second, 900 * time.Second}

const DefaultMaxAttempts = 5

type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
}

// Delay returns the wait before retry number attempt (1-based). Attempts past
// the end of Backoff reuse its last entry.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[attempt-1]
}

// Exhausted reports whether a job that has failed attempts times may not run again.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// ParseBackoff reads a comma separated list of durations such as "60s,120s,5m".
func ParseBackoff(raw string) ([]time.Duration, error) {
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("invalid backoff entry %q: %w", part, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid backoff entry %q: must not be negative", part)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, errors.New("backoff list is empty")
	}
	return out, nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the worker gives up without further retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
