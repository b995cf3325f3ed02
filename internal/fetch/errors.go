package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// ErrTransport marks a single endpoint failure: network error, timeout,
	// non-2xx status or empty body. It is recoverable by falling back.
	ErrTransport = errors.New("transport failure")

	// ErrAllEndpointsExhausted means every endpoint in the list failed.
	ErrAllEndpointsExhausted = errors.New("all endpoints exhausted")
)

// TransportError describes why one endpoint attempt failed.
type TransportError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", Redact(e.Endpoint), e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", Redact(e.Endpoint), e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// Attempt is the record of one endpoint try. Err is nil on success.
type Attempt struct {
	Endpoint string
	Status   int
	Err      error
	Elapsed  time.Duration
}

// ExhaustedError carries every failed attempt, in order.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all endpoints exhausted: no endpoints configured"
	}
	return fmt.Sprintf("all %d endpoints exhausted; last error: %v", len(e.Attempts), e.Last())
}

// Last returns the error of the final attempt.
func (e *ExhaustedError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

func (e *ExhaustedError) Unwrap() []error {
	if last := e.Last(); last != nil {
		return []error{ErrAllEndpointsExhausted, last}
	}
	return []error{ErrAllEndpointsExhausted}
}

// trail accumulates attempts immutably; exhaustion is derived from it.
type trail struct {
	attempts []Attempt
}

func (t trail) record(a Attempt) trail {
	next := make([]Attempt, len(t.attempts), len(t.attempts)+1)
	copy(next, t.attempts)
	return trail{attempts: append(next, a)}
}

func (t trail) exhausted() *ExhaustedError {
	return &ExhaustedError{Attempts: t.attempts}
}

var secretParams = []string{"token", "key", "api_key", "apikey"}

// Redact masks credential query parameters so endpoints can be logged.
func Redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.RawQuery == "" {
		return endpoint
	}
	q := u.Query()
	changed := false
	for _, name := range secretParams {
		if q.Has(name) {
			q.Set(name, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return endpoint
	}
	u.RawQuery = q.Encode()
	return u.String()
}
