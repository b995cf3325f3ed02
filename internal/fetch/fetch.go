package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodyBytes     = 10 << 20
	maxRedirects     = 5
)

// Config controls timeouts and the delay inserted between endpoint attempts.
type Config struct {
	Timeout   time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
	UserAgent string
}

// Options is the per-call request shape.
type Options struct {
	Headers map[string]string
	// Timeout overrides the fetcher's per-attempt timeout when non-zero.
	Timeout time.Duration
}

// Payload is the body returned by the first endpoint that succeeded.
type Payload struct {
	Body     []byte
	Status   int
	Endpoint string
	Attempts []Attempt
}

// Fetcher walks an ordered endpoint list until one answers with a usable body.
// It holds no per-call state and is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	baseDelay time.Duration
	maxDelay  time.Duration
	userAgent string
	log       *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher.
func New(cfg Config, log *slog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Fetcher{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		timeout:   cfg.Timeout,
		baseDelay: cfg.BaseDelay,
		maxDelay:  cfg.MaxDelay,
		userAgent: cfg.UserAgent,
		log:       log,
		sleep:     sleepContext,
	}
}

// Fetch tries each endpoint in order, never retrying the same one, and returns
// the first 2xx response with a non-empty body. Exhaustion yields *ExhaustedError.
func (f *Fetcher) Fetch(ctx context.Context, endpoints []string, opts Options) (*Payload, error) {
	if len(endpoints) == 0 {
		return nil, &ExhaustedError{}
	}

	delays := f.newBackOff()
	var tr trail
	for i, endpoint := range endpoints {
		if i > 0 {
			wait := delays.NextBackOff()
			f.log.Debug("waiting before next endpoint", "endpoint", Redact(endpoint), "delay", wait)
			if err := f.sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("fetch cancelled before %s: %w", Redact(endpoint), err)
			}
		}

		payload, attempt := f.attempt(ctx, endpoint, opts)
		tr = tr.record(attempt)
		if payload != nil {
			payload.Attempts = tr.attempts
			f.log.Debug("endpoint succeeded", "endpoint", Redact(endpoint), "status", payload.Status, "attempts", len(tr.attempts))
			return payload, nil
		}
		f.log.Warn("endpoint failed", "endpoint", Redact(endpoint), "status", attempt.Status, "error", attempt.Err)
	}
	return nil, tr.exhausted()
}

func (f *Fetcher) attempt(ctx context.Context, endpoint string, opts Options) (*Payload, Attempt) {
	start := time.Now()
	timeout := f.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fail := func(status int, err error) (*Payload, Attempt) {
		// url.Error repeats the request URL, secrets included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = Redact(uerr.URL)
		}
		return nil, Attempt{
			Endpoint: endpoint,
			Status:   status,
			Err:      &TransportError{Endpoint: endpoint, Status: status, Err: err},
			Elapsed:  time.Since(start),
		}
	}

	req, err := http.NewRequestWithContext(actx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,he;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return fail(resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("reading body: %w", err))
	}
	if len(body) == 0 {
		return fail(resp.StatusCode, errors.New("empty body"))
	}

	a := Attempt{Endpoint: endpoint, Status: resp.StatusCode, Elapsed: time.Since(start)}
	return &Payload{Body: body, Status: resp.StatusCode, Endpoint: endpoint}, a
}

// Budget is the longest a Fetch over n endpoints can take when every attempt
// times out: n timeouts plus the n-1 delays between them.
func (f *Fetcher) Budget(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	total := time.Duration(n) * f.timeout
	delays := f.newBackOff()
	for i := 1; i < n; i++ {
		total += delays.NextBackOff()
	}
	return total
}

// newBackOff yields base, 2*base, 4*base ... capped at maxDelay, without jitter.
func (f *Fetcher) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.baseDelay
	b.MaxInterval = f.maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
