/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package httpsource

import (
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RetryTransport retries idempotent requests that failed at the transport
// level or returned 408, 429 or 5xx. The protocol client itself never retries;
// install this transport on the http.Client handed to WithHTTPClient.
type RetryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// RetryOption configures a RetryTransport
type RetryOption func(*RetryTransport)

// WithMaxRetries sets the maximum retry attempts (default: 3)
func WithMaxRetries(n int) RetryOption {
	return func(t *RetryTransport) {
		t.maxRetries = n
	}
}

// WithRetryBackoff sets the backoff unit between retries (default: 500ms)
func WithRetryBackoff(d time.Duration) RetryOption {
	return func(t *RetryTransport) {
		t.backoff = d
	}
}

// WithRetryLogger sets the logger used to report retries
func WithRetryLogger(l *zap.Logger) RetryOption {
	return func(t *RetryTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewRetryTransport wraps base, or http.DefaultTransport when base is nil.
func NewRetryTransport(base http.RoundTripper, opts ...RetryOption) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &RetryTransport{
		base:       base,
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip implements http.RoundTripper
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(ctx))
		if !shouldRetry(resp, err) || attempt >= t.maxRetries || ctx.Err() != nil {
			return resp, err
		}

		fields := []zap.Field{
			zap.String("url", req.URL.String()),
			zap.Int("attempt", attempt+1),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("status", resp.StatusCode))
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		t.logger.Warn("retrying request", fields...)

		backoff := time.Duration(attempt+1) * t.backoff
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return isTransientStatus(resp.StatusCode)
}
