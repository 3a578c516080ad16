package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
)

// HTTPSink stages experiences by POSTing them to {url}/experience.
type HTTPSink struct {
	url        string
	apiKey     string
	client     *http.Client
	maxRetries uint64
	backoff    func() backoff.BackOff
	logger     *slog.Logger
}

// SinkOption configures an HTTPSink.
type SinkOption func(*HTTPSink)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) SinkOption {
	return func(s *HTTPSink) {
		s.client = c
	}
}

// WithMaxRetries bounds the retries after the first attempt.
func WithMaxRetries(n uint64) SinkOption {
	return func(s *HTTPSink) {
		s.maxRetries = n
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff(fn func() backoff.BackOff) SinkOption {
	return func(s *HTTPSink) {
		s.backoff = fn
	}
}

// WithSinkLogger sets a structured logger.
func WithSinkLogger(logger *slog.Logger) SinkOption {
	return func(s *HTTPSink) {
		s.logger = logger
	}
}

// NewHTTPSink creates a sink for the collector at url. An empty url makes
// Stage a no-op.
func NewHTTPSink(url, apiKey string, opts ...SinkOption) *HTTPSink {
	s := &HTTPSink{
		url:        strings.TrimRight(url, "/"),
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = time.Minute
			return b
		},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a collector URL is configured.
func (s *HTTPSink) Enabled() bool { return s.url != "" }

// Stage sends exp. Server errors and 429 are retried.
func (s *HTTPSink) Stage(ctx context.Context, exp domain.Experience) error {
	if !s.Enabled() {
		s.logger.Debug("feedback collector not configured, skipping")
		return nil
	}
	body, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("failed to encode experience: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/experience", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("collector returned %s", resp.Status)
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("collector rejected experience: %s", resp.Status))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.backoff(), s.maxRetries), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		s.logger.Warn("staging feedback failed, retrying", "wait", wait, "err", err)
	})
}
