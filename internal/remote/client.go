// Package remote provides the rate-limited, token-authenticated HTTP
// client that every sheet call routes through.
//
// The client owns retry and backoff:
//  1. Missing token fails immediately with ErrAuthRequired (no network).
//  2. HTTP 429 backs off and retries silently; rate limiting is expected.
//  3. HTTP 401 fails immediately with ErrAuthExpired (never retried).
//  4. Other non-2xx and transport errors retry with the same backoff and
//     surface as *RemoteError once attempts are exhausted.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/KhanhRomVN/habitsync/internal/auth"
)

// RetryPolicy describes how failed calls are retried. It is a plain value
// so callers can tune it per deployment without touching the client.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the first backoff step; each retry doubles it.
	BaseDelay time.Duration

	// DelayCap bounds the exponential growth.
	DelayCap time.Duration
}

// DefaultRetryPolicy returns the policy used in production: three retries,
// one second base, thirty second cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		DelayCap:   30 * time.Second,
	}
}

// Delay returns the backoff before retry number attempt (0-based), with
// jitter drawn from rng. Ignoring jitter, delays are strictly increasing
// until they hit the cap.
func (p RetryPolicy) Delay(attempt int, rng *rand.Rand) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if d > p.DelayCap || d <= 0 {
		d = p.DelayCap
	}
	if rng != nil && p.BaseDelay > 0 {
		d += time.Duration(rng.Int63n(int64(p.BaseDelay)))
	}
	return d
}

// Config holds client configuration.
type Config struct {
	// Policy is the retry policy. Zero value means DefaultRetryPolicy.
	Policy RetryPolicy

	// Timeout is the per-request wall-clock limit (default: 30s).
	Timeout time.Duration

	// Logger for retry activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Policy:  DefaultRetryPolicy(),
		Timeout: 30 * time.Second,
		Logger:  log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
}

// Client issues authenticated JSON calls with retry and backoff. It is
// stateless apart from the token provider it consults per call.
type Client struct {
	http   *http.Client
	tokens auth.TokenProvider
	policy RetryPolicy
	logger *log.Logger
	rng    *rand.Rand

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client that authenticates via the given provider.
func New(tokens auth.TokenProvider, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	policy := config.Policy
	if policy.MaxRetries == 0 && policy.BaseDelay == 0 {
		policy = DefaultRetryPolicy()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		http:   &http.Client{Timeout: timeout},
		tokens: tokens,
		policy: policy,
		logger: config.Logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
}

// Request issues one authenticated call and decodes the JSON response.
// A nil body sends no payload; any other body is JSON-encoded. A 2xx
// response with an empty body returns nil, nil.
func (c *Client) Request(ctx context.Context, method, url string, body any) (json.RawMessage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain token: %w", err)
	}
	if token == "" {
		return nil, ErrAuthRequired
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		result, retryable, err := c.do(ctx, method, url, token, payload)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err

		if attempt >= c.policy.MaxRetries {
			break
		}

		delay := c.policy.Delay(attempt, c.rng)
		c.logger.Printf("%s %s failed (attempt %d/%d), retrying in %v: %v",
			method, url, attempt+1, c.policy.MaxRetries+1, delay.Round(time.Millisecond), err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// do performs a single HTTP exchange. The second return value reports
// whether the failure is worth retrying.
func (c *Client) do(ctx context.Context, method, url, token string, payload []byte) (json.RawMessage, bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("transport error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if len(data) == 0 {
			return nil, false, nil
		}
		return json.RawMessage(data), false, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, ErrAuthExpired

	case resp.StatusCode == http.StatusTooManyRequests:
		// Expected under burst load; recovered by backoff, never surfaced.
		return nil, true, &RemoteError{Status: resp.StatusCode, Body: trimBody(data)}

	default:
		return nil, true, &RemoteError{Status: resp.StatusCode, Body: trimBody(data)}
	}
}

func trimBody(data []byte) string {
	const max = 512
	if len(data) > max {
		data = data[:max]
	}
	return string(data)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
