// Package sources implements the per-domain source adapters that fetch raw
// data from municipal open APIs and normalize it into records. All outbound
// HTTP goes through Client, which enforces consistent resilience patterns:
// circuit breaking, bounded retries with jittered backoff, and typed error
// mapping. Adapters never surface a recoverable HTTP failure as anything
// other than a typed source-level error.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"citypulse/internal/types"
)

// RetryPolicy configures the retry behavior for upstream fetches.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the standard policy for open-API calls. The
// budget is deliberately small: a source that stays down simply surfaces as
// a failed cycle and the previous snapshot is retained.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    500 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// Client wraps an *http.Client and a circuit breaker shared by all adapters
// for one upstream host.
type Client struct {
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	callTimeout time.Duration
	sleepFn     func(time.Duration)
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithSleepFunc overrides the sleep between retries; intended for tests.
func WithSleepFunc(fn func(time.Duration)) ClientOption {
	return func(c *Client) { c.sleepFn = fn }
}

// WithCallTimeout sets the per-call timeout applied to every upstream
// request. A timeout is mapped to a recoverable fetch failure.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.callTimeout = d }
}

// NewClient creates a Client with a named circuit breaker. The breaker opens
// after a run of consecutive failures, shedding load from an upstream that
// is clearly down instead of hammering it every cycle.
func NewClient(httpClient *http.Client, breakerName string, policy RetryPolicy, userAgent string, opts ...ClientOption) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	c := &Client{
		httpClient:  httpClient,
		breaker:     cb,
		retryPolicy: policy,
		userAgent:   userAgent,
		callTimeout: 20 * time.Second,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetBody performs a GET against url and returns the response body. It
// retries 429/5xx and network errors with jittered exponential backoff, and
// maps terminal failures to typed AppErrors:
//
//   - timeout / context deadline  -> fetch_timeout
//   - network failure             -> fetch_transient
//   - breaker open, 429/5xx       -> fetch_upstream_unavailable
//   - non-2xx after retries       -> malformed_response (the upstream spoke,
//     but not the contract we expect)
func (c *Client) GetBody(ctx context.Context, url string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var lastResp *http.Response
	var lastErr error

	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternal, "failed to build upstream request", err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// 5xx and 429 count as failures for the breaker and trigger retry.
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})

		if err == nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				// 4xx other than 429: the request is wrong or the contract
				// changed. Not worth retrying this cycle.
				io.Copy(io.Discard, resp.Body)
				return nil, types.NewAppError(types.ErrCodeMalformedResponse,
					fmt.Sprintf("upstream returned status %d", resp.StatusCode), nil)
			}
			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, types.NewAppError(types.ErrCodeFetchTransient, "failed to read upstream response body", readErr)
			}
			return body, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		// Breaker open: stop immediately, upstream is shedding.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		// Context expiry is terminal for this call.
		if callCtx.Err() != nil {
			break
		}

		if attempt < maxAttempts-1 {
			c.sleepFn(c.computeBackoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}

	return nil, c.mapError(callCtx, lastResp, lastErr)
}

// computeBackoff returns the wait before the next attempt: Retry-After when
// the upstream provided one, otherwise exponential backoff with full jitter
// clamped to [MinWait, MaxWait].
func (c *Client) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				wait := time.Duration(seconds) * time.Second
				if wait > c.retryPolicy.MaxWait {
					wait = c.retryPolicy.MaxWait
				}
				return wait
			}
		}
	}

	base := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	if maxWait := float64(c.retryPolicy.MaxWait); base > maxWait {
		base = maxWait
	}
	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

// mapError translates a terminal fetch failure into a typed AppError.
func (c *Client) mapError(ctx context.Context, resp *http.Response, err error) *types.AppError {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return types.NewAppError(types.ErrCodeFetchTimeout, "upstream call timed out", err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return types.NewAppError(types.ErrCodeFetchUpstream, "circuit breaker open; upstream unavailable", err)
	case resp != nil && (resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests):
		return types.NewAppError(types.ErrCodeFetchUpstream,
			fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
	default:
		return types.NewAppError(types.ErrCodeFetchTransient, "upstream request failed", err)
	}
}
