// Package onedrive fetches the contents of a public OneDrive share-link
// folder over HTTP. Shaped after internal/graph.Client — exponential
// backoff with jitter, Retry-After on 429, sentinel error classification
// via errors.go — repointed from Microsoft Graph's authenticated API to
// the unauthenticated share-link listing API: share links are public, so
// there is no TokenSource here, but the retry, pagination, and
// error-classification shape is unchanged.
package onedrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// DefaultBaseURL is the OneDrive consumer share-listing API endpoint.
const DefaultBaseURL = "https://api.onedrive.com/v1.0"

// Same retry/backoff policy as internal/graph.Client, carried over
// unchanged: base 1s, factor 2x, max 60s, ±25% jitter, max 5 retries.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "memolanes-server/0.1"
)

// Client is an HTTP client for the OneDrive share-listing API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// sleepFunc waits between retries. Defaults to timeSleep; tests
	// override it to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a share-listing client. baseURL is typically
// DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// get issues an authenticated-by-URL GET request against path with
// automatic retry on transient errors, returning the response for the
// caller to decode and close.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	url := c.baseURL + path

	var attempt int

	for {
		resp, err := c.doOnce(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("onedrive: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				if sleepErr := c.waitBeforeRetry(ctx, "network error", url, attempt, c.calcBackoff(attempt), err); sleepErr != nil {
					return nil, sleepErr
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("onedrive: GET %s failed after %d retries: %w", path, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			body = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			if sleepErr := c.waitBeforeRetry(ctx, "HTTP error", url, attempt, backoff, nil); sleepErr != nil {
				return nil, sleepErr
			}

			attempt++

			continue
		}

		return nil, c.terminalError(path, resp.StatusCode, body, attempt)
	}
}

func (c *Client) doOnce(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	return resp, nil
}

func (c *Client) waitBeforeRetry(ctx context.Context, reason, url string, attempt int, backoff time.Duration, cause error) error {
	attrs := []any{
		slog.String("url", url),
		slog.Int("attempt", attempt+1),
		slog.Duration("backoff", backoff),
		slog.String("reason", reason),
	}

	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}

	c.logger.Warn("retrying onedrive request", attrs...)

	if err := c.sleepFunc(ctx, backoff); err != nil {
		return fmt.Errorf("onedrive: request canceled: %w", err)
	}

	return nil
}

func (c *Client) terminalError(path string, statusCode int, body []byte, attempt int) *ShareError {
	shareErr := &ShareError{
		StatusCode: statusCode,
		Message:    string(body),
		Err:        classifyStatus(statusCode),
	}

	if attempt > 0 {
		c.logger.Error("onedrive request failed after retries",
			slog.String("path", path),
			slog.Int("status", statusCode),
			slog.Int("attempts", attempt+1),
		)
	} else {
		c.logger.Warn("onedrive request failed",
			slog.String("path", path),
			slog.Int("status", statusCode),
		)
	}

	return shareErr
}

// retryBackoff honors Retry-After on 429, falling back to calcBackoff.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
