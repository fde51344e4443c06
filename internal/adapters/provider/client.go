package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/logger"
)

const (
	baseDelay     = 200 * time.Millisecond
	maxDelay      = 5 * time.Second
	maxRetryAfter = 60 * time.Second
	maxErrorBody  = 4 << 10
)

// Client sends JSON requests to one provider.
type Client struct {
	Name       string // reported in ProviderError.Provider
	HTTP       *http.Client
	Limiter    *Limiter
	Headers    map[string]string
	Timeout    time.Duration // per attempt, 0 for none
	MaxRetries int
	// Delay overrides the backoff schedule, for tests.
	Delay func(attempt int) time.Duration
}

// PostJSON posts body to url and decodes a 2xx JSON response into out.
// Throttling, server errors and transport failures are retried with
// exponential backoff. Failures are returned as *entities.ProviderError.
func (c *Client) PostJSON(ctx context.Context, op, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return c.fail(op, 0, fmt.Errorf("encoding request: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1, lastErr); err != nil {
				return c.fail(op, 0, err)
			}
		}
		lastErr = c.postOnce(ctx, op, url, payload, out)
		if lastErr == nil {
			return nil
		}
		var pe *entities.ProviderError
		if ctx.Err() != nil || !errors.As(lastErr, &pe) || !pe.Retryable() {
			return lastErr
		}
		logger.Debug("%s %s attempt %d failed: %v", c.Name, op, attempt+1, lastErr)
	}
	return lastErr
}

func (c *Client) postOnce(ctx context.Context, op, url string, payload []byte, out any) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	resp, err := c.Do(ctx, op, url, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.fail(op, resp.StatusCode, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// Do sends one POST and returns the response if its status is 2xx.
// The caller owns the response body.
func (c *Client) Do(ctx context.Context, op, url string, payload []byte) (*http.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, c.fail(op, 0, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, c.fail(op, 0, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, c.fail(op, 0, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests && c.Limiter != nil {
			c.Limiter.Backoff(RetryAfter(resp.Header))
		}
		return nil, &retryAfterError{
			ProviderError: c.fail(op, resp.StatusCode, errors.New(errorMessage(resp))),
			after:         RetryAfter(resp.Header),
		}
	}
	return resp, nil
}

// DoWithRetry is Do with the retry policy of PostJSON. It is used to open
// streams, which are not retried once a response has been accepted.
func (c *Client) DoWithRetry(ctx context.Context, op, url string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, c.fail(op, 0, fmt.Errorf("encoding request: %w", err))
	}
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1, lastErr); err != nil {
				return nil, c.fail(op, 0, err)
			}
		}
		resp, err := c.Do(ctx, op, url, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		var pe *entities.ProviderError
		if ctx.Err() != nil || !errors.As(err, &pe) || !pe.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) sleep(ctx context.Context, attempt int, lastErr error) error {
	d := c.delay(attempt)
	var ra *retryAfterError
	if errors.As(lastErr, &ra) && ra.after > d {
		d = ra.after
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) delay(attempt int) time.Duration {
	if c.Delay != nil {
		return c.Delay(attempt)
	}
	return RetryDelay(attempt)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) fail(op string, status int, err error) *entities.ProviderError {
	return &entities.ProviderError{Provider: c.Name, Op: op, StatusCode: status, Err: err}
}

// Fail builds a ProviderError for failures detected by the adapter itself,
// such as a malformed payload.
func (c *Client) Fail(op string, err error) error {
	return c.fail(op, 0, err)
}

// retryAfterError carries the server's requested delay with a status failure.
type retryAfterError struct {
	*entities.ProviderError
	after time.Duration
}

func (e *retryAfterError) Unwrap() error { return e.ProviderError }

// RetryDelay is exponential backoff from 200ms capped at 5s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		return maxDelay
	}
	d := baseDelay << attempt
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
// It returns 0 when the header is absent or invalid, and caps long waits.
func RetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = time.Until(t)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// errorMessage extracts a message from an error response body.
func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && len(body.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(body.Error, &flat) == nil && flat != "" {
			return flat
		}
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return resp.Status
}
