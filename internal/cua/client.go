// Package cua is the bot's HTTP client for the automation controller.
package cua

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deepc0py/Jamie/internal/errs"
	"github.com/deepc0py/Jamie/internal/models"
)

// Client talks to the automation controller's HTTP API. Transport failures
// and transient controller errors are retried with linear backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a controller client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Health checks whether the controller is reachable and healthy.
func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	var health models.HealthResponse
	err := c.retry(ctx, "health", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return fmt.Errorf("build health request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("health request: %w", err)
		}
		defer drainAndClose(resp.Body)

		if resp.StatusCode != http.StatusOK {
			return errs.Newf(errs.CodeCUAUnavailable, "health check returned %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			return fmt.Errorf("decode health response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &health, nil
}

// StartStream asks the controller to begin a streaming session.
func (c *Client) StartStream(ctx context.Context, req *models.StreamRequest) (*models.StreamResponse, error) {
	var result models.StreamResponse
	err := c.retry(ctx, "start_stream", func() error {
		return c.postJSON(ctx, "/stream", req, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// StopStream asks the controller to end a streaming session.
func (c *Client) StopStream(ctx context.Context, sessionID, requesterID string) (*models.StreamResponse, error) {
	var result models.StreamResponse
	body := &models.StopRequest{SessionID: sessionID, RequesterID: requesterID}
	err := c.retry(ctx, "stop_stream", func() error {
		return c.postJSON(ctx, "/stop/"+sessionID, body, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		if out != nil && resp.StatusCode == http.StatusOK {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response from %s: %w", path, err)
			}
		}
		return nil
	case resp.StatusCode == http.StatusConflict:
		return errs.New(errs.CodeAlreadyStreaming, "controller reports a stream already in progress")
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return errs.Newf(errs.CodeInvalidURL, "controller rejected the request: %s", readErrorBody(resp.Body))
	case resp.StatusCode == http.StatusNotFound:
		return errs.Newf(errs.CodeInternal, "controller has no such session")
	default:
		return errs.Newf(errs.CodeCUAUnavailable, "controller returned %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
}

// retry runs op up to maxRetries times, backing off linearly between
// attempts. Only transport failures and retryable controller errors are
// retried; user and config errors surface immediately.
func (c *Client) retry(ctx context.Context, name string, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		var e *errs.Error
		if errors.As(lastErr, &e) && !errs.IsRetryable(e.Code) && errs.CategoryOf(e.Code) != errs.CategoryExternal {
			return lastErr
		}

		if attempt < c.maxRetries {
			delay := c.retryDelay * time.Duration(attempt)
			slog.Warn("controller call failed, retrying",
				"op", name,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s canceled during retry: %w", name, ctx.Err())
			}
		}
	}

	var e *errs.Error
	if errors.As(lastErr, &e) {
		return lastErr
	}
	return errs.Newf(errs.CodeCUAUnavailable, "%s failed after %d attempts: %v", name, c.maxRetries, lastErr)
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(b) == 0 {
		return "no response body"
	}
	return strings.TrimSpace(string(b))
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
