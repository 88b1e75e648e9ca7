// Package agent runs the browser automation workflow that logs into Discord,
// joins voice, and screen-shares a URL from inside a sandbox.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TaskResult is the outcome of one vision-model task.
type TaskResult struct {
	Output string  `json:"output"`
	Cost   float64 `json:"cost"`
}

// Engine executes natural-language automation tasks against a sandbox
// desktop.
type Engine interface {
	RunTask(ctx context.Context, instruction string) (*TaskResult, error)
}

// EngineFactory builds an Engine bound to a running sandbox.
type EngineFactory func(endpoint string) Engine

// HTTPEngine drives the computer-use runtime exposed by the sandbox over
// HTTP.
type HTTPEngine struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPEngine creates an engine that posts tasks to the sandbox runtime.
func NewHTTPEngine(endpoint, model, apiKey string) *HTTPEngine {
	return &HTTPEngine{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		apiKey:   apiKey,
		// Vision-model turns are slow; individual tasks can take minutes.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

type taskRequest struct {
	Model       string `json:"model"`
	Instruction string `json:"instruction"`
}

// RunTask submits one instruction and waits for the runtime to finish it.
func (e *HTTPEngine) RunTask(ctx context.Context, instruction string) (*TaskResult, error) {
	payload, err := json.Marshal(taskRequest{Model: e.model, Instruction: instruction})
	if err != nil {
		return nil, fmt.Errorf("encode task request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/task", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandbox runtime returned %d", resp.StatusCode)
	}

	var result TaskResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode task result: %w", err)
	}
	return &result, nil
}
