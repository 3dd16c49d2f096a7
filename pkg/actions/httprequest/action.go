// Package httprequest provides the action that calls an HTTP endpoint when a document changes state.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/template"
)

const (
	defaultTimeout    = 30 * time.Second
	maxResponseLength = 1 << 20
)

var (
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request url")
	ErrHTTPMethodInvalid     = errors.New("invalid HTTP method")
	ErrHTTPServerError       = errors.New("server error during HTTP request")
	ErrHTTPClientError       = errors.New("HTTP request rejected")
)

// Action sends a templated request. Non-2xx responses fail the action after retries are exhausted.
type Action struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            string
	Timeout         time.Duration
	Retry           RetryConfig
	StoreResponseAs string

	client *http.Client
}

type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

func NewAction(config map[string]any) (*Action, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("missing 'url' in configuration: %w", ErrHTTPRequestURLInvalid)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	method = strings.ToUpper(method)

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: %s", ErrHTTPMethodInvalid, method)
	}

	headers := make(map[string]string)

	if headersMap, ok := config["headers"].(map[string]any); ok {
		for key, value := range headersMap {
			if strVal, ok := value.(string); ok {
				headers[key] = strVal
			}
		}
	}

	body, _ := config["body"].(string)
	storeAs, _ := config["store_response_as"].(string)

	timeout := defaultTimeout
	if seconds, ok := number(config["timeout_seconds"]); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	action := &Action{
		Method:          method,
		URL:             url,
		Headers:         headers,
		Body:            body,
		Timeout:         timeout,
		Retry:           parseRetryConfig(config["retry"]),
		StoreResponseAs: storeAs,
		client:          &http.Client{Timeout: timeout},
	}

	if err := action.validate(); err != nil {
		return nil, err
	}

	return action, nil
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := number(retryMap["attempts"]); ok && attempts >= 1 {
		retry.Attempts = int(attempts)
	}

	if delay, ok := number(retryMap["delay"]); ok && delay > 0 {
		retry.Delay = time.Duration(delay) * time.Millisecond
	}

	return retry
}

// number accepts the numeric types produced by JSON and YAML decoding.
func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func (a *Action) validate() error {
	if _, err := template.Parse(a.URL); err != nil {
		return fmt.Errorf("invalid url template: %w", err)
	}

	if _, err := template.Parse(a.Body); err != nil {
		return fmt.Errorf("invalid body template: %w", err)
	}

	for key, value := range a.Headers {
		if _, err := template.Parse(value); err != nil {
			return fmt.Errorf("invalid header '%s' template: %w", key, err)
		}
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) error {
	logger = logger.With("module", "http_request_action")

	var lastErr error

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying HTTP request", "attempt", attempt, "attempts", a.Retry.Attempts)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.Retry.Delay):
			}
		}

		response, err := a.do(ctx, executionCtx, logger)
		if err == nil {
			if a.StoreResponseAs != "" {
				executionCtx.Set(a.StoreResponseAs, response)
			}

			return nil
		}

		lastErr = err

		// 4xx responses will not change on retry.
		if errors.Is(err, ErrHTTPClientError) {
			break
		}
	}

	return lastErr
}

func (a *Action) do(ctx context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	req, err := a.buildRequest(ctx, executionCtx)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Sending HTTP request", "method", req.Method, "url", req.URL.String())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLength))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrHTTPServerError, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("%w: status %d", ErrHTTPClientError, resp.StatusCode)
	}

	var body any

	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	logger.InfoContext(ctx, "HTTP request completed", "status", resp.StatusCode, "body_length", len(bodyBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
	}, nil
}

func (a *Action) buildRequest(ctx context.Context, executionCtx *models.ExecutionContext) (*http.Request, error) {
	url, err := template.RenderString(a.URL, executionCtx.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	var bodyReader io.Reader

	if a.Body != "" {
		body, err := template.RenderString(a.Body, executionCtx.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}

		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, strings.TrimSpace(url), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range a.Headers {
		headerValue, err := template.RenderString(value, executionCtx.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, headerValue)
	}

	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}
