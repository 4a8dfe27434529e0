package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opencode-ai/actiongate/internal/catalog"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/pkg/types"
)

const (
	DefaultWebhookTimeout = 30 * time.Second
	MaxResponseSize       = 1 << 20
	// RetryInitialInterval is the first wait between webhook attempts.
	RetryInitialInterval = 500 * time.Millisecond
	// RetryMaxInterval caps the wait between webhook attempts.
	RetryMaxInterval = 30 * time.Second
)

// WebhookBackend runs webhook actions as HTTP requests. Network errors and
// 5xx/429 responses are retried up to the action's retryCount; other non-2xx
// responses fail immediately.
type WebhookBackend struct {
	Client          *http.Client
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewWebhookBackend creates a webhook backend with a default client.
func NewWebhookBackend() *WebhookBackend {
	return &WebhookBackend{
		Client:          &http.Client{},
		InitialInterval: RetryInitialInterval,
		MaxInterval:     RetryMaxInterval,
	}
}

// statusError is a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook returned %d %s", e.code, http.StatusText(e.code))
}

func retryable(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func (b *WebhookBackend) retryBackoff(ctx context.Context, retries int) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.InitialInterval
	eb.MaxInterval = b.MaxInterval
	eb.MaxElapsedTime = 0
	eb.RandomizationFactor = 0.5
	eb.Multiplier = 2.0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// Run implements Backend. The result holds statusCode and body.
func (b *WebhookBackend) Run(ctx context.Context, action *types.Action, execution *types.Execution) (map[string]any, error) {
	cfg, ok := action.Config.(types.WebhookConfig)
	if !ok {
		return nil, configMismatch(action)
	}
	payload, err := renderPayload(cfg, execution)
	if err != nil {
		return nil, err
	}

	timeout := DefaultWebhookTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	var (
		result  map[string]any
		attempt int
	)
	operation := func() error {
		attempt++
		code, body, err := b.send(ctx, method, cfg, payload, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		result = map[string]any{"statusCode": code, "body": body}
		if code >= 200 && code < 300 {
			return nil
		}
		serr := &statusError{code: code}
		if retryable(code) {
			return serr
		}
		return backoff.Permanent(serr)
	}
	notify := func(err error, wait time.Duration) {
		logging.Warn().
			Err(err).
			Str("executionID", execution.ID).
			Int("attempt", attempt).
			Dur("retryIn", wait).
			Msg("webhook attempt failed")
	}

	err = backoff.RetryNotify(operation, b.retryBackoff(ctx, cfg.RetryCount), notify)
	if err != nil {
		var serr *statusError
		if errors.As(err, &serr) {
			return result, serr
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, fmt.Errorf("webhook request failed after %d attempt(s): %w", attempt, err)
	}
	return result, nil
}

func (b *WebhookBackend) send(ctx context.Context, method string, cfg types.WebhookConfig, payload []byte, timeout time.Duration) (int, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, cfg.URL, body)
	if err != nil {
		return 0, "", backoff.Permanent(fmt.Errorf("invalid webhook request: %w", err))
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "actiongate")

	resp, err := b.Client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return 0, "", fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, string(data), nil
}

// renderPayload builds the request body. A payload template is executed
// over the invocation parameters; without one, non-GET requests send the
// parameters as JSON.
func renderPayload(cfg types.WebhookConfig, execution *types.Execution) ([]byte, error) {
	params := execution.Parameters
	if params == nil {
		params = map[string]any{}
	}
	if cfg.PayloadTemplate != "" {
		tmpl, err := catalog.ParsePayloadTemplate(cfg.PayloadTemplate)
		if err != nil {
			return nil, fmt.Errorf("invalid payload template: %w", err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, params); err != nil {
			return nil, fmt.Errorf("failed to render payload: %w", err)
		}
		return buf.Bytes(), nil
	}
	if cfg.Method == http.MethodGet || cfg.Method == http.MethodHead {
		return nil, nil
	}
	return json.Marshal(params)
}
