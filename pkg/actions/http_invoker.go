package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultInvokeTimeout = 30 * time.Second

var ErrFunctionFailed = errors.New("function returned an error status")

// HTTPInvoker calls functions over HTTP as POST {baseURL}/functions/{name}.
// Server errors are retried with exponential backoff; client errors are not.
type HTTPInvoker struct {
	baseURL    string
	token      string
	client     *http.Client
	maxRetries uint64
	logger     *slog.Logger
}

func NewHTTPInvoker(baseURL, token string, maxRetries uint64, logger *slog.Logger) *HTTPInvoker {
	return &HTTPInvoker{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		client:     &http.Client{Timeout: defaultInvokeTimeout},
		maxRetries: maxRetries,
		logger:     logger.With("module", "http_invoker"),
	}
}

type invokeRequest struct {
	TenantID string         `json:"tenant_id"`
	Args     map[string]any `json:"args"`
}

func (i *HTTPInvoker) Invoke(ctx context.Context, tenantID, name string, args map[string]any) (map[string]any, error) {
	body, err := json.Marshal(invokeRequest{TenantID: tenantID, Args: args})
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}

	endpoint := i.baseURL + "/functions/" + url.PathEscape(name)

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), i.maxRetries), ctx)

	var result map[string]any

	operation := func() error {
		result, err = i.call(ctx, endpoint, body)

		return err
	}

	notify := func(err error, delay time.Duration) {
		i.logger.WarnContext(ctx, "Function call failed, retrying", "function", name, "delay", delay, "error", err)
	}

	err = backoff.RetryNotify(operation, policy, notify)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (i *HTTPInvoker) call(ctx context.Context, endpoint string, body []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")

	if i.token != "" {
		req.Header.Set("Authorization", "Bearer "+i.token)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrFunctionFailed, resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrFunctionFailed, resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	result := map[string]any{}

	if len(bytes.TrimSpace(payload)) > 0 {
		err = json.Unmarshal(payload, &result)
		if err != nil {
			result = map[string]any{"body": string(payload)}
		}
	}

	return result, nil
}
