package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// loggingRoundTripper captures request details for debugging.
type loggingRoundTripper struct {
	proxied http.RoundTripper
	logger  *zap.Logger
}

// RoundTrip executes the request and logs details.
func (lrt *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := lrt.proxied.RoundTrip(req)

	duration := time.Since(start)

	if err != nil {
		lrt.logger.Error("courier request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	lrt.logger.Debug("courier request completed",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	return resp, nil
}

// serverError marks a 5xx response so the circuit breaker counts it as a
// failure while the adapter still gets the status and body to classify.
type serverError struct {
	status int
	body   []byte
}

func (e *serverError) Error() string {
	return fmt.Sprintf("courier server error: status %d", e.status)
}

// restClient is a thin JSON/form HTTP client with a bounded timeout, request
// logging and a circuit breaker per provider.
type restClient struct {
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func newRestClient(base, name string, timeout time.Duration, logger *zap.Logger) *restClient {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("courier circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &restClient{
		base: strings.TrimRight(base, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &loggingRoundTripper{
				proxied: http.DefaultTransport,
				logger:  logger,
			},
		},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// doJSON sends a JSON request and returns the response status and raw body.
// Transport failures and an open breaker come back as an error; HTTP error
// statuses are returned to the adapter for classification.
func (c *restClient) doJSON(ctx context.Context, method, path string, headers map[string]string, body any, out any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"

	return c.do(ctx, method, path, headers, reader, out)
}

// doForm sends an application/x-www-form-urlencoded request. Delhivery's
// shipment creation endpoint expects this format.
func (c *restClient) doForm(ctx context.Context, method, path string, headers map[string]string, form url.Values, out any) (int, []byte, error) {
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/x-www-form-urlencoded"

	return c.do(ctx, method, path, headers, strings.NewReader(form.Encode()), out)
}

func (c *restClient) do(ctx context.Context, method, path string, headers map[string]string, body io.Reader, out any) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Accept", "application/json")

	type httpResult struct {
		status int
		body   []byte
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= 500 {
			return nil, &serverError{status: resp.StatusCode, body: raw}
		}

		return &httpResult{status: resp.StatusCode, body: raw}, nil
	})

	if err != nil {
		var se *serverError
		if errors.As(err, &se) {
			// 5xx: breaker counted the failure, adapter classifies the status.
			return se.status, se.body, nil
		}
		return 0, nil, err
	}

	res := result.(*httpResult)
	if out != nil && res.status < 300 && len(res.body) > 0 {
		if err := json.Unmarshal(res.body, out); err != nil {
			return res.status, res.body, fmt.Errorf("failed to decode courier response: %w", err)
		}
	}
	return res.status, res.body, nil
}

// errorMessage pulls a human-readable message out of a provider error body.
// Providers disagree on the field name.
func errorMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Remark  string `json:"rmk"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return strings.TrimSpace(string(body))
	}
	switch {
	case envelope.Message != "":
		return envelope.Message
	case envelope.Error != "":
		return envelope.Error
	case envelope.Remark != "":
		return envelope.Remark
	default:
		return strings.TrimSpace(string(body))
	}
}
