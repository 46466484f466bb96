package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client performs evaluation calls against the remote execution service.
type Client interface {
	Evaluate(ctx context.Context, request EvaluationRequest) (EvaluationResponse, error)
}

// ErrTimeout indicates the runner did not answer within the deadline.
var ErrTimeout = errors.New("runner timed out")

// ErrUnreachable indicates the runner could not be reached at all.
var ErrUnreachable = errors.New("runner unreachable")

// StatusError reports a non-success HTTP status from the runner.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("runner rejected request with status %d", e.Code)
}

// Config holds connection settings for the execution service.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

type httpClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// New constructs an HTTP-backed runner client.
func New(cfg Config, logger zerolog.Logger) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("runner base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &httpClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With().Str("component", "runner_client").Logger(),
	}, nil
}

func (c *httpClient) Evaluate(ctx context.Context, request EvaluationRequest) (EvaluationResponse, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return EvaluationResponse{}, fmt.Errorf("encode evaluation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(payload))
	if err != nil {
		return EvaluationResponse{}, fmt.Errorf("build evaluation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return EvaluationResponse{}, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Int("test_cases", len(request.TestCases)).
		Msg("runner call completed")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return EvaluationResponse{}, fmt.Errorf("read runner response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return EvaluationResponse{}, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var response EvaluationResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return EvaluationResponse{}, fmt.Errorf("decode runner response: %w", err)
	}

	return response, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	var urlErr interface{ Timeout() bool }
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return ErrTimeout
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return err
}
