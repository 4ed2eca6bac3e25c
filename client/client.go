package client

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-resource/types"
)

// FastHTTPClient is the transport behind the resource layer: one JSON
// exchange per Do call, a bearer credential attached per call, no automatic
// retries. Consistency around failures belongs to the cache layer, so the
// transport stays deliberately dumb.
type FastHTTPClient struct {
	logger         types.Logger
	client         *fasthttp.Client
	baseURL        string
	auth           types.AuthProvider
	circuitBreaker *CircuitBreaker
	defaultTimeout time.Duration
}

func NewFastHTTPClient(logger types.Logger, config *types.ClientConfig, auth types.AuthProvider) *FastHTTPClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &fasthttp.Client{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	return &FastHTTPClient{
		logger:         logger,
		client:         httpClient,
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		auth:           auth,
		circuitBreaker: NewCircuitBreaker(config.CircuitBreaker, logger),
		defaultTimeout: timeout,
	}
}

func (c *FastHTTPClient) Do(ctx context.Context, method, path string, body []byte, headers map[string]string) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, types.WrapError(err, "call aborted before dispatch")
	}

	if !c.circuitBreaker.CanExecute() {
		return 0, nil, types.ErrCircuitBreakerOpen
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	if len(body) > 0 {
		req.SetBody(body)
		req.Header.SetContentType("application/json")
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if c.auth != nil {
		token, err := c.auth.Token(ctx)
		if err != nil {
			return 0, nil, types.WrapError(err, "failed to acquire credential")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	deadline := time.Now().Add(c.defaultTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	start := time.Now()
	err := c.client.DoDeadline(req, resp, deadline)
	duration := time.Since(start)

	if err != nil {
		c.circuitBreaker.RecordFailure()

		c.logger.Debug("Transport call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("duration", duration),
			zap.Error(err))

		if err == fasthttp.ErrTimeout || ctx.Err() != nil {
			return 0, nil, types.Errorf(types.ErrClientTimeout, "%s %s: %v", method, path, err)
		}
		return 0, nil, types.Errorf(types.ErrClientRequestFailed, "%s %s: %v", method, path, err)
	}

	statusCode := resp.StatusCode()
	if statusCode >= 500 {
		c.circuitBreaker.RecordFailure()
	} else {
		c.circuitBreaker.RecordSuccess()
	}

	responseBody := make([]byte, len(resp.Body()))
	copy(responseBody, resp.Body())

	c.logger.Debug("Transport call completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Duration("duration", duration))

	return statusCode, responseBody, nil
}
