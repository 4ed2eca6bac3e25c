package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-resource/auth_providers"
	"github.com/saiset-co/sai-resource/logger"
	"github.com/saiset-co/sai-resource/types"
)

func newTestClient(baseURL string, auth types.AuthProvider) *FastHTTPClient {
	return NewFastHTTPClient(logger.NewZapWrapper(zap.NewNop()), &types.ClientConfig{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, auth)
}

func TestDoSendsRequestAndReturnsResponse(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotRequestID, gotCustom string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotCustom = r.Header.Get("X-Custom")
		gotBody, _ = io.ReadAll(r.Body)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"42"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, auth_providers.NewStaticTokenProvider("secret"))

	status, body, err := c.Do(context.Background(), "POST", "/records/customer",
		[]byte(`{"name":"ACME"}`), map[string]string{"X-Custom": "yes"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, []byte(`{"id":"42"}`), body)
	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "/records/customer", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "yes", gotCustom)
	assert.Equal(t, []byte(`{"name":"ACME"}`), gotBody)
}

func TestDoReturnsNonSuccessStatusWithoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"missing"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, nil)

	status, body, err := c.Do(context.Background(), "GET", "/records/customer/1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, []byte(`{"message":"missing"}`), body)
}

func TestDoAbortsOnCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Do(ctx, "GET", "/records/customer", nil, nil)
	require.Error(t, err)
}

func TestDoRejectsWhenBreakerOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewFastHTTPClient(logger.NewZapWrapper(zap.NewNop()), &types.ClientConfig{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
		CircuitBreaker: &types.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			RecoveryTimeout:  time.Minute,
		},
	}, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		status, _, err := c.Do(ctx, "GET", "/records/customer", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, status)
	}

	_, _, err := c.Do(ctx, "GET", "/records/customer", nil, nil)
	assert.ErrorIs(t, err, types.ErrCircuitBreakerOpen)
}
