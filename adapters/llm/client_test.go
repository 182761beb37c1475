package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speccheck/internal/config"
	"speccheck/internal/errors"
)

func fastRetry(attempts int) config.RetryPolicy {
	return config.RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, url string, attempts int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "test-model",
		Timeout: time.Second,
	}, fastRetry(attempts))
	require.NoError(t, err)
	return c
}

const okBody = `{"choices":[{"message":{"content":"MATCH"}}]}`

func TestAskRetriesThrottleThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	reply, err := newTestClient(t, srv.URL, 5).Ask(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "MATCH", reply)
	assert.Equal(t, int32(3), hits.Load())
}

func TestAskThrottleExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 3).Ask(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeThrottleExhausted))
	assert.Equal(t, int32(3), hits.Load())
}

func TestAskRequestRejectedNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 5).Ask(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeRequestRejected))
	assert.Equal(t, int32(1), hits.Load())
}

func TestAskServerErrorRetriedAsTransport(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 2).Ask(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeTransportError))
	assert.False(t, errors.HasCode(err, errors.CodeThrottleExhausted))
	assert.Equal(t, int32(2), hits.Load())
}

func TestAskMissingChoicesIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 1).Ask(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeTransportError))
}

func TestAskCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
	}, config.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = c.Ask(ctx, "prompt")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Model: "m"}, fastRetry(1))
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))

	_, err = NewClient(Config{APIKey: "k"}, fastRetry(1))
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

// Live round trip against the real service. Runs only when an API key is
// present in the environment or a .env file.
func TestLiveAsk(t *testing.T) {
	if err := godotenv.Load("../../.env"); err != nil {
		_ = godotenv.Load(".env")
	}
	key := os.Getenv("ORACLE_API_KEY")
	if key == "" {
		t.Skip("Skipping live test: ORACLE_API_KEY not set")
	}

	c, err := NewClient(Config{
		APIKey: key,
		Model:  getEnvOr("ORACLE_MODEL", "gpt-4o-mini"),
	}, config.RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	reply, err := c.Ask(ctx, "Reply with the single word MATCH and nothing else.")
	require.NoError(t, err)
	assert.Contains(t, reply, "MATCH")
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
