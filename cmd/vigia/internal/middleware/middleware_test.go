package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTracingGeneratesTraceID(t *testing.T) {
	tm := NewTracingMiddleware(zaptest.NewLogger(t))

	var gotCtxValue string
	handler := tm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCtxValue, _ = r.Context().Value(TraceIDKey).(string)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vigia/solicitudes", nil))

	traceID := rec.Header().Get("X-Trace-ID")
	assert.NotEmpty(t, traceID)
	assert.Equal(t, traceID, gotCtxValue)
	assert.NotContains(t, traceID, "-")
}

func TestTracingPropagatesIncomingTraceID(t *testing.T) {
	tm := NewTracingMiddleware(zaptest.NewLogger(t))
	handler := tm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"x-trace-id", "X-Trace-ID", "trace123", "trace123"},
		{"x-request-id", "X-Request-ID", "req456", "req456"},
		{"traceparent", "traceparent", "00-abcdef1234-5678-01", "abcdef1234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(tt.header, tt.value)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Header().Get("X-Trace-ID"))
		})
	}
}

func newIdempotency(t *testing.T) *IdempotencyMiddleware {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewIdempotencyMiddleware(client, zaptest.NewLogger(t))
}

func TestIdempotencyReplaysCachedResponse(t *testing.T) {
	im := newIdempotency(t)

	calls := 0
	handler := im.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"call":%d}`, calls)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/vigia/solicitud", strings.NewReader("{}"))
		req.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{"call":1}`, rec.Body.String())
		if i > 0 {
			assert.Equal(t, "true", rec.Header().Get("X-Idempotency-Cached"))
		}
	}
	assert.Equal(t, 1, calls)
}

func TestIdempotencyDistinctKeysAreIndependent(t *testing.T) {
	im := newIdempotency(t)

	calls := 0
	handler := im.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("ok"))
	}))

	for _, key := range []string{"key-1", "key-2"} {
		req := httptest.NewRequest(http.MethodPost, "/vigia/solicitud", nil)
		req.Header.Set("Idempotency-Key", key)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotencyDoesNotCacheFailures(t *testing.T) {
	im := newIdempotency(t)

	calls := 0
	handler := im.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/vigia/solicitud", nil)
		req.Header.Set("Idempotency-Key", "key-1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotencySkipsRequestsWithoutKeyOrNonPost(t *testing.T) {
	im := newIdempotency(t)

	calls := 0
	handler := im.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	// No key: every POST goes through.
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/vigia/solicitud", nil))
	}
	// GET is never cached even with a key.
	req := httptest.NewRequest(http.MethodGet, "/vigia/solicitudes", nil)
	req.Header.Set("Idempotency-Key", "key-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	handler.ServeHTTP(httptest.NewRecorder(), req.Clone(req.Context()))

	assert.Equal(t, 4, calls)
}
