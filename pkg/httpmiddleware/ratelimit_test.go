package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// opsMux mimics the ops server routes.
func opsMux() *http.ServeMux {
	mux := http.NewServeMux()
	for _, path := range []string{"/livez", "/readyz", "/debug/processes"} {
		mux.HandleFunc("GET "+path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
	}
	return mux
}

type errorBody struct {
	code      int
	message   string
	requestID string
}

func decodeError(t *testing.T, data []byte) errorBody {
	t.Helper()
	var b errorBody
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			b.code, err = d.Int()
		case "message":
			b.message, err = d.Str()
		case "request_id":
			b.requestID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	require.NoError(t, err)
	return b
}

func get(h http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func rateLimited(t *testing.T, limit int) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return Wrap(opsMux(),
		RequestID(),
		RateLimit(ctx, RateLimitConfig{Max: limit, Window: time.Minute, Exempt: []string{"/livez", "/readyz"}}),
	)
}

func TestRateLimit_DebugRoutes(t *testing.T) {
	h := rateLimited(t, 2)

	for i := range 2 {
		w := get(h, "/debug/processes", "10.0.0.1:9999")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := get(h, "/debug/processes", "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	body := decodeError(t, w.Body.Bytes())
	assert.Equal(t, http.StatusTooManyRequests, body.code)
	assert.Equal(t, "rate limit exceeded", body.message)
	assert.Equal(t, w.Header().Get(HeaderRequestID), body.requestID)

	// Other clients keep their own budget.
	assert.Equal(t, http.StatusOK, get(h, "/debug/processes", "10.0.0.2:9999").Code)
}

func TestRateLimit_HealthRoutesExempt(t *testing.T) {
	h := rateLimited(t, 1)
	require.Equal(t, http.StatusOK, get(h, "/debug/processes", "10.0.0.1:1").Code)
	require.Equal(t, http.StatusTooManyRequests, get(h, "/debug/processes", "10.0.0.1:1").Code)

	for range 5 {
		for _, path := range []string{"/livez", "/readyz"} {
			w := get(h, path, "10.0.0.1:1")
			assert.Equal(t, http.StatusOK, w.Code, path)
			assert.Empty(t, w.Header().Get("X-RateLimit-Limit"), path)
		}
	}
}

func TestRateLimit_ForwardedClient(t *testing.T) {
	h := rateLimited(t, 1)

	req := httptest.NewRequest(http.MethodGet, "/debug/processes", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Same client behind a different proxy.
	req = httptest.NewRequest(http.MethodGet, "/debug/processes", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := &limiter{cfg: RateLimitConfig{Max: 4, Window: time.Minute}, clients: make(map[string]*window)}
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := l.allow("c", start)
		require.True(t, ok)
	}
	_, _, ok := l.allow("c", start.Add(59*time.Second))
	assert.False(t, ok)

	// Halfway through the next window half of the previous count remains.
	remaining, resetAt, ok := l.allow("c", start.Add(90*time.Second))
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, start.Add(2*time.Minute), resetAt)
	remaining, _, ok = l.allow("c", start.Add(90*time.Second))
	require.True(t, ok)
	assert.Equal(t, 0, remaining)
	_, _, ok = l.allow("c", start.Add(90*time.Second))
	assert.False(t, ok)

	l.evict(start.Add(150 * time.Second))
	assert.Contains(t, l.clients, "c")
	l.evict(start.Add(3 * time.Minute))
	assert.NotContains(t, l.clients, "c")
}
