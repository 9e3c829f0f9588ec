package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkBody struct {
	name    string
	healthy bool
	err     string
}

func decodeReport(t *testing.T, data []byte) (string, []checkBody) {
	t.Helper()
	var (
		status string
		checks []checkBody
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			status = s
			return err
		case "checks":
			return d.Arr(func(d *jx.Decoder) error {
				var c checkBody
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "name":
						c.name, err = d.Str()
					case "healthy":
						c.healthy, err = d.Bool()
					case "error":
						c.err, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				})
				checks = append(checks, c)
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return status, checks
}

func serve(t *testing.T, h *Health, kind Kind) (int, string, []checkBody) {
	t.Helper()
	w := httptest.NewRecorder()
	h.Handler(kind)(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	status, checks := decodeReport(t, w.Body.Bytes())
	return w.Code, status, checks
}

func ok(context.Context) error { return nil }

func TestHandler_LivenessListsOnlyLivenessChecks(t *testing.T) {
	h := New()
	h.Register(Check{Name: "runtime", Kind: Liveness, Func: ok})
	h.Register(Check{Name: "postgres", Kind: Readiness, Func: ok})
	h.Register(Check{Name: "gc", Kind: Liveness, Func: ok})

	code, status, checks := serve(t, h, Liveness)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", status)
	assert.Equal(t, []checkBody{{name: "gc", healthy: true}, {name: "runtime", healthy: true}}, checks)
}

func TestHandler_FailureThreshold(t *testing.T) {
	var down atomic.Bool
	down.Store(true)

	h := New()
	h.Register(Check{Name: "postgres", Kind: Readiness, Func: func(context.Context) error {
		if down.Load() {
			return errors.New("connection refused")
		}
		return nil
	}})
	h.SetReady(true)
	ctx := context.Background()
	p := h.runners[0]

	p.run(ctx)
	p.run(ctx)
	code, _, checks := serve(t, h, Readiness)
	assert.Equal(t, http.StatusOK, code, "two failures stay below the threshold")
	assert.Equal(t, []checkBody{{name: "postgres", healthy: true, err: "connection refused"}}, checks)

	p.run(ctx)
	code, status, checks := serve(t, h, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", status)
	assert.Equal(t, []checkBody{{name: "postgres", err: "connection refused"}}, checks)

	down.Store(false)
	p.run(ctx)
	code, _, checks = serve(t, h, Readiness)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []checkBody{{name: "postgres", healthy: true}}, checks)
}

func TestHandler_ReadinessGate(t *testing.T) {
	h := New()
	h.Register(Check{Name: "tax_zone", Kind: Readiness, Func: ok})

	code, _, checks := serve(t, h, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, []checkBody{
		{name: "gate", err: "engine is not ready"},
		{name: "tax_zone", healthy: true},
	}, checks)

	h.SetReady(true)
	code, _, _ = serve(t, h, Readiness)
	assert.Equal(t, http.StatusOK, code)

	h.SetReady(false)
	code, _, _ = serve(t, h, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	// The gate does not affect liveness.
	code, _, _ = serve(t, h, Liveness)
	assert.Equal(t, http.StatusOK, code)
}

func TestRegister_Defaults(t *testing.T) {
	h := New()
	h.Register(Check{Name: "runtime", Func: ok})

	p := h.runners[0]
	assert.Equal(t, 3, p.FailureThreshold)
	assert.Equal(t, time.Second, p.Timeout)
	assert.True(t, p.healthy.Load())
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int64
	h := New()
	h.Register(Check{Name: "count", Kind: Liveness, Func: func(context.Context) error {
		calls.Add(1)
		return nil
	}})

	h.Start(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), stopped+1)
}

func TestRun_TimeoutReachesCheck(t *testing.T) {
	h := New()
	h.Register(Check{Name: "slow", Timeout: 10 * time.Millisecond, FailureThreshold: 1, Func: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	h.runners[0].run(context.Background())
	r := h.Status(Liveness)
	assert.False(t, r.Healthy)
	require.Len(t, r.Checks, 1)
	assert.Equal(t, context.DeadlineExceeded.Error(), r.Checks[0].Error)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPing(t *testing.T) {
	require.NoError(t, Ping(pinger{})(context.Background()))

	refused := errors.New("connection refused")
	err := Ping(pinger{err: refused})(context.Background())
	require.ErrorIs(t, err, refused)
}

func TestRuntime(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, Runtime(RuntimeLimits{})(ctx))
	require.NoError(t, Runtime(RuntimeLimits{MaxGoroutines: 1 << 20, MaxGCPause: time.Hour})(ctx))

	err := Runtime(RuntimeLimits{MaxGoroutines: 1})(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goroutines")
}
