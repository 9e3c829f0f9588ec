package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is implemented by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks connectivity to a database.
func Ping(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// RuntimeLimits bounds the process-level liveness check.
type RuntimeLimits struct {
	MaxGoroutines int
	MaxGCPause    time.Duration
}

// Runtime fails when the goroutine count or the most recent GC pause exceeds
// its limit. A zero limit is not checked.
func Runtime(limits RuntimeLimits) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); limits.MaxGoroutines > 0 && n > limits.MaxGoroutines {
			return errors.Errorf("%d goroutines, limit %d", n, limits.MaxGoroutines)
		}
		if limits.MaxGCPause <= 0 {
			return nil
		}
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		if len(stats.Pause) > 0 && stats.Pause[0] > limits.MaxGCPause {
			return errors.Errorf("last GC pause %s, limit %s", stats.Pause[0], limits.MaxGCPause)
		}
		return nil
	}
}
