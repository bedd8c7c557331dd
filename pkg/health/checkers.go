package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck reports an error once more than limit goroutines exist.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines running, limit %d", n, limit)
		}
		return nil
	}
}

// GCMaxPauseCheck reports an error when the longest recorded GC pause is
// above limit.
func GCMaxPauseCheck(limit time.Duration) CheckFunc {
	return func(context.Context) error {
		// Quantiles are min, median and max.
		stats := debug.GCStats{PauseQuantiles: make([]time.Duration, 3)}
		debug.ReadGCStats(&stats)
		if worst := stats.PauseQuantiles[2]; worst > limit {
			return errors.Errorf("GC pause %s above limit %s", worst, limit)
		}
		return nil
	}
}
