// Package sensor defines the data sources polled by acquisition workers.
package sensor

import (
	"context"
	"time"
)

// Sensor is a data source producing one sample per blocking Read.
//
// Read must return promptly once ctx is done. Close releases resources and
// is called exactly once by the owning worker after its loop exits.
type Sensor[T any] interface {
	Name() string
	Read(ctx context.Context) (T, error)
	Close() error
}

// sleepCtx sleeps for d or until ctx is done, returning ctx.Err() if
// interrupted.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
