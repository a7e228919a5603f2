package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/types"
)

// locked wraps a Device with a per-index advisory file lock so two
// processes never drive the same camera.
type locked struct {
	Device
	dir string

	mu   sync.Mutex
	lock *flock.Flock
}

// WithLock returns dev guarded by a lock file under dir.
func WithLock(dev Device, dir string) Device {
	return &locked{Device: dev, dir: dir}
}

// LockPath returns the lock file path for a camera index.
func LockPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("sensorview-video%d.lock", index))
}

func (l *locked) Open(ctx context.Context, index, width, height int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lock == nil {
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeDeviceOpen, "create lock dir", err)
		}
		fl := flock.New(LockPath(l.dir, index))
		ok, err := fl.TryLock()
		if err != nil {
			return errors.Wrap(errors.ErrCodeDeviceOpen, "acquire device lock", err)
		}
		if !ok {
			return errors.NewWithContext(errors.ErrCodeDeviceOpen,
				fmt.Sprintf("camera %d is in use by another process", index),
				map[string]any{"lock": fl.Path()})
		}
		l.lock = fl
	}

	if err := l.Device.Open(ctx, index, width, height); err != nil {
		l.unlockLocked()
		return err
	}
	return nil
}

func (l *locked) Release() error {
	err := l.Device.Release()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlockLocked()
	return err
}

func (l *locked) unlockLocked() {
	if l.lock != nil {
		_ = l.lock.Unlock()
		l.lock = nil
	}
}

func (l *locked) Grab(ctx context.Context) (*types.Frame, error) {
	return l.Device.Grab(ctx)
}
