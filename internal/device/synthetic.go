package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/types"
)

const defaultSyntheticFPS = 30

// Synthetic generates a moving gradient test pattern at a fixed rate.
type Synthetic struct {
	fps float64

	mu     sync.Mutex
	opened bool
	res    types.Resolution
	source string
	seq    uint64
	next   time.Time
}

// NewSynthetic creates a synthetic device paced at fps (30 if fps <= 0).
func NewSynthetic(fps float64) *Synthetic {
	if fps <= 0 {
		fps = defaultSyntheticFPS
	}
	return &Synthetic{fps: fps}
}

// Open configures the pattern resolution.
func (s *Synthetic) Open(_ context.Context, index, width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.NewWithContext(errors.ErrCodeDeviceOpen,
			fmt.Sprintf("invalid resolution %dx%d", width, height),
			map[string]any{"index": index})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.opened = true
	s.res = types.Resolution{Width: width, Height: height}
	s.source = fmt.Sprintf("synthetic:%d", index)
	s.next = time.Now()

	slog.Debug("device: synthetic opened", "source", s.source, "resolution", s.res.String(), "fps", s.fps)
	return nil
}

// Grab waits for the next frame slot and renders the pattern.
func (s *Synthetic) Grab(ctx context.Context) (*types.Frame, error) {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return nil, errors.New(errors.ErrCodeFrameGrab, "synthetic device not opened")
	}
	wait := time.Until(s.next)
	s.next = s.next.Add(time.Duration(float64(time.Second) / s.fps))
	if wait < 0 {
		// Fell behind; don't burst to catch up.
		s.next = time.Now().Add(time.Duration(float64(time.Second) / s.fps))
	}
	s.seq++
	seq := s.seq
	res := s.res
	source := s.source
	s.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return &types.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     res.Width,
		Height:    res.Height,
		Data:      pattern(res.Width, res.Height, seq),
		Source:    source,
		TraceID:   uuid.New().String(),
	}, nil
}

// Release closes the device. Idempotent.
func (s *Synthetic) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	return nil
}

// Resolution returns the resolution set by Open.
func (s *Synthetic) Resolution() types.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res
}

// pattern draws a diagonal gradient that scrolls one pixel per frame.
func pattern(width, height int, seq uint64) []byte {
	data := make([]byte, 4*width*height)
	shift := int(seq % 256)
	for y := 0; y < height; y++ {
		row := data[4*width*y:]
		for x := 0; x < width; x++ {
			p := row[4*x : 4*x+4]
			p[0] = byte((x + shift) % 256)
			p[1] = byte((y + shift) % 256)
			p[2] = byte((x + y) % 256)
			p[3] = 0xff
		}
	}
	return data
}
