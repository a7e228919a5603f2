package display

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSinkClosed is returned by MJPEG.Next after Close.
var ErrSinkClosed = stderrors.New("display: sink closed")

const (
	mjpegBoundary       = "frame"
	defaultJPEGQuality  = 80
	snapshotContentType = "image/jpeg"
)

// MJPEG keeps the latest composited frame JPEG-encoded and streams it to
// any number of HTTP viewers.
//
// Viewers never block the renderer: each viewer waits for a newer sequence
// number and skips whatever it missed (latest-value semantics per viewer).
type MJPEG struct {
	quality int

	mu     sync.Mutex
	cond   *sync.Cond
	jpeg   []byte
	seq    uint64
	closed bool

	viewers atomic.Int64
	encoded atomic.Uint64
}

// NewMJPEG creates an MJPEG sink. quality <= 0 selects 80.
func NewMJPEG(quality int) *MJPEG {
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	m := &MJPEG{quality: quality}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Show encodes img and wakes every viewer.
func (m *MJPEG) Show(_ string, img *image.RGBA) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: m.quality}); err != nil {
		return fmt.Errorf("display: jpeg encode: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.jpeg = buf.Bytes()
	m.seq++
	m.encoded.Add(1)
	m.cond.Broadcast()
	return nil
}

// PollKey never reports keys.
func (m *MJPEG) PollKey(time.Duration) (rune, bool) { return 0, false }

// Close wakes and disconnects every viewer. Idempotent.
func (m *MJPEG) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}

// Latest returns the most recent JPEG and its sequence number (0 if none).
func (m *MJPEG) Latest() ([]byte, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jpeg, m.seq
}

// Next blocks until a frame newer than after is available.
func (m *MJPEG) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for m.seq <= after && !m.closed && ctx.Err() == nil {
		m.cond.Wait()
	}
	if m.closed {
		return nil, m.seq, ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, m.seq, err
	}
	return m.jpeg, m.seq, nil
}

// Viewers returns the number of connected stream viewers.
func (m *MJPEG) Viewers() int64 { return m.viewers.Load() }

// StreamHandler serves multipart/x-mixed-replace MJPEG.
func (m *MJPEG) StreamHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		m.viewers.Add(1)
		defer m.viewers.Add(-1)

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		var seq uint64
		for {
			frame, next, err := m.Next(r.Context(), seq)
			if err != nil {
				return
			}
			seq = next

			if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n",
				mjpegBoundary, snapshotContentType, len(frame)); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := w.Write([]byte("\r\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	})
}

// SnapshotHandler serves the latest frame as a single JPEG, or 503 before
// the first frame.
func (m *MJPEG) SnapshotHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		frame, seq := m.Latest()
		if seq == 0 {
			http.Error(w, "no frame yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", snapshotContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
		w.Header().Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
		if _, err := w.Write(frame); err != nil {
			slog.Debug("display: snapshot write failed", "error", err)
		}
	})
}
