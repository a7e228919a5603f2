// Package display provides the sinks the renderer shows composited frames on.
//
// Sinks:
//   - MJPEG:  latest JPEG served over HTTP (multipart/x-mixed-replace)
//   - SHM:    latest RGBA frame exported through a memory-mapped file
//   - Window: OpenCV highgui window (build tag "gocv")
//   - Multi:  fan-out to several sinks plus key sources
//
// All sinks are driven from the render goroutine; Show never blocks on
// slow viewers.
package display

import (
	"image"
	"time"
)

// WindowName is the window title used by the renderer.
const WindowName = "camera and data"

// Display shows frames and surfaces key presses.
type Display interface {
	// Show presents img under window. img is owned by the caller and may be
	// reused after Show returns.
	Show(window string, img *image.RGBA) error

	// PollKey waits up to timeout for a key press.
	PollKey(timeout time.Duration) (rune, bool)

	Close() error
}

// KeySource produces key presses without showing anything.
type KeySource interface {
	PollKey(timeout time.Duration) (rune, bool)
}

// IsQuit reports whether key requests shutdown.
func IsQuit(key rune) bool {
	return key == 'q' || key == 'Q'
}
