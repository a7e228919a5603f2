// Package types holds the sample types exchanged between sensors, slots
// and the renderer.
package types

import (
	"fmt"
	"image"
	"time"
)

// Frame represents a camera frame with an immutability contract for
// zero-copy sharing.
//
// IMMUTABILITY CONTRACT:
//   - Device backends: MUST NOT modify Data after the frame is returned
//   - Renderer and sinks: MUST NOT modify Data (composite onto a copy)
//
// Chain:
//
//	device (copy out of driver buffer) → *Frame.Data
//	                                          ↓ (0 copies)
//	                                     camera slot
//	                                          ↓ (0 copies)
//	                                     renderer display state
//	                                          ↓ (1 copy, overlay buffer)
//	                                     display sinks
type Frame struct {
	// Seq is a per-camera monotonic sequence number.
	Seq uint64

	// Timestamp when the frame was grabbed.
	Timestamp time.Time

	// Width and Height in pixels.
	Width  int
	Height int

	// Data holds RGBA pixels, stride 4*Width.
	Data []byte

	// Source identifies the device that produced the frame (e.g. "synthetic:0").
	Source string

	// TraceID is a unique identifier for tracing a frame across sinks.
	TraceID string
}

// Image wraps Data as an *image.RGBA without copying. The result shares the
// immutability contract of the frame.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Data,
		Stride: 4 * f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Valid reports whether Data is large enough for Width x Height RGBA pixels.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Data) >= 4*f.Width*f.Height
}

// Resolution is a width/height pair.
type Resolution struct {
	Width  int
	Height int
}

// String renders the resolution as "WxH".
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}
