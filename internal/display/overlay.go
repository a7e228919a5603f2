package display

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/e7canasta/sensorview/internal/types"
)

// Yellow is the overlay text color.
var Yellow = color.RGBA{R: 255, G: 255, A: 255}

// Compositor draws text over frames into a reusable buffer.
//
// The frame itself is never modified; Compose copies it into the buffer
// first. Not safe for concurrent use (the renderer owns it).
type Compositor struct {
	buf  *image.RGBA
	face font.Face
	col  image.Image
}

// NewCompositor creates a compositor drawing with basicfont in col.
func NewCompositor(col color.Color) *Compositor {
	return &Compositor{
		face: basicfont.Face7x13,
		col:  image.NewUniform(col),
	}
}

// Compose copies frame into the internal buffer and draws text with its
// baseline origin at at. The returned image is valid until the next call.
func (c *Compositor) Compose(frame *types.Frame, text string, at image.Point) *image.RGBA {
	src := frame.Image()
	bounds := src.Bounds()
	if c.buf == nil || c.buf.Bounds() != bounds {
		c.buf = image.NewRGBA(bounds)
	}
	draw.Draw(c.buf, bounds, src, bounds.Min, draw.Src)

	d := &font.Drawer{
		Dst:  c.buf,
		Src:  c.col,
		Face: c.face,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(text)
	return c.buf
}
