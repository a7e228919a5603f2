//go:build !gocv

package display

import (
	"image"
	"time"

	"github.com/e7canasta/sensorview/internal/errors"
)

// Window is unavailable without the gocv build tag.
type Window struct{}

// NewWindow reports that the OpenCV window is not compiled in.
func NewWindow() (*Window, error) {
	return nil, errors.New(errors.ErrCodeUnavailable,
		`display sink "window" not compiled in (build with -tags gocv)`)
}

func (*Window) Show(string, *image.RGBA) error      { return nil }
func (*Window) PollKey(time.Duration) (rune, bool) { return 0, false }
func (*Window) Close() error                        { return nil }
