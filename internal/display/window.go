//go:build gocv

package display

import (
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Window shows frames in an OpenCV highgui window. It must be driven from
// the OS thread that created it (the render loop on the main goroutine).
type Window struct {
	mu  sync.Mutex
	win *gocv.Window
	bgr gocv.Mat
}

// NewWindow is available in gocv builds.
func NewWindow() (*Window, error) {
	return &Window{bgr: gocv.NewMat()}, nil
}

func (w *Window) Show(window string, img *image.RGBA) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.win == nil {
		w.win = gocv.NewWindow(window)
	}

	b := img.Bounds()
	rgba, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, img.Pix)
	if err != nil {
		return fmt.Errorf("display: window mat: %w", err)
	}
	defer rgba.Close()

	gocv.CvtColor(rgba, &w.bgr, gocv.ColorRGBAToBGR)
	w.win.IMShow(w.bgr)
	return nil
}

// PollKey pumps the GUI event loop for timeout and returns a pressed key.
func (w *Window) PollKey(timeout time.Duration) (rune, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.win == nil {
		return 0, false
	}
	ms := int(timeout / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	key := w.win.WaitKey(ms)
	if key < 0 {
		return 0, false
	}
	return rune(key & 0xff), true
}

func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.bgr.Close()
	if w.win == nil {
		return nil
	}
	err := w.win.Close()
	w.win = nil
	return err
}
