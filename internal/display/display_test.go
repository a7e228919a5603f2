package display

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/sensorview/internal/types"
)

func grayFrame(w, h int) *types.Frame {
	data := make([]byte, 4*w*h)
	for i := range data {
		data[i] = 0x40
		if i%4 == 3 {
			data[i] = 0xff
		}
	}
	return &types.Frame{Width: w, Height: h, Data: data}
}

func rgba(w, h int) *image.RGBA {
	return grayFrame(w, h).Image()
}

// recordingSink records shows and returns scripted keys.
type recordingSink struct {
	shows  int
	err    error
	keys   []rune
	closed bool
}

func (r *recordingSink) Show(string, *image.RGBA) error { r.shows++; return r.err }
func (r *recordingSink) PollKey(time.Duration) (rune, bool) {
	if len(r.keys) == 0 {
		return 0, false
	}
	k := r.keys[0]
	r.keys = r.keys[1:]
	return k, true
}
func (r *recordingSink) Close() error { r.closed = true; return nil }

func TestCompositor_DrawsOnCopy(t *testing.T) {
	frame := grayFrame(200, 40)
	orig := append([]byte(nil), frame.Data...)

	c := NewCompositor(Yellow)
	out := c.Compose(frame, "Sensor1: 1", image.Pt(10, 30))

	assert.Equal(t, orig, frame.Data, "frame must not be modified")
	assert.Equal(t, frame.Image().Bounds(), out.Bounds())

	yellow := 0
	for y := 0; y < 40; y++ {
		for x := 0; x < 200; x++ {
			p := out.RGBAAt(x, y)
			if p.R == 255 && p.G == 255 && p.B == 0 {
				yellow++
				assert.Less(t, y, 33, "glyphs stay within the font cell")
			}
		}
	}
	assert.Greater(t, yellow, 0, "text must be drawn")

	// Buffer is reused for same-size frames.
	again := c.Compose(frame, "", image.Pt(10, 30))
	assert.Same(t, out, again)
}

func TestIsQuit(t *testing.T) {
	assert.True(t, IsQuit('q'))
	assert.True(t, IsQuit('Q'))
	assert.False(t, IsQuit('x'))
}

func TestMJPEG_ShowAndSnapshot(t *testing.T) {
	m := NewMJPEG(0)

	rec := httptest.NewRecorder()
	m.SnapshotHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot.jpg", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, m.Show(WindowName, rgba(32, 16)))

	rec = httptest.NewRecorder()
	m.SnapshotHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Frame-Seq"))

	img, err := jpeg.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
}

func TestMJPEG_NextWaitsForNewerFrame(t *testing.T) {
	m := NewMJPEG(50)
	require.NoError(t, m.Show(WindowName, rgba(8, 8)))

	_, seq, err := m.Next(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = m.Next(ctx, seq)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.Close()
	}()
	_, _, err = m.Next(context.Background(), seq)
	assert.ErrorIs(t, err, ErrSinkClosed)
}

func TestMJPEG_StreamHandler(t *testing.T) {
	m := NewMJPEG(50)
	srv := httptest.NewServer(m.StreamHandler())
	defer srv.Close()

	go func() {
		for i := 0; i < 50; i++ {
			_ = m.Show(WindowName, rgba(8, 8))
			time.Sleep(10 * time.Millisecond)
		}
	}()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	br := bufio.NewReader(resp.Body)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)
	line, err = br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Type: image/jpeg\r\n", line)

	require.Eventually(t, func() bool { return m.Viewers() == 1 }, time.Second, 5*time.Millisecond)
	_ = m.Close()
}

func TestSHM_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.shm")
	s := NewSHM(path)

	img := rgba(4, 3)
	img.Pix[0] = 0x11
	require.NoError(t, s.Show(WindowName, img))
	require.NoError(t, s.Show(WindowName, img))

	hdr, pix, err := ReadSHM(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(ShmVersion), hdr.Version)
	assert.Equal(t, 4, hdr.Width)
	assert.Equal(t, 3, hdr.Height)
	assert.Equal(t, uint64(2), hdr.Seq)
	assert.WithinDuration(t, time.Now(), hdr.Timestamp, time.Minute)
	assert.Equal(t, img.Pix, pix)

	// Resolution change remaps the region.
	require.NoError(t, s.Show(WindowName, rgba(2, 2)))
	hdr, pix, err = ReadSHM(path)
	require.NoError(t, err)
	assert.Equal(t, 2, hdr.Width)
	assert.Len(t, pix, 16)

	require.NoError(t, s.Close())
}

func TestSHM_SubImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub.shm")
	s := NewSHM(path)
	defer s.Close()

	full := rgba(8, 8)
	sub := full.SubImage(image.Rect(2, 2, 6, 4)).(*image.RGBA)
	require.NoError(t, s.Show(WindowName, sub))

	hdr, pix, err := ReadSHM(path)
	require.NoError(t, err)
	assert.Equal(t, 4, hdr.Width)
	assert.Equal(t, 2, hdr.Height)
	assert.Len(t, pix, 32)
}

func TestReadSHM_NotAFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	require.NoError(t, writeFile(path, bytes.Repeat([]byte{'x'}, 64)))
	_, _, err := ReadSHM(path)
	assert.Error(t, err)
}

func TestKeyReader(t *testing.T) {
	k := NewKeyReader(strings.NewReader("\nx\nquit\n"))
	require.NoError(t, k.Run(context.Background()))

	key, ok := k.PollKey(0)
	require.True(t, ok)
	assert.Equal(t, 'x', key)

	key, ok = k.PollKey(10 * time.Millisecond)
	require.True(t, ok)
	assert.True(t, IsQuit(key))

	_, ok = k.PollKey(time.Millisecond)
	assert.False(t, ok)
}

func TestKeyReader_RunStopsOnContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	k := NewKeyReader(pr)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestMulti(t *testing.T) {
	a := &recordingSink{err: stderrors.New("sink a broken")}
	b := &recordingSink{keys: []rune{'k'}}
	m := NewMulti(a, b)
	m.AddKeySource(NewKeyReader(strings.NewReader("")))

	err := m.Show(WindowName, rgba(2, 2))
	require.Error(t, err)
	assert.Equal(t, 1, a.shows)
	assert.Equal(t, 1, b.shows, "a failing sink must not starve the others")

	key, ok := m.PollKey(0)
	require.True(t, ok)
	assert.Equal(t, 'k', key)
	_, ok = m.PollKey(0)
	assert.False(t, ok)

	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Equal(t, 2, m.Len())
}
