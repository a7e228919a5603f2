package display

import (
	"encoding/binary"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"
)

// Shared-memory frame layout (little endian):
//
//	offset  size  field
//	0       4     magic "SVFR"
//	4       4     layout version
//	8       4     width
//	12      4     height
//	16      8     sequence number
//	24      8     timestamp (unix nanoseconds)
//	32      4*w*h RGBA pixels
//
// Writers hold an exclusive flock on <path>.lock while updating; readers
// take a shared lock.
const (
	ShmMagic      = "SVFR"
	ShmVersion    = 1
	ShmHeaderSize = 32
)

// ShmHeader is the decoded header of a shared-memory frame.
type ShmHeader struct {
	Version   uint32
	Width     int
	Height    int
	Seq       uint64
	Timestamp time.Time
}

// SHM exports the latest composited frame through a memory-mapped file.
type SHM struct {
	path string
	lock *flock.Flock

	file *os.File
	mem  mmap.MMap
	seq  uint64
}

// NewSHM creates the sink. The backing file is sized on the first Show.
func NewSHM(path string) *SHM {
	return &SHM{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the backing file path.
func (s *SHM) Path() string { return s.path }

// Show copies img into the mapped region.
func (s *SHM) Show(_ string, img *image.RGBA) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	size := ShmHeaderSize + 4*w*h

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("display: shm lock: %w", err)
	}
	defer s.lock.Unlock()

	if len(s.mem) != size {
		if err := s.remap(size); err != nil {
			return err
		}
	}

	// Rows may be strided (sub-images); copy row by row.
	pix := s.mem[ShmHeaderSize:]
	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		copy(pix[4*w*y:4*w*(y+1)], src[:4*w])
	}

	s.seq++
	copy(s.mem[0:4], ShmMagic)
	binary.LittleEndian.PutUint32(s.mem[4:8], ShmVersion)
	binary.LittleEndian.PutUint32(s.mem[8:12], uint32(w))
	binary.LittleEndian.PutUint32(s.mem[12:16], uint32(h))
	binary.LittleEndian.PutUint64(s.mem[16:24], s.seq)
	binary.LittleEndian.PutUint64(s.mem[24:32], uint64(time.Now().UnixNano()))
	return nil
}

func (s *SHM) remap(size int) error {
	s.unmap()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("display: shm open: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return fmt.Errorf("display: shm truncate: %w", err)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return fmt.Errorf("display: shm map: %w", err)
	}
	s.file = f
	s.mem = m
	return nil
}

func (s *SHM) unmap() {
	if s.mem != nil {
		_ = s.mem.Unmap()
		s.mem = nil
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

// PollKey never reports keys.
func (s *SHM) PollKey(time.Duration) (rune, bool) { return 0, false }

// Close flushes and unmaps the region. The file is left for readers.
func (s *SHM) Close() error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("display: shm lock: %w", err)
	}
	defer s.lock.Unlock()

	var err error
	if s.mem != nil {
		err = s.mem.Flush()
	}
	s.unmap()
	return err
}

// ReadSHM reads the frame currently exported at path under a shared lock.
func ReadSHM(path string) (ShmHeader, []byte, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return ShmHeader{}, nil, fmt.Errorf("display: shm rlock: %w", err)
	}
	defer lock.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return ShmHeader{}, nil, err
	}
	if len(raw) < ShmHeaderSize || string(raw[0:4]) != ShmMagic {
		return ShmHeader{}, nil, fmt.Errorf("display: %s is not a frame export", path)
	}

	hdr := ShmHeader{
		Version:   binary.LittleEndian.Uint32(raw[4:8]),
		Width:     int(binary.LittleEndian.Uint32(raw[8:12])),
		Height:    int(binary.LittleEndian.Uint32(raw[12:16])),
		Seq:       binary.LittleEndian.Uint64(raw[16:24]),
		Timestamp: time.Unix(0, int64(binary.LittleEndian.Uint64(raw[24:32]))),
	}
	n := 4 * hdr.Width * hdr.Height
	if len(raw) < ShmHeaderSize+n {
		return hdr, nil, fmt.Errorf("display: truncated frame export")
	}
	return hdr, raw[ShmHeaderSize : ShmHeaderSize+n], nil
}
