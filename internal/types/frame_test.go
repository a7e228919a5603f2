package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameImage_SharesData(t *testing.T) {
	f := &Frame{Width: 2, Height: 1, Data: make([]byte, 8)}
	img := f.Image()

	img.Pix[0] = 42
	assert.Equal(t, byte(42), f.Data[0])
	assert.Equal(t, 8, img.Stride)
	assert.Equal(t, 2, img.Bounds().Dx())
}

func TestFrameValid(t *testing.T) {
	assert.True(t, (&Frame{Width: 2, Height: 2, Data: make([]byte, 16)}).Valid())
	assert.False(t, (&Frame{Width: 2, Height: 2, Data: make([]byte, 15)}).Valid())
	assert.False(t, (&Frame{}).Valid())

	var nilFrame *Frame
	assert.False(t, nilFrame.Valid())
}

func TestResolutionString(t *testing.T) {
	assert.Equal(t, "720x480", Resolution{Width: 720, Height: 480}.String())
}
