package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeDeviceOpen, "camera cannot be opened")
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeDeviceOpen, err.Code)
	assert.Nil(t, err.Cause)
	assert.Equal(t, "[DEVICE_OPEN] camera cannot be opened", err.Error())
}

func TestWrap(t *testing.T) {
	cause := errors.New("no such device")
	err := Wrap(ErrCodeFrameGrab, "no image from camera", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "[FRAME_GRAB] no image from camera: no such device", err.Error())
}

func TestWrapWithContext(t *testing.T) {
	err := WrapWithContext(ErrCodeDeviceOpen, "open failed", errors.New("busy"), map[string]any{"index": 2})
	assert.Equal(t, 2, err.Context["index"])
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"structured", New(ErrCodeRenderPrecondition, "no frame"), ErrCodeRenderPrecondition},
		{"wrapped by fmt", fmt.Errorf("camera: %w", New(ErrCodeFrameGrab, "grab")), ErrCodeFrameGrab},
		{"plain", errors.New("plain"), ErrCodeInternal},
		{"nil", nil, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	inner := New(ErrCodeDeviceOpen, "open")
	outer := Wrap(ErrCodeUnavailable, "backend", inner)

	assert.True(t, HasCode(outer, ErrCodeUnavailable))
	assert.True(t, HasCode(outer, ErrCodeDeviceOpen))
	assert.False(t, HasCode(outer, ErrCodeFrameGrab))
	assert.False(t, HasCode(errors.New("x"), ErrCodeInternal))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "no image from camera", MessageOf(fmt.Errorf("x: %w", New(ErrCodeFrameGrab, "no image from camera"))))
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
	assert.Equal(t, "", MessageOf(nil))
}
