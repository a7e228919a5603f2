package display

import (
	stderrors "errors"
	"image"
	"time"
)

// Multi fans Show out to several sinks and polls several key sources.
type Multi struct {
	sinks []Display
	keys  []KeySource
}

// NewMulti creates a fan-out over sinks. Every sink is also polled for keys.
func NewMulti(sinks ...Display) *Multi {
	m := &Multi{sinks: sinks}
	for _, s := range sinks {
		m.keys = append(m.keys, s)
	}
	return m
}

// AddKeySource polls ks in addition to the sinks.
func (m *Multi) AddKeySource(ks KeySource) {
	m.keys = append(m.keys, ks)
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// Show shows img on every sink; a failing sink does not starve the others.
func (m *Multi) Show(window string, img *image.RGBA) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Show(window, img); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// PollKey polls each source in order with timeout and returns the first key.
func (m *Multi) PollKey(timeout time.Duration) (rune, bool) {
	for _, ks := range m.keys {
		if key, ok := ks.PollKey(timeout); ok {
			return key, true
		}
	}
	return 0, false
}

// Close closes every sink.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
