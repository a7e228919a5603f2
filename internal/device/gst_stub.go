//go:build !gst

package device

func newGStreamer(float64) (Device, error) {
	return nil, unavailable(KindGStreamer, "gst")
}
