//go:build !gocv

package device

func newGoCV(float64) (Device, error) {
	return nil, unavailable(KindGoCV, "gocv")
}
