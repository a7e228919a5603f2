package device

import "fmt"

// buildLaunch builds the gst-launch description for a V4L2 camera.
//
// appsink keeps only the latest buffer (max-buffers=1 drop=true) so the
// device never queues stale frames.
func buildLaunch(index, width, height int, fps float64) string {
	return fmt.Sprintf(
		"v4l2src device=/dev/video%d ! videoconvert ! videoscale ! videorate drop-only=true ! %s ! "+
			"appsink name=sink sync=false max-buffers=1 drop=true",
		index, buildCaps(width, height, fps),
	)
}

// buildCaps builds a caps string, with a framerate constraint when fps > 0.
//
// Handles fractional framerates:
//   - fps >= 1.0: framerate = fps/1 (e.g., 15.0 → 15/1)
//   - fps < 1.0: framerate = 1/(1/fps) (e.g., 0.5 → 1/2)
func buildCaps(width, height int, fps float64) string {
	caps := fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d", width, height)
	if fps <= 0 {
		return caps
	}

	numerator, denominator := 1, 1
	if fps < 1.0 {
		denominator = int(1.0 / fps)
	} else {
		numerator = int(fps)
	}
	return fmt.Sprintf("%s,framerate=%d/%d", caps, numerator, denominator)
}
