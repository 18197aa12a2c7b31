package conceal

import "context"

// DefaultDetectionInterval is the fallback detection cadence: the detector
// runs on every 5th frame and the tracker carries positions in between.
const DefaultDetectionInterval = 5

// FaceDetector locates faces in a single decoded frame.
//
// Detect returns zero or more normalized bounding boxes (bottom-left
// origin, see Region). It is invoked only on cadence frames, never on
// every frame. A detector error does not abort the pipeline: the frame's
// tracked positions are simply carried forward.
type FaceDetector interface {
	Detect(ctx context.Context, frame *VideoFrame) ([]Region, error)
}

// DetectorFunc adapts a plain function to the FaceDetector interface.
type DetectorFunc func(ctx context.Context, frame *VideoFrame) ([]Region, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, frame *VideoFrame) ([]Region, error) {
	return f(ctx, frame)
}

// DetectionIntervalForFPS derives a detection cadence from the frame rate:
// roughly six detection passes per second, never less than every frame.
func DetectionIntervalForFPS(fps int) int {
	if fps <= 0 {
		return DefaultDetectionInterval
	}
	interval := fps / 6
	if interval < 1 {
		interval = 1
	}
	return interval
}
