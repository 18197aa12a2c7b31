// Package conceal implements a face-concealment video re-encoding pipeline
// in pure Go.
//
// The pipeline detects human faces in a decoded video stream, maintains
// per-face temporal identity across frames, applies a visual concealment
// effect (blur or pixelation) to every tracked region on every output
// frame, and passes the original audio through untouched.
//
// # Architecture
//
//	Video: FrameSource -> FaceDetector (sparse) -> FaceTracker -> EffectRenderer -> FrameSink
//	Audio: FrameSource -> FrameSink (passthrough)
//
// Both streams are driven concurrently by a Pipeline, which reports
// fractional progress and finalizes the sink exactly once after both
// streams are exhausted.
//
// Detection is expensive and runs only on cadence frames (every 5th frame
// by default); the tracker propagates smoothed positions to every frame in
// between, so concealment never flickers off between detection passes.
//
// Decode, encode, and container muxing are external concerns: sources
// deliver raw I420 frames and opaque audio buffers, and sinks accept the
// same. A synthetic source and a Y4M/WAV file sink are included for
// testing and for running the pipeline end to end without native codecs.
package conceal
