package conceal

import "context"

// FrameSource pulls decoded video frames and, independently, audio sample
// buffers from a media asset.
//
// Both streams are pull-based and may be read concurrently from separate
// goroutines. Each returns io.EOF once its stream is exhausted; the two
// streams end independently.
type FrameSource interface {
	// NextVideoFrame returns the next decoded frame in presentation
	// order, or io.EOF at end of the video stream.
	NextVideoFrame(ctx context.Context) (*VideoFrame, error)

	// NextAudioSamples returns the next audio buffer in presentation
	// order, or io.EOF at end of the audio stream.
	NextAudioSamples(ctx context.Context) (*AudioSamples, error)
}

// SourceInfo describes a source when its properties are known up front.
type SourceInfo struct {
	Width       int    // Frame width in pixels
	Height      int    // Frame height in pixels
	FPS         int    // Frames per second
	TotalFrames int    // Total video frames (0 = unknown)
	Location    string // Where the media came from (path, URL, ...)
}

// DescribedSource is an optional interface for sources that can report
// their properties ahead of time. The pipeline uses it to derive the
// detection cadence and the progress denominator when the caller did not
// configure them.
type DescribedSource interface {
	FrameSource
	Info() SourceInfo
}
