package conceal

import (
	"context"
	"sync"
)

// FrameSink accepts processed video frames and passthrough audio buffers
// and finalizes them into an output asset.
//
// Writes for the two streams may arrive from separate goroutines and may
// interleave in any order; within a stream they arrive in presentation
// order. Readiness gates backpressure: the pipeline stalls a stream while
// its Ready method reports false, and never drops or reorders.
//
// Finalize is called exactly once per pipeline run, only after both
// streams are exhausted and only when no stream failed. It commits the
// output and returns its location. Implementations should return
// ErrAlreadyFinalized on a second call.
type FrameSink interface {
	ReadyForVideo() bool
	WriteVideoFrame(frame *VideoFrame) error

	ReadyForAudio() bool
	WriteAudioSamples(samples *AudioSamples) error

	Finalize() (string, error)
}

// ReadyWaiter is an optional sink interface for blocking readiness waits.
// Sinks that implement it let the pipeline suspend instead of polling the
// Ready methods.
type ReadyWaiter interface {
	WaitVideoReady(ctx context.Context) error
	WaitAudioReady(ctx context.Context) error
}

// Discarder is an optional sink interface for cleaning up partial output
// after a failed or canceled run.
type Discarder interface {
	Discard() error
}

// BufferSink collects everything written to it in memory. It is always
// ready, and is intended for tests and for embedding the pipeline in
// callers that post-process frames themselves.
type BufferSink struct {
	mu        sync.Mutex
	video     []*VideoFrame
	audio     []*AudioSamples
	finalized bool
}

// NewBufferSink creates an empty in-memory sink.
func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

// ReadyForVideo implements FrameSink.
func (s *BufferSink) ReadyForVideo() bool { return true }

// ReadyForAudio implements FrameSink.
func (s *BufferSink) ReadyForAudio() bool { return true }

// WriteVideoFrame implements FrameSink.
func (s *BufferSink) WriteVideoFrame(frame *VideoFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = append(s.video, frame)
	return nil
}

// WriteAudioSamples implements FrameSink.
func (s *BufferSink) WriteAudioSamples(samples *AudioSamples) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, samples)
	return nil
}

// Finalize implements FrameSink.
func (s *BufferSink) Finalize() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return "", ErrAlreadyFinalized
	}
	s.finalized = true
	return "memory://buffer", nil
}

// VideoFrames returns the frames written so far, in write order.
func (s *BufferSink) VideoFrames() []*VideoFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*VideoFrame, len(s.video))
	copy(out, s.video)
	return out
}

// AudioBuffers returns the audio buffers written so far, in write order.
func (s *BufferSink) AudioBuffers() []*AudioSamples {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*AudioSamples, len(s.audio))
	copy(out, s.audio)
	return out
}

// Finalized reports whether Finalize has been called.
func (s *BufferSink) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}
