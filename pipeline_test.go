package conceal

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// === Test doubles ===

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// scriptedSource serves pre-built frames and audio buffers, then io.EOF or
// an injected error once a stream runs dry.
type scriptedSource struct {
	mu       sync.Mutex
	frames   []*VideoFrame
	audio    []*AudioSamples
	videoErr error
	audioErr error
	vi, ai   int
}

func (s *scriptedSource) NextVideoFrame(ctx context.Context) (*VideoFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vi >= len(s.frames) {
		if s.videoErr != nil {
			return nil, s.videoErr
		}
		return nil, io.EOF
	}
	frame := s.frames[s.vi]
	s.vi++
	return frame, nil
}

func (s *scriptedSource) NextAudioSamples(ctx context.Context) (*AudioSamples, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ai >= len(s.audio) {
		if s.audioErr != nil {
			return nil, s.audioErr
		}
		return nil, io.EOF
	}
	buf := s.audio[s.ai]
	s.ai++
	return buf, nil
}

func makeFrames(n int) []*VideoFrame {
	frames := make([]*VideoFrame, n)
	for i := range frames {
		frames[i] = NewI420Frame(32, 32, int64(i)*33_000_000)
	}
	return frames
}

func makeAudio(n int) []*AudioSamples {
	bufs := make([]*AudioSamples, n)
	for i := range bufs {
		bufs[i] = &AudioSamples{
			Data:        make([]byte, 64),
			SampleRate:  48000,
			Channels:    1,
			SampleCount: 32,
			Timestamp:   int64(i) * 33_000_000,
		}
	}
	return bufs
}

// scriptedDetector dispatches on the invocation count, which equals the
// cadence-frame ordinal since the pipeline only calls it on those frames.
type scriptedDetector struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) ([]Region, error)
}

func (d *scriptedDetector) Detect(_ context.Context, _ *VideoFrame) ([]Region, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.mu.Unlock()
	return d.fn(call)
}

func noFaces() *scriptedDetector {
	return &scriptedDetector{fn: func(int) ([]Region, error) { return nil, nil }}
}

func oneFace() *scriptedDetector {
	return &scriptedDetector{fn: func(int) ([]Region, error) {
		return []Region{{X: 0.4, Y: 0.4, W: 0.2, H: 0.2}}, nil
	}}
}

type countingSink struct {
	BufferSink
	finalizes atomic.Int32
}

func (s *countingSink) Finalize() (string, error) {
	s.finalizes.Add(1)
	return s.BufferSink.Finalize()
}

type discardingSink struct {
	countingSink
	discards atomic.Int32
}

func (s *discardingSink) Discard() error {
	s.discards.Add(1)
	return nil
}

// === Tests ===

func TestPipelineEndToEnd(t *testing.T) {
	source := &scriptedSource{frames: makeFrames(10), audio: makeAudio(10)}
	sink := &countingSink{}

	result, err := Process(context.Background(), PipelineConfig{
		Source:            source,
		Detector:          oneFace(),
		Sink:              sink,
		DetectionInterval: 5,
		TotalFrames:       10,
		Logger:            quietLogger(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.FramesProcessed != 10 {
		t.Errorf("FramesProcessed = %d, want 10", result.FramesProcessed)
	}
	if result.MaxFacesConcealed != 1 {
		t.Errorf("MaxFacesConcealed = %d, want 1", result.MaxFacesConcealed)
	}
	if result.OutputLocation != "memory://buffer" {
		t.Errorf("OutputLocation = %q", result.OutputLocation)
	}
	if n := sink.finalizes.Load(); n != 1 {
		t.Errorf("Finalize called %d times, want 1", n)
	}

	written := sink.VideoFrames()
	if len(written) != 10 {
		t.Fatalf("sink received %d frames, want 10", len(written))
	}
	for i, frame := range written {
		if frame.Timestamp != source.frames[i].Timestamp {
			t.Fatalf("frame %d out of order: timestamp %d", i, frame.Timestamp)
		}
		// The face is tracked from frame 0, so every written frame is a
		// concealed copy, never the source's own buffer.
		if frame == source.frames[i] {
			t.Fatalf("frame %d written without concealment", i)
		}
	}
}

func TestPipelineNoDetectionsPassesFramesThrough(t *testing.T) {
	source := &scriptedSource{frames: makeFrames(6), audio: makeAudio(2)}
	sink := &countingSink{}

	result, err := Process(context.Background(), PipelineConfig{
		Source:   source,
		Detector: noFaces(),
		Sink:     sink,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.MaxFacesConcealed != 0 {
		t.Errorf("MaxFacesConcealed = %d, want 0", result.MaxFacesConcealed)
	}
	for i, frame := range sink.VideoFrames() {
		if frame != source.frames[i] {
			t.Fatalf("frame %d was copied with no faces to conceal", i)
		}
	}
}

func TestPipelineCountsSimultaneousFaces(t *testing.T) {
	source := &scriptedSource{frames: makeFrames(6), audio: makeAudio(1)}
	detector := &scriptedDetector{fn: func(int) ([]Region, error) {
		return []Region{
			{X: 0.1, Y: 0.1, W: 0.2, H: 0.2},
			{X: 0.6, Y: 0.6, W: 0.2, H: 0.2},
		}, nil
	}}

	result, err := Process(context.Background(), PipelineConfig{
		Source:   source,
		Detector: detector,
		Sink:     &countingSink{},
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.MaxFacesConcealed != 2 {
		t.Errorf("MaxFacesConcealed = %d, want 2", result.MaxFacesConcealed)
	}
}

func TestPipelineAudioPassthrough(t *testing.T) {
	audio := makeAudio(4)
	source := &scriptedSource{frames: makeFrames(2), audio: audio}
	sink := &countingSink{}

	if _, err := Process(context.Background(), PipelineConfig{
		Source:   source,
		Detector: noFaces(),
		Sink:     sink,
		Logger:   quietLogger(),
	}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	written := sink.AudioBuffers()
	if len(written) != 4 {
		t.Fatalf("sink received %d audio buffers, want 4", len(written))
	}
	for i, buf := range written {
		// Passthrough means the very same buffer, untouched and in order.
		if buf != audio[i] {
			t.Fatalf("audio buffer %d was copied or reordered", i)
		}
	}
}

func TestPipelineFinalizeExactlyOnce(t *testing.T) {
	cases := []struct {
		name          string
		frames, audio int
	}{
		{"video finishes last", 40, 2},
		{"audio finishes last", 2, 40},
		{"balanced", 10, 10},
		{"no audio", 10, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &countingSink{}
			source := &scriptedSource{frames: makeFrames(tc.frames), audio: makeAudio(tc.audio)}

			result, err := Process(context.Background(), PipelineConfig{
				Source:   source,
				Detector: noFaces(),
				Sink:     sink,
				Logger:   quietLogger(),
			})
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if result == nil {
				t.Fatal("nil result on success")
			}
			if n := sink.finalizes.Load(); n != 1 {
				t.Fatalf("Finalize called %d times, want exactly 1", n)
			}
		})
	}
}

func TestPipelineProgressMonotoneToOne(t *testing.T) {
	var mu sync.Mutex
	var reports []float64

	source := &scriptedSource{frames: makeFrames(20), audio: makeAudio(5)}
	_, err := Process(context.Background(), PipelineConfig{
		Source:      source,
		Detector:    noFaces(),
		Sink:        &countingSink{},
		TotalFrames: 20,
		Logger:      quietLogger(),
		OnProgress: func(fraction float64) {
			mu.Lock()
			reports = append(reports, fraction)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(reports) == 0 {
		t.Fatal("no progress reported")
	}
	for i, f := range reports {
		if f < 0 || f > 1 {
			t.Fatalf("report %d = %v outside [0,1]", i, f)
		}
		if i > 0 && f <= reports[i-1] {
			t.Fatalf("progress not strictly increasing: %v then %v", reports[i-1], f)
		}
	}
	if last := reports[len(reports)-1]; last != 1 {
		t.Errorf("final report = %v, want exactly 1", last)
	}
}

type logCaptureHook struct {
	mu      sync.Mutex
	entries []*logrus.Entry
}

func (h *logCaptureHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *logCaptureHook) Fire(e *logrus.Entry) error {
	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
	return nil
}

func TestPipelineDetectorFailureKeepsTracking(t *testing.T) {
	// Detection succeeds on the first cadence frame and fails on the
	// second. The run must complete, and the track from the first pass
	// must keep concealing every subsequent frame.
	detector := &scriptedDetector{fn: func(call int) ([]Region, error) {
		if call == 1 {
			return []Region{{X: 0.4, Y: 0.4, W: 0.2, H: 0.2}}, nil
		}
		return nil, errors.New("model timeout")
	}}
	source := &scriptedSource{frames: makeFrames(8), audio: makeAudio(1)}
	sink := &countingSink{}

	log := quietLogger()
	hook := &logCaptureHook{}
	log.AddHook(hook)

	result, err := Process(context.Background(), PipelineConfig{
		Source:            source,
		Detector:          detector,
		Sink:              sink,
		DetectionInterval: 5,
		Logger:            log,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.FramesProcessed != 8 {
		t.Errorf("FramesProcessed = %d, want 8", result.FramesProcessed)
	}
	for i, frame := range sink.VideoFrames() {
		if frame == source.frames[i] {
			t.Fatalf("frame %d lost concealment after the detector failure", i)
		}
	}

	// The swallowed failure is logged classified, carrying the frame it
	// happened on.
	var derr *DetectorError
	hook.mu.Lock()
	defer hook.mu.Unlock()
	for _, e := range hook.entries {
		if logged, ok := e.Data[logrus.ErrorKey].(error); ok && errors.As(logged, &derr) {
			break
		}
	}
	if derr == nil {
		t.Fatal("detector failure was not logged as a DetectorError")
	}
	if derr.Frame != 5 {
		t.Errorf("DetectorError.Frame = %d, want 5", derr.Frame)
	}
}

func TestPipelineRenderErrorAborts(t *testing.T) {
	rgba := &VideoFrame{
		Data:   [][]byte{make([]byte, 16*16*4)},
		Stride: []int{16 * 4},
		Width:  16, Height: 16,
		Format: PixelFormatRGBA32,
	}
	source := &scriptedSource{frames: []*VideoFrame{rgba}, audio: makeAudio(1)}
	sink := &discardingSink{}

	_, err := Process(context.Background(), PipelineConfig{
		Source:   source,
		Detector: oneFace(),
		Sink:     sink,
		Logger:   quietLogger(),
	})

	var rerr *RenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want *RenderError", err)
	}
	if n := sink.finalizes.Load(); n != 0 {
		t.Errorf("Finalize called %d times after a failure, want 0", n)
	}
	if n := sink.discards.Load(); n != 1 {
		t.Errorf("Discard called %d times, want 1", n)
	}
}

func TestPipelineSourceErrorWins(t *testing.T) {
	cause := errors.New("corrupt packet")
	source := &scriptedSource{frames: makeFrames(3), audio: makeAudio(50), videoErr: cause}
	sink := &countingSink{}

	_, err := Process(context.Background(), PipelineConfig{
		Source:   source,
		Detector: noFaces(),
		Sink:     sink,
		Logger:   quietLogger(),
	})

	var serr *SourceError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *SourceError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err does not carry the underlying cause")
	}
	if n := sink.finalizes.Load(); n != 0 {
		t.Errorf("Finalize called %d times after a failure, want 0", n)
	}
}

func TestPipelineSinkFinalizeErrorSurfaces(t *testing.T) {
	cause := errors.New("disk full")
	sink := &finalizeFailSink{cause: cause}
	source := &scriptedSource{frames: makeFrames(2), audio: makeAudio(2)}

	_, err := Process(context.Background(), PipelineConfig{
		Source:   source,
		Detector: noFaces(),
		Sink:     sink,
		Logger:   quietLogger(),
	})

	var serr *SinkError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *SinkError", err)
	}
	if serr.Op != "finalize" {
		t.Errorf("Op = %q, want finalize", serr.Op)
	}
	if !errors.Is(err, cause) {
		t.Error("err does not carry the sink's reason")
	}
}

type finalizeFailSink struct {
	BufferSink
	cause error
}

func (s *finalizeFailSink) Finalize() (string, error) { return "", s.cause }

func TestPipelineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &scriptedSource{frames: makeFrames(100), audio: makeAudio(100)}
	sink := &discardingSink{}

	_, err := Process(ctx, PipelineConfig{
		Source:   source,
		Detector: noFaces(),
		Sink:     sink,
		Logger:   quietLogger(),
	})

	var cerr *CanceledError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *CanceledError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("err does not unwrap to context.Canceled")
	}
	if n := sink.finalizes.Load(); n != 0 {
		t.Errorf("Finalize called %d times after cancellation, want 0", n)
	}
	if n := sink.discards.Load(); n != 1 {
		t.Errorf("Discard called %d times, want 1", n)
	}
}

type gatedSink struct {
	countingSink
	ready atomic.Bool
}

func (s *gatedSink) ReadyForVideo() bool { return s.ready.Load() }
func (s *gatedSink) ReadyForAudio() bool { return s.ready.Load() }

func TestPipelineStallsOnBackpressure(t *testing.T) {
	sink := &gatedSink{}
	source := &scriptedSource{frames: makeFrames(5), audio: makeAudio(5)}

	time.AfterFunc(20*time.Millisecond, func() { sink.ready.Store(true) })

	result, err := Process(context.Background(), PipelineConfig{
		Source:   source,
		Detector: noFaces(),
		Sink:     sink,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.FramesProcessed != 5 {
		t.Errorf("FramesProcessed = %d, want 5 (no drops under backpressure)", result.FramesProcessed)
	}
	written := sink.VideoFrames()
	for i := 1; i < len(written); i++ {
		if written[i].Timestamp <= written[i-1].Timestamp {
			t.Fatal("frames reordered under backpressure")
		}
	}
}

type waiterSink struct {
	countingSink
	release chan struct{}
}

func (s *waiterSink) WaitVideoReady(ctx context.Context) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *waiterSink) WaitAudioReady(ctx context.Context) error { return s.WaitVideoReady(ctx) }

func TestPipelineUsesReadyWaiter(t *testing.T) {
	sink := &waiterSink{release: make(chan struct{})}
	source := &scriptedSource{frames: makeFrames(3), audio: makeAudio(3)}

	time.AfterFunc(20*time.Millisecond, func() { close(sink.release) })

	result, err := Process(context.Background(), PipelineConfig{
		Source:   source,
		Detector: noFaces(),
		Sink:     sink,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.FramesProcessed != 3 {
		t.Errorf("FramesProcessed = %d, want 3", result.FramesProcessed)
	}
}

func TestPipelineWithSyntheticSource(t *testing.T) {
	source := NewSyntheticSource(SyntheticConfig{FrameCount: 30, FPS: 30, FaceDrift: 0.002})
	sink := &countingSink{}

	result, err := Process(context.Background(), PipelineConfig{
		Source:   source,
		Detector: source.Detector(),
		Sink:     sink,
		Effect:   EffectPixelate,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.SourceLocation != "synthetic://pattern" {
		t.Errorf("SourceLocation = %q", result.SourceLocation)
	}
	if result.FramesProcessed != 30 {
		t.Errorf("FramesProcessed = %d, want 30", result.FramesProcessed)
	}
	if result.MaxFacesConcealed != 1 {
		t.Errorf("MaxFacesConcealed = %d, want 1", result.MaxFacesConcealed)
	}
}

func TestNewPipelineValidation(t *testing.T) {
	source := &scriptedSource{}
	detector := noFaces()
	sink := &countingSink{}

	cases := []struct {
		name   string
		config PipelineConfig
	}{
		{"missing source", PipelineConfig{Detector: detector, Sink: sink}},
		{"missing detector", PipelineConfig{Source: source, Sink: sink}},
		{"missing sink", PipelineConfig{Source: source, Detector: detector}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPipeline(tc.config); err == nil {
				t.Fatal("expected a configuration error")
			}
		})
	}
}

func TestPipelineSingleUse(t *testing.T) {
	p, err := NewPipeline(PipelineConfig{
		Source:   &scriptedSource{frames: makeFrames(1), audio: makeAudio(1)},
		Detector: noFaces(),
		Sink:     &countingSink{},
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Process(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := p.Process(context.Background()); err == nil {
		t.Fatal("second run must be rejected")
	}
}
