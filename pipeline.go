package conceal

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Progress split: video processing advances progress to 0.9, the finalize
// step covers the rest.
const videoProgressShare = 0.9

// PipelineConfig configures a concealment pipeline run.
type PipelineConfig struct {
	Source   FrameSource   // Decoded A/V input (required)
	Detector FaceDetector  // Face detector, invoked on cadence frames (required)
	Sink     FrameSink     // Output (required)
	Renderer EffectRenderer // Effect renderer (default: built-in I420 renderer)

	// Effect applied to every tracked face.
	Effect EffectKind

	// Tracker configuration. Zero fields take defaults.
	Tracker TrackerConfig

	// DetectionInterval is the detection cadence in frames. 0 derives it
	// from the source frame rate when known, else every 5th frame.
	DetectionInterval int

	// TotalFrames is the progress denominator. 0 takes the source's
	// estimate when known; with no estimate, progress holds at 0 until
	// finalize reports 1.0.
	TotalFrames int

	// OnProgress observes fractional progress in [0,1]. Calls are
	// monotonically non-decreasing and throttled; a successful run always
	// ends with exactly 1.0.
	OnProgress func(fraction float64)

	// Logger for pipeline events. Default: logrus standard logger.
	Logger *logrus.Logger
}

// Result describes a completed pipeline run.
type Result struct {
	SourceLocation string // Where the input came from, when the source reports it
	OutputLocation string // Location returned by the sink's Finalize

	// MaxFacesConcealed is the maximum number of simultaneously tracked
	// faces observed over the run (not a count of distinct identities).
	MaxFacesConcealed int

	FramesProcessed int // Video frames written
}

type streamKind int

const (
	streamVideo streamKind = iota
	streamAudio
)

// Pipeline drives the video and audio streams of one source to completion
// concurrently: video frames are tracked and concealed, audio passes
// through untouched, and the sink is finalized exactly once when both
// streams are exhausted. Any stream error aborts the run; the first error
// wins and the sink is never finalized after a failure.
//
// A Pipeline is single-use: create one per run.
type Pipeline struct {
	config   PipelineConfig
	renderer EffectRenderer
	tracker  *FaceTracker
	progress *progressReporter
	log      *logrus.Logger

	detectionInterval int
	totalFrames       int
	sourceLocation    string

	started atomic.Bool
	cancel  context.CancelFunc

	// finalized is the single-fire guard on the sink's Finalize: both
	// stream loops race to observe "the other stream is already done",
	// and the CAS admits exactly one of them.
	finalized atomic.Bool

	mu              sync.Mutex // guards the fields below
	videoDone       bool
	audioDone       bool
	firstErr        error
	framesProcessed int
	maxFaces        int
	outputLocation  string
}

// NewPipeline validates the configuration and prepares a run.
func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	if config.Source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if config.Detector == nil {
		return nil, errors.New("pipeline: detector is required")
	}
	if config.Sink == nil {
		return nil, errors.New("pipeline: sink is required")
	}

	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	renderer := config.Renderer
	if renderer == nil {
		renderer = NewRenderer(DefaultRendererConfig())
	}

	trackerConfig := config.Tracker
	if trackerConfig.Logger == nil {
		trackerConfig.Logger = log
	}

	p := &Pipeline{
		config:            config,
		renderer:          renderer,
		tracker:           NewFaceTracker(trackerConfig),
		progress:          newProgressReporter(config.OnProgress),
		log:               log,
		detectionInterval: config.DetectionInterval,
		totalFrames:       config.TotalFrames,
	}

	if described, ok := config.Source.(DescribedSource); ok {
		info := described.Info()
		if p.detectionInterval <= 0 {
			p.detectionInterval = DetectionIntervalForFPS(info.FPS)
		}
		if p.totalFrames <= 0 {
			p.totalFrames = info.TotalFrames
		}
		p.sourceLocation = info.Location
	}
	if p.detectionInterval <= 0 {
		p.detectionInterval = DefaultDetectionInterval
	}

	return p, nil
}

// Process runs the pipeline to completion and returns the result, or the
// first error encountered. On failure or cancellation the sink is never
// finalized, and its partial output is discarded when it supports that.
func (p *Pipeline) Process(ctx context.Context) (*Result, error) {
	if !p.started.CompareAndSwap(false, true) {
		return nil, errors.New("pipeline: already run")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.cancel = cancel

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := p.videoLoop(ctx); err != nil {
			p.fail(err)
			return
		}
		p.streamDone(streamVideo)
	}()
	go func() {
		defer wg.Done()
		if err := p.audioLoop(ctx); err != nil {
			p.fail(err)
			return
		}
		p.streamDone(streamAudio)
	}()
	wg.Wait()

	p.mu.Lock()
	err := p.firstErr
	result := &Result{
		SourceLocation:    p.sourceLocation,
		OutputLocation:    p.outputLocation,
		MaxFacesConcealed: p.maxFaces,
		FramesProcessed:   p.framesProcessed,
	}
	p.mu.Unlock()

	if err != nil {
		if d, ok := p.config.Sink.(Discarder); ok {
			if derr := d.Discard(); derr != nil {
				p.log.WithError(derr).Warn("failed to discard partial output")
			}
		}
		return nil, err
	}

	p.log.WithFields(logrus.Fields{
		"frames": result.FramesProcessed,
		"faces":  result.MaxFacesConcealed,
		"output": result.OutputLocation,
	}).Info("pipeline completed")
	return result, nil
}

// videoLoop reads, tracks, conceals, and writes frames until end of
// stream. Detection runs only on cadence frames; a detector failure is
// absorbed and the last tracked positions carry forward.
func (p *Pipeline) videoLoop(ctx context.Context) error {
	for frameIndex := 0; ; frameIndex++ {
		if err := p.waitReady(ctx, streamVideo); err != nil {
			return err
		}

		frame, err := p.config.Source.NextVideoFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return &CanceledError{Err: ctx.Err()}
			}
			return &SourceError{Err: err}
		}

		if frameIndex%p.detectionInterval == 0 {
			detections, derr := p.config.Detector.Detect(ctx, frame)
			switch {
			case derr == nil:
				p.tracker.Update(detections, frameIndex)
			case ctx.Err() != nil:
				return &CanceledError{Err: ctx.Err()}
			default:
				p.log.WithError(&DetectorError{Frame: frameIndex, Err: derr}).
					Warn("face detection failed; keeping last tracked positions")
			}
		}

		out := frame
		regions := p.tracker.Regions()
		if len(regions) > 0 {
			rendered, rerr := p.renderer.Apply(frame, AssignAll(regions, p.config.Effect))
			if rerr != nil {
				return &RenderError{Err: rerr}
			}
			out = rendered
		}

		if err := p.config.Sink.WriteVideoFrame(out); err != nil {
			return &SinkError{Op: "write video", Err: err}
		}
		p.noteFrame(len(regions))
	}
}

// audioLoop passes audio buffers through to the sink unmodified,
// preserving order and timestamps.
func (p *Pipeline) audioLoop(ctx context.Context) error {
	for {
		if err := p.waitReady(ctx, streamAudio); err != nil {
			return err
		}

		samples, err := p.config.Source.NextAudioSamples(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return &CanceledError{Err: ctx.Err()}
			}
			return &SourceError{Err: err}
		}

		if err := p.config.Sink.WriteAudioSamples(samples); err != nil {
			return &SinkError{Op: "write audio", Err: err}
		}
	}
}

// waitReady blocks until the sink can accept more data on the given
// stream. Sinks implementing ReadyWaiter suspend the caller; plain sinks
// are polled on a short ticker, which only engages while not ready.
// Doubles as the cancellation point at the top of each per-frame step.
func (p *Pipeline) waitReady(ctx context.Context, stream streamKind) error {
	if err := ctx.Err(); err != nil {
		return &CanceledError{Err: err}
	}

	if w, ok := p.config.Sink.(ReadyWaiter); ok {
		var err error
		if stream == streamVideo {
			err = w.WaitVideoReady(ctx)
		} else {
			err = w.WaitAudioReady(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return &CanceledError{Err: ctx.Err()}
			}
			return &SinkError{Op: "wait ready", Err: err}
		}
		return nil
	}

	ready := p.config.Sink.ReadyForVideo
	if stream == streamAudio {
		ready = p.config.Sink.ReadyForAudio
	}
	if ready() {
		return nil
	}

	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return &CanceledError{Err: ctx.Err()}
		case <-ticker.C:
			if ready() {
				return nil
			}
		}
	}
}

// noteFrame records one written frame and reports video progress.
func (p *Pipeline) noteFrame(faces int) {
	p.mu.Lock()
	p.framesProcessed++
	if faces > p.maxFaces {
		p.maxFaces = faces
	}
	processed := p.framesProcessed
	p.mu.Unlock()

	if p.totalFrames > 0 {
		fraction := videoProgressShare * float64(processed) / float64(p.totalFrames)
		if fraction > videoProgressShare {
			fraction = videoProgressShare
		}
		p.progress.Report(fraction)
	}
}

// fail records the first error and cancels both loops. Later errors lose.
func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	if p.firstErr == nil {
		p.firstErr = err
		p.log.WithError(err).Error("pipeline aborted")
	}
	p.mu.Unlock()
	p.cancel()
}

// streamDone marks one stream exhausted and, when it observes the other
// stream already done, finalizes the sink. Both loops can reach this
// near-simultaneously; the check runs under the state mutex and the
// atomic CAS guarantees Finalize is invoked exactly once.
func (p *Pipeline) streamDone(stream streamKind) {
	p.mu.Lock()
	if stream == streamVideo {
		p.videoDone = true
	} else {
		p.audioDone = true
	}
	both := p.videoDone && p.audioDone && p.firstErr == nil
	p.mu.Unlock()

	if !both {
		return
	}
	if !p.finalized.CompareAndSwap(false, true) {
		return
	}

	p.progress.Report(videoProgressShare)
	location, err := p.config.Sink.Finalize()
	if err != nil {
		p.fail(&SinkError{Op: "finalize", Err: err})
		return
	}

	p.mu.Lock()
	p.outputLocation = location
	p.mu.Unlock()
	p.progress.Finish()
}

// Process is a convenience wrapper: build a pipeline from config and run
// it in one call.
func Process(ctx context.Context, config PipelineConfig) (*Result, error) {
	p, err := NewPipeline(config)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx)
}
