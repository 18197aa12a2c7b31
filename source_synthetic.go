package conceal

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"
)

// SyntheticConfig configures a synthetic A/V source.
type SyntheticConfig struct {
	Width  int // Frame width (default: 320)
	Height int // Frame height (default: 240)
	FPS    int // Frames per second (default: 30)

	// FrameCount is the number of video frames to produce (default: 60).
	FrameCount int

	SampleRate int // Audio sample rate (default: 48000)
	Channels   int // Audio channels (default: 1)

	// AudioBufferCount is the number of audio buffers to produce, one per
	// video frame duration (default: FrameCount).
	AudioBufferCount int

	// Face is the synthetic face box at frame 0 (normalized, bottom-left
	// origin). Default: {0.4, 0.4, 0.2, 0.25}.
	Face Region

	// FaceDrift moves the face box right by this normalized amount per
	// frame, clamped so the box stays inside the frame.
	FaceDrift float64
}

// DefaultSyntheticConfig returns the default synthetic source configuration.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Width:      320,
		Height:     240,
		FPS:        30,
		FrameCount: 60,
		SampleRate: 48000,
		Channels:   1,
		Face:       Region{X: 0.4, Y: 0.4, W: 0.2, H: 0.25},
	}
}

// SyntheticSource generates a finite stream of I420 frames containing a
// bright moving box on a gradient background, plus a deterministic PCM
// tone on the audio stream. It exists so the pipeline can be exercised
// end to end without native decoders.
type SyntheticSource struct {
	config        SyntheticConfig
	frameDuration time.Duration

	videoIndex int
	audioIndex int
	mu         sync.Mutex
}

// NewSyntheticSource creates a synthetic source. Zero config fields take
// defaults.
func NewSyntheticSource(config SyntheticConfig) *SyntheticSource {
	def := DefaultSyntheticConfig()
	if config.Width <= 0 {
		config.Width = def.Width
	}
	if config.Height <= 0 {
		config.Height = def.Height
	}
	if config.FPS <= 0 {
		config.FPS = def.FPS
	}
	if config.FrameCount <= 0 {
		config.FrameCount = def.FrameCount
	}
	if config.SampleRate <= 0 {
		config.SampleRate = def.SampleRate
	}
	if config.Channels <= 0 {
		config.Channels = def.Channels
	}
	if config.AudioBufferCount <= 0 {
		config.AudioBufferCount = config.FrameCount
	}
	if !config.Face.Valid() {
		config.Face = def.Face
	}

	// Keep dimensions even for I420 chroma subsampling.
	config.Width = (config.Width + 1) &^ 1
	config.Height = (config.Height + 1) &^ 1

	return &SyntheticSource{
		config:        config,
		frameDuration: time.Second / time.Duration(config.FPS),
	}
}

// Info implements DescribedSource.
func (s *SyntheticSource) Info() SourceInfo {
	return SourceInfo{
		Width:       s.config.Width,
		Height:      s.config.Height,
		FPS:         s.config.FPS,
		TotalFrames: s.config.FrameCount,
		Location:    "synthetic://pattern",
	}
}

// FacePosition returns the ground-truth face box for a frame index.
func (s *SyntheticSource) FacePosition(frameIndex int) Region {
	r := s.config.Face
	r.X += s.config.FaceDrift * float64(frameIndex)
	if r.X+r.W > 1 {
		r.X = 1 - r.W
	}
	if r.X < 0 {
		r.X = 0
	}
	return r
}

// Detector returns a ground-truth detector reporting the synthetic face's
// exact position, for tests and examples that need a deterministic
// detector without a vision model.
func (s *SyntheticSource) Detector() FaceDetector {
	return DetectorFunc(func(_ context.Context, frame *VideoFrame) ([]Region, error) {
		idx := int(math.Round(float64(frame.Timestamp) * float64(s.config.FPS) / float64(time.Second)))
		return []Region{s.FacePosition(idx)}, nil
	})
}

// NextVideoFrame implements FrameSource.
func (s *SyntheticSource) NextVideoFrame(ctx context.Context) (*VideoFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	idx := s.videoIndex
	if idx >= s.config.FrameCount {
		s.mu.Unlock()
		return nil, io.EOF
	}
	s.videoIndex++
	s.mu.Unlock()

	frame := NewI420Frame(s.config.Width, s.config.Height, int64(idx)*s.frameDuration.Nanoseconds())
	frame.Duration = s.frameDuration.Nanoseconds()
	s.paint(frame, idx)
	return frame, nil
}

// NextAudioSamples implements FrameSource.
func (s *SyntheticSource) NextAudioSamples(ctx context.Context) (*AudioSamples, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	idx := s.audioIndex
	if idx >= s.config.AudioBufferCount {
		s.mu.Unlock()
		return nil, io.EOF
	}
	s.audioIndex++
	s.mu.Unlock()

	sampleCount := s.config.SampleRate / s.config.FPS
	data := make([]byte, sampleCount*s.config.Channels*2)

	// 440Hz sine, signed 16-bit little-endian.
	base := idx * sampleCount
	for i := 0; i < sampleCount; i++ {
		v := math.Sin(2 * math.Pi * 440 * float64(base+i) / float64(s.config.SampleRate))
		sample := int16(v * 8000)
		for ch := 0; ch < s.config.Channels; ch++ {
			off := (i*s.config.Channels + ch) * 2
			binary.LittleEndian.PutUint16(data[off:], uint16(sample))
		}
	}

	return &AudioSamples{
		Data:        data,
		SampleRate:  s.config.SampleRate,
		Channels:    s.config.Channels,
		SampleCount: sampleCount,
		Timestamp:   int64(idx) * s.frameDuration.Nanoseconds(),
	}, nil
}

// paint fills the frame with a vertical luma gradient and draws the face
// box as a bright warm rectangle.
func (s *SyntheticSource) paint(frame *VideoFrame, frameIndex int) {
	y, u, v := frame.Data[0], frame.Data[1], frame.Data[2]

	for row := 0; row < frame.Height; row++ {
		val := byte(32 + 160*row/frame.Height)
		rowStart := row * frame.Stride[0]
		for col := 0; col < frame.Width; col++ {
			y[rowStart+col] = val
		}
	}
	for i := range u {
		u[i] = 128
	}
	for i := range v {
		v[i] = 128
	}

	px := s.FacePosition(frameIndex).PixelRect(frame.Width, frame.Height)
	if px.Empty() {
		return
	}
	for row := px.Y; row < px.Y+px.H; row++ {
		rowStart := row * frame.Stride[0]
		for col := px.X; col < px.X+px.W; col++ {
			y[rowStart+col] = 220
		}
	}
	cr := chromaRect(px, frame.Width/2, frame.Height/2)
	for row := cr.Y; row < cr.Y+cr.H; row++ {
		for col := cr.X; col < cr.X+cr.W; col++ {
			u[row*frame.Stride[1]+col] = 100
			v[row*frame.Stride[2]+col] = 160
		}
	}
}
