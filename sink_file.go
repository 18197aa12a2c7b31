package conceal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// FileSinkConfig configures a file sink.
type FileSinkConfig struct {
	// VideoPath is the final output path for the Y4M video. Required.
	VideoPath string

	// AudioPath is the final output path for the WAV audio sidecar.
	// When empty, audio buffers are accepted and discarded.
	AudioPath string

	// FPS is the frame rate written into the Y4M header (default: 30).
	FPS int

	// SampleRate and Channels for the WAV header. Zero values are filled
	// in from the first audio buffer.
	SampleRate int
	Channels   int
}

// FileSink writes processed video to a YUV4MPEG2 (.y4m) file and
// passthrough audio to a PCM WAV sidecar.
//
// Both files are written to hidden temp files next to their targets and
// atomically renamed into place by Finalize, so a crashed or aborted run
// never leaves a partial file at the output path. Discard removes the
// temp files after a failed run.
type FileSink struct {
	config FileSinkConfig

	videoFile  *os.File
	videoBuf   *bufio.Writer
	wroteYHead bool

	audioFile  *os.File
	audioBuf   *bufio.Writer
	wroteWHead bool
	audioBytes int64

	finalized bool
	discarded bool
}

const wavHeaderSize = 44

// NewFileSink creates a file sink, opening temp files immediately so
// configuration errors surface before the pipeline starts.
func NewFileSink(config FileSinkConfig) (*FileSink, error) {
	if config.VideoPath == "" {
		return nil, fmt.Errorf("file sink: video path is required")
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}

	s := &FileSink{config: config}

	videoFile, err := os.CreateTemp(filepath.Dir(config.VideoPath), ".conceal-video-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("file sink: %w", err)
	}
	s.videoFile = videoFile
	s.videoBuf = bufio.NewWriterSize(videoFile, 1<<20)

	if config.AudioPath != "" {
		audioFile, err := os.CreateTemp(filepath.Dir(config.AudioPath), ".conceal-audio-*.tmp")
		if err != nil {
			videoFile.Close()
			os.Remove(videoFile.Name())
			return nil, fmt.Errorf("file sink: %w", err)
		}
		s.audioFile = audioFile
		s.audioBuf = bufio.NewWriterSize(audioFile, 1<<18)
	}

	return s, nil
}

// ReadyForVideo implements FrameSink. File writes are synchronous, so the
// sink is always ready.
func (s *FileSink) ReadyForVideo() bool { return true }

// ReadyForAudio implements FrameSink.
func (s *FileSink) ReadyForAudio() bool { return true }

// WriteVideoFrame implements FrameSink.
func (s *FileSink) WriteVideoFrame(frame *VideoFrame) error {
	if frame.Format != PixelFormatI420 {
		return fmt.Errorf("file sink: unsupported pixel format %v", frame.Format)
	}

	if !s.wroteYHead {
		_, err := fmt.Fprintf(s.videoBuf, "YUV4MPEG2 W%d H%d F%d:1 Ip A1:1 C420\n",
			frame.Width, frame.Height, s.config.FPS)
		if err != nil {
			return err
		}
		s.wroteYHead = true
	}

	if _, err := s.videoBuf.WriteString("FRAME\n"); err != nil {
		return err
	}
	if err := writePlane(s.videoBuf, frame.Data[0], frame.Stride[0], frame.Width, frame.Height); err != nil {
		return err
	}
	if err := writePlane(s.videoBuf, frame.Data[1], frame.Stride[1], frame.Width/2, frame.Height/2); err != nil {
		return err
	}
	return writePlane(s.videoBuf, frame.Data[2], frame.Stride[2], frame.Width/2, frame.Height/2)
}

func writePlane(w *bufio.Writer, data []byte, stride, width, height int) error {
	for row := 0; row < height; row++ {
		if _, err := w.Write(data[row*stride : row*stride+width]); err != nil {
			return err
		}
	}
	return nil
}

// WriteAudioSamples implements FrameSink.
func (s *FileSink) WriteAudioSamples(samples *AudioSamples) error {
	if s.audioBuf == nil {
		return nil // No audio path configured.
	}

	if !s.wroteWHead {
		if s.config.SampleRate == 0 {
			s.config.SampleRate = samples.SampleRate
		}
		if s.config.Channels == 0 {
			s.config.Channels = samples.Channels
		}
		if err := s.writeWAVHeader(0); err != nil {
			return err
		}
		s.wroteWHead = true
	}

	n, err := s.audioBuf.Write(samples.Data)
	s.audioBytes += int64(n)
	return err
}

// writeWAVHeader emits a canonical 44-byte PCM16 WAV header with the given
// data size. Called once with a zero size up front, then again from
// Finalize with the real size after seeking back.
func (s *FileSink) writeWAVHeader(dataSize uint32) error {
	sampleRate := uint32(s.config.SampleRate)
	channels := uint16(s.config.Channels)
	byteRate := sampleRate * uint32(channels) * 2

	var hdr [wavHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], channels)
	binary.LittleEndian.PutUint32(hdr[24:28], sampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], channels*2)
	binary.LittleEndian.PutUint16(hdr[34:36], 16)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)

	_, err := s.audioBuf.Write(hdr[:])
	return err
}

// Finalize implements FrameSink: flushes both streams, patches the WAV
// sizes, and atomically renames the temp files to their final paths.
// Returns the video path as the output location.
func (s *FileSink) Finalize() (string, error) {
	if s.finalized {
		return "", ErrAlreadyFinalized
	}
	s.finalized = true

	if err := s.videoBuf.Flush(); err != nil {
		return "", err
	}
	if err := s.videoFile.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(s.videoFile.Name(), s.config.VideoPath); err != nil {
		return "", err
	}

	if s.audioFile != nil {
		if err := s.audioBuf.Flush(); err != nil {
			return "", err
		}
		if s.wroteWHead {
			if _, err := s.audioFile.Seek(0, 0); err != nil {
				return "", err
			}
			s.audioBuf.Reset(s.audioFile)
			if err := s.writeWAVHeader(uint32(s.audioBytes)); err != nil {
				return "", err
			}
			if err := s.audioBuf.Flush(); err != nil {
				return "", err
			}
		}
		if err := s.audioFile.Close(); err != nil {
			return "", err
		}
		if err := os.Rename(s.audioFile.Name(), s.config.AudioPath); err != nil {
			return "", err
		}
	}

	return s.config.VideoPath, nil
}

// Discard implements Discarder: closes and removes the temp files after a
// failed or canceled run. It is a no-op once the sink has been finalized.
func (s *FileSink) Discard() error {
	if s.finalized || s.discarded {
		return nil
	}
	s.discarded = true

	s.videoFile.Close()
	err := os.Remove(s.videoFile.Name())
	if s.audioFile != nil {
		s.audioFile.Close()
		if rerr := os.Remove(s.audioFile.Name()); err == nil {
			err = rerr
		}
	}
	return err
}
