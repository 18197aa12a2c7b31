package conceal

import (
	"errors"
	"fmt"
)

// ErrAlreadyFinalized is returned when Finalize is called on a sink that
// has already been finalized.
var ErrAlreadyFinalized = errors.New("sink already finalized")

// SourceError reports an unreadable or unusable media source. Fatal: the
// pipeline aborts and the sink is never finalized.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source: %v", e.Err) }
func (e *SourceError) Unwrap() error { return e.Err }

// DetectorError reports a face detection failure on one frame. It is
// absorbed by the pipeline: the frame keeps its last tracked positions and
// processing continues. The type exists so detector implementations can
// classify their failures for logging.
type DetectorError struct {
	Frame int
	Err   error
}

func (e *DetectorError) Error() string { return fmt.Sprintf("detector at frame %d: %v", e.Frame, e.Err) }
func (e *DetectorError) Unwrap() error { return e.Err }

// RenderError reports an effect compositing failure. Fatal: no further
// frames are written and the sink is never finalized. Frames already
// written remain intact.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string { return fmt.Sprintf("render: %v", e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }

// SinkError reports a write or finalize failure on the output, carrying
// the sink's underlying reason rather than a generic message. Fatal.
type SinkError struct {
	Op  string // "write video", "write audio", or "finalize"
	Err error
}

func (e *SinkError) Error() string { return fmt.Sprintf("sink %s: %v", e.Op, e.Err) }
func (e *SinkError) Unwrap() error { return e.Err }

// CanceledError reports a caller-initiated abort, distinct from stream
// failures so callers can avoid treating it as an error state. It unwraps
// to the context error, so errors.Is(err, context.Canceled) holds.
type CanceledError struct {
	Err error
}

func (e *CanceledError) Error() string { return fmt.Sprintf("canceled: %v", e.Err) }
func (e *CanceledError) Unwrap() error { return e.Err }
