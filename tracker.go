package conceal

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TrackedFace is one face with stable identity across frames. The tracker
// owns the live set; Update and Tracks return copies.
type TrackedFace struct {
	ID       uuid.UUID // Stable identity while the face keeps matching
	Rect     Region    // Smoothed position (normalized, bottom-left origin)
	LastSeen int       // Frame index of the last matching detection
}

// TrackerConfig configures a face tracker.
type TrackerConfig struct {
	// MatchThreshold is the minimum IoU between a track and a detection
	// for them to be associated (exclusive). Default: 0.3.
	MatchThreshold float64

	// Smoothing is the weight of the previous position in the exponential
	// smoothing update: new = Smoothing*old + (1-Smoothing)*detected.
	// Default: 0.3.
	Smoothing float64

	// ExpiryFrames is the number of frames without a matching detection
	// after which a track is dropped. Default: 30.
	ExpiryFrames int

	// Logger for track lifecycle events. Default: logrus standard logger.
	Logger *logrus.Logger
}

// DefaultTrackerConfig returns the default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MatchThreshold: 0.3,
		Smoothing:      0.3,
		ExpiryFrames:   30,
	}
}

// FaceTracker converts sparse per-frame detections into a temporally
// coherent set of smoothly moving regions.
//
// Matching is greedy: tracks are visited in creation order and each takes
// the unmatched detection with the highest IoU above the threshold. With
// multiple tracks competing for one detection this can produce a
// non-maximum-weight assignment; the behavior is deliberate and
// deterministic.
//
// FaceTracker is not safe for concurrent use; the pipeline's video loop
// is its only caller.
type FaceTracker struct {
	config TrackerConfig
	tracks []*TrackedFace
	log    *logrus.Logger
}

// NewFaceTracker creates a face tracker. Zero config fields take defaults.
func NewFaceTracker(config TrackerConfig) *FaceTracker {
	def := DefaultTrackerConfig()
	if config.MatchThreshold <= 0 {
		config.MatchThreshold = def.MatchThreshold
	}
	if config.Smoothing <= 0 {
		config.Smoothing = def.Smoothing
	}
	if config.ExpiryFrames <= 0 {
		config.ExpiryFrames = def.ExpiryFrames
	}
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &FaceTracker{
		config: config,
		log:    log,
	}
}

// Update feeds one frame's detections into the tracker and returns the
// surviving track set.
//
//  1. Each existing track (in creation order) takes the unmatched
//     detection with the highest IoU above the threshold and smooths its
//     rectangle toward it.
//  2. Unmatched detections start new tracks.
//  3. Tracks unseen for ExpiryFrames frames are dropped.
//
// Degenerate detections (zero or negative extent) are ignored.
func (t *FaceTracker) Update(detections []Region, frameIndex int) []TrackedFace {
	matched := make([]bool, len(detections))
	alpha := t.config.Smoothing

	for _, trk := range t.tracks {
		best := -1
		bestIoU := t.config.MatchThreshold
		for i, det := range detections {
			if matched[i] || !det.Valid() {
				continue
			}
			// Strict > keeps the first-seen detection on IoU ties.
			if iou := trk.Rect.IoU(det); iou > bestIoU {
				bestIoU = iou
				best = i
			}
		}
		if best < 0 {
			continue
		}
		matched[best] = true
		det := detections[best]
		trk.Rect = Region{
			X: alpha*trk.Rect.X + (1-alpha)*det.X,
			Y: alpha*trk.Rect.Y + (1-alpha)*det.Y,
			W: alpha*trk.Rect.W + (1-alpha)*det.W,
			H: alpha*trk.Rect.H + (1-alpha)*det.H,
		}
		trk.LastSeen = frameIndex
	}

	for i, det := range detections {
		if matched[i] || !det.Valid() {
			continue
		}
		trk := &TrackedFace{
			ID:       uuid.New(),
			Rect:     det,
			LastSeen: frameIndex,
		}
		t.tracks = append(t.tracks, trk)
		t.log.WithFields(logrus.Fields{
			"track": trk.ID,
			"frame": frameIndex,
		}).Debug("new face track")
	}

	alive := t.tracks[:0]
	for _, trk := range t.tracks {
		if frameIndex-trk.LastSeen >= t.config.ExpiryFrames {
			t.log.WithFields(logrus.Fields{
				"track":     trk.ID,
				"frame":     frameIndex,
				"last_seen": trk.LastSeen,
			}).Debug("face track expired")
			continue
		}
		alive = append(alive, trk)
	}
	// Clear the tail so expired tracks are collectable.
	for i := len(alive); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = alive

	return t.Tracks()
}

// Tracks returns a snapshot of the live track set in creation order.
func (t *FaceTracker) Tracks() []TrackedFace {
	out := make([]TrackedFace, len(t.tracks))
	for i, trk := range t.tracks {
		out[i] = *trk
	}
	return out
}

// Regions returns the current smoothed rectangles in creation order.
// These, not the raw detections, are what gets concealed on every frame
// between detection passes.
func (t *FaceTracker) Regions() []Region {
	out := make([]Region, len(t.tracks))
	for i, trk := range t.tracks {
		out[i] = trk.Rect
	}
	return out
}

// Len returns the number of live tracks.
func (t *FaceTracker) Len() int {
	return len(t.tracks)
}
