package detector

import (
	"fmt"

	"github.com/nmorozov/packlens/internal/config"
	"github.com/nmorozov/packlens/internal/video"
)

// Kind identifies which extractor produced a signal.
type Kind string

const (
	// KindHand marks a hand-presence signal.
	KindHand Kind = "hand"
	// KindCode marks a code-decoding signal.
	KindCode Kind = "code"
)

// Signal is the output of one extractor for one frame. Signals are ephemeral:
// the event assembler consumes them immediately and no temporal state lives in
// the extractors themselves.
type Signal struct {
	Timestamp  float64
	Kind       Kind
	Present    bool
	Confidence float64
	// Codes holds the decoded values for code signals. A single frame can
	// legitimately carry more than one label.
	Codes []string
}

// HandDetector reports hand presence within the packing polygon of a frame.
// Implementations must be pure functions of (frame, region): no temporal
// state carried between calls.
type HandDetector interface {
	Detect(sample *video.FrameSample, region *config.RegionProfile) (Signal, error)
	Close() error
}

// CodeDetector decodes machine-readable codes within the trigger polygon of a
// frame (or the whole frame when the region has none). Same purity contract
// as HandDetector.
type CodeDetector interface {
	Detect(sample *video.FrameSample, region *config.RegionProfile) (Signal, error)
	Close() error
}

// Config holds configuration options for the hand detection service.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum landmark confidence for a hand to count
	// as present (0.0-1.0).
	MinConfidence float64

	// MarginPx widens the polygon bounding rect when cropping.
	MarginPx int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:      2,
		MinConfidence: 0.5,
		MarginPx:      20,
	}
}

// UnavailableError reports an extractor whose model or runtime is broken, as
// opposed to a single frame that failed to process. The pipeline escalates to
// this after repeated consecutive failures.
type UnavailableError struct {
	Kind Kind
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s detector unavailable: %v", e.Kind, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
