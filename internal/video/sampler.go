// Package video provides frame sampling over recorded video files.
//
// A Sampler yields a lazy, finite, non-restartable sequence of frame samples
// at a configured interval, optionally restricted to a time window. The same
// abstraction backs both the sparse first pass and the dense recovery pass,
// so the two passes share identical sampling semantics.
package video

import (
	"fmt"

	"gocv.io/x/gocv"
)

// FrameSample is one sampled frame. The Mat is owned by the sampler and is
// only valid until the next call to Next or Close; it must never be retained.
// In tests the Mat may be nil.
type FrameSample struct {
	// Timestamp is seconds from the start of the video.
	Timestamp float64
	// Index is the frame index within the video.
	Index int
	// Mat is the decoded pixel buffer.
	Mat *gocv.Mat
}

// Sampler iterates sampled frames in timestamp order, in the style of
// sql.Rows: Next advances, Sample returns the current frame, Err reports the
// terminal error once Next returns false.
type Sampler interface {
	Next() bool
	Sample() *FrameSample
	Err() error
	Close() error
}

// Options configures a sampler.
type Options struct {
	// FPS is the sampling rate in frames per second. Ignored when Interval
	// is set.
	FPS float64
	// Interval is the sampling step in seconds. Takes precedence over FPS.
	Interval float64
	// From restricts sampling to timestamps >= From (seconds).
	From float64
	// To restricts sampling to timestamps <= To (seconds). Zero means the
	// end of the video.
	To float64
}

// interval resolves the sampling step in seconds.
func (o Options) interval() float64 {
	if o.Interval > 0 {
		return o.Interval
	}
	if o.FPS > 0 {
		return 1 / o.FPS
	}
	return 0.5
}

// MediaReadError reports a video that could not be opened or that failed to
// decode mid-stream. LastTimestamp is the timestamp of the last successfully
// read frame, so a caller can finalize partial work instead of losing it.
type MediaReadError struct {
	Path          string
	LastTimestamp float64
	Err           error
}

func (e *MediaReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media read %s (last good frame at %.3fs): %v", e.Path, e.LastTimestamp, e.Err)
	}
	return fmt.Sprintf("media read %s (last good frame at %.3fs)", e.Path, e.LastTimestamp)
}

func (e *MediaReadError) Unwrap() error {
	return e.Err
}

// Resampler is a Sampler whose step can change mid-scan. Implemented by
// FileSampler and MockSampler; consumed by TriggerSampler.
type Resampler interface {
	Sampler
	// SetInterval changes the sampling step for subsequent frames.
	SetInterval(seconds float64)
	// Pending returns the timestamp the next Next call will sample.
	Pending() float64
}
