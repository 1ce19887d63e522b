package video

import "errors"

// MockSampler generates samples over a synthetic timeline for testing. It
// mirrors FileSampler's sampling semantics (uniform steps, window clipping,
// mid-stream failure) but frames carry a nil Mat, so logic tests never need
// the OpenCV runtime.
type MockSampler struct {
	interval float64
	duration float64
	to       float64

	// FailAt injects a MediaReadError once the timeline reaches this
	// timestamp. Zero disables the failure.
	FailAt float64

	nextTS  float64
	lastTS  float64
	index   int
	cur     *FrameSample
	err     error
	done    bool
	started bool
}

// NewMockSampler builds a mock over a video of the given duration.
func NewMockSampler(duration float64, opts Options) *MockSampler {
	from := opts.From
	if from < 0 {
		from = 0
	}
	return &MockSampler{
		interval: opts.interval(),
		duration: duration,
		to:       opts.To,
		nextTS:   from,
		lastTS:   from,
	}
}

func (s *MockSampler) Next() bool {
	s.cur = nil
	if s.done || s.err != nil {
		return false
	}

	ts := s.nextTS
	if s.FailAt > 0 && ts >= s.FailAt {
		s.done = true
		s.err = &MediaReadError{
			Path:          "mock",
			LastTimestamp: s.lastTS,
			Err:           errors.New("injected read failure"),
		}
		return false
	}
	if ts >= s.duration || (s.to > 0 && ts > s.to) {
		s.done = true
		return false
	}

	s.cur = &FrameSample{Timestamp: ts, Index: s.index}
	s.index++
	s.lastTS = ts
	s.nextTS = ts + s.interval
	s.started = true
	return true
}

func (s *MockSampler) Sample() *FrameSample { return s.cur }

func (s *MockSampler) Err() error { return s.err }

func (s *MockSampler) Close() error {
	s.done = true
	return nil
}

// SetInterval changes the sampling step, matching FileSampler's behavior.
func (s *MockSampler) SetInterval(seconds float64) {
	if seconds <= 0 {
		return
	}
	if s.started {
		s.nextTS = s.lastTS + seconds
	}
	s.interval = seconds
}

func (s *MockSampler) Pending() float64 { return s.nextTS }
