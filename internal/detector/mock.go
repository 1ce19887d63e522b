package detector

import (
	"github.com/nmorozov/packlens/internal/config"
	"github.com/nmorozov/packlens/internal/video"
)

// Span is a closed time range on the video timeline, in seconds.
type Span struct {
	From float64
	To   float64
}

// Contains reports whether ts falls inside the span.
func (s Span) Contains(ts float64) bool {
	return ts >= s.From && ts <= s.To
}

// MockHandDetector is a scripted HandDetector for tests: hands are present
// during the configured spans. Frames need no pixel data.
type MockHandDetector struct {
	ActiveSpans []Span
	Confidence  float64

	// Errs injects one error per listed timestamp span, for failure-policy
	// tests. Calls counts Detect invocations.
	Errs  []Span
	Calls int

	err error
}

// NewMockHandDetector creates a mock that reports hands during spans.
func NewMockHandDetector(spans ...Span) *MockHandDetector {
	return &MockHandDetector{ActiveSpans: spans, Confidence: 0.9}
}

// SetError makes every subsequent Detect call fail with err.
func (m *MockHandDetector) SetError(err error) {
	m.err = err
}

func (m *MockHandDetector) Detect(sample *video.FrameSample, region *config.RegionProfile) (Signal, error) {
	m.Calls++
	sig := Signal{Timestamp: sample.Timestamp, Kind: KindHand}
	if m.err != nil {
		return sig, m.err
	}
	for _, span := range m.Errs {
		if span.Contains(sample.Timestamp) {
			return sig, ErrNoFrameData
		}
	}
	for _, span := range m.ActiveSpans {
		if span.Contains(sample.Timestamp) {
			sig.Present = true
			sig.Confidence = m.Confidence
			break
		}
	}
	return sig, nil
}

func (m *MockHandDetector) Close() error { return nil }

// CodeSighting places one decodable code on the timeline: the code is
// readable while the sample timestamp is within Window of At. Narrow windows
// model labels that only face the camera for an instant, which is what makes
// the dense recovery pass find codes the sparse first pass missed.
type CodeSighting struct {
	At     float64
	Window float64
	Value  string
}

// MockCodeDetector is a scripted CodeDetector for tests.
type MockCodeDetector struct {
	Sightings []CodeSighting
	Calls     int

	err error
}

// NewMockCodeDetector creates a mock that decodes the given sightings.
func NewMockCodeDetector(sightings ...CodeSighting) *MockCodeDetector {
	return &MockCodeDetector{Sightings: sightings}
}

// SetError makes every subsequent Detect call fail with err.
func (m *MockCodeDetector) SetError(err error) {
	m.err = err
}

func (m *MockCodeDetector) Detect(sample *video.FrameSample, region *config.RegionProfile) (Signal, error) {
	m.Calls++
	sig := Signal{Timestamp: sample.Timestamp, Kind: KindCode}
	if m.err != nil {
		return sig, m.err
	}
	for _, s := range m.Sightings {
		delta := sample.Timestamp - s.At
		if delta < 0 {
			delta = -delta
		}
		if delta <= s.Window {
			sig.Codes = append(sig.Codes, s.Value)
		}
	}
	if len(sig.Codes) > 0 {
		sig.Present = true
		sig.Confidence = 1
	}
	return sig, nil
}

func (m *MockCodeDetector) Close() error { return nil }
