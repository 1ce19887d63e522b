// Package event assembles ordered per-frame detection signals into finalized,
// non-overlapping packing events. All temporal state of the system lives
// here, in one Assembler per video, never shared between videos.
package event

// Event is the durable output of the assembler: one time-bounded interval of
// packing activity with zero or more decoded tracking codes.
type Event struct {
	// EventID is assigned by the storage sink, not by the assembler.
	EventID    string
	VideoFile  string
	CameraName string

	// TS and TE are the start and end timestamps in seconds from the
	// start of the video.
	TS float64
	TE float64

	// TrackingCodes is the ordered, de-duplicated sequence of decoded
	// codes. It may be empty; the recovery pass then gets one attempt to
	// fill it.
	TrackingCodes []string

	// IsRecovered is set when the recovery pass found at least one code.
	IsRecovered bool
	// RecoveryAttempted is set once the recovery pass ran for this event,
	// regardless of outcome. An event is never attempted twice.
	RecoveryAttempted bool
}

// Duration returns TE - TS in seconds.
func (e *Event) Duration() float64 {
	return e.TE - e.TS
}

// HasCodes reports whether at least one tracking code was decoded.
func (e *Event) HasCodes() bool {
	return len(e.TrackingCodes) > 0
}

// AddCode appends a code if not already present. Existing codes are never
// removed or reordered.
func (e *Event) AddCode(value string) bool {
	for _, c := range e.TrackingCodes {
		if c == value {
			return false
		}
	}
	e.TrackingCodes = append(e.TrackingCodes, value)
	return true
}

// codeHit is a decoded code with the timestamp it was seen at. Kept per hit
// so a window split can assign each code to the fragment that contains it.
type codeHit struct {
	ts    float64
	value string
}

// window is the assembler's in-flight state for one burst of activity.
type window struct {
	start      float64
	lastActive float64

	// activeTimes are the timestamps of hand-present samples, in order.
	// Needed for gap-aligned splitting of over-long windows.
	activeTimes []float64
	codeHits    []codeHit
}

func newWindow(ts float64) *window {
	return &window{
		start:       ts,
		lastActive:  ts,
		activeTimes: []float64{ts},
	}
}

func (w *window) duration() float64 {
	return w.lastActive - w.start
}

func (w *window) markActive(ts float64) {
	w.lastActive = ts
	w.activeTimes = append(w.activeTimes, ts)
}
