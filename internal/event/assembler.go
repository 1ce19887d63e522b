package event

import (
	"math"

	"github.com/nmorozov/packlens/internal/config"
	"github.com/nmorozov/packlens/internal/detector"
)

// State is the assembler's position in its per-video state machine.
type State int

const (
	// StateIdle means no activity window is open.
	StateIdle State = iota
	// StateActive means a window is open and hands were present on the
	// most recent hand signal.
	StateActive
	// StateCooldown means a window is open but hands have gone absent;
	// the gap timer decides merge versus split.
	StateCooldown
	// StateClosed means the stream ended and the assembler is finished.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCooldown:
		return "cooldown"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Assembler folds the ordered signal stream of one video into finalized
// events. It is not safe for concurrent use; each video gets its own.
//
// Events are emitted in non-decreasing start order and never overlap: a new
// window cannot open before the previous one is finalized.
type Assembler struct {
	camera    string
	videoFile string
	profile   config.PackingProfile

	state State
	win   *window
}

// NewAssembler creates an assembler for one camera/video run.
func NewAssembler(camera, videoFile string, profile config.PackingProfile) *Assembler {
	return &Assembler{
		camera:    camera,
		videoFile: videoFile,
		profile:   profile,
		state:     StateIdle,
	}
}

// State returns the current machine state.
func (a *Assembler) State() State {
	return a.state
}

// WindowOpen reports whether an activity window is currently accumulating.
func (a *Assembler) WindowOpen() bool {
	return a.win != nil
}

// Feed consumes one signal and returns any events it finalized, usually
// none. Signals must arrive in non-decreasing timestamp order.
func (a *Assembler) Feed(sig detector.Signal) []Event {
	if a.state == StateClosed {
		return nil
	}

	switch sig.Kind {
	case detector.KindCode:
		a.feedCode(sig)
		return nil
	case detector.KindHand:
		return a.feedHand(sig)
	}
	return nil
}

// feedCode credits decoded codes to the open window. Codes arriving during
// cooldown still count: the window may yet merge back to active.
func (a *Assembler) feedCode(sig detector.Signal) {
	if a.win == nil {
		return
	}
	for _, value := range sig.Codes {
		a.win.codeHits = append(a.win.codeHits, codeHit{ts: sig.Timestamp, value: value})
	}
}

func (a *Assembler) feedHand(sig detector.Signal) []Event {
	switch a.state {
	case StateIdle:
		if sig.Present {
			a.win = newWindow(sig.Timestamp)
			a.state = StateActive
		}
		return nil

	case StateActive:
		if sig.Present {
			a.win.markActive(sig.Timestamp)
			return nil
		}
		a.state = StateCooldown
		return nil

	case StateCooldown:
		gap := sig.Timestamp - a.win.lastActive
		threshold := a.profile.JumpTimeRatio * math.Max(a.win.duration(), a.profile.MinPackingTime)

		if sig.Present {
			if gap <= threshold {
				// Same packing action resuming after a short pause.
				a.win.markActive(sig.Timestamp)
				a.state = StateActive
				return nil
			}
			// The pause was long enough to split: finalize and open
			// the next window directly in active.
			events := a.finalizeWindow()
			a.win = newWindow(sig.Timestamp)
			a.state = StateActive
			return events
		}

		if gap > threshold {
			// Prolonged absence: the window cannot merge anymore.
			events := a.finalizeWindow()
			a.state = StateIdle
			return events
		}
		return nil
	}
	return nil
}

// Close finalizes any still-open window with the last known active timestamp
// and terminates the machine. Used at end-of-stream, on cancellation, and on
// mid-stream media failure.
func (a *Assembler) Close() []Event {
	if a.state == StateClosed {
		return nil
	}
	a.state = StateClosed
	if a.win == nil {
		return nil
	}
	return a.finalizeWindow()
}

// finalizeWindow applies the duration thresholds and converts the window into
// zero or more events.
func (a *Assembler) finalizeWindow() []Event {
	w := a.win
	a.win = nil

	frags := splitWindow(w, a.profile.MinPackingTime, a.profile.MaxPackingTime)
	if len(frags) == 0 {
		return nil
	}

	events := make([]Event, 0, len(frags))
	for _, f := range frags {
		e := Event{
			VideoFile:  a.videoFile,
			CameraName: a.camera,
			TS:         f.ts,
			TE:         f.te,
		}
		for _, hit := range f.hits {
			e.AddCode(hit.value)
		}
		events = append(events, e)
	}
	return events
}
