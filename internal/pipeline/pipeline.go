// Package pipeline runs the per-video detection pass: frame sampling, signal
// extraction, event assembly, and the one-shot denser recovery pass for
// events whose tracking code failed to decode.
package pipeline

import (
	"context"
	"log"

	"github.com/nmorozov/packlens/internal/config"
	"github.com/nmorozov/packlens/internal/detector"
	"github.com/nmorozov/packlens/internal/event"
	"github.com/nmorozov/packlens/internal/video"
)

const (
	// maxConsecutiveFailures is how many extractor errors in a row mark
	// the detector runtime as broken rather than one frame as bad.
	maxConsecutiveFailures = 3

	// triggerDenseRatio is how much finer trigger-mode sampling gets
	// around an activity boundary.
	triggerDenseRatio = 5.0

	// triggerBoostSec is how far past a boundary the dense stretch runs.
	triggerBoostSec = 2.0

	// recoveryDensity makes the recovery pass five times denser than the
	// first pass.
	recoveryDensity = 5.0

	// recoveryMarginSec extends each recovered event's window on both
	// sides to tolerate boundary misses.
	recoveryMarginSec = 1.0
)

// SamplerFactory opens a sampler over a video. The default reads the file
// through GoCV; tests substitute mock timelines.
type SamplerFactory func(path string, opts video.Options) (video.Resampler, error)

// Pipeline processes one video at a time for one camera. It holds no
// per-video state; each Run builds a fresh assembler.
type Pipeline struct {
	sampleFPS  float64
	packing    config.PackingProfile
	region     *config.RegionProfile
	hands      detector.HandDetector
	codes      detector.CodeDetector
	newSampler SamplerFactory
}

// New creates a pipeline for the given camera region and packing thresholds.
func New(sampleFPS float64, packing config.PackingProfile, region *config.RegionProfile, hands detector.HandDetector, codes detector.CodeDetector) *Pipeline {
	return &Pipeline{
		sampleFPS: sampleFPS,
		packing:   packing,
		region:    region,
		hands:     hands,
		codes:     codes,
		newSampler: func(path string, opts video.Options) (video.Resampler, error) {
			return video.NewFileSampler(path, opts)
		},
	}
}

// SetSamplerFactory overrides how video samplers are opened. Used by tests.
func (p *Pipeline) SetSamplerFactory(f SamplerFactory) {
	p.newSampler = f
}

// Summary is the per-video run summary handed to external observability.
type Summary struct {
	VideoFile  string
	CameraName string

	EventsEmitted   int
	EventsRecovered int
	EventsFailed    int

	// Partial is set when the run aborted mid-stream (media failure,
	// detector failure, or cancellation) and Events holds only what was
	// finalized before the abort.
	Partial bool
	// Err is the terminal error of a partial run.
	Err error
}

// Result is the outcome of a first pass over one video.
type Result struct {
	Events  []event.Event
	Summary Summary
}

// failureGate implements the escalation policy for one extractor: a single
// error is recovered locally, three consecutive ones mean the model runtime
// is gone. Each extractor gets its own gate, so a healthy code reader cannot
// mask a dead hand model.
type failureGate struct {
	kind        detector.Kind
	consecutive int
	lastErr     error
}

// fail records one extractor error and reports whether to escalate.
func (g *failureGate) fail(err error) bool {
	g.consecutive++
	g.lastErr = err
	return g.consecutive >= maxConsecutiveFailures
}

func (g *failureGate) ok() {
	g.consecutive = 0
}

func (g *failureGate) unavailable() *detector.UnavailableError {
	return &detector.UnavailableError{Kind: g.kind, Err: g.lastErr}
}

// Run executes the first pass over one video. The returned result is non-nil
// whenever the video could be opened; aborted runs carry a partial summary
// and whatever events finalized before the abort. Only open failures return
// a nil result.
func (p *Pipeline) Run(ctx context.Context, videoPath string) (*Result, error) {
	interval := 1 / p.sampleFPS

	base, err := p.newSampler(videoPath, video.Options{Interval: interval})
	if err != nil {
		return nil, err
	}
	defer base.Close()

	var sampler video.Sampler = base
	var trigger *video.TriggerSampler
	if p.packing.ScanMode == config.ScanModeTrigger {
		trigger = video.NewTriggerSampler(base, interval, interval/triggerDenseRatio)
		sampler = trigger
	}

	asm := event.NewAssembler(p.region.CameraName, videoPath, p.packing)
	res := &Result{
		Summary: Summary{VideoFile: videoPath, CameraName: p.region.CameraName},
	}
	handGate := &failureGate{kind: detector.KindHand}
	codeGate := &failureGate{kind: detector.KindCode}

	for sampler.Next() {
		// Cooperative cancellation between frame-sample steps: keep
		// the work done so far rather than discarding it.
		if err := ctx.Err(); err != nil {
			return p.abort(res, asm, err), nil
		}

		sample := sampler.Sample()
		before := asm.State()

		handSig, err := p.hands.Detect(sample, p.region)
		if err != nil {
			if handGate.fail(err) {
				return p.abort(res, asm, handGate.unavailable()), nil
			}
			// One bad frame reads as hand-absent, never aborts.
			handSig = detector.Signal{Timestamp: sample.Timestamp, Kind: detector.KindHand}
		} else {
			handGate.ok()
		}
		res.Events = append(res.Events, asm.Feed(handSig)...)

		// Code reading runs on every sample in full scan mode; in
		// trigger mode only while a window is accumulating.
		if p.packing.ScanMode == config.ScanModeFull || asm.WindowOpen() {
			codeSig, err := p.codes.Detect(sample, p.region)
			if err != nil {
				if codeGate.fail(err) {
					return p.abort(res, asm, codeGate.unavailable()), nil
				}
			} else {
				codeGate.ok()
				asm.Feed(codeSig)
			}
		}

		if trigger != nil && asm.State() != before {
			trigger.Boost(sample.Timestamp + triggerBoostSec)
		}
	}

	if err := sampler.Err(); err != nil {
		// Decoding broke mid-stream: finalize the open window from
		// partial data and report the run partial.
		return p.abort(res, asm, err), nil
	}

	res.Events = append(res.Events, asm.Close()...)
	res.Summary.EventsEmitted = len(res.Events)
	return res, nil
}

// abort finalizes best-effort and stamps the summary partial.
func (p *Pipeline) abort(res *Result, asm *event.Assembler, cause error) *Result {
	res.Events = append(res.Events, asm.Close()...)
	res.Summary.EventsEmitted = len(res.Events)
	res.Summary.Partial = true
	res.Summary.Err = cause
	log.Printf("pipeline: %s aborted: %v (%d events finalized)", res.Summary.VideoFile, cause, len(res.Events))
	return res
}
