package pipeline

import (
	"context"

	"github.com/nmorozov/packlens/internal/detector"
	"github.com/nmorozov/packlens/internal/event"
	"github.com/nmorozov/packlens/internal/video"
)

// Recover re-scans the time window of each event that finalized without a
// tracking code, at recoveryDensity times the first-pass rate, running only
// the code detector. Found codes are appended to the event; boundaries are
// never re-opened or re-split. Each event gets at most one attempt ever.
//
// Returns how many events recovered a code and how many remain empty. A
// non-nil error means the pass itself broke (media or detector runtime) and
// the remaining events were left unattempted.
func (p *Pipeline) Recover(ctx context.Context, videoPath string, events []*event.Event) (recovered, failed int, err error) {
	gate := &failureGate{kind: detector.KindCode}
	denseInterval := 1 / (p.sampleFPS * recoveryDensity)

	for _, e := range events {
		if e.HasCodes() || e.RecoveryAttempted {
			continue
		}
		if err := ctx.Err(); err != nil {
			return recovered, failed, err
		}

		e.RecoveryAttempted = true
		if err := p.recoverOne(ctx, videoPath, e, denseInterval, gate); err != nil {
			failed++
			return recovered, failed, err
		}

		if e.HasCodes() {
			e.IsRecovered = true
			recovered++
		} else {
			failed++
		}
	}
	return recovered, failed, nil
}

// recoverOne runs the dense code-only scan over one event's window.
func (p *Pipeline) recoverOne(ctx context.Context, videoPath string, e *event.Event, interval float64, gate *failureGate) error {
	from := e.TS - recoveryMarginSec
	if from < 0 {
		from = 0
	}

	sampler, err := p.newSampler(videoPath, video.Options{
		Interval: interval,
		From:     from,
		To:       e.TE + recoveryMarginSec,
	})
	if err != nil {
		return err
	}
	defer sampler.Close()

	for sampler.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		sig, err := p.codes.Detect(sampler.Sample(), p.region)
		if err != nil {
			if gate.fail(err) {
				return gate.unavailable()
			}
			continue
		}
		gate.ok()

		for _, value := range sig.Codes {
			e.AddCode(value)
		}
	}
	// A window that fails to decode mid-scan just yields fewer samples;
	// the event keeps whatever was found.
	return nil
}
