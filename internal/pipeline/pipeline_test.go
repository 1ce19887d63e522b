package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/nmorozov/packlens/internal/config"
	"github.com/nmorozov/packlens/internal/detector"
	"github.com/nmorozov/packlens/internal/event"
	"github.com/nmorozov/packlens/internal/video"
)

func testRegion() *config.RegionProfile {
	return &config.RegionProfile{
		CameraName:     "cam-1",
		PackingPolygon: []config.Point{{X: 0, Y: 0}, {X: 640, Y: 0}, {X: 640, Y: 480}, {X: 0, Y: 480}},
	}
}

func testPacking() config.PackingProfile {
	p := config.DefaultPackingProfile()
	p.MinPackingTime = 3
	p.MaxPackingTime = 120
	p.JumpTimeRatio = 0.5
	return p
}

// mockFactory returns a SamplerFactory over a synthetic timeline of the given
// duration. Recovery passes reuse the factory, so window options must apply.
func mockFactory(duration float64) SamplerFactory {
	return func(path string, opts video.Options) (video.Resampler, error) {
		return video.NewMockSampler(duration, opts), nil
	}
}

func newTestPipeline(packing config.PackingProfile, hands detector.HandDetector, codes detector.CodeDetector, duration float64) *Pipeline {
	p := New(2, packing, testRegion(), hands, codes)
	p.SetSamplerFactory(mockFactory(duration))
	return p
}

func TestRun_TwoBurstsWithCodes(t *testing.T) {
	hands := detector.NewMockHandDetector(
		detector.Span{From: 5, To: 15},
		detector.Span{From: 30, To: 42},
	)
	codes := detector.NewMockCodeDetector(
		detector.CodeSighting{At: 10, Window: 0.2, Value: "PKG-A"},
		detector.CodeSighting{At: 36, Window: 0.2, Value: "PKG-B"},
	)
	p := newTestPipeline(testPacking(), hands, codes, 60)

	res, err := p.Run(context.Background(), "video.mp4")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Summary.Partial {
		t.Fatalf("run should complete, got partial: %v", res.Summary.Err)
	}
	if len(res.Events) != 2 || res.Summary.EventsEmitted != 2 {
		t.Fatalf("got %d events (summary %d), want 2", len(res.Events), res.Summary.EventsEmitted)
	}

	first, second := res.Events[0], res.Events[1]
	if first.TS != 5 || first.TE != 15 {
		t.Errorf("first event = [%v,%v], want [5,15]", first.TS, first.TE)
	}
	if second.TS != 30 || second.TE != 42 {
		t.Errorf("second event = [%v,%v], want [30,42]", second.TS, second.TE)
	}
	if len(first.TrackingCodes) != 1 || first.TrackingCodes[0] != "PKG-A" {
		t.Errorf("first event codes = %v, want [PKG-A]", first.TrackingCodes)
	}
	if len(second.TrackingCodes) != 1 || second.TrackingCodes[0] != "PKG-B" {
		t.Errorf("second event codes = %v, want [PKG-B]", second.TrackingCodes)
	}
	if first.CameraName != "cam-1" || first.VideoFile != "video.mp4" {
		t.Errorf("event identity = %s/%s, want cam-1/video.mp4", first.CameraName, first.VideoFile)
	}
}

func TestRun_SingleDetectorFailureReadsAbsent(t *testing.T) {
	hands := detector.NewMockHandDetector(detector.Span{From: 5, To: 15})
	// One sample (ts=10.5) fails; the pause it creates is far below the
	// split threshold, so the burst stays one event.
	hands.Errs = []detector.Span{{From: 10.4, To: 10.6}}
	p := newTestPipeline(testPacking(), hands, detector.NewMockCodeDetector(), 30)

	res, err := p.Run(context.Background(), "video.mp4")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Summary.Partial {
		t.Fatalf("single failure must not abort the run: %v", res.Summary.Err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	if e := res.Events[0]; e.TS != 5 || e.TE != 15 {
		t.Errorf("event = [%v,%v], want [5,15]", e.TS, e.TE)
	}
}

func TestRun_ConsecutiveFailuresAbort(t *testing.T) {
	hands := detector.NewMockHandDetector(detector.Span{From: 5, To: 15})
	// Every sample from 16s on fails; the third consecutive error marks the
	// hand model unavailable.
	hands.Errs = []detector.Span{{From: 16, To: 30}}
	p := newTestPipeline(testPacking(), hands, detector.NewMockCodeDetector(), 30)

	res, err := p.Run(context.Background(), "video.mp4")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Summary.Partial {
		t.Fatal("run should be partial after detector escalation")
	}

	var ue *detector.UnavailableError
	if !errors.As(res.Summary.Err, &ue) {
		t.Fatalf("summary error = %v, want UnavailableError", res.Summary.Err)
	}
	if ue.Kind != detector.KindHand {
		t.Errorf("unavailable kind = %v, want hand", ue.Kind)
	}

	// The open window finalizes best-effort before the abort.
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	if e := res.Events[0]; e.TS != 5 || e.TE != 15 {
		t.Errorf("event = [%v,%v], want [5,15]", e.TS, e.TE)
	}
}

func TestRun_HealthyCodeReaderDoesNotResetHandGate(t *testing.T) {
	hands := detector.NewMockHandDetector()
	hands.SetError(errors.New("model gone"))
	p := newTestPipeline(testPacking(), hands, detector.NewMockCodeDetector(), 30)

	res, err := p.Run(context.Background(), "video.mp4")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Summary.Partial {
		t.Fatal("permanently broken hand model must abort the run")
	}
	if hands.Calls != maxConsecutiveFailures {
		t.Errorf("hand detector called %d times, want %d", hands.Calls, maxConsecutiveFailures)
	}
}

func TestRun_MediaFailureFinalizesPartial(t *testing.T) {
	hands := detector.NewMockHandDetector(detector.Span{From: 5, To: 40})
	p := New(2, testPacking(), testRegion(), hands, detector.NewMockCodeDetector())
	p.SetSamplerFactory(func(path string, opts video.Options) (video.Resampler, error) {
		s := video.NewMockSampler(100, opts)
		s.FailAt = 30
		return s, nil
	})

	res, err := p.Run(context.Background(), "video.mp4")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Summary.Partial {
		t.Fatal("mid-stream media failure should mark the run partial")
	}

	var me *video.MediaReadError
	if !errors.As(res.Summary.Err, &me) {
		t.Fatalf("summary error = %v, want MediaReadError", res.Summary.Err)
	}

	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	if e := res.Events[0]; e.TS != 5 || e.TE != 29.5 {
		t.Errorf("event = [%v,%v], want [5,29.5] from partial data", e.TS, e.TE)
	}
}

// handFunc adapts a function to the HandDetector interface.
type handFunc func(*video.FrameSample, *config.RegionProfile) (detector.Signal, error)

func (f handFunc) Detect(s *video.FrameSample, r *config.RegionProfile) (detector.Signal, error) {
	return f(s, r)
}

func (f handFunc) Close() error { return nil }

func TestRun_CancellationKeepsFinalizedWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hands := handFunc(func(s *video.FrameSample, _ *config.RegionProfile) (detector.Signal, error) {
		if s.Timestamp >= 10 {
			cancel()
		}
		return detector.Signal{Timestamp: s.Timestamp, Kind: detector.KindHand, Present: true, Confidence: 0.9}, nil
	})
	p := newTestPipeline(testPacking(), hands, detector.NewMockCodeDetector(), 60)

	res, err := p.Run(ctx, "video.mp4")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Summary.Partial || !errors.Is(res.Summary.Err, context.Canceled) {
		t.Fatalf("summary = %+v, want partial with context.Canceled", res.Summary)
	}
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want the open window finalized", len(res.Events))
	}
	if e := res.Events[0]; e.TS != 0 || e.TE != 10 {
		t.Errorf("event = [%v,%v], want [0,10]", e.TS, e.TE)
	}
}

func TestRun_TriggerModeGatesCodeReading(t *testing.T) {
	packing := testPacking()
	packing.ScanMode = config.ScanModeTrigger

	hands := detector.NewMockHandDetector(detector.Span{From: 10, To: 20})
	codes := detector.NewMockCodeDetector(
		detector.CodeSighting{At: 15, Window: 0.2, Value: "PKG-IN"},
		detector.CodeSighting{At: 35, Window: 0.2, Value: "PKG-OUT"},
	)
	p := newTestPipeline(packing, hands, codes, 40)

	res, err := p.Run(context.Background(), "video.mp4")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}

	e := res.Events[0]
	if len(e.TrackingCodes) != 1 || e.TrackingCodes[0] != "PKG-IN" {
		t.Errorf("codes = %v, want only the in-window code", e.TrackingCodes)
	}
	// Outside the window the code reader is never consulted, so it sees far
	// fewer frames than the hand detector.
	if codes.Calls >= hands.Calls {
		t.Errorf("code reader saw %d frames, hand detector %d; expected gating", codes.Calls, hands.Calls)
	}
	// Boundary boosts densify sampling beyond the 80 uniform samples.
	if hands.Calls <= 80 {
		t.Errorf("hand detector saw %d frames, expected boundary boosts to add samples", hands.Calls)
	}
}

func TestRecover_FindsMissedCodes(t *testing.T) {
	// The label faces the camera for 60ms at ts=25.25: the 0.5s first-pass
	// grid misses it, the 0.1s recovery grid hits it.
	codes := detector.NewMockCodeDetector(
		detector.CodeSighting{At: 25.25, Window: 0.06, Value: "PKG-HIDDEN"},
	)
	hands := detector.NewMockHandDetector(detector.Span{From: 20, To: 30})
	p := newTestPipeline(testPacking(), hands, codes, 60)

	res, err := p.Run(context.Background(), "video.mp4")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Events) != 1 || res.Events[0].HasCodes() {
		t.Fatalf("first pass should emit one codeless event, got %+v", res.Events)
	}

	events := []*event.Event{&res.Events[0]}
	recovered, failed, err := p.Recover(context.Background(), "video.mp4", events)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if recovered != 1 || failed != 0 {
		t.Fatalf("recovered/failed = %d/%d, want 1/0", recovered, failed)
	}

	e := events[0]
	if !e.IsRecovered || !e.RecoveryAttempted {
		t.Errorf("flags = recovered:%v attempted:%v, want both set", e.IsRecovered, e.RecoveryAttempted)
	}
	if len(e.TrackingCodes) != 1 || e.TrackingCodes[0] != "PKG-HIDDEN" {
		t.Errorf("codes = %v, want [PKG-HIDDEN]", e.TrackingCodes)
	}
	// Boundaries never move during recovery.
	if e.TS != 20 || e.TE != 30 {
		t.Errorf("event = [%v,%v], want boundaries unchanged [20,30]", e.TS, e.TE)
	}
}

func TestRecover_OneAttemptPerEvent(t *testing.T) {
	codes := detector.NewMockCodeDetector()
	hands := detector.NewMockHandDetector(detector.Span{From: 20, To: 30})
	p := newTestPipeline(testPacking(), hands, codes, 60)

	res, err := p.Run(context.Background(), "video.mp4")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	events := []*event.Event{&res.Events[0]}

	if _, failed, err := p.Recover(context.Background(), "video.mp4", events); err != nil || failed != 1 {
		t.Fatalf("first Recover() = failed:%d err:%v, want 1/nil", failed, err)
	}
	callsAfterFirst := codes.Calls

	recovered, failed, err := p.Recover(context.Background(), "video.mp4", events)
	if err != nil || recovered != 0 || failed != 0 {
		t.Fatalf("second Recover() = %d/%d/%v, want 0/0/nil", recovered, failed, err)
	}
	if codes.Calls != callsAfterFirst {
		t.Error("second Recover() must not re-scan an attempted event")
	}
}

func TestRecover_SkipsEventsWithCodes(t *testing.T) {
	codes := detector.NewMockCodeDetector()
	p := newTestPipeline(testPacking(), detector.NewMockHandDetector(), codes, 60)

	e := &event.Event{TS: 10, TE: 20, TrackingCodes: []string{"PKG-OK"}}
	recovered, failed, err := p.Recover(context.Background(), "video.mp4", []*event.Event{e})
	if err != nil || recovered != 0 || failed != 0 {
		t.Fatalf("Recover() = %d/%d/%v, want 0/0/nil", recovered, failed, err)
	}
	if codes.Calls != 0 {
		t.Error("events that already have codes must not be re-scanned")
	}
	if e.RecoveryAttempted {
		t.Error("skipped events must not burn their recovery attempt")
	}
}

func TestRecover_DetectorUnavailableStopsPass(t *testing.T) {
	codes := detector.NewMockCodeDetector()
	codes.SetError(errors.New("camera matrix gone"))
	p := newTestPipeline(testPacking(), detector.NewMockHandDetector(), codes, 60)

	events := []*event.Event{
		{TS: 10, TE: 20},
		{TS: 30, TE: 40},
	}
	_, _, err := p.Recover(context.Background(), "video.mp4", events)

	var ue *detector.UnavailableError
	if !errors.As(err, &ue) || ue.Kind != detector.KindCode {
		t.Fatalf("Recover() error = %v, want code UnavailableError", err)
	}
	// The pass stops at the broken event; later ones keep their attempt.
	if !events[0].RecoveryAttempted {
		t.Error("first event should be marked attempted")
	}
	if events[1].RecoveryAttempted {
		t.Error("remaining events must be left unattempted")
	}
}
