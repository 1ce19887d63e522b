package e2e

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nmorozov/packlens/internal/app"
	"github.com/nmorozov/packlens/internal/config"
	"github.com/nmorozov/packlens/internal/detector"
	"github.com/nmorozov/packlens/internal/pipeline"
	"github.com/nmorozov/packlens/internal/store"
	"github.com/nmorozov/packlens/internal/video"
)

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "data.db")

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	cfg := config.Default()
	cfg.Pipeline.Workers = 2
	cfg.Cameras = []config.RegionProfile{
		{
			CameraName:     "station-1",
			PackingPolygon: []config.Point{{X: 0, Y: 0}, {X: 640, Y: 0}, {X: 640, Y: 480}, {X: 0, Y: 480}},
		},
		{
			CameraName:     "station-2",
			PackingPolygon: []config.Point{{X: 0, Y: 0}, {X: 320, Y: 0}, {X: 320, Y: 240}},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config.Validate() error = %v", err)
	}

	// Ten bursts of 20 seconds, 46 seconds apart: eight labels readable by
	// the sparse pass, one readable only by the dense recovery pass, one
	// parcel without a label.
	const bursts = 10
	var spans []detector.Span
	var sightings []detector.CodeSighting
	for k := 0; k < bursts; k++ {
		start := 46.0 * float64(k)
		spans = append(spans, detector.Span{From: start, To: start + 20})
		switch {
		case k < 8:
			sightings = append(sightings, detector.CodeSighting{
				At: start + 10, Window: 0.2, Value: fmt.Sprintf("PKG-%03d", k),
			})
		case k < 9:
			sightings = append(sightings, detector.CodeSighting{
				At: start + 10.25, Window: 0.06, Value: fmt.Sprintf("PKG-%03d", k),
			})
		}
	}

	application := app.New(cfg, s)
	application.SetDetectorFactory(func() (detector.HandDetector, detector.CodeDetector, error) {
		return detector.NewMockHandDetector(spans...), detector.NewMockCodeDetector(sightings...), nil
	})
	application.SetSamplerFactory(func(path string, opts video.Options) (video.Resampler, error) {
		return video.NewMockSampler(480, opts), nil
	})

	jobs := []app.Job{
		{VideoPath: "station-1/shift.mp4", CameraName: "station-1"},
		{VideoPath: "station-2/shift.mp4", CameraName: "station-2"},
	}

	var summaries []pipeline.Summary

	t.Run("ProcessBatch", func(t *testing.T) {
		summaries = application.ProcessVideos(context.Background(), jobs)
		if len(summaries) != len(jobs) {
			t.Fatalf("got %d summaries, want %d", len(summaries), len(jobs))
		}
		for i, summary := range summaries {
			if summary.Partial {
				t.Fatalf("job %d partial: %v", i, summary.Err)
			}
			if summary.EventsEmitted != bursts {
				t.Errorf("job %d emitted %d events, want %d", i, summary.EventsEmitted, bursts)
			}
			if summary.EventsRecovered != 1 {
				t.Errorf("job %d recovered %d events, want 1", i, summary.EventsRecovered)
			}
			if summary.EventsFailed != 1 {
				t.Errorf("job %d failed %d events, want 1", i, summary.EventsFailed)
			}
		}
	})

	t.Run("EventsPersisted", func(t *testing.T) {
		for _, job := range jobs {
			events, err := s.Events().ListByVideo(job.VideoPath)
			if err != nil {
				t.Fatalf("ListByVideo(%s) error = %v", job.VideoPath, err)
			}
			if len(events) != bursts {
				t.Fatalf("%s: got %d stored events, want %d", job.VideoPath, len(events), bursts)
			}

			for k, e := range events {
				start := 46.0 * float64(k)
				if e.TS != start || e.TE != start+20 {
					t.Errorf("%s event %d = [%v,%v], want [%v,%v]", job.VideoPath, k, e.TS, e.TE, start, start+20)
				}
				if e.CameraName != job.CameraName {
					t.Errorf("%s event %d camera = %q, want %q", job.VideoPath, k, e.CameraName, job.CameraName)
				}
				if e.EventID == "" {
					t.Errorf("%s event %d has no sink-assigned ID", job.VideoPath, k)
				}

				switch {
				case k < 8:
					if len(e.TrackingCodes) != 1 || e.TrackingCodes[0] != fmt.Sprintf("PKG-%03d", k) {
						t.Errorf("%s event %d codes = %v", job.VideoPath, k, e.TrackingCodes)
					}
				case k < 9:
					if !e.IsRecovered || !e.HasCodes() {
						t.Errorf("%s event %d should be recovered, got %+v", job.VideoPath, k, e)
					}
				default:
					if e.HasCodes() || !e.RecoveryAttempted {
						t.Errorf("%s event %d should be codeless with a burned attempt, got %+v", job.VideoPath, k, e)
					}
				}
			}
		}
	})

	t.Run("RerunIsIdempotent", func(t *testing.T) {
		before := make(map[string]string)
		events, err := s.Events().ListByVideo(jobs[0].VideoPath)
		if err != nil {
			t.Fatalf("ListByVideo() error = %v", err)
		}
		for _, e := range events {
			before[fmt.Sprintf("%v-%v", e.TS, e.TE)] = e.EventID
		}

		rerun := application.ProcessVideos(context.Background(), jobs[:1])
		if rerun[0].Partial {
			t.Fatalf("re-run partial: %v", rerun[0].Err)
		}

		n, err := s.Events().CountByVideo(jobs[0].VideoPath)
		if err != nil {
			t.Fatalf("CountByVideo() error = %v", err)
		}
		if n != bursts {
			t.Errorf("re-run changed row count to %d, want %d", n, bursts)
		}

		events, err = s.Events().ListByVideo(jobs[0].VideoPath)
		if err != nil {
			t.Fatalf("ListByVideo() error = %v", err)
		}
		for _, e := range events {
			if id := before[fmt.Sprintf("%v-%v", e.TS, e.TE)]; id != e.EventID {
				t.Errorf("re-run changed event ID at [%v,%v]: %q -> %q", e.TS, e.TE, id, e.EventID)
			}
			if !e.RecoveryAttempted && !e.HasCodes() {
				t.Errorf("recovery attempt flag lost on re-run at [%v,%v]", e.TS, e.TE)
			}
		}
	})

	t.Run("LongSessionSplits", func(t *testing.T) {
		longApp := app.New(cfg, s)
		longApp.SetDetectorFactory(func() (detector.HandDetector, detector.CodeDetector, error) {
			// One 130-second session: longer than max_packing_time, so
			// it must come back as two fragments.
			return detector.NewMockHandDetector(detector.Span{From: 10, To: 140}),
				detector.NewMockCodeDetector(detector.CodeSighting{At: 30, Window: 0.2, Value: "PKG-LONG"}), nil
		})
		longApp.SetSamplerFactory(func(path string, opts video.Options) (video.Resampler, error) {
			return video.NewMockSampler(200, opts), nil
		})

		summaries := longApp.ProcessVideos(context.Background(), []app.Job{
			{VideoPath: "station-1/long.mp4", CameraName: "station-1"},
		})
		if summaries[0].Partial {
			t.Fatalf("long session run partial: %v", summaries[0].Err)
		}
		if summaries[0].EventsEmitted != 2 {
			t.Fatalf("emitted %d events, want the over-long session split into 2", summaries[0].EventsEmitted)
		}

		events, err := s.Events().ListByVideo("station-1/long.mp4")
		if err != nil {
			t.Fatalf("ListByVideo() error = %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("got %d stored events, want 2", len(events))
		}
		total := events[0].Duration() + events[1].Duration()
		if total != 130 {
			t.Errorf("fragment durations sum to %v, want 130", total)
		}
		if events[0].TE != events[1].TS {
			t.Errorf("fragments not contiguous: %v vs %v", events[0].TE, events[1].TS)
		}
		if events[0].Duration() > cfg.Packing.MaxPackingTime || events[1].Duration() > cfg.Packing.MaxPackingTime {
			t.Errorf("fragment exceeds max duration: %v / %v", events[0].Duration(), events[1].Duration())
		}
		// The code lands in the fragment covering its timestamp.
		if len(events[0].TrackingCodes) != 1 || events[0].TrackingCodes[0] != "PKG-LONG" {
			t.Errorf("first fragment codes = %v, want [PKG-LONG]", events[0].TrackingCodes)
		}
	})
}
