// Package app wires the configuration, detectors, store, and per-video
// pipelines together and fans a batch of videos out over a bounded worker
// pool.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/nmorozov/packlens/internal/config"
	"github.com/nmorozov/packlens/internal/detector"
	"github.com/nmorozov/packlens/internal/event"
	"github.com/nmorozov/packlens/internal/pipeline"
	"github.com/nmorozov/packlens/internal/store"
)

// Job is one video to process for one camera.
type Job struct {
	VideoPath  string
	CameraName string
}

// DetectorFactory builds the extractor pair for one worker. Detectors are
// never shared between workers: each video is owned by one worker end to end.
type DetectorFactory func() (detector.HandDetector, detector.CodeDetector, error)

// App orchestrates batch processing of videos into the event sink.
type App struct {
	cfg            config.Config
	store          *store.Store
	newDetectors   DetectorFactory
	samplerFactory pipeline.SamplerFactory
}

// New creates an App. The default detector factory starts the hand service
// subprocess per worker and falls back to a mock detector when the service
// is not installed.
func New(cfg config.Config, st *store.Store) *App {
	a := &App{
		cfg:   cfg,
		store: st,
	}
	a.newDetectors = func() (detector.HandDetector, detector.CodeDetector, error) {
		dcfg := detector.DefaultConfig()
		dcfg.MinConfidence = cfg.Packing.FixedThreshold
		dcfg.MarginPx = cfg.Packing.MarginPx

		var hands detector.HandDetector
		if hs, err := detector.NewHandService(dcfg); err == nil {
			hands = hs
		} else {
			log.Printf("Hand service not available (%v), using mock detector", err)
			hands = detector.NewMockHandDetector()
		}
		return hands, detector.NewCodeReader(cfg.Packing.MarginPx), nil
	}
	return a
}

// SetDetectorFactory overrides how per-worker detectors are built. Used by
// tests.
func (a *App) SetDetectorFactory(f DetectorFactory) {
	a.newDetectors = f
}

// SetSamplerFactory overrides how video samplers are opened. Used by tests.
func (a *App) SetSamplerFactory(f pipeline.SamplerFactory) {
	a.samplerFactory = f
}

// ProcessVideos runs all jobs through the worker pool and returns one summary
// per job, in job order. A failing video never affects the other videos;
// cancellation drains the pool, finalizing in-flight work best-effort.
func (a *App) ProcessVideos(ctx context.Context, jobs []Job) []pipeline.Summary {
	summaries := make([]pipeline.Summary, len(jobs))

	var g errgroup.Group
	g.SetLimit(a.cfg.Pipeline.Workers)

	for i, job := range jobs {
		g.Go(func() error {
			summaries[i] = a.processOne(ctx, job)
			return nil
		})
	}
	g.Wait()

	return summaries
}

// processOne owns one video: first pass, recovery pass, sink writes.
func (a *App) processOne(ctx context.Context, job Job) pipeline.Summary {
	summary := pipeline.Summary{VideoFile: job.VideoPath, CameraName: job.CameraName}

	region, ok := a.cfg.Camera(job.CameraName)
	if !ok {
		summary.Partial = true
		summary.Err = fmt.Errorf("no region profile for camera %q", job.CameraName)
		return summary
	}

	hands, codes, err := a.newDetectors()
	if err != nil {
		summary.Partial = true
		summary.Err = fmt.Errorf("build detectors: %w", err)
		return summary
	}
	defer hands.Close()
	defer codes.Close()

	p := pipeline.New(a.cfg.Pipeline.SampleFPS, a.cfg.Packing, region, hands, codes)
	if a.samplerFactory != nil {
		p.SetSamplerFactory(a.samplerFactory)
	}

	res, err := p.Run(ctx, job.VideoPath)
	if err != nil {
		// The video could not even be opened: zero events, flagged run.
		summary.Partial = true
		summary.Err = err
		log.Printf("app: %s failed: %v", job.VideoPath, err)
		return summary
	}
	summary = res.Summary

	// The recovery pass runs unless the detector runtime is down; a broken
	// model would fail the dense pass the same way.
	var unavailable *detector.UnavailableError
	if !errors.As(summary.Err, &unavailable) {
		var pending []*event.Event
		for i := range res.Events {
			if !res.Events[i].HasCodes() {
				pending = append(pending, &res.Events[i])
			}
		}
		if len(pending) > 0 {
			recovered, _, err := p.Recover(ctx, job.VideoPath, pending)
			summary.EventsRecovered = recovered
			if err != nil {
				summary.Partial = true
				if summary.Err == nil {
					summary.Err = err
				}
			}
		}
	}

	for i := range res.Events {
		if _, err := a.store.Events().Upsert(&res.Events[i]); err != nil {
			summary.Partial = true
			if summary.Err == nil {
				summary.Err = fmt.Errorf("upsert event: %w", err)
			}
			log.Printf("app: %s: upsert event at [%.1f, %.1f]: %v", job.VideoPath, res.Events[i].TS, res.Events[i].TE, err)
		}
	}

	// Failed events are the ones still lacking a code after recovery had
	// its shot.
	for i := range res.Events {
		if !res.Events[i].HasCodes() {
			summary.EventsFailed++
		}
	}

	log.Printf("app: %s done: emitted=%d recovered=%d failed=%d partial=%v",
		job.VideoPath, summary.EventsEmitted, summary.EventsRecovered, summary.EventsFailed, summary.Partial)
	return summary
}
