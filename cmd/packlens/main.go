package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nmorozov/packlens/internal/app"
	"github.com/nmorozov/packlens/internal/config"
	"github.com/nmorozov/packlens/internal/store"
)

func main() {
	configPath := flag.String("config", "packlens.toml", "path to the TOML configuration file")
	dbPath := flag.String("db", "", "override the event database path")
	workers := flag.Int("workers", 0, "override the worker pool size")
	camera := flag.String("camera", "", "camera name for all given videos (default: derived from each file's parent directory)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: packlens [flags] video...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.Pipeline.DBPath = *dbPath
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}

	st, err := store.New(cfg.Pipeline.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	jobs := make([]app.Job, 0, flag.NArg())
	for _, path := range flag.Args() {
		name := *camera
		if name == "" {
			// Videos are laid out one directory per camera.
			name = filepath.Base(filepath.Dir(path))
		}
		jobs = append(jobs, app.Job{VideoPath: path, CameraName: name})
	}

	// Ctrl-C drains the pool, finalizing in-flight windows best-effort.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, st)
	summaries := a.ProcessVideos(ctx, jobs)

	failedRuns := 0
	for _, s := range summaries {
		status := "ok"
		if s.Partial {
			status = fmt.Sprintf("partial: %v", s.Err)
			failedRuns++
		}
		fmt.Printf("%s (%s): emitted=%d recovered=%d failed=%d [%s]\n",
			s.VideoFile, s.CameraName, s.EventsEmitted, s.EventsRecovered, s.EventsFailed, status)
	}

	if failedRuns > 0 {
		os.Exit(1)
	}
}
