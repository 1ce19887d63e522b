// Package config provides the immutable profiles that parameterize a
// processing run: per-camera regions of interest and the packing-time
// thresholds of the event assembler.
package config

import (
	"errors"
	"fmt"
	"image"
)

// ScanMode selects how the first pass samples a video.
type ScanMode string

const (
	// ScanModeFull samples uniformly across the whole video.
	ScanModeFull ScanMode = "full"
	// ScanModeTrigger samples uniformly but densifies around activity
	// boundaries reported by the event assembler.
	ScanModeTrigger ScanMode = "trigger"
)

// Point is one vertex of a region polygon in frame pixel coordinates.
type Point struct {
	X int `toml:"x"`
	Y int `toml:"y"`
}

// RegionProfile describes the screen-space areas of one camera that are
// relevant for detection. PackingPolygon bounds hand activity; TriggerPolygon
// bounds code reading and may be empty, in which case the whole frame is
// searched for codes.
type RegionProfile struct {
	CameraName     string  `toml:"camera_name"`
	PackingPolygon []Point `toml:"packing_polygon"`
	TriggerPolygon []Point `toml:"trigger_polygon"`
}

// PackingPoints returns the packing polygon as image points for gocv.
func (r *RegionProfile) PackingPoints() []image.Point {
	return toImagePoints(r.PackingPolygon)
}

// TriggerPoints returns the trigger polygon as image points for gocv.
// Returns nil when no trigger polygon is configured.
func (r *RegionProfile) TriggerPoints() []image.Point {
	return toImagePoints(r.TriggerPolygon)
}

func toImagePoints(pts []Point) []image.Point {
	if len(pts) == 0 {
		return nil
	}
	out := make([]image.Point, len(pts))
	for i, p := range pts {
		out[i] = image.Point{X: p.X, Y: p.Y}
	}
	return out
}

// Validate checks that the region profile can drive a run.
func (r *RegionProfile) Validate() error {
	if r.CameraName == "" {
		return errors.New("region profile: camera_name is required")
	}
	if len(r.PackingPolygon) < 3 {
		return fmt.Errorf("region profile %q: packing_polygon needs at least 3 vertices, got %d", r.CameraName, len(r.PackingPolygon))
	}
	if n := len(r.TriggerPolygon); n > 0 && n < 3 {
		return fmt.Errorf("region profile %q: trigger_polygon needs at least 3 vertices, got %d", r.CameraName, n)
	}
	return nil
}

// PackingProfile holds the thresholds governing event duration and the
// merge/split policy of the event assembler.
type PackingProfile struct {
	// MinPackingTime is the shortest duration, in seconds, a finalized
	// window may have. Shorter windows are discarded as noise.
	MinPackingTime float64 `toml:"min_packing_time"`

	// MaxPackingTime is the longest duration, in seconds, a finalized
	// event may have. Longer windows are split.
	MaxPackingTime float64 `toml:"max_packing_time"`

	// JumpTimeRatio scales the pause needed to split two nearby activity
	// bursts into separate events. The split threshold is
	// JumpTimeRatio * max(window duration, MinPackingTime).
	JumpTimeRatio float64 `toml:"jump_time_ratio"`

	// ScanMode selects full or trigger-gated first-pass sampling.
	ScanMode ScanMode `toml:"scan_mode"`

	// FixedThreshold is the minimum hand-landmark confidence for a frame
	// to count as hand-present.
	FixedThreshold float64 `toml:"fixed_threshold"`

	// MarginPx widens the polygon bounding rect when cropping frames for
	// the detectors, tolerating detections near the polygon edge.
	MarginPx int `toml:"margin_px"`
}

// DefaultPackingProfile returns a PackingProfile with tuned default values.
func DefaultPackingProfile() PackingProfile {
	return PackingProfile{
		MinPackingTime: 3,
		MaxPackingTime: 120,
		JumpTimeRatio:  0.5,
		ScanMode:       ScanModeFull,
		FixedThreshold: 0.5,
		MarginPx:       20,
	}
}

// Validate checks the thresholds for internal consistency.
func (p *PackingProfile) Validate() error {
	if p.MinPackingTime <= 0 {
		return fmt.Errorf("packing profile: min_packing_time must be positive, got %v", p.MinPackingTime)
	}
	if p.MaxPackingTime < p.MinPackingTime {
		return fmt.Errorf("packing profile: max_packing_time %v is below min_packing_time %v", p.MaxPackingTime, p.MinPackingTime)
	}
	if p.JumpTimeRatio <= 0 || p.JumpTimeRatio > 1 {
		return fmt.Errorf("packing profile: jump_time_ratio must be in (0,1], got %v", p.JumpTimeRatio)
	}
	if p.ScanMode != ScanModeFull && p.ScanMode != ScanModeTrigger {
		return fmt.Errorf("packing profile: unknown scan_mode %q", p.ScanMode)
	}
	if p.FixedThreshold < 0 || p.FixedThreshold > 1 {
		return fmt.Errorf("packing profile: fixed_threshold must be in [0,1], got %v", p.FixedThreshold)
	}
	if p.MarginPx < 0 {
		return fmt.Errorf("packing profile: margin_px must not be negative, got %d", p.MarginPx)
	}
	return nil
}
