// Package detector provides the per-frame signal extractors: hand presence
// within the packing polygon and tracking-code decoding within the trigger
// polygon.
package detector

import "image"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbTip     = 4
	IndexTip     = 8
	MiddleMCP    = 9
	MiddleTip    = 12
	RingTip      = 16
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D represents a landmark position. X and Y are normalized to [0,1]
// relative to the image the detector saw; Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by the hand
// service for one hand.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// FramePoints maps the normalized landmark coordinates back into full-frame
// pixel coordinates, given the crop rectangle the detector operated on.
func (h *HandLandmarks) FramePoints(crop image.Rectangle) []image.Point {
	pts := make([]image.Point, NumLandmarks)
	w := float64(crop.Dx())
	ht := float64(crop.Dy())
	for i, p := range h.Points {
		pts[i] = image.Point{
			X: crop.Min.X + int(p.X*w),
			Y: crop.Min.Y + int(p.Y*ht),
		}
	}
	return pts
}

// InPolygon reports whether any landmark of the hand, mapped back to frame
// coordinates, lies inside the polygon.
func (h *HandLandmarks) InPolygon(crop image.Rectangle, polygon []image.Point) bool {
	for _, p := range h.FramePoints(crop) {
		if pointInPolygon(p, polygon) {
			return true
		}
	}
	return false
}

// pointInPolygon is a standard ray-casting test.
func pointInPolygon(p image.Point, polygon []image.Point) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		pi, pj := polygon[i], polygon[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			cross := float64(pj.X-pi.X)*float64(p.Y-pi.Y)/float64(pj.Y-pi.Y) + float64(pi.X)
			if float64(p.X) < cross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
