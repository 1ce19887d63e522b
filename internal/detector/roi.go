package detector

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// polygonRect returns the polygon's bounding rectangle widened by margin
// pixels and clipped to the frame bounds. ok is false when the polygon does
// not intersect the frame at all.
func polygonRect(polygon []image.Point, frame *gocv.Mat, margin int) (image.Rectangle, bool) {
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	if len(polygon) == 0 {
		return bounds, true
	}

	rect := image.Rectangle{Min: polygon[0], Max: polygon[0]}
	for _, p := range polygon[1:] {
		if p.X < rect.Min.X {
			rect.Min.X = p.X
		}
		if p.Y < rect.Min.Y {
			rect.Min.Y = p.Y
		}
		if p.X > rect.Max.X {
			rect.Max.X = p.X
		}
		if p.Y > rect.Max.Y {
			rect.Max.Y = p.Y
		}
	}
	rect.Max.X++
	rect.Max.Y++

	rect = rect.Inset(-margin).Intersect(bounds)
	if rect.Empty() {
		return rect, false
	}
	return rect, true
}

// cropToPolygon returns a view of the frame restricted to the polygon's
// bounding rect (plus margin). The caller must Close the returned Mat.
func cropToPolygon(frame *gocv.Mat, polygon []image.Point, margin int) (gocv.Mat, image.Rectangle, bool) {
	rect, ok := polygonRect(polygon, frame, margin)
	if !ok {
		return gocv.Mat{}, rect, false
	}
	return frame.Region(rect), rect, true
}

// maskToPolygon crops the frame to the polygon's bounding rect and blacks out
// everything outside the polygon itself, so the decoder never reads codes
// from irrelevant frame area. The caller must Close the returned Mat.
func maskToPolygon(frame *gocv.Mat, polygon []image.Point, margin int) (gocv.Mat, image.Rectangle, bool) {
	crop, rect, ok := cropToPolygon(frame, polygon, margin)
	if !ok {
		return gocv.Mat{}, rect, false
	}
	defer crop.Close()

	// Polygon vertices relative to the crop origin.
	local := make([]image.Point, len(polygon))
	for i, p := range polygon {
		local[i] = image.Point{X: p.X - rect.Min.X, Y: p.Y - rect.Min.Y}
	}

	mask := gocv.Zeros(crop.Rows(), crop.Cols(), gocv.MatTypeCV8UC1)
	defer mask.Close()

	pts := gocv.NewPointsVectorFromPoints([][]image.Point{local})
	defer pts.Close()
	gocv.FillPoly(&mask, pts, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	masked := gocv.Zeros(crop.Rows(), crop.Cols(), crop.Type())
	crop.CopyToWithMask(&masked, mask)
	return masked, rect, true
}
