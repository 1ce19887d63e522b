package detector

import (
	"github.com/nmorozov/packlens/internal/config"
	"github.com/nmorozov/packlens/internal/video"

	"gocv.io/x/gocv"
)

// CodeReader implements CodeDetector using GoCV's QR code detector. The frame
// is masked to the region's trigger polygon before decoding; with no trigger
// polygon the whole frame is searched.
type CodeReader struct {
	detector gocv.QRCodeDetector
	marginPx int
}

// NewCodeReader creates a CodeReader. marginPx widens the trigger polygon
// crop to tolerate codes near the polygon edge.
func NewCodeReader(marginPx int) *CodeReader {
	return &CodeReader{
		detector: gocv.NewQRCodeDetector(),
		marginPx: marginPx,
	}
}

// Detect decodes any machine-readable codes in the sample's trigger region.
func (c *CodeReader) Detect(sample *video.FrameSample, region *config.RegionProfile) (Signal, error) {
	sig := Signal{Timestamp: sample.Timestamp, Kind: KindCode}

	if sample.Mat == nil {
		return sig, ErrNoFrameData
	}

	input := *sample.Mat
	polygon := region.TriggerPoints()
	if len(polygon) > 0 {
		masked, _, ok := maskToPolygon(sample.Mat, polygon, c.marginPx)
		if !ok {
			return sig, nil
		}
		defer masked.Close()
		input = masked
	}

	var decoded []string
	points := gocv.NewMat()
	defer points.Close()
	var qrCodes []gocv.Mat

	if ok := c.detector.DetectAndDecodeMulti(input, &decoded, &points, &qrCodes); !ok {
		return sig, nil
	}
	for i := range qrCodes {
		qrCodes[i].Close()
	}

	for _, value := range decoded {
		if value == "" {
			continue
		}
		sig.Codes = append(sig.Codes, value)
	}
	if len(sig.Codes) > 0 {
		sig.Present = true
		sig.Confidence = 1
	}
	return sig, nil
}

// Close releases the underlying detector.
func (c *CodeReader) Close() error {
	return c.detector.Close()
}
