package video

import (
	"errors"

	"gocv.io/x/gocv"
)

// FileSampler samples frames from a video file using GoCV. It seeks to each
// sample timestamp rather than decoding every intermediate frame, so sparse
// passes stay cheap on long videos.
type FileSampler struct {
	path     string
	capture  *gocv.VideoCapture
	interval float64
	duration float64
	nativeTick float64

	nextTS float64
	to     float64
	lastTS float64

	cur     *FrameSample
	curMat  gocv.Mat
	err     error
	done    bool
	started bool
}

// NewFileSampler opens the video at path for sampling. Open failures are
// reported as *MediaReadError.
func NewFileSampler(path string, opts Options) (*FileSampler, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, &MediaReadError{Path: path, Err: err}
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	frames := capture.Get(gocv.VideoCaptureFrameCount)

	duration := -1.0
	nativeTick := 0.0
	if fps > 0 {
		nativeTick = 1 / fps
		if frames > 0 {
			duration = frames / fps
		}
	}

	s := &FileSampler{
		path:       path,
		capture:    capture,
		interval:   opts.interval(),
		duration:   duration,
		nativeTick: nativeTick,
		nextTS:     opts.From,
		to:         opts.To,
		lastTS:     opts.From,
	}
	if s.nextTS < 0 {
		s.nextTS = 0
	}
	return s, nil
}

// Next advances to the next sampled frame. It returns false when the stream
// is exhausted or a read error occurred; check Err afterwards.
func (s *FileSampler) Next() bool {
	s.releaseCurrent()

	if s.done || s.err != nil {
		return false
	}

	ts := s.nextTS
	if s.to > 0 && ts > s.to {
		s.done = true
		return false
	}
	if s.duration >= 0 && ts >= s.duration {
		s.done = true
		return false
	}

	s.capture.Set(gocv.VideoCapturePosMsec, ts*1000)

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		s.done = true
		// A failed read before the known end of the video is decode
		// breakage, not exhaustion.
		if s.duration >= 0 && ts < s.duration-s.nativeTick {
			s.err = &MediaReadError{
				Path:          s.path,
				LastTimestamp: s.lastTS,
				Err:           errors.New("frame decode failed mid-stream"),
			}
		}
		return false
	}

	index := int(s.capture.Get(gocv.VideoCapturePosFrames)) - 1
	if index < 0 {
		index = 0
	}

	s.curMat = mat
	s.cur = &FrameSample{Timestamp: ts, Index: index, Mat: &s.curMat}
	s.lastTS = ts
	s.nextTS = ts + s.interval
	s.started = true
	return true
}

// Sample returns the current frame. Only valid after Next returned true and
// until the following Next or Close call.
func (s *FileSampler) Sample() *FrameSample {
	return s.cur
}

// Err returns the terminal error, if any, once Next has returned false.
func (s *FileSampler) Err() error {
	return s.err
}

// Close releases the capture and any outstanding frame.
func (s *FileSampler) Close() error {
	s.releaseCurrent()
	s.done = true
	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	return err
}

// SetInterval changes the sampling step for subsequent frames. Values <= 0
// are ignored.
func (s *FileSampler) SetInterval(seconds float64) {
	if seconds <= 0 {
		return
	}
	// Reschedule the pending sample from the last read frame so a boost
	// takes effect immediately rather than after one more sparse step.
	if s.started {
		s.nextTS = s.lastTS + seconds
	}
	s.interval = seconds
}

// Pending returns the timestamp the next Next call will sample.
func (s *FileSampler) Pending() float64 {
	return s.nextTS
}

func (s *FileSampler) releaseCurrent() {
	if s.cur != nil {
		s.curMat.Close()
		s.cur = nil
	}
}
