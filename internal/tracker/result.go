package tracker

import (
	"time"

	"github.com/ayusman/handpos/internal/detector"
	"gocv.io/x/gocv"
)

// Result is the outcome of one CaptureAndDetect tick.
type Result struct {
	// Seq numbers successfully read frames from 1. It is 0 when the camera
	// read failed.
	Seq uint64
	// Hands lists every detected hand in the detector's order, which is not
	// stable across frames. Never nil.
	Hands []detector.Hand
	// Frame is the original BGR frame, nil when the read failed. The caller
	// owns it until Close.
	Frame *gocv.Mat
	// Skipped is set when inference ran past the detect timeout.
	Skipped bool
	// Latency is the time spent in the detector.
	Latency    time.Duration
	CapturedAt time.Time
}

// Close releases the frame. It is safe to call on a nil Result and more than
// once.
func (r *Result) Close() {
	if r == nil || r.Frame == nil {
		return
	}
	r.Frame.Close()
	r.Frame = nil
}

// Observation is what sinks receive for each frame that reached the detector.
type Observation struct {
	Seq        uint64          `json:"seq"`
	Hands      []detector.Hand `json:"hands"`
	Skipped    bool            `json:"skipped"`
	CapturedAt time.Time       `json:"captured_at"`
}

// Sink consumes observations from the capture loop. Publish runs on the loop
// and must not block; a returned error is logged and the loop carries on.
type Sink interface {
	Publish(obs Observation) error
	Close() error
}

// FrameSink is implemented by sinks that also want the annotated frame Run
// shows on screen. The frame is only valid for the duration of the call.
type FrameSink interface {
	PublishFrame(frame *gocv.Mat)
}
