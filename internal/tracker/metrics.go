package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "frames_captured_total",
		Namespace: "handpos",
		Help:      "number of frames read from the camera",
	})
	readFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "read_failures_total",
		Namespace: "handpos",
		Help:      "number of camera reads that produced no frame",
	})
	framesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "frames_skipped_total",
		Namespace: "handpos",
		Help:      "number of frames dropped because inference timed out",
	})
	handsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "hands_detected_total",
		Namespace: "handpos",
		Help:      "number of hands detected",
	}, []string{"handedness"})
	inferenceSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:      "inference_seconds",
		Namespace: "handpos",
		Help:      "time spent in the landmark detector per frame",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
)
