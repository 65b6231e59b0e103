package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/handpos/internal/capture"
	"github.com/ayusman/handpos/internal/detector"
	"github.com/ayusman/handpos/internal/display"
	"github.com/ayusman/handpos/internal/overlay"
	"gocv.io/x/gocv"
)

// CaptureAndDetect reads one frame and runs the detector on it.
//
// A failed camera read is not an error: the Result simply has no frame and
// no hands. An inference that outlives the detect timeout skips the frame the
// same way but keeps the frame for display. Detector failures and malformed
// detector output are returned as errors. Calls are serialized; at most one
// read is in flight.
func (t *Tracker) CaptureAndDetect(ctx context.Context) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == stateReleased {
		return nil, ErrAlreadyReleased
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := t.camera.ReadFrame()
	if err != nil {
		t.readFailures.Add(1)
		readFailures.Inc()
		log.WithError(err).Debug("no frame this tick")
		return &Result{Hands: []detector.Hand{}}, nil
	}

	t.seq++
	t.framesRead.Add(1)
	framesCaptured.Inc()

	result := &Result{
		Seq:        t.seq,
		Hands:      []detector.Hand{},
		Frame:      frame,
		CapturedAt: time.Now(),
	}

	hands, latency, err := t.detect(ctx, frame)
	result.Latency = latency

	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		t.skipped.Add(1)
		framesSkipped.Inc()
		log.WithField("seq", result.Seq).Warnf("inference exceeded %s, frame skipped", t.timeout)
		result.Skipped = true
		t.publish(result)
		return result, nil
	default:
		result.Close()
		return nil, err
	}

	for i := range hands {
		if err := hands[i].Validate(); err != nil {
			result.Close()
			return nil, fmt.Errorf("%w: hand %d: %v", detector.ErrMalformedResponse, i, err)
		}
	}

	if len(hands) > 0 {
		result.Hands = hands
		t.handsSeen.Add(uint64(len(hands)))
		for i := range hands {
			handsDetected.WithLabelValues(string(hands[i].Handedness)).Inc()
		}
	}

	t.publish(result)
	return result, nil
}

// detect converts the frame to RGB and runs one bounded inference.
func (t *Tracker) detect(ctx context.Context, frame *gocv.Mat) ([]detector.Hand, time.Duration, error) {
	rgb, err := capture.ToRGB(frame)
	if err != nil {
		return nil, 0, fmt.Errorf("convert frame: %w", err)
	}
	defer rgb.Close()

	dctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	hands, err := t.detector.Detect(dctx, rgb)
	latency := time.Since(start)
	inferenceSeconds.Observe(latency.Seconds())

	if err != nil {
		return nil, latency, fmt.Errorf("detect hands: %w", err)
	}
	return hands, latency, nil
}

func (t *Tracker) publish(r *Result) {
	if len(t.sinks) == 0 {
		return
	}

	obs := Observation{
		Seq:        r.Seq,
		Hands:      r.Hands,
		Skipped:    r.Skipped,
		CapturedAt: r.CapturedAt,
	}
	for _, s := range t.sinks {
		if err := s.Publish(obs); err != nil {
			log.WithError(err).WithField("seq", r.Seq).Warn("sink rejected observation")
		}
	}
}

func (t *Tracker) publishFrame(frame *gocv.Mat) {
	for _, s := range t.sinks {
		if fs, ok := s.(FrameSink); ok {
			fs.PublishFrame(frame)
		}
	}
}

// Run is the display loop. Each iteration captures and detects, draws the
// skeleton of every hand found, shows the frame and polls for the quit key;
// the next iteration starts only when the previous one is done.
//
// Run returns nil when the quit key is pressed or ctx is cancelled. A
// detector fault ends the loop with that error; the caller still has to
// Release.
func (t *Tracker) Run(ctx context.Context) error {
	if t.Released() {
		return ErrAlreadyReleased
	}

	log.WithField("quit_key", string(t.quitKey)).Info("display loop started")

	for {
		if ctx.Err() != nil {
			log.Info("display loop cancelled")
			return nil
		}

		result, err := t.CaptureAndDetect(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				log.Info("display loop cancelled")
				return nil
			}
			return err
		}

		if result.Frame != nil {
			if len(result.Hands) > 0 {
				overlay.Draw(result.Frame, result.Hands, t.style)
			}
			t.publishFrame(result.Frame)

			if err := t.display.Show(result.Frame); err != nil {
				result.Close()
				return fmt.Errorf("show frame: %w", err)
			}
		}
		result.Close()

		if display.IsQuitKey(t.display.PollKey(t.keyWait), t.quitKey) {
			log.Info("quit key pressed")
			return nil
		}
	}
}
