// Package tracker ties one camera to one hand landmark detector and drives
// the capture, detect, draw and display cycle.
package tracker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/handpos/internal/capture"
	"github.com/ayusman/handpos/internal/detector"
	"github.com/ayusman/handpos/internal/display"
	"github.com/ayusman/handpos/internal/overlay"
)

// Defaults applied to zero Config fields.
const (
	// DefaultDetectTimeout bounds a single inference call.
	DefaultDetectTimeout = 2 * time.Second
	// DefaultKeyWait is the key poll budget per loop iteration.
	DefaultKeyWait = time.Millisecond
	// DefaultQuitKey ends Run.
	DefaultQuitKey = 'q'
)

var (
	// ErrDeviceUnavailable is returned by New when the camera cannot be opened.
	ErrDeviceUnavailable = errors.New("could not open video device")
	// ErrAlreadyReleased is returned by every operation after Release.
	ErrAlreadyReleased = errors.New("tracker already released")
)

// DetectorFactory builds the detector session once the camera is open.
type DetectorFactory func(detector.Config) (detector.Detector, error)

// Config holds configuration options for the tracker.
type Config struct {
	Camera      capture.Camera
	NewDetector DetectorFactory
	Detector    detector.Config

	// Display receives annotated frames in Run. Nil runs headless.
	Display display.Display
	Style   overlay.Style

	DetectTimeout time.Duration
	KeyWait       time.Duration
	QuitKey       rune

	// Sinks receive every frame's hands, in order, from the capture loop.
	Sinks []Sink
}

type state int

const (
	stateReady state = iota
	stateReleased
)

// Tracker owns a camera session and a detector session for its whole life.
// A Tracker is Ready once New returns and Released after Release; it never
// goes back.
type Tracker struct {
	mu       sync.Mutex
	state    state
	seq      uint64
	camera   capture.Camera
	detector detector.Detector
	display  display.Display
	style    overlay.Style
	timeout  time.Duration
	keyWait  time.Duration
	quitKey  rune
	sinks    []Sink

	framesRead   atomic.Uint64
	readFailures atomic.Uint64
	skipped      atomic.Uint64
	handsSeen    atomic.Uint64
}

// New opens the camera and then creates the detector. When the camera cannot
// be opened the returned error matches ErrDeviceUnavailable and no detector
// is created; when the detector cannot be created the camera is closed again.
func New(cfg Config) (*Tracker, error) {
	if cfg.Camera == nil {
		return nil, errors.New("tracker: camera is required")
	}
	if cfg.NewDetector == nil {
		return nil, errors.New("tracker: detector factory is required")
	}
	if err := cfg.Detector.Validate(); err != nil {
		return nil, fmt.Errorf("detector config: %w", err)
	}

	if cfg.Display == nil {
		cfg.Display = display.Headless{}
	}
	if cfg.Style == (overlay.Style{}) {
		cfg.Style = overlay.DefaultStyle()
	}
	if cfg.DetectTimeout <= 0 {
		cfg.DetectTimeout = DefaultDetectTimeout
	}
	if cfg.KeyWait <= 0 {
		cfg.KeyWait = DefaultKeyWait
	}
	if cfg.QuitKey == 0 {
		cfg.QuitKey = DefaultQuitKey
	}

	if err := cfg.Camera.Open(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	det, err := cfg.NewDetector(cfg.Detector)
	if err != nil {
		if cerr := cfg.Camera.Close(); cerr != nil {
			log.WithError(cerr).Warn("closing camera after detector failure")
		}
		return nil, fmt.Errorf("create detector: %w", err)
	}

	log.WithFields(log.Fields{
		"device":    cfg.Camera.DeviceID(),
		"max_hands": cfg.Detector.MaxHands,
		"timeout":   cfg.DetectTimeout,
	}).Info("tracker ready")

	return &Tracker{
		state:    stateReady,
		camera:   cfg.Camera,
		detector: det,
		display:  cfg.Display,
		style:    cfg.Style,
		timeout:  cfg.DetectTimeout,
		keyWait:  cfg.KeyWait,
		quitKey:  cfg.QuitKey,
		sinks:    cfg.Sinks,
	}, nil
}

// Release closes the camera, the detector, the display and every sink.
// It waits for an in-flight CaptureAndDetect to finish. Only the first call
// does anything; later calls return nil.
func (t *Tracker) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == stateReleased {
		return nil
	}
	t.state = stateReleased

	var errs []error
	if err := t.camera.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close camera: %w", err))
	}
	if err := t.detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close detector: %w", err))
	}
	if err := t.display.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close display: %w", err))
	}
	for _, s := range t.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}

	log.Info("tracker released")
	return errors.Join(errs...)
}

// Released reports whether Release has been called.
func (t *Tracker) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateReleased
}

// Stats counts what the tracker has seen so far.
type Stats struct {
	FramesRead   uint64 `json:"frames_read"`
	ReadFailures uint64 `json:"read_failures"`
	Skipped      uint64 `json:"skipped"`
	HandsSeen    uint64 `json:"hands_seen"`
}

// Stats is safe to call from any goroutine.
func (t *Tracker) Stats() Stats {
	return Stats{
		FramesRead:   t.framesRead.Load(),
		ReadFailures: t.readFailures.Load(),
		Skipped:      t.skipped.Load(),
		HandsSeen:    t.handsSeen.Load(),
	}
}
