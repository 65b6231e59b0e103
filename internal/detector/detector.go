package detector

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	// ErrClosed is returned by Detect after Close.
	ErrClosed = errors.New("detector is closed")
	// ErrEmptyFrame is returned when Detect is given no pixels.
	ErrEmptyFrame = errors.New("frame is empty")
	// ErrMalformedResponse is returned when the model output cannot be paired
	// into complete hands.
	ErrMalformedResponse = errors.New("malformed detector response")
	// ErrServiceFailed is returned when the model service reports that it
	// could not process a frame.
	ErrServiceFailed = errors.New("detector service failed")
)

// Detector defines the interface for hand landmark detection implementations.
type Detector interface {
	// Detect analyzes an RGB frame and returns the detected hands in the
	// model's own order. Returns an empty slice if no hands are detected.
	// Implementations must give up once ctx is done.
	Detect(ctx context.Context, frame *gocv.Mat) ([]Hand, error)

	// Close releases any resources held by the detector. Calling it more
	// than once is a no-op.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// StaticImageMode treats every frame as unrelated. The tracker runs in
	// streaming mode so the model can track hands between frames.
	StaticImageMode bool

	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinDetectionConfidence is the palm detection threshold (0.0-1.0).
	MinDetectionConfidence float64

	// MinTrackingConfidence is the landmark tracking threshold (0.0-1.0).
	MinTrackingConfidence float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		StaticImageMode:        false,
		MaxHands:               2,
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
	}
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	if c.MaxHands < 1 {
		return fmt.Errorf("max hands must be at least 1, got %d", c.MaxHands)
	}
	if c.MinDetectionConfidence < 0 || c.MinDetectionConfidence > 1 {
		return fmt.Errorf("min detection confidence %.2f outside [0,1]", c.MinDetectionConfidence)
	}
	if c.MinTrackingConfidence < 0 || c.MinTrackingConfidence > 1 {
		return fmt.Errorf("min tracking confidence %.2f outside [0,1]", c.MinTrackingConfidence)
	}
	return nil
}
