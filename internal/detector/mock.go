package detector

import (
	"context"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu       sync.Mutex
	hands    []Hand
	sequence [][]Hand
	err      error
	delay    time.Duration
	calls    int
	closes   int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by every Detect.
func (m *MockDetector) SetHands(hands []Hand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetSequence queues per-call results. Once the queue is drained Detect falls
// back to the hands set with SetHands.
func (m *MockDetector) SetSequence(frames ...[]Hand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = frames
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes Detect block for d, or until its context ends.
func (m *MockDetector) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Hand, error) {
	m.mu.Lock()
	m.calls++
	delay, err := m.delay, m.err
	hands := m.hands
	if len(m.sequence) > 0 {
		hands = m.sequence[0]
		m.sequence = m.sequence[1:]
	}
	closed := m.closes > 0
	m.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err != nil {
		return nil, err
	}
	return hands, nil
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close has been called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes > 0
}

// ThumbsUpLandmarks returns a right hand with the thumb extended upward and
// the other fingers curled.
func ThumbsUpLandmarks() Hand {
	hand := Hand{
		Handedness: Right,
		Score:      0.95,
	}

	hand.Landmarks[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb extended upward (Y decreases going up)
	hand.Landmarks[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.0}
	hand.Landmarks[ThumbMCP] = Point3D{X: 0.58, Y: 0.65, Z: 0.0}
	hand.Landmarks[ThumbIP] = Point3D{X: 0.58, Y: 0.50, Z: 0.0}
	hand.Landmarks[ThumbTip] = Point3D{X: 0.58, Y: 0.35, Z: 0.0}

	hand.Landmarks[IndexMCP] = Point3D{X: 0.55, Y: 0.70, Z: -0.02}
	hand.Landmarks[IndexPIP] = Point3D{X: 0.55, Y: 0.68, Z: -0.05}
	hand.Landmarks[IndexDIP] = Point3D{X: 0.52, Y: 0.70, Z: -0.04}
	hand.Landmarks[IndexTip] = Point3D{X: 0.50, Y: 0.72, Z: -0.02}

	hand.Landmarks[MiddleMCP] = Point3D{X: 0.50, Y: 0.68, Z: -0.02}
	hand.Landmarks[MiddlePIP] = Point3D{X: 0.50, Y: 0.66, Z: -0.05}
	hand.Landmarks[MiddleDIP] = Point3D{X: 0.47, Y: 0.68, Z: -0.04}
	hand.Landmarks[MiddleTip] = Point3D{X: 0.45, Y: 0.70, Z: -0.02}

	hand.Landmarks[RingMCP] = Point3D{X: 0.45, Y: 0.70, Z: -0.02}
	hand.Landmarks[RingPIP] = Point3D{X: 0.45, Y: 0.68, Z: -0.05}
	hand.Landmarks[RingDIP] = Point3D{X: 0.42, Y: 0.70, Z: -0.04}
	hand.Landmarks[RingTip] = Point3D{X: 0.40, Y: 0.72, Z: -0.02}

	hand.Landmarks[PinkyMCP] = Point3D{X: 0.40, Y: 0.72, Z: -0.02}
	hand.Landmarks[PinkyPIP] = Point3D{X: 0.40, Y: 0.70, Z: -0.05}
	hand.Landmarks[PinkyDIP] = Point3D{X: 0.37, Y: 0.72, Z: -0.04}
	hand.Landmarks[PinkyTip] = Point3D{X: 0.35, Y: 0.74, Z: -0.02}

	return hand
}

// OpenPalmLandmarks returns a right hand with all fingers extended.
func OpenPalmLandmarks() Hand {
	hand := Hand{
		Handedness: Right,
		Score:      0.95,
	}

	hand.Landmarks[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb extended to the side
	hand.Landmarks[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
	hand.Landmarks[ThumbMCP] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
	hand.Landmarks[ThumbIP] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
	hand.Landmarks[ThumbTip] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}

	hand.Landmarks[IndexMCP] = Point3D{X: 0.55, Y: 0.68, Z: 0.0}
	hand.Landmarks[IndexPIP] = Point3D{X: 0.57, Y: 0.55, Z: 0.0}
	hand.Landmarks[IndexDIP] = Point3D{X: 0.58, Y: 0.45, Z: 0.0}
	hand.Landmarks[IndexTip] = Point3D{X: 0.58, Y: 0.35, Z: 0.0}

	hand.Landmarks[MiddleMCP] = Point3D{X: 0.50, Y: 0.66, Z: 0.0}
	hand.Landmarks[MiddlePIP] = Point3D{X: 0.50, Y: 0.52, Z: 0.0}
	hand.Landmarks[MiddleDIP] = Point3D{X: 0.50, Y: 0.40, Z: 0.0}
	hand.Landmarks[MiddleTip] = Point3D{X: 0.50, Y: 0.28, Z: 0.0}

	hand.Landmarks[RingMCP] = Point3D{X: 0.45, Y: 0.68, Z: 0.0}
	hand.Landmarks[RingPIP] = Point3D{X: 0.43, Y: 0.55, Z: 0.0}
	hand.Landmarks[RingDIP] = Point3D{X: 0.42, Y: 0.45, Z: 0.0}
	hand.Landmarks[RingTip] = Point3D{X: 0.42, Y: 0.35, Z: 0.0}

	hand.Landmarks[PinkyMCP] = Point3D{X: 0.40, Y: 0.70, Z: 0.0}
	hand.Landmarks[PinkyPIP] = Point3D{X: 0.37, Y: 0.60, Z: 0.0}
	hand.Landmarks[PinkyDIP] = Point3D{X: 0.35, Y: 0.50, Z: 0.0}
	hand.Landmarks[PinkyTip] = Point3D{X: 0.34, Y: 0.42, Z: 0.0}

	return hand
}

// Mirror returns the hand reflected across the vertical axis with the
// opposite handedness, e.g. a left open palm from a right one.
func Mirror(h Hand) Hand {
	mirrored := h
	for i := range mirrored.Landmarks {
		mirrored.Landmarks[i].X = 1 - mirrored.Landmarks[i].X
	}
	if h.Handedness == Right {
		mirrored.Handedness = Left
	} else {
		mirrored.Handedness = Right
	}
	return mirrored
}
