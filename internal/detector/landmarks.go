// Package detector provides the hand landmark detector boundary: the types a
// detection produces and the implementations that talk to the model.
package detector

import (
	"errors"
	"fmt"
	"math"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Connection is a skeleton edge between two landmark indices.
type Connection struct {
	From, To int
}

// Connections is the hand skeleton drawn over a frame, equivalent to
// MediaPipe's HAND_CONNECTIONS.
var Connections = []Connection{
	// palm
	{Wrist, ThumbCMC}, {Wrist, IndexMCP}, {IndexMCP, MiddleMCP},
	{MiddleMCP, RingMCP}, {RingMCP, PinkyMCP}, {Wrist, PinkyMCP},
	// thumb
	{ThumbCMC, ThumbMCP}, {ThumbMCP, ThumbIP}, {ThumbIP, ThumbTip},
	// index
	{IndexMCP, IndexPIP}, {IndexPIP, IndexDIP}, {IndexDIP, IndexTip},
	// middle
	{MiddleMCP, MiddlePIP}, {MiddlePIP, MiddleDIP}, {MiddleDIP, MiddleTip},
	// ring
	{RingMCP, RingPIP}, {RingPIP, RingDIP}, {RingDIP, RingTip},
	// pinky
	{PinkyMCP, PinkyPIP}, {PinkyPIP, PinkyDIP}, {PinkyDIP, PinkyTip},
}

// Handedness classifies a detected hand.
type Handedness string

const (
	Left  Handedness = "Left"
	Right Handedness = "Right"
)

// ErrInvalidHandedness is returned for labels other than Left and Right.
var ErrInvalidHandedness = errors.New("handedness must be Left or Right")

// ParseHandedness converts a model label into a Handedness.
func ParseHandedness(label string) (Handedness, error) {
	switch Handedness(label) {
	case Left, Right:
		return Handedness(label), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidHandedness, label)
}

// Point3D is a landmark position: x and y normalized to the frame, z a depth
// relative to the wrist.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (p Point3D) finite() bool {
	for _, v := range [...]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Hand is one detected hand: its 21 landmarks tied to its own handedness.
type Hand struct {
	Landmarks  [NumLandmarks]Point3D `json:"landmarks"`
	Handedness Handedness            `json:"handedness"`
	Score      float64               `json:"score"`
}

// Validate checks that the hand carries a known label and finite coordinates.
func (h *Hand) Validate() error {
	if _, err := ParseHandedness(string(h.Handedness)); err != nil {
		return err
	}
	for i, p := range h.Landmarks {
		if !p.finite() {
			return fmt.Errorf("landmark %d is not finite: %+v", i, p)
		}
	}
	return nil
}

// distance3D calculates the Euclidean distance between two 3D points.
func distance3D(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Normalize returns a copy with the wrist at the origin, scaled so that the
// wrist to middle finger MCP distance is 1.0. A degenerate hand is only
// translated.
func (h *Hand) Normalize() *Hand {
	if h == nil {
		return nil
	}

	normalized := &Hand{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	wrist := h.Landmarks[Wrist]
	for i := range h.Landmarks {
		normalized.Landmarks[i] = Point3D{
			X: h.Landmarks[i].X - wrist.X,
			Y: h.Landmarks[i].Y - wrist.Y,
			Z: h.Landmarks[i].Z - wrist.Z,
		}
	}

	scale := distance3D(Point3D{}, normalized.Landmarks[MiddleMCP])
	if scale < 1e-10 {
		return normalized
	}

	for i := range normalized.Landmarks {
		normalized.Landmarks[i].X /= scale
		normalized.Landmarks[i].Y /= scale
		normalized.Landmarks[i].Z /= scale
	}

	return normalized
}
