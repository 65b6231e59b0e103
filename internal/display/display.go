// Package display presents frames on screen and reports key presses.
package display

import (
	"errors"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrClosed is returned by Show after Close.
var ErrClosed = errors.New("display is closed")

// NoKey is returned by PollKey when nothing was pressed.
const NoKey = -1

// Display is an on-screen surface for annotated frames.
type Display interface {
	// Show presents frame. The frame is not retained.
	Show(frame *gocv.Mat) error
	// PollKey waits up to wait for a key press and returns its code, or NoKey.
	PollKey(wait time.Duration) int
	// Close tears the surface down. Calling it more than once is a no-op.
	Close() error
}

// IsQuitKey reports whether key, as returned by PollKey, is the quit key.
// Only the low byte is compared since highgui may set modifier bits above it.
func IsQuitKey(key int, quit rune) bool {
	if key == NoKey {
		return false
	}
	return key&0xFF == int(quit)&0xFF
}

// Window is a highgui window identified by its label.
type Window struct {
	label  string
	mu     sync.Mutex
	window *gocv.Window
	closed bool
}

// NewWindow prepares a window. Nothing is created on screen until the first
// Show, so a Window can be built where no display server is available.
func NewWindow(label string) *Window {
	return &Window{label: label}
}

// Label returns the window title.
func (w *Window) Label() string {
	return w.label
}

func (w *Window) Show(frame *gocv.Mat) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if frame == nil || frame.Empty() {
		return nil
	}
	if w.window == nil {
		w.window = gocv.NewWindow(w.label)
	}
	w.window.IMShow(*frame)
	return nil
}

// PollKey rounds wait up to whole milliseconds; highgui treats 0 as "wait
// forever" so the minimum is 1ms. Before the first Show, and after Close,
// it sleeps for wait like Headless does.
func (w *Window) PollKey(wait time.Duration) int {
	w.mu.Lock()
	if w.window == nil || w.closed {
		w.mu.Unlock()
		return Headless{}.PollKey(wait)
	}
	defer w.mu.Unlock()

	ms := int((wait + time.Millisecond - 1) / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return w.window.WaitKey(ms)
}

func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.window == nil {
		return nil
	}
	err := w.window.Close()
	w.window = nil
	return err
}

// Headless discards frames. PollKey still honours the wait budget so a loop
// driven by it paces the same way it would with a window.
type Headless struct{}

func (Headless) Show(*gocv.Mat) error { return nil }

func (Headless) PollKey(wait time.Duration) int {
	if wait > 0 {
		time.Sleep(wait)
	}
	return NoKey
}

func (Headless) Close() error { return nil }
