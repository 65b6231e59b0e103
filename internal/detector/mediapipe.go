package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// IdleTimeout is how long the service process may sit unused before it is
// shut down. The next Detect starts it again.
const IdleTimeout = 30 * time.Second

const serviceScript = "hand_service.py"

// MediaPipeOptions locates the Python side of the MediaPipe detector.
// Empty fields are searched for in the usual install locations.
type MediaPipeOptions struct {
	ScriptPath string
	PythonPath string
}

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Each request is a 12 byte header (rows, cols, channels as big-endian
// uint32) followed by the raw RGB pixels. The service answers with a single
// JSON line holding one record per hand.
type MediaPipeDetector struct {
	config    Config
	script    string
	python    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	closed    bool
	idleTimer *time.Timer

	// idleTimeout defaults to IdleTimeout.
	idleTimeout time.Duration
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started lazily on first detection.
func NewMediaPipeDetector(config Config, opts MediaPipeOptions) (*MediaPipeDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	script := opts.ScriptPath
	if script == "" {
		script = findServiceScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", serviceScript)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("service script: %w", err)
	}

	python := opts.PythonPath
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	return &MediaPipeDetector{
		config:      config,
		script:      script,
		python:      python,
		idleTimeout: IdleTimeout,
	}, nil
}

// Detect sends an RGB frame to the service and returns the detected hands.
// When ctx ends before the service answers, the process is killed so that a
// late reply cannot be read as the answer to the next frame.
func (d *MediaPipeDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Hand, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	request := encodeFrame(frame)

	type reply struct {
		line []byte
		err  error
	}
	done := make(chan reply, 1)
	stdin, stdout := d.stdin, d.stdout

	go func() {
		if _, err := stdin.Write(request); err != nil {
			done <- reply{err: fmt.Errorf("write frame: %w", err)}
			return
		}
		line, err := stdout.ReadBytes('\n')
		if err != nil {
			done <- reply{err: fmt.Errorf("read response: %w", err)}
			return
		}
		done <- reply{line: line}
	}()

	select {
	case <-ctx.Done():
		log.WithError(ctx.Err()).Warn("mediapipe service did not answer, restarting it")
		d.kill()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			d.kill()
			return nil, r.err
		}
		d.resetIdleTimer()
		return parseResponse(r.line)
	}
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.shutdown()
}

func (d *MediaPipeDetector) args() []string {
	args := []string{
		d.script,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinDetectionConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConfidence, 'f', -1, 64),
	}
	if d.config.StaticImageMode {
		args = append(args, "--static-image-mode")
	}
	return args
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.python, d.args()...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	log.WithField("pid", d.cmd.Process.Pid).Debug("mediapipe service started")
	return nil
}

// shutdown closes stdin and waits for the service to exit on its own.
func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	d.stopIdleTimer()

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.reset()
	return err
}

// kill terminates a service whose stream state is unknown.
func (d *MediaPipeDetector) kill() {
	if !d.started {
		return
	}

	d.stopIdleTimer()

	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.cmd.Wait()
	d.reset()
}

func (d *MediaPipeDetector) reset() {
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
}

func (d *MediaPipeDetector) stopIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
}

func (d *MediaPipeDetector) resetIdleTimer() {
	d.stopIdleTimer()
	var timer *time.Timer
	timer = time.AfterFunc(d.idleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		// A timer that fired while Detect held the lock has been replaced.
		if d.idleTimer != timer {
			return
		}
		if err := d.shutdown(); err != nil {
			log.WithError(err).Debug("idle mediapipe service exited")
		}
	})
	d.idleTimer = timer
}

// encodeFrame builds the request for one frame.
func encodeFrame(frame *gocv.Mat) []byte {
	pixels := frame.ToBytes()

	buf := make([]byte, 12, 12+len(pixels))
	binary.BigEndian.PutUint32(buf[0:4], uint32(frame.Rows()))
	binary.BigEndian.PutUint32(buf[4:8], uint32(frame.Cols()))
	binary.BigEndian.PutUint32(buf[8:12], uint32(frame.Channels()))

	return append(buf, pixels...)
}

// jsonHand represents one hand record from the Python service.
type jsonHand struct {
	Landmarks  []Point3D `json:"landmarks"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

type jsonResponse struct {
	Hands []jsonHand `json:"hands"`
	Error string     `json:"error,omitempty"`

	// Malformed marks an error caused by model output that could not be
	// paired into hands.
	Malformed bool `json:"malformed,omitempty"`
}

// parseResponse decodes one service reply. Every hand must carry exactly
// NumLandmarks points and a valid label or the whole reply is rejected.
func parseResponse(line []byte) ([]Hand, error) {
	var response jsonResponse
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		if response.Malformed {
			return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, response.Error)
		}
		return nil, fmt.Errorf("%w: %s", ErrServiceFailed, response.Error)
	}

	hands := make([]Hand, 0, len(response.Hands))
	for i, h := range response.Hands {
		if len(h.Landmarks) != NumLandmarks {
			return nil, fmt.Errorf("%w: hand %d has %d landmarks", ErrMalformedResponse, i, len(h.Landmarks))
		}

		hand := Hand{
			Handedness: Handedness(h.Handedness),
			Score:      h.Score,
		}
		copy(hand.Landmarks[:], h.Landmarks)

		if err := hand.Validate(); err != nil {
			return nil, fmt.Errorf("%w: hand %d: %v", ErrMalformedResponse, i, err)
		}
		hands = append(hands, hand)
	}

	return hands, nil
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".handpos", "scripts", serviceScript),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".handpos/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
