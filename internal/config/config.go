// Package config gathers the handpos settings from defaults, an optional
// .env file, HANDPOS_* environment variables and command line options.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"
	"unicode/utf8"

	cli "github.com/jawher/mow.cli"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/handpos/internal/detector"
	"github.com/ayusman/handpos/internal/tracker"
)

// DefaultWindowName is the title of the preview window.
const DefaultWindowName = "Hand Tracking"

// Config holds every runtime setting.
type Config struct {
	DeviceID   int
	WindowName string
	Headless   bool
	QuitKey    rune

	DetectTimeout time.Duration
	Detector      detector.Config
	ScriptPath    string
	PythonPath    string

	// RecordPath enables SQLite recording when set.
	RecordPath string
	// ListenAddr enables the HTTP server when set.
	ListenAddr string

	LogLevel string
}

// Default returns the settings of a plain run: camera 0, a window titled
// "Hand Tracking", up to two hands, no recording and no HTTP server.
func Default() Config {
	return Config{
		DeviceID:      0,
		WindowName:    DefaultWindowName,
		QuitKey:       tracker.DefaultQuitKey,
		DetectTimeout: tracker.DefaultDetectTimeout,
		Detector:      detector.DefaultConfig(),
		LogLevel:      "info",
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.DeviceID < 0 {
		return fmt.Errorf("device must not be negative, got %d", c.DeviceID)
	}
	if !c.Headless && c.WindowName == "" {
		return errors.New("window name must not be empty")
	}
	if c.QuitKey <= 0 || c.QuitKey > 0xFF {
		return fmt.Errorf("quit key must be a single byte character, got %q", c.QuitKey)
	}
	if c.DetectTimeout <= 0 {
		return fmt.Errorf("detect timeout must be positive, got %s", c.DetectTimeout)
	}
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ApplyLogging sets the logrus level.
func (c Config) ApplyLogging() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	return nil
}

// LoadEnv loads variables from a .env file into the environment without
// overriding ones already set. A missing file is not an error. It has to run
// before Bind, which reads the environment when options are declared.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.WithField("path", path).Debug("no env file, using process environment")
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	log.WithField("path", path).Debug("loaded env file")
	return nil
}

// Bind declares the command line options on app, each also settable through
// a HANDPOS_* variable. The returned function assembles and validates the
// Config once app has parsed its arguments.
func Bind(app *cli.Cli) func() (Config, error) {
	def := Default()

	device := app.Int(cli.IntOpt{
		Name:   "d device",
		Desc:   "camera device index",
		EnvVar: "HANDPOS_DEVICE",
		Value:  def.DeviceID,
	})
	window := app.String(cli.StringOpt{
		Name:   "window",
		Desc:   "preview window title",
		EnvVar: "HANDPOS_WINDOW",
		Value:  def.WindowName,
	})
	headless := app.Bool(cli.BoolOpt{
		Name:   "headless",
		Desc:   "run without a preview window",
		EnvVar: "HANDPOS_HEADLESS",
		Value:  def.Headless,
	})
	quitKey := app.String(cli.StringOpt{
		Name:   "quit-key",
		Desc:   "key that ends the session",
		EnvVar: "HANDPOS_QUIT_KEY",
		Value:  string(def.QuitKey),
	})

	timeout := def.DetectTimeout
	app.Var(cli.VarOpt{
		Name:   "detect-timeout",
		Desc:   "longest wait for one frame's landmarks before the frame is skipped",
		EnvVar: "HANDPOS_DETECT_TIMEOUT",
		Value:  durationValue{&timeout},
	})

	maxHands := app.Int(cli.IntOpt{
		Name:   "max-hands",
		Desc:   "maximum number of hands to detect",
		EnvVar: "HANDPOS_MAX_HANDS",
		Value:  def.Detector.MaxHands,
	})
	minDetection := def.Detector.MinDetectionConfidence
	app.Var(cli.VarOpt{
		Name:   "min-detection-confidence",
		Desc:   "minimum palm detection confidence",
		EnvVar: "HANDPOS_MIN_DETECTION_CONFIDENCE",
		Value:  floatValue{&minDetection},
	})
	minTracking := def.Detector.MinTrackingConfidence
	app.Var(cli.VarOpt{
		Name:   "min-tracking-confidence",
		Desc:   "minimum landmark tracking confidence",
		EnvVar: "HANDPOS_MIN_TRACKING_CONFIDENCE",
		Value:  floatValue{&minTracking},
	})
	static := app.Bool(cli.BoolOpt{
		Name:   "static-image-mode",
		Desc:   "run palm detection on every frame instead of tracking",
		EnvVar: "HANDPOS_STATIC_IMAGE_MODE",
		Value:  def.Detector.StaticImageMode,
	})

	script := app.String(cli.StringOpt{
		Name:   "script",
		Desc:   "path to the landmark service script",
		EnvVar: "HANDPOS_SCRIPT",
	})
	python := app.String(cli.StringOpt{
		Name:   "python",
		Desc:   "python interpreter for the landmark service",
		EnvVar: "HANDPOS_PYTHON",
	})
	record := app.String(cli.StringOpt{
		Name:   "record",
		Desc:   "SQLite file to record observations into",
		EnvVar: "HANDPOS_RECORD",
	})
	listen := app.String(cli.StringOpt{
		Name:   "listen",
		Desc:   "address for the HTTP API, e.g. :8080",
		EnvVar: "HANDPOS_LISTEN",
	})
	level := app.String(cli.StringOpt{
		Name:   "log-level",
		Desc:   "log level",
		EnvVar: "HANDPOS_LOG_LEVEL",
		Value:  def.LogLevel,
	})

	return func() (Config, error) {
		key, size := utf8.DecodeRuneInString(*quitKey)
		if size == 0 || size != len(*quitKey) {
			return Config{}, fmt.Errorf("quit key must be one character, got %q", *quitKey)
		}

		cfg := Config{
			DeviceID:      *device,
			WindowName:    *window,
			Headless:      *headless,
			QuitKey:       key,
			DetectTimeout: timeout,
			Detector: detector.Config{
				StaticImageMode:        *static,
				MaxHands:               *maxHands,
				MinDetectionConfidence: minDetection,
				MinTrackingConfidence:  minTracking,
			},
			ScriptPath: *script,
			PythonPath: *python,
			RecordPath: *record,
			ListenAddr: *listen,
			LogLevel:   *level,
		}
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
}

type durationValue struct{ p *time.Duration }

func (d durationValue) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d.p = v
	return nil
}

func (d durationValue) String() string {
	if d.p == nil {
		return ""
	}
	return d.p.String()
}

type floatValue struct{ p *float64 }

func (f floatValue) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f.p = v
	return nil
}

func (f floatValue) String() string {
	if f.p == nil {
		return ""
	}
	return strconv.FormatFloat(*f.p, 'g', -1, 64)
}
