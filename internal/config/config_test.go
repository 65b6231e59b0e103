package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	cli "github.com/jawher/mow.cli"

	"github.com/ayusman/handpos/internal/detector"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should validate, got %v", err)
	}
	if cfg.DeviceID != 0 || cfg.WindowName != "Hand Tracking" || cfg.QuitKey != 'q' {
		t.Errorf("Default() = %+v, want device 0, window %q, quit key q", cfg, DefaultWindowName)
	}
	if cfg.RecordPath != "" || cfg.ListenAddr != "" {
		t.Error("recording and the HTTP server should be off by default")
	}
	if diff := cmp.Diff(detector.DefaultConfig(), cfg.Detector); diff != "" {
		t.Errorf("detector defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative device", func(c *Config) { c.DeviceID = -1 }, true},
		{"empty window", func(c *Config) { c.WindowName = "" }, true},
		{"empty window headless", func(c *Config) { c.WindowName = ""; c.Headless = true }, false},
		{"no quit key", func(c *Config) { c.QuitKey = 0 }, true},
		{"wide quit key", func(c *Config) { c.QuitKey = 'é' + 0x100 }, true},
		{"zero timeout", func(c *Config) { c.DetectTimeout = 0 }, true},
		{"zero hands", func(c *Config) { c.Detector.MaxHands = 0 }, true},
		{"confidence above one", func(c *Config) { c.Detector.MinTrackingConfidence = 1.5 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func runBind(t *testing.T, args ...string) (Config, error) {
	t.Helper()

	app := cli.App("handpos", "test")
	app.ErrorHandling = flag.ContinueOnError
	resolve := Bind(app)

	var (
		cfg Config
		err error
		ran bool
	)
	app.Action = func() {
		ran = true
		cfg, err = resolve()
	}
	if runErr := app.Run(append([]string{"handpos"}, args...)); runErr != nil {
		t.Fatalf("Run() error = %v", runErr)
	}
	if !ran {
		t.Fatal("action did not run")
	}
	return cfg, err
}

func TestBind_Defaults(t *testing.T) {
	cfg, err := runBind(t)
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestBind_Options(t *testing.T) {
	cfg, err := runBind(t,
		"--device", "2",
		"--headless",
		"--quit-key", "x",
		"--detect-timeout", "500ms",
		"--max-hands", "1",
		"--min-detection-confidence", "0.7",
		"--static-image-mode",
		"--record", "obs.db",
		"--listen", ":8080",
		"--log-level", "debug",
	)
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}

	want := Default()
	want.DeviceID = 2
	want.Headless = true
	want.QuitKey = 'x'
	want.DetectTimeout = 500 * time.Millisecond
	want.Detector.MaxHands = 1
	want.Detector.MinDetectionConfidence = 0.7
	want.Detector.StaticImageMode = true
	want.RecordPath = "obs.db"
	want.ListenAddr = ":8080"
	want.LogLevel = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestBind_Environment(t *testing.T) {
	t.Setenv("HANDPOS_DEVICE", "3")
	t.Setenv("HANDPOS_MIN_TRACKING_CONFIDENCE", "0.25")

	cfg, err := runBind(t)
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	if cfg.DeviceID != 3 {
		t.Errorf("DeviceID = %d, want 3 from HANDPOS_DEVICE", cfg.DeviceID)
	}
	if cfg.Detector.MinTrackingConfidence != 0.25 {
		t.Errorf("MinTrackingConfidence = %v, want 0.25", cfg.Detector.MinTrackingConfidence)
	}
}

func TestBind_RejectsLongQuitKey(t *testing.T) {
	if _, err := runBind(t, "--quit-key", "quit"); err == nil {
		t.Error("expected an error for a multi-character quit key")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Run("missing file is fine", func(t *testing.T) {
		if err := LoadEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Errorf("LoadEnv() error = %v", err)
		}
	})

	t.Run("sets unset variables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(path, []byte("HANDPOS_TEST_WINDOW=Preview\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Unsetenv("HANDPOS_TEST_WINDOW") })

		if err := LoadEnv(path); err != nil {
			t.Fatalf("LoadEnv() error = %v", err)
		}
		if got := os.Getenv("HANDPOS_TEST_WINDOW"); got != "Preview" {
			t.Errorf("HANDPOS_TEST_WINDOW = %q, want Preview", got)
		}
	})
}
