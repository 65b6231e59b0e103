package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	cli "github.com/jawher/mow.cli"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/handpos/internal/capture"
	"github.com/ayusman/handpos/internal/config"
	"github.com/ayusman/handpos/internal/detector"
	"github.com/ayusman/handpos/internal/display"
	"github.com/ayusman/handpos/internal/server"
	"github.com/ayusman/handpos/internal/store"
	"github.com/ayusman/handpos/internal/tracker"
)

const (
	appName = "handpos"
	appDesc = "webcam hand landmark tracker"
)

// The preview window must be driven from the main thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		log.WithError(err).Warn("ignoring env file")
	}

	app := cli.App(appName, appDesc)
	resolve := config.Bind(app)

	exitCode := 0
	app.Action = func() {
		cfg, err := resolve()
		if err == nil {
			err = run(cfg)
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			exitCode = 1
		}
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func run(cfg config.Config) (err error) {
	if err := cfg.ApplyLogging(); err != nil {
		return err
	}

	var (
		sinks []tracker.Sink
		hub   *server.Hub
		st    *store.Store
	)
	if cfg.RecordPath != "" {
		st, err = store.New(cfg.RecordPath)
		if err != nil {
			return fmt.Errorf("open recording: %w", err)
		}
		rec, err := store.NewRecorder(st, cfg.DeviceID)
		if err != nil {
			st.Close()
			return fmt.Errorf("start recording: %w", err)
		}
		sinks = append(sinks, rec)
	}
	if cfg.ListenAddr != "" {
		hub = server.NewHub()
		sinks = append(sinks, hub)
	}

	var disp display.Display = display.Headless{}
	if !cfg.Headless {
		disp = display.NewWindow(cfg.WindowName)
	}

	opts := detector.MediaPipeOptions{
		ScriptPath: cfg.ScriptPath,
		PythonPath: cfg.PythonPath,
	}
	tr, err := tracker.New(tracker.Config{
		Camera: capture.NewCamera(cfg.DeviceID),
		NewDetector: func(c detector.Config) (detector.Detector, error) {
			return detector.NewMediaPipeDetector(c, opts)
		},
		Detector:      cfg.Detector,
		Display:       disp,
		DetectTimeout: cfg.DetectTimeout,
		QuitKey:       cfg.QuitKey,
		Sinks:         sinks,
	})
	if err != nil {
		// the tracker owns nothing yet, so undo what was opened here
		for _, s := range sinks {
			s.Close()
		}
		disp.Close()
		return err
	}
	defer func() {
		if rerr := tr.Release(); rerr != nil {
			log.WithError(rerr).Warn("release incomplete")
			if err == nil {
				err = rerr
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting hand tracking. Press '%c' to quit.\n", cfg.QuitKey)

	if hub == nil {
		return tr.Run(ctx)
	}

	// The server shares the loop's fate: a server failure ends the loop and
	// leaving the loop stops the server.
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	srv := server.New(server.Config{
		Hub:   hub,
		Stats: tr,
		Store: st,
	})
	group.Go(func() error {
		return srv.Run(gctx, cfg.ListenAddr)
	})

	loopErr := tr.Run(gctx)
	cancel()
	if serr := group.Wait(); serr != nil && !errors.Is(serr, context.Canceled) {
		return errors.Join(loopErr, fmt.Errorf("http server: %w", serr))
	}
	return loopErr
}
