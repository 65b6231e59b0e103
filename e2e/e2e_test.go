package e2e

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/handpos/internal/capture"
	"github.com/ayusman/handpos/internal/detector"
	"github.com/ayusman/handpos/internal/server"
	"github.com/ayusman/handpos/internal/store"
	"github.com/ayusman/handpos/internal/tracker"
)

func TestE2E_TrackRecordServe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	dbPath := filepath.Join(t.TempDir(), "obs.db")
	st, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	rec, err := store.NewRecorder(st, 0)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	hub := server.NewHub()

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()
	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)

	right := detector.ThumbsUpLandmarks()
	left := detector.Mirror(detector.OpenPalmLandmarks())
	det := detector.NewMockDetector()
	det.SetSequence(
		[]detector.Hand{right},
		[]detector.Hand{},
		[]detector.Hand{right, left},
	)

	tr, err := tracker.New(tracker.Config{
		Camera: cam,
		NewDetector: func(detector.Config) (detector.Detector, error) {
			return det, nil
		},
		Detector: detector.DefaultConfig(),
		Sinks:    []tracker.Sink{rec, hub},
	})
	if err != nil {
		t.Fatalf("tracker.New() error = %v", err)
	}
	released := false
	defer func() {
		if !released {
			tr.Release()
		}
	}()

	ts := httptest.NewServer(server.New(server.Config{Hub: hub, Stats: tr, Store: st}))
	defer ts.Close()
	client := ts.Client()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := tr.CaptureAndDetect(ctx)
		if err != nil {
			t.Fatalf("CaptureAndDetect() #%d error = %v", i+1, err)
		}
		res.Close()
	}

	t.Run("LatestHands", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/hands")
		if err != nil {
			t.Fatalf("GET /api/hands error = %v", err)
		}
		defer resp.Body.Close()

		var obs tracker.Observation
		if err := json.NewDecoder(resp.Body).Decode(&obs); err != nil {
			t.Fatalf("decode error = %v", err)
		}
		if obs.Seq != 3 || len(obs.Hands) != 2 {
			t.Fatalf("latest = seq %d with %d hands, want seq 3 with 2", obs.Seq, len(obs.Hands))
		}
		if obs.Hands[0].Handedness != detector.Right || obs.Hands[1].Handedness != detector.Left {
			t.Errorf("handedness = %s,%s, want Right,Left", obs.Hands[0].Handedness, obs.Hands[1].Handedness)
		}
	})

	t.Run("Health", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/health")
		if err != nil {
			t.Fatalf("GET /api/health error = %v", err)
		}
		defer resp.Body.Close()

		var health struct {
			Tracker tracker.Stats `json:"tracker"`
		}
		json.NewDecoder(resp.Body).Decode(&health)
		if health.Tracker.FramesRead != 3 || health.Tracker.HandsSeen != 3 {
			t.Errorf("stats = %+v, want 3 frames and 3 hands", health.Tracker)
		}
	})

	// Release flushes the recorder and closes the hub.
	if err := tr.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	released = true

	t.Run("Recorded", func(t *testing.T) {
		st, err := store.New(dbPath)
		if err != nil {
			t.Fatalf("reopen store error = %v", err)
		}
		defer st.Close()

		obs, err := st.Observations().ListBySession(rec.SessionID())
		if err != nil {
			t.Fatalf("ListBySession() error = %v", err)
		}
		if len(obs) != 3 {
			t.Fatalf("recorded %d hands, want 3", len(obs))
		}
		if obs[0].Seq != 1 || obs[1].Seq != 3 || obs[2].Seq != 3 {
			t.Errorf("recorded seqs = %d,%d,%d, want 1,3,3", obs[0].Seq, obs[1].Seq, obs[2].Seq)
		}
		if obs[2].Hand.Handedness != detector.Left {
			t.Errorf("third hand = %s, want Left", obs[2].Hand.Handedness)
		}

		sess, err := st.Sessions().GetByID(rec.SessionID())
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if sess.EndedAt == nil {
			t.Error("session should be ended after Release")
		}
	})

	if !det.Closed() {
		t.Error("detector should be closed after Release")
	}
}
