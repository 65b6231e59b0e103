package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/handpos/internal/detector"
	"github.com/ayusman/handpos/internal/tracker"
)

func TestRecorder_RecordsUntilClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "rec.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec, err := NewRecorder(s, 0)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	hand := detector.ThumbsUpLandmarks()
	observations := []tracker.Observation{
		{Seq: 1, Hands: []detector.Hand{hand}, CapturedAt: time.Now()},
		{Seq: 2, Hands: []detector.Hand{}, CapturedAt: time.Now()},
		{Seq: 3, Hands: []detector.Hand{hand}, Skipped: true, CapturedAt: time.Now()},
		{Seq: 4, Hands: []detector.Hand{hand, detector.Mirror(hand)}, CapturedAt: time.Now()},
	}
	for _, obs := range observations {
		if err := rec.Publish(obs); err != nil {
			t.Fatalf("Publish seq %d: %v", obs.Seq, err)
		}
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if err := rec.Publish(observations[0]); !errors.Is(err, ErrRecorderClosed) {
		t.Errorf("Publish after Close = %v, want ErrRecorderClosed", err)
	}

	// Close also closed the store, so read back through a fresh one.
	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Observations().ListBySession(rec.SessionID())
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	var seqs []uint64
	for _, o := range got {
		seqs = append(seqs, o.Seq)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 4 || seqs[2] != 4 {
		t.Errorf("recorded seqs = %v, want [1 4 4]", seqs)
	}
	if got[2].Hand.Handedness != detector.Left {
		t.Errorf("second hand of seq 4 handedness = %s, want Left", got[2].Hand.Handedness)
	}

	sess, err := s.Sessions().GetByID(rec.SessionID())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if sess.EndedAt == nil {
		t.Error("session should be ended after Close")
	}
}
