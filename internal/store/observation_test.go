package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ayusman/handpos/internal/detector"
)

func TestObservationRepository_RecordAndList(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Sessions().Start(0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	repo := s.Observations()

	right := detector.ThumbsUpLandmarks()
	left := detector.Mirror(detector.OpenPalmLandmarks())
	now := time.Now()

	if err := repo.Record(sess.ID, 2, now, []detector.Hand{right, left}); err != nil {
		t.Fatalf("Record seq 2: %v", err)
	}
	if err := repo.Record(sess.ID, 1, now.Add(-time.Second), []detector.Hand{left}); err != nil {
		t.Fatalf("Record seq 1: %v", err)
	}

	got, err := repo.ListBySession(sess.ID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}

	want := []Observation{
		{SessionID: sess.ID, Seq: 1, HandIndex: 0, Hand: left, CapturedAt: now.Add(-time.Second)},
		{SessionID: sess.ID, Seq: 2, HandIndex: 0, Hand: right, CapturedAt: now},
		{SessionID: sess.ID, Seq: 2, HandIndex: 1, Hand: left, CapturedAt: now},
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(Observation{}, "ID"),
		cmpopts.EquateApproxTime(time.Millisecond),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("ListBySession mismatch (-want +got):\n%s", diff)
	}
}

func TestObservationRepository_RecordNoHands(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Sessions().Start(0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	repo := s.Observations()

	if err := repo.Record(sess.ID, 1, time.Now(), nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	n, err := repo.CountBySession(sess.ID)
	if err != nil {
		t.Fatalf("CountBySession: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 rows for a frame without hands, got %d", n)
	}
}

func TestObservationRepository_UnknownSession(t *testing.T) {
	s := newTestStore(t)

	err := s.Observations().Record("missing", 1, time.Now(), []detector.Hand{detector.ThumbsUpLandmarks()})
	if err == nil {
		t.Error("recording against an unknown session should fail the foreign key")
	}
}

func TestObservationRepository_DuplicateFrameRollsBack(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Sessions().Start(0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	repo := s.Observations()
	hand := detector.ThumbsUpLandmarks()

	if err := repo.Record(sess.ID, 1, time.Now(), []detector.Hand{hand}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// hand 0 collides, so hand 1 must not be written either
	if err := repo.Record(sess.ID, 1, time.Now(), []detector.Hand{hand, hand}); err == nil {
		t.Fatal("expected duplicate (seq, hand_index) to fail")
	}

	n, err := repo.CountBySession(sess.ID)
	if err != nil {
		t.Fatalf("CountBySession: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row after rollback, got %d", n)
	}
}
