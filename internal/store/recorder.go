package store

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/handpos/internal/tracker"
)

// recorderBuffer is how many frames may wait for the database before new
// ones are dropped.
const recorderBuffer = 64

// ErrRecorderClosed is returned by Publish after Close.
var ErrRecorderClosed = errors.New("recorder closed")

// ErrRecorderBusy is returned by Publish when the write queue is full and the
// observation was dropped.
var ErrRecorderBusy = errors.New("recorder queue full")

// Recorder writes the tracker's observations into one session. Writes happen
// on a background goroutine so the capture loop never waits on the disk.
type Recorder struct {
	store   *Store
	session *Session

	mu     sync.Mutex
	closed bool
	queue  chan tracker.Observation
	done   chan struct{}
}

var _ tracker.Sink = (*Recorder)(nil)

// NewRecorder starts a session for deviceID and begins accepting
// observations.
func NewRecorder(s *Store, deviceID int) (*Recorder, error) {
	sess, err := s.Sessions().Start(deviceID)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		store:   s,
		session: sess,
		queue:   make(chan tracker.Observation, recorderBuffer),
		done:    make(chan struct{}),
	}
	go r.loop()

	log.WithField("session", sess.ID).Info("recording observations")
	return r, nil
}

// SessionID returns the ID of the session being recorded.
func (r *Recorder) SessionID() string {
	return r.session.ID
}

// Publish queues an observation. Skipped frames and frames without hands are
// not recorded.
func (r *Recorder) Publish(obs tracker.Observation) error {
	if obs.Skipped || len(obs.Hands) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.queue <- obs:
		return nil
	default:
		return ErrRecorderBusy
	}
}

func (r *Recorder) loop() {
	defer close(r.done)

	obsRepo := r.store.Observations()
	for obs := range r.queue {
		if err := obsRepo.Record(r.session.ID, obs.Seq, obs.CapturedAt, obs.Hands); err != nil {
			log.WithError(err).WithField("seq", obs.Seq).Warn("failed to record observation")
		}
	}
}

// Close flushes queued observations, ends the session and closes the store.
// Only the first call does anything.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done

	return errors.Join(
		r.store.Sessions().End(r.session.ID),
		r.store.Close(),
	)
}
