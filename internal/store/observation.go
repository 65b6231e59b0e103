package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ayusman/handpos/internal/detector"
)

// Observation is one detected hand in one frame of a session.
type Observation struct {
	ID         int64         `json:"id"`
	SessionID  string        `json:"session_id"`
	Seq        uint64        `json:"seq"`
	HandIndex  int           `json:"hand_index"`
	Hand       detector.Hand `json:"hand"`
	CapturedAt time.Time     `json:"captured_at"`
}

// ObservationRepository stores per-frame hand landmarks.
type ObservationRepository struct {
	db *sql.DB
}

// Observations returns the observation repository for this store.
func (s *Store) Observations() *ObservationRepository {
	return &ObservationRepository{db: s.db}
}

// Record inserts every hand of one frame in a single transaction. A frame
// with no hands records nothing.
func (r *ObservationRepository) Record(sessionID string, seq uint64, capturedAt time.Time, hands []detector.Hand) error {
	if len(hands) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO observations (session_id, seq, hand_index, handedness, score, landmarks, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, h := range hands {
		data, err := json.Marshal(h.Landmarks)
		if err != nil {
			return fmt.Errorf("encode landmarks: %w", err)
		}
		if _, err := stmt.Exec(sessionID, int64(seq), i, string(h.Handedness), h.Score, string(data), capturedAt.UTC()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListBySession returns a session's observations ordered by frame and then
// by the detector's hand order.
func (r *ObservationRepository) ListBySession(sessionID string) ([]Observation, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, seq, hand_index, handedness, score, landmarks, captured_at
		 FROM observations
		 WHERE session_id = ?
		 ORDER BY seq, hand_index`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obs []Observation
	for rows.Next() {
		var o Observation
		var seq int64
		var handedness, data string
		if err := rows.Scan(&o.ID, &o.SessionID, &seq, &o.HandIndex, &handedness, &o.Hand.Score, &data, &o.CapturedAt); err != nil {
			return nil, err
		}
		o.Seq = uint64(seq)
		if o.Hand.Handedness, err = detector.ParseHandedness(handedness); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &o.Hand.Landmarks); err != nil {
			return nil, fmt.Errorf("decode landmarks for seq %d: %w", o.Seq, err)
		}
		obs = append(obs, o)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return obs, nil
}

// CountBySession returns how many hands were recorded for a session.
func (r *ObservationRepository) CountBySession(sessionID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM observations WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
