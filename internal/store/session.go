package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is one tracker lifetime against one camera.
type Session struct {
	ID        string     `json:"id"`
	DeviceID  int        `json:"device_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// SessionRepository provides operations on recording sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Start opens a new session for the given camera.
func (r *SessionRepository) Start(deviceID int) (*Session, error) {
	sess := &Session{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		StartedAt: time.Now().UTC(),
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, device_id, started_at) VALUES (?, ?, ?)`,
		sess.ID, sess.DeviceID, sess.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// End stamps the session's end time. Ending a session twice keeps the first
// stamp.
func (r *SessionRepository) End(id string) error {
	res, err := r.db.Exec(
		`UPDATE sessions SET ended_at = COALESCE(ended_at, ?) WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, device_id, started_at, ended_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.DeviceID, &sess.StartedAt, &ended)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if ended.Valid {
		sess.EndedAt = &ended.Time
	}
	return sess, nil
}

// List returns all sessions, most recent first.
func (r *SessionRepository) List() ([]Session, error) {
	rows, err := r.db.Query(
		`SELECT id, device_id, started_at, ended_at FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var ended sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.DeviceID, &sess.StartedAt, &ended); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			sess.EndedAt = &t
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
