package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per tracker lifetime
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			device_id INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// One row per detected hand per frame
		`CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			hand_index INTEGER NOT NULL,
			handedness TEXT NOT NULL CHECK(handedness IN ('Left', 'Right')),
			score REAL NOT NULL,
			landmarks TEXT NOT NULL,
			captured_at DATETIME NOT NULL,
			UNIQUE(session_id, seq, hand_index)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_observations_session_id ON observations(session_id, seq)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
