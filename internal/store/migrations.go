package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Events table - finalized packing events. The unique key makes
		// Upsert idempotent and dedupes the known case of two passes
		// producing the same window independently.
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			camera_name TEXT NOT NULL,
			video_file TEXT NOT NULL,
			ts REAL NOT NULL,
			te REAL NOT NULL,
			duration REAL NOT NULL,
			tracking_codes TEXT NOT NULL DEFAULT '[]',
			is_recovered INTEGER NOT NULL DEFAULT 0,
			recovery_attempted INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(camera_name, video_file, ts, te)
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_events_video_file ON events(video_file)`,
		`CREATE INDEX IF NOT EXISTS idx_events_camera_name ON events(camera_name)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
