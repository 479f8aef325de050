package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Frames table - one row per processed frame that produced detections
		`CREATE TABLE IF NOT EXISTS frames (
			id TEXT PRIMARY KEY,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			family TEXT NOT NULL,
			captured_at INTEGER NOT NULL,
			elapsed_us INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Detections table - one row per tag found in a frame
		`CREATE TABLE IF NOT EXISTS detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			frame_id TEXT NOT NULL REFERENCES frames(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			tag_id INTEGER NOT NULL,
			hamming INTEGER NOT NULL,
			center_x REAL NOT NULL,
			center_y REAL NOT NULL,
			corners TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_detections_frame_id ON detections(frame_id)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_tag_id ON detections(tag_id)`,
		`CREATE INDEX IF NOT EXISTS idx_frames_captured_at ON frames(captured_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
