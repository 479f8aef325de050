package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ayusman/tagsight/internal/detector"
)

// FrameLog describes the frame a set of detections came from.
type FrameLog struct {
	ID         string
	Width      int
	Height     int
	Family     string
	CapturedAt int64
	Elapsed    time.Duration
}

// StoredDetection is a logged detection together with its frame.
type StoredDetection struct {
	ID         int64           `json:"id"`
	FrameID    string          `json:"frame_id"`
	Family     string          `json:"family"`
	CapturedAt int64           `json:"captured_at"`
	Record     detector.Record `json:"record"`
}

// DetectionRepository stores the detection log.
type DetectionRepository struct {
	db *sql.DB
}

// Detections returns the detection repository for this store.
func (s *Store) Detections() *DetectionRepository {
	return &DetectionRepository{db: s.db}
}

// Create logs a frame and its records in a single transaction. Frames
// without records are not logged.
func (r *DetectionRepository) Create(frame FrameLog, records []detector.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO frames (id, width, height, family, captured_at, elapsed_us) VALUES (?, ?, ?, ?, ?, ?)`,
		frame.ID, frame.Width, frame.Height, frame.Family, frame.CapturedAt, frame.Elapsed.Microseconds(),
	)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO detections (frame_id, seq, tag_id, hamming, center_x, center_y, corners)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range records {
		corners, err := json.Marshal(rec.Corners)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(frame.ID, i, rec.ID, rec.Hamming, rec.Center[0], rec.Center[1], string(corners)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListRecent returns up to limit detections, newest frame first and in
// detection order within a frame.
func (r *DetectionRepository) ListRecent(limit int) ([]StoredDetection, error) {
	rows, err := r.db.Query(
		`SELECT d.id, d.frame_id, f.family, f.captured_at, d.tag_id, d.hamming, d.center_x, d.center_y, d.corners
		 FROM detections d
		 JOIN frames f ON f.id = d.frame_id
		 ORDER BY f.captured_at DESC, f.rowid DESC, d.seq ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detections := []StoredDetection{}
	for rows.Next() {
		var d StoredDetection
		var corners string
		if err := rows.Scan(&d.ID, &d.FrameID, &d.Family, &d.CapturedAt,
			&d.Record.ID, &d.Record.Hamming, &d.Record.Center[0], &d.Record.Center[1], &corners); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(corners), &d.Record.Corners); err != nil {
			return nil, err
		}
		detections = append(detections, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return detections, nil
}

// CountByTag returns how many times each tag id was logged.
func (r *DetectionRepository) CountByTag() (map[int]int, error) {
	rows, err := r.db.Query(`SELECT tag_id, COUNT(*) FROM detections GROUP BY tag_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var tag, n int
		if err := rows.Scan(&tag, &n); err != nil {
			return nil, err
		}
		counts[tag] = n
	}

	return counts, rows.Err()
}

// Prune keeps the newest keep frames and deletes the rest along with their
// detections.
func (r *DetectionRepository) Prune(keep int) (int64, error) {
	res, err := r.db.Exec(
		`DELETE FROM frames WHERE id NOT IN (
			SELECT id FROM frames ORDER BY captured_at DESC, rowid DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
