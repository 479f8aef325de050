package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ayusman/tagsight/internal/apriltag"
	"github.com/ayusman/tagsight/internal/detector"
)

// Setting keys.
const (
	KeyDetector = "detector"
	KeyEnabled  = "enabled"
)

// detectorSetting is the stored form of detector.Params.
type detectorSetting struct {
	Family     string  `json:"family"`
	ErrorBits  int     `json:"error_bits"`
	Decimation float64 `json:"decimation"`
	Sigma      float64 `json:"sigma"`
	Threads    int     `json:"threads"`
}

// SettingsRepository reads and writes key-value settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value stored under key, or ErrNotFound.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (r *SettingsRepository) Delete(key string) error {
	_, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// LoadDetector returns the saved detector parameters, or ErrNotFound when
// none were saved.
func (r *SettingsRepository) LoadDetector() (detector.Params, error) {
	raw, err := r.Get(KeyDetector)
	if err != nil {
		return detector.Params{}, err
	}

	var ds detectorSetting
	if err := json.Unmarshal([]byte(raw), &ds); err != nil {
		return detector.Params{}, fmt.Errorf("decode detector settings: %w", err)
	}
	family, err := apriltag.ParseFamily(ds.Family)
	if err != nil {
		return detector.Params{}, fmt.Errorf("decode detector settings: %w", err)
	}

	p := detector.Params{
		Family:     family,
		ErrorBits:  ds.ErrorBits,
		Decimation: ds.Decimation,
		Sigma:      ds.Sigma,
		Threads:    ds.Threads,
	}
	if err := p.Validate(); err != nil {
		return detector.Params{}, fmt.Errorf("stored detector settings: %w", err)
	}
	return p, nil
}

// SaveDetector stores p.
func (r *SettingsRepository) SaveDetector(p detector.Params) error {
	data, err := json.Marshal(detectorSetting{
		Family:     p.Family.String(),
		ErrorBits:  p.ErrorBits,
		Decimation: p.Decimation,
		Sigma:      p.Sigma,
		Threads:    p.Threads,
	})
	if err != nil {
		return err
	}
	return r.Set(KeyDetector, string(data))
}

// Enabled returns the saved pipeline state, defaulting to true.
func (r *SettingsRepository) Enabled() (bool, error) {
	raw, err := r.Get(KeyEnabled)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(raw)
}

// SetEnabled stores the pipeline state.
func (r *SettingsRepository) SetEnabled(enabled bool) error {
	return r.Set(KeyEnabled, strconv.FormatBool(enabled))
}

// Reset removes the saved detector parameters.
func (r *SettingsRepository) Reset() error {
	return r.Delete(KeyDetector)
}
