package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/tagsight/internal/apriltag"
	"github.com/ayusman/tagsight/internal/detector"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// Verify the database file doesn't exist yet
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist after creating store")
	assert.Equal(t, dbPath, s.Path())
}

func TestOpen_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, filepath.Join(dir, DefaultFilename), s.Path())
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"settings", "frames", "detections"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q should exist after migrations", table)
	}

	for _, idx := range []string{"idx_detections_frame_id", "idx_detections_tag_id", "idx_frames_captured_at"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
			idx,
		).Scan(&name)
		assert.NoError(t, err, "index %q should exist after migrations", idx)
	}
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Settings().Set("k", "v"))
	require.NoError(t, s.Close())

	s, err = New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Settings().Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	assert.NoError(t, s.Close())

	// After closing, DB operations should fail
	_, err = s.DB().Exec("SELECT 1")
	assert.Error(t, err, "DB operations should fail after close")
}

func TestStore_ForeignKeysEnabled(t *testing.T) {
	s := newTestStore(t)

	var fkEnabled int
	require.NoError(t, s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled))
	assert.Equal(t, 1, fkEnabled, "foreign keys should be enabled")
}

func TestSettings_GetSet(t *testing.T) {
	settings := newTestStore(t).Settings()

	_, err := settings.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, settings.Set("camera", "0"))
	require.NoError(t, settings.Set("camera", "1"))

	v, err := settings.Get("camera")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, settings.Delete("camera"))
	require.NoError(t, settings.Delete("camera"))
	_, err = settings.Get("camera")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettings_Detector(t *testing.T) {
	settings := newTestStore(t).Settings()

	_, err := settings.LoadDetector()
	assert.ErrorIs(t, err, ErrNotFound)

	want := detector.Params{Family: apriltag.TagStandard41h12, ErrorBits: 1, Decimation: 1.5, Sigma: 0.8, Threads: 3}
	require.NoError(t, settings.SaveDetector(want))

	got, err := settings.LoadDetector()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, settings.Reset())
	_, err = settings.LoadDetector()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettings_DetectorCorrupt(t *testing.T) {
	settings := newTestStore(t).Settings()

	tests := []struct {
		name  string
		value string
	}{
		{"not json", "{"},
		{"unknown family", `{"family":"tag99h1","error_bits":1,"decimation":2,"sigma":0,"threads":1}`},
		{"invalid params", `{"family":"tag36h11","error_bits":1,"decimation":0,"sigma":0,"threads":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, settings.Set(KeyDetector, tt.value))
			_, err := settings.LoadDetector()
			assert.Error(t, err)
			assert.NotErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSettings_Enabled(t *testing.T) {
	settings := newTestStore(t).Settings()

	enabled, err := settings.Enabled()
	require.NoError(t, err)
	assert.True(t, enabled, "pipeline should default to enabled")

	require.NoError(t, settings.SetEnabled(false))
	enabled, err = settings.Enabled()
	require.NoError(t, err)
	assert.False(t, enabled)
}

func testRecords() []detector.Record {
	return []detector.Record{
		detector.TagRecord(7, 10, 20, 4),
		detector.TagRecord(3, 50, 60, 8),
	}
}

func TestDetections_CreateAndList(t *testing.T) {
	repo := newTestStore(t).Detections()

	older := FrameLog{ID: "frame-1", Width: 640, Height: 480, Family: "tag36h11", CapturedAt: 1000, Elapsed: 3 * time.Millisecond}
	newer := FrameLog{ID: "frame-2", Width: 640, Height: 480, Family: "tag36h11", CapturedAt: 2000}

	require.NoError(t, repo.Create(older, testRecords()))
	require.NoError(t, repo.Create(newer, []detector.Record{detector.TagRecord(7, 1, 1, 2)}))

	got, err := repo.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "frame-2", got[0].FrameID)
	assert.Equal(t, "frame-1", got[1].FrameID)
	assert.Equal(t, 7, got[1].Record.ID, "records keep detection order within a frame")
	assert.Equal(t, 3, got[2].Record.ID)
	assert.Equal(t, testRecords()[1], got[2].Record)
	assert.Equal(t, "tag36h11", got[2].Family)

	limited, err := repo.ListRecent(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDetections_EmptyFrameNotLogged(t *testing.T) {
	repo := newTestStore(t).Detections()

	require.NoError(t, repo.Create(FrameLog{ID: "empty", Family: "tag36h11"}, nil))

	got, err := repo.ListRecent(10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDetections_CountByTag(t *testing.T) {
	repo := newTestStore(t).Detections()

	require.NoError(t, repo.Create(FrameLog{ID: "a", Family: "tag36h11", CapturedAt: 1}, testRecords()))
	require.NoError(t, repo.Create(FrameLog{ID: "b", Family: "tag36h11", CapturedAt: 2}, testRecords()[:1]))

	counts, err := repo.CountByTag()
	require.NoError(t, err)
	assert.Equal(t, map[int]int{7: 2, 3: 1}, counts)
}

func TestDetections_DuplicateFrameRollsBack(t *testing.T) {
	repo := newTestStore(t).Detections()

	require.NoError(t, repo.Create(FrameLog{ID: "a", Family: "tag36h11", CapturedAt: 1}, testRecords()))
	assert.Error(t, repo.Create(FrameLog{ID: "a", Family: "tag36h11", CapturedAt: 2}, testRecords()))

	got, err := repo.ListRecent(10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDetections_Prune(t *testing.T) {
	s := newTestStore(t)
	repo := s.Detections()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(FrameLog{ID: id, Family: "tag36h11", CapturedAt: int64(i)}, testRecords()))
	}

	n, err := repo.Prune(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repo.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].FrameID)

	// Detections of pruned frames cascade.
	var orphans int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM detections WHERE frame_id != 'c'`).Scan(&orphans))
	assert.Zero(t, orphans)
}
