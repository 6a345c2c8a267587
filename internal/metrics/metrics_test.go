package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct{}

func (fakeSource) Now() float64                 { return 12.5 }
func (fakeSource) RoomTemperature() float64     { return 31 }
func (fakeSource) MainRoomTemperature() float64 { return 24 }

func (fakeSource) ServerReadings() []monitoring.ServerReading {
	out := make([]monitoring.ServerReading, monitoring.ServerCount)
	for i := range out {
		out[i] = monitoring.ServerReading{Index: i, Temperature: 60 + float64(i), CPULoad: 40}
	}
	out[1].DisplayName = "db-01"
	out[3].Status = monitoring.StatusCritical
	return out
}

func testSample() *Sample {
	return NewSample(fakeSource{}, true, time.Unix(1700000000, 0))
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestNewSample(t *testing.T) {
	s := testSample()

	assert.InDelta(t, 12.5, s.SimTime, 1e-9)
	assert.InDelta(t, 31, s.RoomTemperature, 1e-9)
	assert.InDelta(t, 24, s.MainRoomTemperature, 1e-9)
	assert.True(t, s.AlarmActive)
	require.Len(t, s.Servers, monitoring.ServerCount)
	assert.Equal(t, "Сервер 1", s.Servers[0].Name)
	assert.Equal(t, "db-01", s.Servers[1].Name)
	assert.Equal(t, "critical", s.Servers[3].Status)
	assert.Equal(t, "normal", s.Servers[0].Status)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled ignores fields", Config{}, false},
		{"defaults", DefaultConfig(), false},
		{"missing path", Config{Enabled: true, BatchSize: 1}, true},
		{"zero batch", Config{Enabled: true, DBPath: "x.db"}, true},
		{"negative timeout", Config{Enabled: true, DBPath: "x.db", BatchSize: 1, BatchTimeout: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDisabledServiceIsNoop(t *testing.T) {
	c, err := NewService(DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	assert.NoError(t, c.Record(context.Background(), testSample()))
	assert.NoError(t, c.Close())
}

func TestServiceWritesBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	cfg := Config{Enabled: true, DBPath: path, BatchSize: 2}

	c, err := NewService(cfg, logger.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Record(ctx, testSample()))
	}

	db := openDB(t, path)
	assert.Equal(t, 2, countRows(t, db, "room_samples"), "first batch flushed when full")

	require.NoError(t, c.Close())
	assert.Equal(t, 3, countRows(t, db, "room_samples"), "remainder flushed on close")
	assert.Equal(t, 3*monitoring.ServerCount, countRows(t, db, "server_samples"))

	var name, status string
	var temp float64
	require.NoError(t, db.QueryRow(
		"SELECT name, status, temperature FROM server_samples WHERE server_index = 3 LIMIT 1",
	).Scan(&name, &status, &temp))
	assert.Equal(t, "Сервер 4", name)
	assert.Equal(t, "critical", status)
	assert.InDelta(t, 63, temp, 1e-9)

	assert.NoError(t, c.Close(), "close is idempotent")
}

func TestServiceRejectsNilAndCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	c, err := NewService(Config{Enabled: true, DBPath: path, BatchSize: 5}, logger.Nop())
	require.NoError(t, err)
	defer c.Close()

	err = c.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, ErrInvalidSample))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Record(ctx, testSample())
	assert.True(t, errors.HasCode(err, ErrOperationTimeout))
}

func TestSchemaMismatchBacksUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.db")

	db := openDB(t, path)
	_, err := db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'));
		CREATE TABLE room_samples (legacy INTEGER);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := NewRepository(Config{DBPath: path, BatchSize: 1}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Record(testSample()))
	require.NoError(t, repo.Close())

	backups, err := os.ReadDir(filepath.Join(dir, backupDirName))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "metrics_v99_")

	check := openDB(t, path)
	version, err := GetSchemaVersion(check)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
	assert.Equal(t, 1, countRows(t, check, "room_samples"))
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")

	repo, err := NewRepository(Config{DBPath: path, BatchSize: 1}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Record(testSample()))
	require.NoError(t, repo.Close())

	repo, err = NewRepository(Config{DBPath: path, BatchSize: 1}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Record(testSample()))
	require.NoError(t, repo.Close())

	db := openDB(t, path)
	assert.Equal(t, 2, countRows(t, db, "room_samples"))
	_, err = os.Stat(filepath.Join(filepath.Dir(path), backupDirName))
	assert.True(t, os.IsNotExist(err), "no backup when the version matches")
}
