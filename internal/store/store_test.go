package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err, "database file was not created")

	v, err := s.schemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, v)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"status_history", "conflicts", "notifications", "scheduled_transitions"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %q missing after reopen", table)
	}
}

func TestOpen_UpgradesOldDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("DROP INDEX idx_notifications_open")
	require.NoError(t, err)
	_, err = s.db.Exec("DROP INDEX idx_notifications_conflict")
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenContext(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	idx := tableIndexes(t, s, "notifications")
	assert.Contains(t, idx, "idx_notifications_open")
	assert.Contains(t, idx, "idx_notifications_conflict")
	v, err := s.schemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, v)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/state.db")
	assert.Error(t, err)
}

func TestOpenContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := OpenContext(ctx, filepath.Join(t.TempDir(), "state.db"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose_ZeroStore(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
		"foreign_keys": "1",
	} {
		assert.NoError(t, s.verifyPragma(name, want))
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	expected := map[string][]string{
		"status_history":        {"seq", "booking_id", "restaurant_id", "from_status", "to_status", "actor", "mode", "at", "metadata"},
		"conflicts":             {"id", "restaurant_id", "walk_in_booking_id", "upcoming_booking_id", "arrival_time", "resolved", "body"},
		"notifications":         {"id", "conflict_id", "threshold", "threshold_rank", "dismissed", "dismissed_at", "created_at"},
		"scheduled_transitions": {"id", "booking_id", "from_status", "to_status", "due_at"},
	}
	for table, cols := range expected {
		assert.Subset(t, tableColumns(t, s, table), cols, table)
	}
}

func TestSchema_Indexes(t *testing.T) {
	s := createTestStore(t)

	expected := map[string]string{
		"status_history":        "idx_status_history_booking",
		"conflicts":             "idx_conflicts_restaurant",
		"notifications":         "idx_notifications_open",
		"scheduled_transitions": "idx_scheduled_transitions_due",
	}
	for table, idx := range expected {
		assert.Contains(t, tableIndexes(t, s, table), idx, table)
	}
}

func tableColumns(t *testing.T, s *Store, table string) []string {
	t.Helper()
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		cols = append(cols, name)
	}
	require.NoError(t, rows.Err())
	return cols
}

func tableIndexes(t *testing.T, s *Store, table string) []string {
	t.Helper()
	rows, err := s.db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}
