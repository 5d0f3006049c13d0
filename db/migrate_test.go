package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("creates the execution log table", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{"schema_migrations", "job_execution_logs"} {
			var count int
			err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "%s should exist after migrations", table)
		}

		versions, err := AppliedVersions(db)
		require.NoError(t, err)
		assert.Equal(t, []string{"000", "001"}, versions)
	})

	t.Run("is idempotent", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")
		log := zaptest.NewLogger(t).Sugar()

		db, err := OpenWithMigrations(dbPath, log)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO job_execution_logs (job_id, exit_code, execution_time, timestamp)
			VALUES ('backup', 0, 0.5, '2024-01-01 00:00:00.000000')`)
		require.NoError(t, err)
		db.Close()

		db, err = OpenWithMigrations(dbPath, log)
		require.NoError(t, err)
		defer db.Close()

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM job_execution_logs").Scan(&count))
		assert.Equal(t, 1, count, "re-running migrations must not drop history")
	})

	t.Run("rejects negative durations", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec(`INSERT INTO job_execution_logs (job_id, exit_code, execution_time, timestamp)
			VALUES ('backup', 0, -1, '2024-01-01 00:00:00.000000')`)
		assert.Error(t, err)
	})
}
