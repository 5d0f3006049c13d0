package logstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/avscheduler/errors"
	testdb "github.com/teranos/avscheduler/internal/testing"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func appendN(t *testing.T, s *Store, jobID string, n int, exitCode int) []Record {
	t.Helper()
	var out []Record
	for i := 0; i < n; i++ {
		rec, err := s.Append(context.Background(), Record{
			JobID:     jobID,
			ExitCode:  exitCode,
			Duration:  float64(i) / 10,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestAppendAndList(t *testing.T) {
	s := NewStore(testdb.CreateTestDB(t))
	ctx := context.Background()

	appendN(t, s, "backup", 5, 0)
	appendN(t, s, "report", 2, 1)

	records, err := s.List(ctx, Filter{JobID: "backup"})
	require.NoError(t, err)
	require.Len(t, records, 5)

	for i := 1; i < len(records); i++ {
		assert.True(t, records[i-1].Timestamp.After(records[i].Timestamp),
			"records must be newest first")
	}
	for _, r := range records {
		assert.Equal(t, "backup", r.JobID)
		assert.Equal(t, time.UTC, r.Timestamp.Location())
	}

	latest, err := s.Latest(ctx, "backup")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, records[0], *latest)

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 7)

	limited, err := s.List(ctx, Filter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func TestAppendNormalizesTimestamp(t *testing.T) {
	s := NewStore(testdb.CreateTestDB(t))
	ctx := context.Background()

	tokyo := time.FixedZone("JST", 9*3600)
	local := time.Date(2024, 3, 1, 21, 0, 0, 123456000, tokyo)

	rec, err := s.Append(ctx, Record{JobID: "backup", Timestamp: local, Duration: -3})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, 0.0, rec.Duration, "negative durations clamp to zero")

	latest, err := s.Latest(ctx, "backup")
	require.NoError(t, err)
	assert.True(t, latest.Timestamp.Equal(local))
	assert.Equal(t, "2024-03-01 12:00:00.123456", latest.Timestamp.Format(TimestampLayout))
}

func TestAppendRejectsEmptyJobID(t *testing.T) {
	s := NewStore(testdb.CreateTestDB(t))
	_, err := s.Append(context.Background(), Record{Timestamp: base})
	assert.True(t, errors.Is(err, errors.ErrLogStore))
}

func TestLatestTieBreaksOnID(t *testing.T) {
	s := NewStore(testdb.CreateTestDB(t))
	ctx := context.Background()

	_, err := s.Append(ctx, Record{JobID: "backup", ExitCode: 1, Timestamp: base})
	require.NoError(t, err)
	second, err := s.Append(ctx, Record{JobID: "backup", ExitCode: 0, Timestamp: base})
	require.NoError(t, err)

	latest, err := s.Latest(ctx, "backup")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestLatestNoHistory(t *testing.T) {
	s := NewStore(testdb.CreateTestDB(t))
	latest, err := s.Latest(context.Background(), "never-ran")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestDeleteBefore(t *testing.T) {
	s := NewStore(testdb.CreateTestDB(t))
	ctx := context.Background()

	appendN(t, s, "backup", 5, 0) // base+0m .. base+4m
	appendN(t, s, "report", 5, 0)

	cutoff := base.Add(2 * time.Minute)
	n, err := s.Delete(ctx, "backup", cutoff, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining, err := s.List(ctx, Filter{JobID: "backup"})
	require.NoError(t, err)
	require.Len(t, remaining, 3)
	for _, r := range remaining {
		assert.False(t, r.Timestamp.Before(cutoff))
	}

	others, err := s.List(ctx, Filter{JobID: "report"})
	require.NoError(t, err)
	assert.Len(t, others, 5, "other jobs' records are untouched")
}

func TestDeleteAll(t *testing.T) {
	s := NewStore(testdb.CreateTestDB(t))
	ctx := context.Background()

	appendN(t, s, "backup", 3, 0)
	appendN(t, s, "report", 4, 0)

	n, err := s.Delete(ctx, "backup", time.Time{}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	gone, err := s.List(ctx, Filter{JobID: "backup"})
	require.NoError(t, err)
	assert.Empty(t, gone)

	others, err := s.List(ctx, Filter{JobID: "report"})
	require.NoError(t, err)
	assert.Len(t, others, 4)

	ids, err := s.JobIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"report"}, ids)
}

func TestDeleteRequiresCutoffOrAll(t *testing.T) {
	s := NewStore(testdb.CreateTestDB(t))
	_, err := s.Delete(context.Background(), "backup", time.Time{}, false)
	assert.Error(t, err)
}

func TestListSince(t *testing.T) {
	s := NewStore(testdb.CreateTestDB(t))
	ctx := context.Background()

	max, err := s.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), max)

	recs := appendN(t, s, "backup", 4, 0)

	since, err := s.ListSince(ctx, recs[1].ID, 0)
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, recs[2].ID, since[0].ID)
	assert.Equal(t, recs[3].ID, since[1].ID)

	max, err = s.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, recs[3].ID, max)
}

func TestConcurrentAppendAndLatest(t *testing.T) {
	s := NewStore(testdb.CreateTestDB(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := s.Append(ctx, Record{JobID: "backup", Timestamp: time.Now()})
				assert.NoError(t, err)
				_, err = s.Latest(ctx, "backup")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	records, err := s.List(ctx, Filter{JobID: "backup"})
	require.NoError(t, err)
	assert.Len(t, records, 40)
}

// Minimal sqlmock tests for failure paths a real SQLite file won't produce

func TestAppend_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO job_execution_logs").
		WithArgs("backup", 0, 1.5, "2024-03-01 12:00:00.000000").
		WillReturnError(errors.New("disk I/O error"))

	s := NewStore(db)
	_, err = s.Append(context.Background(), Record{JobID: "backup", Duration: 1.5, Timestamp: base})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLogStore))
	assert.Contains(t, err.Error(), "backup")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatest_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t.Run("store error", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM job_execution_logs").
			WithArgs("backup").
			WillReturnError(errors.New("database disk image is malformed"))

		_, err := NewStore(db).Latest(context.Background(), "backup")
		assert.True(t, errors.Is(err, errors.ErrLogStore))
	})

	t.Run("corrupt timestamp", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "job_id", "exit_code", "execution_time", "timestamp"}).
			AddRow(1, "backup", 0, 0.1, "yesterday")
		mock.ExpectQuery("SELECT (.+) FROM job_execution_logs").
			WithArgs("backup").
			WillReturnRows(rows)

		_, err := NewStore(db).Latest(context.Background(), "backup")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "corrupt timestamp")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM job_execution_logs WHERE job_id = \\? AND timestamp < \\?").
		WithArgs("backup", "2024-03-01 12:00:00.000000").
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := NewStore(db).Delete(context.Background(), "backup", base, false)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreErrorsAreMarked_Sqlmock(t *testing.T) {
	ctx := context.Background()
	diskErr := errors.New("disk I/O error")

	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
		call   func(s *Store) error
	}{
		{
			name:   "List",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("SELECT (.+) FROM job_execution_logs").WillReturnError(diskErr) },
			call:   func(s *Store) error { _, err := s.List(ctx, Filter{JobID: "backup"}); return err },
		},
		{
			name:   "ListSince",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("SELECT (.+) WHERE id > \\?").WillReturnError(diskErr) },
			call:   func(s *Store) error { _, err := s.ListSince(ctx, 10, 5); return err },
		},
		{
			name:   "MaxID",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("SELECT MAX\\(id\\)").WillReturnError(diskErr) },
			call:   func(s *Store) error { _, err := s.MaxID(ctx); return err },
		},
		{
			name:   "Delete",
			expect: func(m sqlmock.Sqlmock) { m.ExpectExec("DELETE FROM job_execution_logs").WillReturnError(diskErr) },
			call:   func(s *Store) error { _, err := s.Delete(ctx, "backup", time.Time{}, true); return err },
		},
		{
			name:   "JobIDs",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("SELECT DISTINCT job_id").WillReturnError(diskErr) },
			call:   func(s *Store) error { _, err := s.JobIDs(ctx); return err },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.expect(mock)
			err = tt.call(NewStore(db))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrLogStore), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTextLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "avscheduler.log")
	tl := NewTextLog(path)
	require.Equal(t, path, tl.Path())

	rec := Record{JobID: "backup", ExitCode: 0, Duration: 1.2041, Timestamp: base}
	require.NoError(t, tl.Write(rec, []byte("done\n"), nil))
	require.NoError(t, tl.Write(Record{JobID: "report", ExitCode: 2, Timestamp: base}, nil, []byte("boom")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"[2024-03-01 12:00:00.000000] Job backup: Exit Code=0, Execution Time=1.204s\n"+
			"STDOUT:\ndone\n"+
			"[2024-03-01 12:00:00.000000] Job report: Exit Code=2, Execution Time=0.000s\n"+
			"STDERR:\nboom\n",
		string(data))
}

func TestNilTextLog(t *testing.T) {
	var tl *TextLog
	assert.Nil(t, NewTextLog(""))
	assert.NoError(t, tl.Write(Record{JobID: "x"}, []byte("out"), nil))
	assert.Equal(t, "", tl.Path())
}
