package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/waypoint/internal/flow"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleResult() *flow.Result {
	ok := true
	return &flow.Result{
		Status: flow.StatusSuccess,
		Steps:  11,
		State: flow.RunState{
			TargetName:                "Acme",
			CurrentURL:                "https://acme.test/settings",
			URLHistory:                []string{"https://acme.test/", "https://acme.test/account"},
			LoginPageReached:          true,
			ChangeEmailSectionReached: true,
			LoginSucceeded:            &ok,
			RetryCount:                1,
			Status:                    flow.StatusSuccess,
		},
		Duration: 42 * time.Second,
	}
}

func TestNewStore(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

// upsertArgs matches the eight upsert parameters without pinning their values.
func upsertArgs() []interface{} {
	args := make([]interface{}, 8)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should persist run and history without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))
		res := sampleResult()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(upsertRunSQL)).
			WithArgs("run-1", "Acme", "success", "", 11, pgxmock.AnyArg(), started, started.Add(42*time.Second)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(deleteHistorySQL)).
			WithArgs("run-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"run_history"}, []string{"run_id", "seq", "url"}).
			WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, "run-1", started, res))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Zero(t, observedLogs.Len(), "closed-transaction rollback must not be logged")
	})

	t.Run("should skip history copy when nothing was navigated", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		res := sampleResult()
		res.State.URLHistory = nil

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(upsertRunSQL)).WithArgs(upsertArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(deleteHistorySQL)).WithArgs(pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, "run-2", started, res))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should roll back when the upsert fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		dbErr := errors.New("relation \"runs\" does not exist")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(upsertRunSQL)).WithArgs(upsertArgs()...).WillReturnError(dbErr)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, "run-3", started, sampleResult())
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report a short history copy", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(upsertRunSQL)).WithArgs(upsertArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(deleteHistorySQL)).WithArgs(pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"run_history"}, []string{"run_id", "seq", "url"}).WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, "run-4", started, sampleResult())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject a nil result", func(t *testing.T) {
		s, _ := newMockStore(t, zap.NewNop())
		assert.Error(t, s.SaveRun(ctx, "run-5", started, nil))
	})
}

func TestGetRun(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	columns := []string{"target", "status", "last_error", "steps", "state", "started_at", "finished_at"}

	t.Run("should decode the stored state", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		state := []byte(`{"target_name":"Acme","current_url":"https://acme.test/login","url_history":["https://acme.test/"],"login_page_reached":true,"retry_count":1,"status":"success"}`)

		mockPool.ExpectQuery(flexibleSQLMatcher(selectRunSQL)).
			WithArgs("run-1").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow("Acme", "success", "", 7, state, started, started.Add(time.Minute)))

		rec, err := s.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, flow.StatusSuccess, rec.Status)
		assert.Equal(t, 7, rec.Steps)
		assert.Equal(t, "https://acme.test/login", rec.State.CurrentURL)
		assert.Equal(t, []string{"https://acme.test/"}, rec.State.URLHistory)
		assert.True(t, rec.State.LoginPageReached)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should return ErrNotFound for unknown runs", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(selectRunSQL)).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows(columns))

		_, err := s.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
