package dbexec

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardExecutor_NilDB(t *testing.T) {
	_, err := NewStandardExecutor(nil).QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestStandardExecutor_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT TABLE_NAME").
		WithArgs("tasks").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("tasks"))

	rows, err := NewStandardExecutor(db).QueryContext(context.Background(), "SELECT TABLE_NAME FROM t WHERE TABLE_NAME = ?", "tasks")
	require.NoError(t, err)
	require.True(t, rows.Next())
	var name string
	require.NoError(t, rows.Scan(&name))
	assert.Equal(t, "tasks", name)
	require.NoError(t, rows.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardExecutor_QueryTimeoutWrapsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(int64(3)))

	exec := NewStandardExecutor(db, WithQueryTimeout(time.Second))
	rows, err := exec.QueryContext(context.Background(), "SELECT COUNT(*) FROM `tasks`")
	require.NoError(t, err)

	wrapped, ok := rows.(*cancelRows)
	require.True(t, ok, "expected timeout-bound rows")
	require.True(t, wrapped.Next())
	var count int64
	require.NoError(t, wrapped.Scan(&count))
	assert.Equal(t, int64(3), count)
	require.NoError(t, wrapped.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardExecutor_QueryTimeoutError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrConnDone)

	_, err = NewStandardExecutor(db, WithQueryTimeout(time.Second)).QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}
