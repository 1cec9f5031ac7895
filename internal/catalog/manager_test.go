package catalog

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"workspace-collections/internal/dbexec"
	"workspace-collections/internal/schema"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func expectTables(mock sqlmock.Sqlmock, present ...string) {
	rows := sqlmock.NewRows([]string{"TABLE_NAME"})
	for _, name := range present {
		rows.AddRow(name)
	}
	mock.ExpectQuery(regexp.QuoteMeta(tablesQuery)).
		WithArgs("tasks", "users", "workspace").
		WillReturnRows(rows)
}

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	inspector, err := NewInspector(InspectorConfig{
		Executor:     dbexec.NewStandardExecutor(db),
		DatabaseName: "workspace",
		Logger:       testLogger(),
	})
	require.NoError(t, err)

	expectTables(mock, "tasks")
	manager, err := NewManager(t.Context(), ManagerConfig{
		Catalog:     Build(nil, []schema.Name{schema.Task, schema.User}, nil),
		Inspector:   inspector,
		Logger:      testLogger(),
		MinInterval: 10 * time.Second,
		MaxInterval: 40 * time.Second,
	})
	require.NoError(t, err)
	return manager, mock
}

func TestNewManager_WithoutInspector(t *testing.T) {
	manager, err := NewManager(t.Context(), ManagerConfig{Logger: testLogger()})
	require.NoError(t, err)

	snapshot := manager.Current()
	require.NotNil(t, snapshot)
	assert.False(t, snapshot.StorageChecked)
	assert.Equal(t, len(schema.All), snapshot.Catalog.Len())
	assert.False(t, manager.StorageEnabled())

	_, err = manager.RefreshNow(t.Context())
	assert.True(t, errors.Is(err, ErrStorageDisabled))
}

func TestNewManager_InitialInspection(t *testing.T) {
	manager, mock := newTestManager(t)

	snapshot := manager.Current()
	require.NotNil(t, snapshot)
	assert.True(t, snapshot.StorageChecked)
	entries := snapshot.Catalog.Entries()
	assert.True(t, *entries[0].Exists)
	assert.False(t, *entries[1].Exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewManager_InitialInspectionFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT TABLE_NAME").WillReturnError(errors.New("access denied"))
	inspector, err := NewInspector(InspectorConfig{Executor: dbexec.NewStandardExecutor(db)})
	require.NoError(t, err)

	_, err = NewManager(t.Context(), ManagerConfig{
		Catalog:   Build(nil, []schema.Name{schema.Task}, nil),
		Inspector: inspector,
		Logger:    testLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestRefreshOnce_NoChange_BacksOff(t *testing.T) {
	manager, mock := newTestManager(t)
	before := manager.Current()

	expectTables(mock, "tasks")
	interval := 10 * time.Second
	manager.refreshOnce(t.Context(), &interval)

	assert.Equal(t, 15*time.Second, interval)
	assert.Same(t, before, manager.Current())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshOnce_Change_Swaps(t *testing.T) {
	manager, mock := newTestManager(t)
	before := manager.Current()

	expectTables(mock, "tasks", "users")
	interval := 30 * time.Second
	manager.refreshOnce(t.Context(), &interval)

	assert.Equal(t, 10*time.Second, interval)
	after := manager.Current()
	assert.NotSame(t, before, after)
	assert.True(t, *after.Catalog.Entries()[1].Exists)
}

func TestRefreshOnce_ErrorKeepsSnapshot(t *testing.T) {
	manager, mock := newTestManager(t)
	before := manager.Current()

	mock.ExpectQuery("SELECT TABLE_NAME").WillReturnError(errors.New("timeout"))
	interval := 30 * time.Second
	manager.refreshOnce(t.Context(), &interval)

	assert.Equal(t, 10*time.Second, interval)
	assert.Same(t, before, manager.Current())
}

func TestRefreshNow(t *testing.T) {
	manager, mock := newTestManager(t)

	expectTables(mock, "tasks", "users")
	snapshot, err := manager.RefreshNow(t.Context())
	require.NoError(t, err)
	assert.Same(t, snapshot, manager.Current())
	assert.Same(t, snapshot.Catalog, manager.Catalog())
}

func TestNextInterval(t *testing.T) {
	minInterval := 10 * time.Second
	maxInterval := 40 * time.Second

	assert.Equal(t, minInterval, nextInterval(time.Second, minInterval, maxInterval))
	assert.Equal(t, 15*time.Second, nextInterval(10*time.Second, minInterval, maxInterval))
	assert.Equal(t, maxInterval, nextInterval(30*time.Second, minInterval, maxInterval))
}

func TestStartWait_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	manager, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, manager.Wait(waitCtx))
}

func TestWait_DeadlineStopsRefreshLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	manager, _ := newTestManager(t)
	manager.Start(context.Background())

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer waitCancel()
	assert.ErrorIs(t, manager.Wait(waitCtx), context.DeadlineExceeded)

	// The loop was told to stop, so a second wait returns once it has exited.
	require.NoError(t, manager.Wait(context.Background()))
}
