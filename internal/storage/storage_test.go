package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

func TestPostgresSaveBatch(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := newPostgresWithDB(db, zaptest.NewLogger(t))

	fill := types.Fill{
		TradeID: "t1-0",
		Buyer:   "alice",
		Seller:  types.SystemAMMID,
		Outcome: 0,
		Side:    types.SideYes,
		Price:   fixed.Price(5_500),
		Size:    fixed.AmountFromInt(10),
		Type:    types.FillAMM,
	}
	event := types.Event{Type: types.EventFill, TsMs: 1, Payload: fill}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO engine_state").
		WithArgs([]byte(`{"seq":1}`), "batch-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO fills").
		WithArgs("t1-0", "batch-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO events").
		WithArgs("batch-1", "FILL", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.SaveBatch(context.Background(), "batch-1", []byte(`{"seq":1}`), []types.Fill{fill}, []types.Event{event})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveBatchRollsBackOnError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := newPostgresWithDB(db, zaptest.NewLogger(t))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO engine_state").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = store.SaveBatch(context.Background(), "batch-1", []byte(`{}`), nil, nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadState(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := newPostgresWithDB(db, zaptest.NewLogger(t))

	mock.ExpectQuery("SELECT blob FROM engine_state").
		WillReturnRows(sqlmock.NewRows([]string{"blob"}).AddRow([]byte(`{"seq":7}`)))

	blob, err := store.LoadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"seq":7}`), blob)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadStateEmpty(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := newPostgresWithDB(db, zaptest.NewLogger(t))

	mock.ExpectQuery("SELECT blob FROM engine_state").
		WillReturnRows(sqlmock.NewRows([]string{"blob"}))

	blob, err := store.LoadState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, blob)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsoleStorageRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewConsoleStorage(zaptest.NewLogger(t))

	blob, err := store.LoadState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, blob)

	require.NoError(t, store.SaveBatch(context.Background(), "b1", []byte(`{"seq":3}`), nil, nil))
	blob, err = store.LoadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"seq":3}`), blob)
	require.NoError(t, store.Close())
}
