package ingest

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLDedupStore_Seen(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := NewSQLDedupStore(db)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	seen, err := store.Seen(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDedupStore_RecordIgnoresConflict(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := NewSQLDedupStore(db)
	n := Notification{
		Hash:     "abc123",
		Type:     "ApprovalRequested",
		TaskID:   9,
		Sequence: 2,
		SourceID: "indexer-1",
	}

	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(n.Hash, n.Type, n.TaskID, n.Sequence, n.SourceID, "null", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Record(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDedupStore_ByTask(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := NewSQLDedupStore(db)

	rows := sqlmock.NewRows([]string{"hash", "type", "task_id", "sequence", "source_id", "payload"}).
		AddRow("h1", "TaskCreated", int64(9), int64(1), "indexer-1", `{"amount":100}`).
		AddRow("h2", "ApprovalRequested", int64(9), int64(2), "indexer-1", nil)

	mock.ExpectQuery(`SELECT hash, type, task_id`).
		WithArgs(int64(9)).
		WillReturnRows(rows)

	got, err := store.ByTask(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "TaskCreated", got[0].Type)
	assert.Equal(t, float64(100), got[0].Payload["amount"])
	assert.Nil(t, got[1].Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}
