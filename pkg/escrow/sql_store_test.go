package escrow

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_Credit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := NewSQLStore(db)

	mock.ExpectExec("INSERT INTO escrow_balances").
		WithArgs(int64(1), "NATIVE", int64(100), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Credit(context.Background(), 1, "NATIVE", 100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Payout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := NewSQLStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT amount FROM escrow_balances").
		WithArgs(int64(1), "NATIVE").
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(100))
	mock.ExpectExec("UPDATE escrow_balances SET amount = amount -").
		WithArgs(int64(1), "NATIVE", int64(100), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO account_balances").
		WithArgs("carol", "NATIVE", int64(70), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO account_balances").
		WithArgs("victor", "NATIVE", int64(30), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = store.Payout(context.Background(), 1, "NATIVE", []Payment{
		{Recipient: "carol", Amount: 70},
		{Recipient: "victor", Amount: 30},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PayoutInsufficientRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := NewSQLStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT amount FROM escrow_balances").
		WithArgs(int64(1), "NATIVE").
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(50))
	mock.ExpectRollback()

	err = store.Payout(context.Background(), 1, "NATIVE", []Payment{
		{Recipient: "carol", Amount: 70},
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_BalanceMissingEntryIsZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := NewSQLStore(db)

	mock.ExpectQuery("SELECT amount FROM escrow_balances").
		WithArgs(int64(9), "NATIVE").
		WillReturnRows(sqlmock.NewRows([]string{"amount"}))

	bal, err := store.EscrowBalance(context.Background(), 9, "NATIVE")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}
