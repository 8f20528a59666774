package escrow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airinterface/contract-safe/pkg/escrow"
	"github.com/airinterface/contract-safe/pkg/event"
	"github.com/airinterface/contract-safe/pkg/principal"
)

const (
	admin      = principal.Principal("admin")
	controller = principal.Principal("controller")
	native     = escrow.Asset("NATIVE")
)

func newLedger(t *testing.T) (*escrow.Ledger, *event.Recorder) {
	t.Helper()
	rec := &event.Recorder{}
	l := escrow.NewLedger(admin, native, escrow.NewMemoryStore(), rec)
	require.NoError(t, l.AddAuthorizedCaller(admin, controller))
	return l, rec
}

func TestAuthorizedCallers_LoudIdempotency(t *testing.T) {
	l := escrow.NewLedger(admin, native, escrow.NewMemoryStore(), nil)

	require.NoError(t, l.AddAuthorizedCaller(admin, controller))

	err := l.AddAuthorizedCaller(admin, controller)
	assert.ErrorIs(t, err, escrow.ErrAlreadyAuthorized)

	require.NoError(t, l.RemoveAuthorizedCaller(admin, controller))

	err = l.RemoveAuthorizedCaller(admin, controller)
	assert.ErrorIs(t, err, escrow.ErrNotAuthorized)
}

func TestAuthorizedCallers_AdminOnly(t *testing.T) {
	l := escrow.NewLedger(admin, native, escrow.NewMemoryStore(), nil)

	err := l.AddAuthorizedCaller("mallory", "mallory")
	assert.ErrorIs(t, err, escrow.ErrNotAdmin)

	err = l.AddAuthorizedCaller(admin, principal.Zero)
	assert.ErrorIs(t, err, escrow.ErrZeroPrincipal)
}

func TestDeposit(t *testing.T) {
	l, rec := newLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, controller, 1, native, 100, 100))

	bal, err := l.BalanceOf(ctx, 1, native)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal)

	assert.Len(t, rec.OfType(event.TypeEscrowDeposited), 1)
}

func TestDeposit_Unauthorized(t *testing.T) {
	l, _ := newLedger(t)

	err := l.Deposit(context.Background(), "mallory", 1, native, 100, 100)
	assert.ErrorIs(t, err, escrow.ErrUnauthorized)
}

func TestDeposit_NativeValueMustMatch(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	err := l.Deposit(ctx, controller, 1, native, 100, 99)
	assert.ErrorIs(t, err, escrow.ErrAmountMismatch)

	err = l.Deposit(ctx, controller, 1, native, 0, 0)
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)

	// Non-native asset: the pull happens elsewhere, supplied must be 0.
	err = l.Deposit(ctx, controller, 1, escrow.Asset("USDC"), 100, 100)
	assert.ErrorIs(t, err, escrow.ErrAmountMismatch)
	require.NoError(t, l.Deposit(ctx, controller, 1, escrow.Asset("USDC"), 100, 0))
}

func TestRelease_MultiRecipient(t *testing.T) {
	l, rec := newLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, controller, 1, native, 100, 100))

	recipients := []principal.Principal{"carol", "victor"}
	amounts := []int64{70, 30}
	require.NoError(t, l.Release(ctx, controller, 1, native, recipients, amounts))

	bal, _ := l.BalanceOf(ctx, 1, native)
	assert.Equal(t, int64(0), bal)

	carol, _ := l.AccountBalanceOf(ctx, "carol", native)
	victor, _ := l.AccountBalanceOf(ctx, "victor", native)
	assert.Equal(t, int64(70), carol)
	assert.Equal(t, int64(30), victor)

	assert.Len(t, rec.OfType(event.TypePaymentReleased), 2)
}

func TestRelease_Validation(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, controller, 1, native, 100, 100))

	err := l.Release(ctx, controller, 1, native, nil, nil)
	assert.ErrorIs(t, err, escrow.ErrEmptyRecipients)

	err = l.Release(ctx, controller, 1, native, []principal.Principal{"a", "b"}, []int64{10})
	assert.ErrorIs(t, err, escrow.ErrLengthMismatch)

	err = l.Release(ctx, controller, 1, native, []principal.Principal{principal.Zero}, []int64{10})
	assert.ErrorIs(t, err, escrow.ErrZeroPrincipal)

	err = l.Release(ctx, controller, 1, native, []principal.Principal{"a"}, []int64{0})
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)
}

func TestRelease_OverdrawFailsAtomically(t *testing.T) {
	l, rec := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, controller, 1, native, 100, 100))

	err := l.Release(ctx, controller, 1, native, []principal.Principal{"carol", "victor"}, []int64{70, 40})
	assert.ErrorIs(t, err, escrow.ErrInsufficientFunds)

	// Nothing moved, nothing emitted.
	bal, _ := l.BalanceOf(ctx, 1, native)
	assert.Equal(t, int64(100), bal)
	carol, _ := l.AccountBalanceOf(ctx, "carol", native)
	assert.Equal(t, int64(0), carol)
	assert.Empty(t, rec.OfType(event.TypePaymentReleased))
}

func TestRelease_SequentialSpendOfSameEntry(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, controller, 1, native, 100, 100))

	require.NoError(t, l.Release(ctx, controller, 1, native, []principal.Principal{"carol"}, []int64{100}))

	// The second spend sees the decremented balance and fails.
	err := l.Release(ctx, controller, 1, native, []principal.Principal{"victor"}, []int64{1})
	assert.ErrorIs(t, err, escrow.ErrInsufficientFunds)
}

func TestRefund(t *testing.T) {
	l, rec := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, controller, 1, native, 100, 100))

	require.NoError(t, l.Refund(ctx, controller, 1, native, "alice", 100))

	bal, _ := l.BalanceOf(ctx, 1, native)
	assert.Equal(t, int64(0), bal)
	alice, _ := l.AccountBalanceOf(ctx, "alice", native)
	assert.Equal(t, int64(100), alice)
	assert.Len(t, rec.OfType(event.TypeRefundProcessed), 1)
}

func TestBalanceOf_UnknownEntryIsZero(t *testing.T) {
	l, _ := newLedger(t)

	bal, err := l.BalanceOf(context.Background(), 42, native)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}
