package escrow

import "context"

// Store persists escrow balance entries and recipient account balances.
// Recipient accounts live in the same store so that a payout debits the
// escrow entry and credits every recipient inside one atomic unit;
// partial application is structurally impossible.
type Store interface {
	// EscrowBalance returns the current entry for (taskID, asset), or
	// zero when no entry exists.
	EscrowBalance(ctx context.Context, taskID int64, asset Asset) (int64, error)

	// AccountBalance returns the accumulated payouts credited to a
	// principal for an asset, or zero.
	AccountBalance(ctx context.Context, p string, asset Asset) (int64, error)

	// Credit increments the escrow entry for (taskID, asset).
	Credit(ctx context.Context, taskID int64, asset Asset, amount int64) error

	// Payout atomically debits the escrow entry by the sum of the
	// payments and credits each recipient account. It returns
	// ErrInsufficientFunds, leaving all balances untouched, when the
	// sum exceeds the current entry.
	Payout(ctx context.Context, taskID int64, asset Asset, payments []Payment) error
}
