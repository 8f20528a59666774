package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/airinterface/contract-safe/pkg/event"
	"github.com/airinterface/contract-safe/pkg/principal"
)

// Ledger enforces custody invariants over a Store: only authorized
// callers move value, deposits match their supplied native value, and
// releases never overdraw an entry. Each (taskID, asset) entry is a
// single-writer resource; mutations on the same entry serialize on a
// per-entry lock held until the whole operation commits or aborts.
type Ledger struct {
	admin  principal.Principal
	native Asset
	store  Store
	emit   event.Emitter
	log    *slog.Logger

	mu         sync.Mutex
	authorized map[principal.Principal]struct{}
	locks      map[balanceKey]*sync.Mutex
}

// NewLedger creates a Ledger. The admin principal is the only one
// permitted to manage the authorized caller set. The emitter may be nil.
func NewLedger(admin principal.Principal, native Asset, store Store, emit event.Emitter) *Ledger {
	if emit == nil {
		emit = event.Nop{}
	}
	return &Ledger{
		admin:      admin,
		native:     native,
		store:      store,
		emit:       emit,
		log:        slog.Default().With("component", "escrow"),
		authorized: make(map[principal.Principal]struct{}),
		locks:      make(map[balanceKey]*sync.Mutex),
	}
}

// entryLock returns the exclusive lock for one balance entry, creating
// it on first use.
func (l *Ledger) entryLock(taskID int64, asset Asset) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := balanceKey{taskID, asset}
	lk, ok := l.locks[key]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[key] = lk
	}
	return lk
}

func (l *Ledger) authorize(caller principal.Principal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.authorized[caller]; !ok {
		return fmt.Errorf("caller %q: %w", caller, ErrUnauthorized)
	}
	return nil
}

// AddAuthorizedCaller admits a principal to the authorized caller set.
// Adding an already-present caller fails loudly.
func (l *Ledger) AddAuthorizedCaller(caller, p principal.Principal) error {
	if caller != l.admin {
		return ErrNotAdmin
	}
	if p.IsZero() {
		return ErrZeroPrincipal
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.authorized[p]; ok {
		return fmt.Errorf("add %q: %w", p, ErrAlreadyAuthorized)
	}
	l.authorized[p] = struct{}{}
	return nil
}

// RemoveAuthorizedCaller removes a principal from the authorized caller
// set. Removing an absent caller fails loudly.
func (l *Ledger) RemoveAuthorizedCaller(caller, p principal.Principal) error {
	if caller != l.admin {
		return ErrNotAdmin
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.authorized[p]; !ok {
		return fmt.Errorf("remove %q: %w", p, ErrNotAuthorized)
	}
	delete(l.authorized, p)
	return nil
}

// Deposit locks funds into the escrow entry for (taskID, asset). For the
// native asset the supplied value must equal amount exactly; no implicit
// conversion, no partial deposits. For other assets supplied must be
// zero (the caller's token plumbing performs the pull).
func (l *Ledger) Deposit(ctx context.Context, caller principal.Principal, taskID int64, asset Asset, amount, supplied int64) error {
	if err := l.authorize(caller); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("deposit of %d: %w", amount, ErrInvalidAmount)
	}
	if asset == l.native && supplied != amount {
		return fmt.Errorf("supplied %d for amount %d: %w", supplied, amount, ErrAmountMismatch)
	}
	if asset != l.native && supplied != 0 {
		return fmt.Errorf("supplied %d for non-native asset: %w", supplied, ErrAmountMismatch)
	}

	lk := l.entryLock(taskID, asset)
	lk.Lock()
	defer lk.Unlock()

	if err := l.store.Credit(ctx, taskID, asset, amount); err != nil {
		return fmt.Errorf("credit task %d: %w", taskID, err)
	}

	l.notify(ctx, event.New(event.TypeEscrowDeposited, taskID, caller, map[string]any{
		"asset":  string(asset),
		"amount": amount,
	}))
	return nil
}

// Release pays out from the escrow entry to each recipient in order.
// The whole payout is one atomic unit: if anything fails no balance
// moves and no PaymentReleased notification is emitted.
func (l *Ledger) Release(ctx context.Context, caller principal.Principal, taskID int64, asset Asset, recipients []principal.Principal, amounts []int64) error {
	if err := l.authorize(caller); err != nil {
		return err
	}
	if len(recipients) == 0 {
		return ErrEmptyRecipients
	}
	if len(recipients) != len(amounts) {
		return fmt.Errorf("%d recipients, %d amounts: %w", len(recipients), len(amounts), ErrLengthMismatch)
	}

	payments := make([]Payment, len(recipients))
	for i, r := range recipients {
		if r.IsZero() {
			return fmt.Errorf("recipient %d: %w", i, ErrZeroPrincipal)
		}
		if amounts[i] <= 0 {
			return fmt.Errorf("amount %d for recipient %q: %w", amounts[i], r, ErrInvalidAmount)
		}
		payments[i] = Payment{Recipient: r, Amount: amounts[i]}
	}

	lk := l.entryLock(taskID, asset)
	lk.Lock()
	defer lk.Unlock()

	if err := l.store.Payout(ctx, taskID, asset, payments); err != nil {
		return err
	}

	for _, p := range payments {
		l.notify(ctx, event.New(event.TypePaymentReleased, taskID, caller, map[string]any{
			"asset":     string(asset),
			"recipient": p.Recipient.String(),
			"amount":    p.Amount,
		}))
	}
	return nil
}

// Refund returns escrowed funds to a single recipient, full-or-nothing.
func (l *Ledger) Refund(ctx context.Context, caller principal.Principal, taskID int64, asset Asset, recipient principal.Principal, amount int64) error {
	if err := l.authorize(caller); err != nil {
		return err
	}
	if recipient.IsZero() {
		return ErrZeroPrincipal
	}
	if amount <= 0 {
		return fmt.Errorf("refund of %d: %w", amount, ErrInvalidAmount)
	}

	lk := l.entryLock(taskID, asset)
	lk.Lock()
	defer lk.Unlock()

	if err := l.store.Payout(ctx, taskID, asset, []Payment{{Recipient: recipient, Amount: amount}}); err != nil {
		return err
	}

	l.notify(ctx, event.New(event.TypeRefundProcessed, taskID, caller, map[string]any{
		"asset":     string(asset),
		"recipient": recipient.String(),
		"amount":    amount,
	}))
	return nil
}

// BalanceOf returns the current escrow entry for (taskID, asset), zero
// when no entry exists. Read-only, no authorization required.
func (l *Ledger) BalanceOf(ctx context.Context, taskID int64, asset Asset) (int64, error) {
	return l.store.EscrowBalance(ctx, taskID, asset)
}

// AccountBalanceOf returns the accumulated payouts credited to p.
func (l *Ledger) AccountBalanceOf(ctx context.Context, p principal.Principal, asset Asset) (int64, error) {
	return l.store.AccountBalance(ctx, p.String(), asset)
}

// notify emits a notification. Notifications are observational; a sink
// failure is logged and does not abort the custody operation.
func (l *Ledger) notify(ctx context.Context, ev event.Event) {
	if err := l.emit.Emit(ctx, ev); err != nil {
		l.log.Error("emit failed", "type", ev.Type, "task_id", ev.TaskID, "error", err)
	}
}
