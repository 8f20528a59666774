// Package sponsor implements the fee-sponsorship quota tracker: an
// allowlist of sponsorable operations, a sponsor deposit balance, and
// per-user daily spend windows with lazy reset. It is independent of the
// escrow ledger and the task controller.
package sponsor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/airinterface/contract-safe/pkg/event"
	"github.com/airinterface/contract-safe/pkg/principal"
)

var (
	// ErrNotAdmin is returned when a non-admin principal attempts
	// allowlist or deposit management.
	ErrNotAdmin = errors.New("caller is not the sponsor admin")

	// ErrAlreadyAllowlisted is returned when adding an operation that
	// is already allowlisted.
	ErrAlreadyAllowlisted = errors.New("operation already allowlisted")

	// ErrNotAllowlisted is returned when removing an operation that is
	// not allowlisted.
	ErrNotAllowlisted = errors.New("operation not allowlisted")

	// ErrNotSponsorable is returned when a request names an operation
	// outside the allowlist.
	ErrNotSponsorable = errors.New("operation not sponsorable")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrDepositExhausted is returned when the estimate exceeds the
	// remaining sponsor deposit.
	ErrDepositExhausted = errors.New("sponsor deposit exhausted")

	// ErrQuotaExceeded is returned when the user's window cannot absorb
	// the estimate.
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrUnknownVoucher is returned when recording against a voucher
	// that was never issued or was already consumed.
	ErrUnknownVoucher = errors.New("unknown voucher")
)

// Voucher is the continuation token issued by ValidateRequest and
// consumed exactly once by RecordActualCost.
type Voucher struct {
	ID        string              `json:"id"`
	User      principal.Principal `json:"user"`
	Operation string              `json:"operation"`
	Estimated int64               `json:"estimated"`
	IssuedAt  time.Time           `json:"issued_at"`
}

type quotaEntry struct {
	consumed    int64
	windowStart time.Time
}

// Tracker enforces the sponsorship quotas. All state is guarded by one
// mutex, which also serializes per-user window resets so a reset is
// never double-counted.
type Tracker struct {
	admin       principal.Principal
	dailyQuota  int64
	resetPeriod time.Duration

	emit  event.Emitter
	log   *slog.Logger
	clock func() time.Time

	mu        sync.Mutex
	allowlist map[string]struct{}
	users     map[principal.Principal]*quotaEntry
	vouchers  map[string]Voucher
	deposit   int64
	shortfall int64
}

// NewTracker creates a Tracker with the given per-user daily quota and
// reset period. The emitter may be nil.
func NewTracker(admin principal.Principal, dailyQuota int64, resetPeriod time.Duration, emit event.Emitter) *Tracker {
	return NewTrackerWithClock(admin, dailyQuota, resetPeriod, emit, time.Now)
}

// NewTrackerWithClock injects the clock, for tests.
func NewTrackerWithClock(admin principal.Principal, dailyQuota int64, resetPeriod time.Duration, emit event.Emitter, clock func() time.Time) *Tracker {
	if emit == nil {
		emit = event.Nop{}
	}
	return &Tracker{
		admin:       admin,
		dailyQuota:  dailyQuota,
		resetPeriod: resetPeriod,
		emit:        emit,
		log:         slog.Default().With("component", "sponsor"),
		clock:       clock,
		allowlist:   make(map[string]struct{}),
		users:       make(map[principal.Principal]*quotaEntry),
		vouchers:    make(map[string]Voucher),
	}
}

// AddAllowlisted admits an operation to the sponsorable allowlist.
// Adding a present operation fails loudly.
func (t *Tracker) AddAllowlisted(caller principal.Principal, opID string) error {
	if caller != t.admin {
		return ErrNotAdmin
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.allowlist[opID]; ok {
		return fmt.Errorf("add %q: %w", opID, ErrAlreadyAllowlisted)
	}
	t.allowlist[opID] = struct{}{}
	return nil
}

// RemoveAllowlisted removes an operation from the allowlist. Removing an
// absent operation fails loudly.
func (t *Tracker) RemoveAllowlisted(caller principal.Principal, opID string) error {
	if caller != t.admin {
		return ErrNotAdmin
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.allowlist[opID]; !ok {
		return fmt.Errorf("remove %q: %w", opID, ErrNotAllowlisted)
	}
	delete(t.allowlist, opID)
	return nil
}

// Deposit adds to the sponsor deposit balance. Admin only.
func (t *Tracker) Deposit(caller principal.Principal, amount int64) error {
	if caller != t.admin {
		return ErrNotAdmin
	}
	if amount <= 0 {
		return fmt.Errorf("deposit of %d: %w", amount, ErrInvalidAmount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deposit += amount
	return nil
}

// Withdraw removes from the sponsor deposit balance. Admin only; fails
// when the withdrawal would exceed the current balance.
func (t *Tracker) Withdraw(caller principal.Principal, amount int64) error {
	if caller != t.admin {
		return ErrNotAdmin
	}
	if amount <= 0 {
		return fmt.Errorf("withdraw of %d: %w", amount, ErrInvalidAmount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if amount > t.deposit {
		return fmt.Errorf("withdraw %d of %d: %w", amount, t.deposit, ErrDepositExhausted)
	}
	t.deposit -= amount
	return nil
}

// DepositBalance returns the current sponsor deposit balance.
func (t *Tracker) DepositBalance() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deposit
}

// Shortfall returns the accumulated amount by which recorded actual
// costs exceeded the remaining deposit.
func (t *Tracker) Shortfall() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shortfall
}

// ValidateRequest decides whether the user's operation can be
// sponsored. Accepting reserves nothing; it issues a voucher carrying
// the user and the estimate, to be settled via RecordActualCost. The
// user's window is lazily reset before evaluation when expired.
func (t *Tracker) ValidateRequest(ctx context.Context, user principal.Principal, opID string, estimatedCost int64) (Voucher, error) {
	if estimatedCost <= 0 {
		return Voucher{}, fmt.Errorf("estimate of %d: %w", estimatedCost, ErrInvalidAmount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.allowlist[opID]; !ok {
		return Voucher{}, fmt.Errorf("operation %q: %w", opID, ErrNotSponsorable)
	}
	if estimatedCost > t.deposit {
		return Voucher{}, fmt.Errorf("estimate %d exceeds deposit %d: %w", estimatedCost, t.deposit, ErrDepositExhausted)
	}

	now := t.clock()
	entry := t.entryLocked(user, now)
	if entry.consumed+estimatedCost > t.dailyQuota {
		t.notify(ctx, event.New(event.TypeRateLimitExceeded, 0, user, map[string]any{
			"operation": opID,
			"estimated": estimatedCost,
			"consumed":  entry.consumed,
			"quota":     t.dailyQuota,
		}))
		return Voucher{}, fmt.Errorf("user %q consumed %d of %d: %w", user, entry.consumed, t.dailyQuota, ErrQuotaExceeded)
	}

	v := Voucher{
		ID:        uuid.New().String(),
		User:      user,
		Operation: opID,
		Estimated: estimatedCost,
		IssuedAt:  now,
	}
	t.vouchers[v.ID] = v

	t.notify(ctx, event.New(event.TypeCostSponsored, 0, user, map[string]any{
		"operation": opID,
		"estimated": estimatedCost,
		"voucher":   v.ID,
	}))
	return v, nil
}

// RecordActualCost settles a voucher after the sponsored operation
// executed: the actual cost is added to the user's window and deducted
// from the deposit. The deposit never underflows; any excess is flagged
// as an accounting shortfall instead. A voucher settles exactly once.
func (t *Tracker) RecordActualCost(ctx context.Context, voucherID string, actualCost int64) error {
	if actualCost < 0 {
		return fmt.Errorf("actual cost %d: %w", actualCost, ErrInvalidAmount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.vouchers[voucherID]
	if !ok {
		return fmt.Errorf("voucher %q: %w", voucherID, ErrUnknownVoucher)
	}
	delete(t.vouchers, voucherID)

	now := t.clock()
	entry := t.entryLocked(v.User, now)
	entry.consumed += actualCost

	if actualCost > t.deposit {
		t.shortfall += actualCost - t.deposit
		t.log.Warn("sponsor deposit shortfall",
			"user", v.User, "actual", actualCost, "deposit", t.deposit)
		t.deposit = 0
	} else {
		t.deposit -= actualCost
	}

	t.notify(ctx, event.New(event.TypeCostRecorded, 0, v.User, map[string]any{
		"operation": v.Operation,
		"estimated": v.Estimated,
		"actual":    actualCost,
		"voucher":   v.ID,
	}))
	return nil
}

// RemainingQuota returns the user's unconsumed quota for the current
// window, the full quota when the window has expired, floored at zero.
func (t *Tracker) RemainingQuota(user principal.Principal) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.users[user]
	if !ok || t.expired(entry, t.clock()) {
		return t.dailyQuota
	}
	remaining := t.dailyQuota - entry.consumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// entryLocked fetches the user's quota entry, applying the lazy window
// reset. Caller holds t.mu.
func (t *Tracker) entryLocked(user principal.Principal, now time.Time) *quotaEntry {
	entry, ok := t.users[user]
	if !ok {
		entry = &quotaEntry{windowStart: now}
		t.users[user] = entry
		return entry
	}
	if t.expired(entry, now) {
		entry.consumed = 0
		entry.windowStart = now
	}
	return entry
}

func (t *Tracker) expired(entry *quotaEntry, now time.Time) bool {
	return !now.Before(entry.windowStart.Add(t.resetPeriod))
}

func (t *Tracker) notify(ctx context.Context, ev event.Event) {
	if err := t.emit.Emit(ctx, ev); err != nil {
		t.log.Error("emit failed", "type", ev.Type, "error", err)
	}
}
