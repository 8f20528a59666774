package escrow

import (
	"context"
	"fmt"
	"sync"
)

type balanceKey struct {
	taskID int64
	asset  Asset
}

type accountKey struct {
	principal string
	asset     Asset
}

// MemoryStore implements Store in memory. Thread-safe via RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	escrow   map[balanceKey]int64
	accounts map[accountKey]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		escrow:   make(map[balanceKey]int64),
		accounts: make(map[accountKey]int64),
	}
}

func (s *MemoryStore) EscrowBalance(ctx context.Context, taskID int64, asset Asset) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.escrow[balanceKey{taskID, asset}], nil
}

func (s *MemoryStore) AccountBalance(ctx context.Context, p string, asset Asset) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[accountKey{p, asset}], nil
}

func (s *MemoryStore) Credit(ctx context.Context, taskID int64, asset Asset, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escrow[balanceKey{taskID, asset}] += amount
	return nil
}

func (s *MemoryStore) Payout(ctx context.Context, taskID int64, asset Asset, payments []Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, p := range payments {
		total += p.Amount
	}

	key := balanceKey{taskID, asset}
	if s.escrow[key] < total {
		return fmt.Errorf("payout of %d from task %d: %w", total, taskID, ErrInsufficientFunds)
	}

	// Validation is complete; everything below is infallible, so the
	// payout commits as a unit under the lock.
	s.escrow[key] -= total
	for _, p := range payments {
		s.accounts[accountKey{p.Recipient.String(), asset}] += p.Amount
	}
	return nil
}
