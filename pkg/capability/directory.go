// Package capability is the minimal role directory used by bootstrap
// wiring. The task controller performs direct principal-equality checks
// at runtime; this directory only records which component identities
// were granted which capabilities when the system was assembled.
package capability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/airinterface/contract-safe/pkg/principal"
)

var (
	// ErrNotAdmin is returned when a non-admin principal attempts a
	// grant or revoke.
	ErrNotAdmin = errors.New("caller is not the directory admin")

	// ErrAlreadyGranted is returned when granting a capability the
	// principal already holds.
	ErrAlreadyGranted = errors.New("capability already granted")

	// ErrNotGranted is returned when revoking a capability the
	// principal does not hold.
	ErrNotGranted = errors.New("capability not granted")
)

type grantKey struct {
	principal  principal.Principal
	capability string
}

// Directory is an in-memory capability set. Thread-safe.
type Directory struct {
	admin  principal.Principal
	mu     sync.RWMutex
	grants map[grantKey]struct{}
}

func NewDirectory(admin principal.Principal) *Directory {
	return &Directory{
		admin:  admin,
		grants: make(map[grantKey]struct{}),
	}
}

// HasCapability reports whether p holds the capability.
func (d *Directory) HasCapability(p principal.Principal, capability string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.grants[grantKey{p, capability}]
	return ok
}

// Grant records a capability for p. Admin only; loud on redundant grant.
func (d *Directory) Grant(caller, p principal.Principal, capability string) error {
	if caller != d.admin {
		return ErrNotAdmin
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := grantKey{p, capability}
	if _, ok := d.grants[key]; ok {
		return fmt.Errorf("grant %q to %q: %w", capability, p, ErrAlreadyGranted)
	}
	d.grants[key] = struct{}{}
	return nil
}

// Revoke removes a capability from p. Admin only; loud on absent grant.
func (d *Directory) Revoke(caller, p principal.Principal, capability string) error {
	if caller != d.admin {
		return ErrNotAdmin
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := grantKey{p, capability}
	if _, ok := d.grants[key]; !ok {
		return fmt.Errorf("revoke %q from %q: %w", capability, p, ErrNotGranted)
	}
	delete(d.grants, key)
	return nil
}
