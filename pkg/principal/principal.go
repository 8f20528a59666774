// Package principal defines the identifier type shared by the escrow
// ledger, the task controller and the sponsorship tracker.
package principal

// Principal identifies a party: a task creator, contributor, validator,
// an admin, or a component identity such as the task controller itself.
type Principal string

// Zero is the absent principal.
const Zero Principal = ""

// IsZero reports whether p is the absent principal.
func (p Principal) IsZero() bool {
	return p == Zero
}

func (p Principal) String() string {
	return string(p)
}
