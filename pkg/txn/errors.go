package txn

import "errors"

var (
	// ErrContractViolation marks a programmer-error caller contract breach:
	// requesting a lock on a SHRINKING transaction, unlocking an RID the
	// transaction does not hold, or upgrading without an existing shared
	// lock. The reference design treats these as loud assertions; this
	// library surfaces them as a structured error instead.
	ErrContractViolation = errors.New("lock manager contract violation")
)
