package auth

import (
	"fmt"

	"github.com/vestlabs/vesting-service/internal/domain"
)

// Guard is the stateless capability check consulted before every mutation.
type Guard struct{}

// NewGuard returns a Guard.
func NewGuard() Guard {
	return Guard{}
}

// Authorize passes only when caller is non-empty and equals required.
func (Guard) Authorize(caller, required domain.Identity) error {
	if caller.IsZero() || caller != required {
		return fmt.Errorf("%w: caller %q is not %q", domain.ErrUnauthorized, caller, required)
	}
	return nil
}
