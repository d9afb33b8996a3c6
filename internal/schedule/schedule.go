// Package schedule computes cliff-linear vesting amounts. Everything here is
// pure: results depend only on the arguments.
package schedule

import (
	"fmt"
	"math/big"

	"github.com/vestlabs/vesting-service/internal/domain"
)

// Validate checks start <= cliff <= end.
func Validate(start, cliff, end int64) error {
	if start > cliff || cliff > end {
		return fmt.Errorf("%w: expected start %d <= cliff %d <= end %d",
			domain.ErrInvalidSchedule, start, cliff, end)
	}
	return nil
}

// Releasable returns the cumulative amount unlocked at now.
//
// Nothing is released before the cliff, total is released from end onwards,
// and in between the amount grows linearly from start, rounded down.
// Releasable is non-decreasing in now for a fixed schedule.
func Releasable(now, start, cliff, end int64, total uint64) uint64 {
	if now < cliff {
		return 0
	}
	if now >= end {
		return total
	}
	if now < start {
		// only reachable with an invalid schedule (cliff < start)
		return 0
	}
	// start <= now < end: unsigned differences are exact even across the int64 range.
	elapsed := uint64(now) - uint64(start)
	duration := uint64(end) - uint64(start)
	if duration == 0 {
		return total
	}
	vested := new(big.Int).SetUint64(total)
	vested.Mul(vested, new(big.Int).SetUint64(elapsed))
	vested.Quo(vested, new(big.Int).SetUint64(duration))
	if !vested.IsUint64() || vested.Uint64() > total {
		return total
	}
	return vested.Uint64()
}

// Claimable returns vested minus withdrawn, saturating at zero.
func Claimable(vested, withdrawn uint64) uint64 {
	if vested <= withdrawn {
		return 0
	}
	return vested - withdrawn
}

// Status summarizes a grant at a point in time.
type Status struct {
	Vested    uint64
	Claimable uint64
	Remaining uint64
}

// StatusAt evaluates grant at now without mutating it.
func StatusAt(grant *domain.Grant, now int64) Status {
	vested := Releasable(now, grant.StartTime, grant.CliffTime, grant.EndTime, grant.TotalAmount)
	return Status{
		Vested:    vested,
		Claimable: Claimable(vested, grant.TotalWithdrawn),
		Remaining: grant.Remaining(),
	}
}
