package domain

import "time"

// Grant is one beneficiary's entitlement record within a pool.
type Grant struct {
	ID             string
	PoolID         string
	Beneficiary    Identity
	StartTime      int64
	CliffTime      int64
	EndTime        int64
	TotalAmount    uint64
	TotalWithdrawn uint64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining returns the entitlement not yet withdrawn.
func (g *Grant) Remaining() uint64 {
	if g.TotalWithdrawn > g.TotalAmount {
		return 0
	}
	return g.TotalAmount - g.TotalWithdrawn
}

// Kind implements Record.
func (g *Grant) Kind() RecordKind { return RecordKindGrant }

func (g *Grant) isRecord() {}
