package domain

import "time"

// MaxIdentifierLength bounds Pool.Identifier in bytes.
const MaxIdentifierLength = 64

// Pool is the custodial container backing the grants of one issuer.
type Pool struct {
	ID              string
	Identifier      string
	Issuer          Identity
	TokenType       string
	TreasuryBalance uint64
	// Committed is the sum of remaining entitlement over the pool's grants.
	Committed uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Uncommitted returns treasury not yet promised to any grant.
func (p *Pool) Uncommitted() uint64 {
	if p.Committed > p.TreasuryBalance {
		return 0
	}
	return p.TreasuryBalance - p.Committed
}

// Kind implements Record.
func (p *Pool) Kind() RecordKind { return RecordKindPool }

func (p *Pool) isRecord() {}
