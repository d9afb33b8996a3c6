package dto

import (
	"time"

	"github.com/vestlabs/vesting-service/internal/domain"
	"github.com/vestlabs/vesting-service/internal/schedule"
)

// Amounts are base-unit integers encoded as decimal strings so values above
// 2^53 survive JSON clients.

// CreatePoolRequest payload.
type CreatePoolRequest struct {
	Identifier string `json:"identifier"`
	TokenType  string `json:"token_type"`
}

// FundPoolRequest payload.
type FundPoolRequest struct {
	Amount string `json:"amount"`
}

// CreateGrantRequest payload.
type CreateGrantRequest struct {
	Beneficiary string `json:"beneficiary"`
	StartTime   int64  `json:"start_time"`
	CliffTime   int64  `json:"cliff_time"`
	EndTime     int64  `json:"end_time"`
	TotalAmount string `json:"total_amount"`
}

// PoolResponse represents a pool.
type PoolResponse struct {
	ID              string          `json:"id"`
	Identifier      string          `json:"identifier"`
	Issuer          domain.Identity `json:"issuer"`
	TokenType       string          `json:"token_type"`
	TreasuryBalance string          `json:"treasury_balance"`
	Committed       string          `json:"committed"`
	Uncommitted     string          `json:"uncommitted"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// GrantResponse represents a grant, optionally evaluated at a point in time.
type GrantResponse struct {
	ID             string          `json:"id"`
	PoolID         string          `json:"pool_id"`
	Beneficiary    domain.Identity `json:"beneficiary"`
	StartTime      int64           `json:"start_time"`
	CliffTime      int64           `json:"cliff_time"`
	EndTime        int64           `json:"end_time"`
	TotalAmount    string          `json:"total_amount"`
	TotalWithdrawn string          `json:"total_withdrawn"`
	Status         *GrantStatus    `json:"status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// GrantStatus is the schedule evaluated at AsOf.
type GrantStatus struct {
	AsOf      int64  `json:"as_of"`
	Vested    string `json:"vested"`
	Claimable string `json:"claimable"`
	Remaining string `json:"remaining"`
}

// TransferResponse represents an outgoing transfer.
type TransferResponse struct {
	ID          string                `json:"id"`
	GrantID     string                `json:"grant_id"`
	PoolID      string                `json:"pool_id"`
	TokenType   string                `json:"token_type"`
	Beneficiary domain.Identity       `json:"beneficiary"`
	Amount      string                `json:"amount"`
	Status      domain.TransferStatus `json:"status"`
	Attempts    int                   `json:"attempts"`
	LastError   string                `json:"last_error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// ClaimResponse is the committed outcome of a claim.
type ClaimResponse struct {
	Amount   string            `json:"amount"`
	Grant    GrantResponse     `json:"grant"`
	Transfer *TransferResponse `json:"transfer,omitempty"`
}

// RecordResponse wraps any stored record with its kind.
type RecordResponse struct {
	Kind   domain.RecordKind `json:"kind"`
	Record any               `json:"record"`
}

// NewPoolResponse maps a pool.
func NewPoolResponse(p *domain.Pool) PoolResponse {
	return PoolResponse{
		ID:              p.ID,
		Identifier:      p.Identifier,
		Issuer:          p.Issuer,
		TokenType:       p.TokenType,
		TreasuryBalance: domain.FormatAmount(p.TreasuryBalance),
		Committed:       domain.FormatAmount(p.Committed),
		Uncommitted:     domain.FormatAmount(p.Uncommitted()),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// NewGrantResponse maps a grant without status.
func NewGrantResponse(g *domain.Grant) GrantResponse {
	return GrantResponse{
		ID:             g.ID,
		PoolID:         g.PoolID,
		Beneficiary:    g.Beneficiary,
		StartTime:      g.StartTime,
		CliffTime:      g.CliffTime,
		EndTime:        g.EndTime,
		TotalAmount:    domain.FormatAmount(g.TotalAmount),
		TotalWithdrawn: domain.FormatAmount(g.TotalWithdrawn),
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	}
}

// NewGrantStatus maps an evaluated schedule.
func NewGrantStatus(asOf int64, s schedule.Status) *GrantStatus {
	return &GrantStatus{
		AsOf:      asOf,
		Vested:    domain.FormatAmount(s.Vested),
		Claimable: domain.FormatAmount(s.Claimable),
		Remaining: domain.FormatAmount(s.Remaining),
	}
}

// NewTransferResponse maps a transfer.
func NewTransferResponse(t *domain.Transfer) TransferResponse {
	return TransferResponse{
		ID:          t.ID,
		GrantID:     t.GrantID,
		PoolID:      t.PoolID,
		TokenType:   t.TokenType,
		Beneficiary: t.Beneficiary,
		Amount:      domain.FormatAmount(t.Amount),
		Status:      t.Status,
		Attempts:    t.Attempts,
		LastError:   t.LastError,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewRecordResponse maps any record kind.
func NewRecordResponse(r domain.Record) RecordResponse {
	resp := RecordResponse{Kind: r.Kind()}
	switch v := r.(type) {
	case *domain.Pool:
		resp.Record = NewPoolResponse(v)
	case *domain.Grant:
		resp.Record = NewGrantResponse(v)
	case *domain.Transfer:
		resp.Record = NewTransferResponse(v)
	}
	return resp
}
