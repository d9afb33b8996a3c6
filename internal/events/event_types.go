package events

import (
	"time"

	"github.com/vestlabs/vesting-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventPoolCreated       EventType = "pool_created"
	EventPoolFunded        EventType = "pool_funded"
	EventGrantCreated      EventType = "grant_created"
	EventTokensClaimed     EventType = "tokens_claimed"
	EventTransferCompleted EventType = "transfer_completed"
	EventTransferFailed    EventType = "transfer_failed"
)

// Event represents a domain event emitted after a commit.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	PoolID    string          `json:"pool_id"`
	GrantID   string          `json:"grant_id,omitempty"`
	Actor     domain.Identity `json:"actor,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload"`
}

// PoolCreatedPayload payload.
type PoolCreatedPayload struct {
	Identifier string `json:"identifier"`
	TokenType  string `json:"token_type"`
}

// PoolFundedPayload payload.
type PoolFundedPayload struct {
	Amount          string `json:"amount"`
	TreasuryBalance string `json:"treasury_balance"`
}

// GrantCreatedPayload payload.
type GrantCreatedPayload struct {
	Beneficiary domain.Identity `json:"beneficiary"`
	TotalAmount string          `json:"total_amount"`
	StartTime   int64           `json:"start_time"`
	CliffTime   int64           `json:"cliff_time"`
	EndTime     int64           `json:"end_time"`
}

// TokensClaimedPayload payload.
type TokensClaimedPayload struct {
	TransferID     string `json:"transfer_id"`
	Amount         string `json:"amount"`
	TotalWithdrawn string `json:"total_withdrawn"`
	Now            int64  `json:"now"`
}

// TransferPayload payload for transfer outcome events.
type TransferPayload struct {
	TransferID string `json:"transfer_id"`
	Amount     string `json:"amount"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
}
