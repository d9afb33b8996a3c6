package domain

import "time"

// TransferStatus enumerates delivery states of a transfer instruction.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusFailed    TransferStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s TransferStatus) Valid() bool {
	switch s {
	case TransferStatusPending, TransferStatusCompleted, TransferStatusFailed:
		return true
	}
	return false
}

// Transfer is the instruction written with claim bookkeeping. Its ID is the
// idempotency key handed to the treasury.
type Transfer struct {
	ID          string
	GrantID     string
	PoolID      string
	TokenType   string
	Beneficiary Identity
	Amount      uint64
	Status      TransferStatus
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Kind implements Record.
func (t *Transfer) Kind() RecordKind { return RecordKindTransfer }

func (t *Transfer) isRecord() {}
