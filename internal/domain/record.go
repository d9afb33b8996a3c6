package domain

// RecordKind discriminates stored account records.
type RecordKind string

const (
	RecordKindPool     RecordKind = "POOL"
	RecordKindGrant    RecordKind = "GRANT"
	RecordKindTransfer RecordKind = "TRANSFER"
)

// Record is implemented by *Pool, *Grant and *Transfer only.
type Record interface {
	Kind() RecordKind
	isRecord()
}
