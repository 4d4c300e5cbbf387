package order

import (
	"time"
)

// Status is the provider-owned lifecycle of a settlement order. Only the
// provider advances it; locally we only mirror what it reports.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// ParseStatus maps a provider status string onto the closed set, keeping
// unknown values visible rather than guessing.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusExpired:
		return Status(s), true
	default:
		return "", false
	}
}

// Order is the provider-side record reserving a rate and a receiving
// address for one off-ramp attempt. Immutable except for Status.
type Order struct {
	ID             string    `json:"id"`
	Reference      string    `json:"reference"`
	Amount         string    `json:"amount"`
	Token          string    `json:"token"`
	Network        string    `json:"network"`
	ReceiveAddress string    `json:"receiveAddress"`
	SenderFee      string    `json:"senderFee"`
	TransactionFee string    `json:"transactionFee"`
	ValidUntil     time.Time `json:"validUntil"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`

	// Execution outcome, filled in after the on-chain transfer.
	TxHash      string `json:"txHash,omitempty"`
	ExecutedVia string `json:"executedVia,omitempty"`
}

// Expired reports whether the provider's rate reservation has lapsed.
func (o Order) Expired(now time.Time) bool {
	return !o.ValidUntil.IsZero() && now.After(o.ValidUntil)
}
