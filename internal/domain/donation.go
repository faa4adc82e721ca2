package domain

import (
	"time"

	"crowdfund/internal/ledger"
)

// Donation represents a single accepted contribution. Donations are never
// mutated or deleted.
type Donation struct {
	ID         string
	CampaignID uint64
	Donor      Address
	Amount     ledger.Amount
	TxRef      string
	Timestamp  time.Time
}

// Contribution aggregates one donor's donations to one campaign and guards
// against paying a refund twice.
type Contribution struct {
	CampaignID uint64
	Donor      Address
	Total      ledger.Amount
	Refunded   bool
	RefundedAt *time.Time
}
