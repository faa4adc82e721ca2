package domain

import (
	"time"

	"crowdfund/internal/ledger"
)

// ReconciliationKind names the operation whose ledger write was lost.
type ReconciliationKind string

const (
	ReconcileDonation     ReconciliationKind = "donation_unrecorded"
	ReconcileDisbursement ReconciliationKind = "disbursement_unrecorded"
	ReconcileRefund       ReconciliationKind = "refund_unrecorded"
)

// Reconciliation records a transfer whose ledger effect was not committed.
// While any entry for a campaign is open, funds cannot leave that campaign.
type Reconciliation struct {
	ID         string
	CampaignID uint64
	Kind       ReconciliationKind
	Party      Address
	Amount     ledger.Amount
	TxRef      string
	Cause      string
	CreatedAt  time.Time
	ResolvedAt *time.Time
	Note       string
}

// Open reports whether the entry still awaits manual resolution.
func (r Reconciliation) Open() bool {
	return r.ResolvedAt == nil
}
