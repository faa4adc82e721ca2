package domain

import (
	"time"

	"crowdfund/internal/ledger"
)

// EventKind names an audit event.
type EventKind string

const (
	EventCampaignCreated       EventKind = "campaign.created"
	EventDonationReceived      EventKind = "donation.received"
	EventGoalReached           EventKind = "campaign.goal_reached"
	EventFundsDisbursed        EventKind = "campaign.disbursed"
	EventCampaignEnded         EventKind = "campaign.ended"
	EventDonationRefunded      EventKind = "donation.refunded"
	EventReconciliationFlagged EventKind = "reconciliation.flagged"
)

// EventKinds lists every kind, in lifecycle order.
var EventKinds = []EventKind{
	EventCampaignCreated,
	EventDonationReceived,
	EventGoalReached,
	EventFundsDisbursed,
	EventCampaignEnded,
	EventDonationRefunded,
	EventReconciliationFlagged,
}

// DisbursementMode tells which release path moved the funds.
type DisbursementMode string

const (
	DisburseOnGoal        DisbursementMode = "goal"
	DisburseAfterDeadline DisbursementMode = "deadline"
)

// Event is the durable audit record emitted after every committed change.
// Fields irrelevant to a kind are left zero.
type Event struct {
	ID           string           `json:"id"`
	Kind         EventKind        `json:"kind"`
	CampaignID   uint64           `json:"campaign_id"`
	Actor        *Address         `json:"actor,omitempty"`
	Counterparty *Address         `json:"counterparty,omitempty"`
	Title        string           `json:"title,omitempty"`
	Amount       *ledger.Amount   `json:"amount,omitempty"`
	Total        *ledger.Amount   `json:"total,omitempty"`
	Deadline     *time.Time       `json:"deadline,omitempty"`
	Mode         DisbursementMode `json:"mode,omitempty"`
	TxRef        string           `json:"tx_ref,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}
