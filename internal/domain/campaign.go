package domain

import (
	"strings"
	"time"

	"crowdfund/internal/ledger"
)

// CampaignState is the lifecycle position of a campaign.
type CampaignState string

const (
	StateActive    CampaignState = "active"
	StateDisbursed CampaignState = "disbursed"
	StateEnded     CampaignState = "ended"
)

// Campaign is one fundraising record.
type Campaign struct {
	ID          uint64
	Creator     Address
	Beneficiary Address
	Title       string
	Description string
	ImageRef    string

	TargetAmount    ledger.Amount
	RaisedAmount    ledger.Amount
	RefundedAmount  ledger.Amount
	DisbursedAmount ledger.Amount

	Deadline      time.Time
	DonorCount    uint64
	DonationCount uint64
	GoalReached   bool
	Active        bool
	Disbursed     bool

	CreatedAt   time.Time
	EndedAt     *time.Time
	DisbursedAt *time.Time
}

// State derives the lifecycle state from the flags.
func (c Campaign) State() CampaignState {
	switch {
	case c.Disbursed:
		return StateDisbursed
	case !c.Active:
		return StateEnded
	default:
		return StateActive
	}
}

// Custody is the amount still held for this campaign.
func (c Campaign) Custody() ledger.Amount {
	out, err := ledger.Sub(c.RaisedAmount, c.RefundedAmount)
	if err != nil {
		return ledger.Zero
	}
	out, err = ledger.Sub(out, c.DisbursedAmount)
	if err != nil {
		return ledger.Zero
	}
	return out
}

// NewCampaign carries the creation input.
type NewCampaign struct {
	Creator      Address
	Beneficiary  Address
	Title        string
	Description  string
	ImageRef     string
	TargetAmount ledger.Amount
	Deadline     time.Time
}

// Validate checks the creation invariants against now.
func (n NewCampaign) Validate(now time.Time) error {
	if n.TargetAmount.IsZero() {
		return ErrInvalidTargetAmount
	}
	if !n.Deadline.After(now) {
		return ErrInvalidDeadline
	}
	if IsZeroAddress(n.Beneficiary) {
		return ErrInvalidBeneficiary
	}
	return nil
}

// Build returns the initial record for id.
func (n NewCampaign) Build(id uint64, now time.Time) Campaign {
	return Campaign{
		ID:           id,
		Creator:      n.Creator,
		Beneficiary:  n.Beneficiary,
		Title:        strings.TrimSpace(n.Title),
		Description:  n.Description,
		ImageRef:     strings.TrimSpace(n.ImageRef),
		TargetAmount: n.TargetAmount,
		Deadline:     n.Deadline.UTC(),
		Active:       true,
		CreatedAt:    now.UTC(),
	}
}
