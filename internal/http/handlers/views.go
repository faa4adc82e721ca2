package handlers

import (
	"time"

	"crowdfund/internal/campaign"
	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

type campaignView struct {
	ID                   uint64        `json:"id"`
	Creator              string        `json:"creator"`
	Beneficiary          string        `json:"beneficiary"`
	Title                string        `json:"title"`
	Description          string        `json:"description"`
	ImageRef             string        `json:"image_ref"`
	TargetAmount         ledger.Amount `json:"target_amount"`
	RaisedAmount         ledger.Amount `json:"raised_amount"`
	RefundedAmount       ledger.Amount `json:"refunded_amount"`
	DisbursedAmount      ledger.Amount `json:"disbursed_amount"`
	Deadline             time.Time     `json:"deadline"`
	DonorCount           uint64        `json:"donor_count"`
	DonationCount        uint64        `json:"donation_count"`
	GoalReached          bool          `json:"goal_reached"`
	Active               bool          `json:"active"`
	Disbursed            bool          `json:"disbursed"`
	State                string        `json:"state"`
	CreatedAt            time.Time     `json:"created_at"`
	EndedAt              *time.Time    `json:"ended_at,omitempty"`
	DisbursedAt          *time.Time    `json:"disbursed_at,omitempty"`
	ProgressPercent      *uint64       `json:"progress_percent,omitempty"`
	TimeRemainingSeconds *int64        `json:"time_remaining_seconds,omitempty"`
}

func newCampaignView(c domain.Campaign) campaignView {
	return campaignView{
		ID:              c.ID,
		Creator:         c.Creator.Hex(),
		Beneficiary:     c.Beneficiary.Hex(),
		Title:           c.Title,
		Description:     c.Description,
		ImageRef:        c.ImageRef,
		TargetAmount:    c.TargetAmount,
		RaisedAmount:    c.RaisedAmount,
		RefundedAmount:  c.RefundedAmount,
		DisbursedAmount: c.DisbursedAmount,
		Deadline:        c.Deadline,
		DonorCount:      c.DonorCount,
		DonationCount:   c.DonationCount,
		GoalReached:     c.GoalReached,
		Active:          c.Active,
		Disbursed:       c.Disbursed,
		State:           string(c.State()),
		CreatedAt:       c.CreatedAt,
		EndedAt:         c.EndedAt,
		DisbursedAt:     c.DisbursedAt,
	}
}

func newDetailsView(d campaign.Details) campaignView {
	v := newCampaignView(d.Campaign)
	percent := d.ProgressPercent
	remaining := int64(d.TimeRemaining / time.Second)
	v.ProgressPercent = &percent
	v.TimeRemainingSeconds = &remaining
	return v
}

type donationView struct {
	ID         string        `json:"id"`
	CampaignID uint64        `json:"campaign_id"`
	Donor      string        `json:"donor"`
	Amount     ledger.Amount `json:"amount"`
	TxRef      string        `json:"tx_ref,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

func newDonationView(d domain.Donation) donationView {
	return donationView{
		ID:         d.ID,
		CampaignID: d.CampaignID,
		Donor:      d.Donor.Hex(),
		Amount:     d.Amount,
		TxRef:      d.TxRef,
		Timestamp:  d.Timestamp,
	}
}

type contributionView struct {
	CampaignID uint64        `json:"campaign_id"`
	Donor      string        `json:"donor"`
	Total      ledger.Amount `json:"total"`
	Refunded   bool          `json:"refunded"`
	RefundedAt *time.Time    `json:"refunded_at,omitempty"`
}

func newContributionView(c domain.Contribution) contributionView {
	return contributionView{
		CampaignID: c.CampaignID,
		Donor:      c.Donor.Hex(),
		Total:      c.Total,
		Refunded:   c.Refunded,
		RefundedAt: c.RefundedAt,
	}
}
