package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

// numeric encodes an amount for a numeric(78,0) parameter.
func numeric(a ledger.Amount) pgtype.Numeric {
	return pgtype.Numeric{Int: a.Big(), Exp: 0, Valid: true}
}

// addressText is the stored form of an address.
func addressText(a domain.Address) string {
	return strings.ToLower(a.Hex())
}

func parseStoredAddress(s string) (domain.Address, error) {
	if !common.IsHexAddress(s) {
		return domain.ZeroAddress, fmt.Errorf("stored address %q is malformed", s)
	}
	return common.HexToAddress(s), nil
}

func parseStoredAmount(column, s string) (ledger.Amount, error) {
	a, err := ledger.ParseAmount(s)
	if err != nil {
		return ledger.Zero, fmt.Errorf("stored %s %q: %w", column, s, err)
	}
	return a, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var (
		c                                   domain.Campaign
		creator, beneficiary                string
		target, raised, refunded, disbursed string
		id, donorCount, donationCount       int64
	)
	err := row.Scan(
		&id, &creator, &beneficiary, &c.Title, &c.Description, &c.ImageRef,
		&target, &raised, &refunded, &disbursed,
		&c.Deadline, &donorCount, &donationCount, &c.GoalReached, &c.Active, &c.Disbursed,
		&c.CreatedAt, &c.EndedAt, &c.DisbursedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.Creator, err = parseStoredAddress(creator); err != nil {
		return nil, err
	}
	if c.Beneficiary, err = parseStoredAddress(beneficiary); err != nil {
		return nil, err
	}
	if c.TargetAmount, err = parseStoredAmount("target_amount", target); err != nil {
		return nil, err
	}
	if c.RaisedAmount, err = parseStoredAmount("raised_amount", raised); err != nil {
		return nil, err
	}
	if c.RefundedAmount, err = parseStoredAmount("refunded_amount", refunded); err != nil {
		return nil, err
	}
	if c.DisbursedAmount, err = parseStoredAmount("disbursed_amount", disbursed); err != nil {
		return nil, err
	}
	c.ID = uint64(id)
	c.DonorCount = uint64(donorCount)
	c.DonationCount = uint64(donationCount)
	c.Deadline = c.Deadline.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.EndedAt = utcPtr(c.EndedAt)
	c.DisbursedAt = utcPtr(c.DisbursedAt)
	return &c, nil
}

func scanDonation(row pgx.Row) (domain.Donation, error) {
	var (
		d          domain.Donation
		campaignID int64
		donor      string
		amount     string
	)
	if err := row.Scan(&d.ID, &campaignID, &donor, &amount, &d.TxRef, &d.Timestamp); err != nil {
		return d, err
	}
	d.CampaignID = uint64(campaignID)
	var err error
	if d.Donor, err = parseStoredAddress(donor); err != nil {
		return d, err
	}
	if d.Amount, err = parseStoredAmount("amount", amount); err != nil {
		return d, err
	}
	d.Timestamp = d.Timestamp.UTC()
	return d, nil
}

func scanContribution(row pgx.Row) (*domain.Contribution, error) {
	var (
		c          domain.Contribution
		campaignID int64
		donor      string
		total      string
	)
	if err := row.Scan(&campaignID, &donor, &total, &c.Refunded, &c.RefundedAt); err != nil {
		return nil, err
	}
	c.CampaignID = uint64(campaignID)
	var err error
	if c.Donor, err = parseStoredAddress(donor); err != nil {
		return nil, err
	}
	if c.Total, err = parseStoredAmount("total", total); err != nil {
		return nil, err
	}
	c.RefundedAt = utcPtr(c.RefundedAt)
	return &c, nil
}

func scanReconciliation(row pgx.Row) (domain.Reconciliation, error) {
	var (
		r          domain.Reconciliation
		campaignID int64
		kind       string
		party      string
		amount     string
	)
	if err := row.Scan(&r.ID, &campaignID, &kind, &party, &amount, &r.TxRef, &r.Cause, &r.CreatedAt, &r.ResolvedAt, &r.Note); err != nil {
		return r, err
	}
	r.CampaignID = uint64(campaignID)
	var err error
	r.Kind = domain.ReconciliationKind(kind)
	if r.Party, err = parseStoredAddress(party); err != nil {
		return r, err
	}
	if r.Amount, err = parseStoredAmount("amount", amount); err != nil {
		return r, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.ResolvedAt = utcPtr(r.ResolvedAt)
	return r, nil
}
