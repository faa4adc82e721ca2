package campaign

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

// Donate pulls amount from donor into custody and records it against
// campaign id.
//
// Nothing is written unless the transfer succeeds. If the transfer succeeds
// (or its outcome is unknown) but the ledger write does not commit, the
// donation is journaled before the campaign is released and
// ErrReconciliationRequired is returned.
func (e *Engine) Donate(ctx context.Context, id uint64, donor domain.Address, amount ledger.Amount) (*domain.Donation, error) {
	var (
		outcome  transferOutcome
		donation domain.Donation
		before   domain.Campaign
		after    domain.Campaign
	)
	custody := e.tokens.Custody()

	err := e.store.Update(ledgerContext(ctx), id, func(tx domain.CampaignTx) error {
		c := tx.Campaign()
		if !c.Active || c.Disbursed {
			return domain.ErrCampaignNotActive
		}
		now := e.now()
		if !now.Before(c.Deadline) {
			return domain.ErrCampaignExpired
		}
		if amount.IsZero() {
			return domain.ErrInvalidAmount
		}
		// Reject an overflowing donation before any funds move.
		if _, err := ledger.Add(c.RaisedAmount, amount); err != nil {
			return err
		}
		allowance, err := e.tokens.Allowance(ctx, donor, custody)
		if err != nil {
			return fmt.Errorf("%w: allowance: %v", domain.ErrTransferFailed, err)
		}
		if allowance.LessThan(amount) {
			return fmt.Errorf("%w: allowance %s below amount %s", domain.ErrTransferFailed, allowance, amount)
		}

		entry := domain.Reconciliation{
			CampaignID: c.ID,
			Kind:       domain.ReconcileDonation,
			Party:      donor,
			Amount:     amount,
		}
		if err := outcome.track(e.tokens.TransferFrom(ctx, donor, custody, amount)); err != nil {
			return e.settle(ctx, &outcome, entry, err)
		}
		e.settleOnAbort(ctx, tx, &outcome, entry)

		donation = domain.Donation{
			ID:         uuid.NewString(),
			CampaignID: c.ID,
			Donor:      donor,
			Amount:     amount,
			TxRef:      outcome.receipt.Ref,
			Timestamp:  now.UTC(),
		}
		updated, err := tx.RecordDonation(donation)
		if err != nil {
			return e.settle(ctx, &outcome, entry, fmt.Errorf("record donation: %w", err))
		}
		before, after = c, updated
		return nil
	})
	if outcome.journaled != nil {
		return nil, outcome.journaled
	}
	if err != nil {
		return nil, err
	}

	e.publish(domain.Event{
		Kind:       domain.EventDonationReceived,
		CampaignID: id,
		Actor:      addrPtr(donor),
		Amount:     amountPtr(amount),
		Total:      amountPtr(after.RaisedAmount),
		TxRef:      donation.TxRef,
		OccurredAt: donation.Timestamp,
	})
	if after.GoalReached && !before.GoalReached {
		e.publish(domain.Event{
			Kind:       domain.EventGoalReached,
			CampaignID: id,
			Total:      amountPtr(after.RaisedAmount),
			Amount:     amountPtr(after.TargetAmount),
			OccurredAt: donation.Timestamp,
		})
	}
	return &donation, nil
}
