package campaign

import (
	"context"
	"errors"
	"fmt"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

// AutoDisburse releases the raised amount to the beneficiary once the goal is
// reached.
func (e *Engine) AutoDisburse(ctx context.Context, id uint64, caller domain.Address) (*domain.Campaign, error) {
	return e.disburse(ctx, id, caller, domain.DisburseOnGoal)
}

// ManualDisburse releases whatever was raised once the deadline has passed,
// whether or not the goal was reached.
func (e *Engine) ManualDisburse(ctx context.Context, id uint64, caller domain.Address) (*domain.Campaign, error) {
	return e.disburse(ctx, id, caller, domain.DisburseAfterDeadline)
}

// Withdraw is the combined release entry point: goal-based when goalBased is
// set, deadline-based otherwise.
func (e *Engine) Withdraw(ctx context.Context, id uint64, caller domain.Address, goalBased bool) (*domain.Campaign, error) {
	if goalBased {
		return e.AutoDisburse(ctx, id, caller)
	}
	return e.ManualDisburse(ctx, id, caller)
}

func (e *Engine) disburse(ctx context.Context, id uint64, caller domain.Address, mode domain.DisbursementMode) (*domain.Campaign, error) {
	var (
		outcome transferOutcome
		result  domain.Campaign
		amount  ledger.Amount
	)
	err := e.store.Update(ledgerContext(ctx), id, func(tx domain.CampaignTx) error {
		c := tx.Campaign()
		if !IsCreator(c, caller) {
			return domain.ErrNotCreator
		}
		if c.Disbursed {
			return domain.ErrCampaignAlreadyDisbursed
		}
		if !c.Active {
			return domain.ErrCampaignNotActive
		}
		now := e.now()
		switch mode {
		case domain.DisburseOnGoal:
			if !c.GoalReached {
				return domain.ErrGoalNotReached
			}
		case domain.DisburseAfterDeadline:
			if now.Before(c.Deadline) {
				return domain.ErrDeadlineNotReached
			}
		default:
			return fmt.Errorf("unknown disbursement mode %q", mode)
		}
		if err := e.guardOutflow(ctx, c.ID); err != nil {
			return err
		}

		amount = c.RaisedAmount
		entry := domain.Reconciliation{
			CampaignID: c.ID,
			Kind:       domain.ReconcileDisbursement,
			Party:      c.Beneficiary,
			Amount:     amount,
		}
		if !amount.IsZero() {
			if err := outcome.track(e.tokens.Transfer(ctx, c.Beneficiary, amount)); err != nil {
				return e.settle(ctx, &outcome, entry, err)
			}
			e.settleOnAbort(ctx, tx, &outcome, entry)
		}
		if err := tx.MarkDisbursed(amount, now); err != nil {
			return e.settle(ctx, &outcome, entry, fmt.Errorf("mark disbursed: %w", err))
		}
		result = tx.Campaign()
		return nil
	})
	if outcome.journaled != nil {
		return nil, outcome.journaled
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Uint64("campaign_id", id).
		Str("mode", string(mode)).
		Str("amount", amount.String()).
		Str("tx_ref", outcome.receipt.Ref).
		Msg("campaign disbursed")
	e.publish(domain.Event{
		Kind:         domain.EventFundsDisbursed,
		CampaignID:   id,
		Actor:        addrPtr(caller),
		Counterparty: addrPtr(result.Beneficiary),
		Amount:       amountPtr(amount),
		Mode:         mode,
		TxRef:        outcome.receipt.Ref,
		OccurredAt:   *result.DisbursedAt,
	})
	return &result, nil
}

// EndCampaign closes a campaign past its deadline without moving funds, which
// opens the refund path.
func (e *Engine) EndCampaign(ctx context.Context, id uint64, caller domain.Address) (*domain.Campaign, error) {
	var result domain.Campaign
	err := e.store.Update(ctx, id, func(tx domain.CampaignTx) error {
		c := tx.Campaign()
		if !IsCreator(c, caller) {
			return domain.ErrNotCreator
		}
		if c.Disbursed {
			return domain.ErrCampaignAlreadyDisbursed
		}
		if !c.Active {
			return domain.ErrCampaignNotActive
		}
		now := e.now()
		if now.Before(c.Deadline) {
			return domain.ErrDeadlineNotReached
		}
		if err := tx.MarkEnded(now); err != nil {
			return err
		}
		result = tx.Campaign()
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(domain.Event{
		Kind:       domain.EventCampaignEnded,
		CampaignID: id,
		Actor:      addrPtr(caller),
		Total:      amountPtr(result.RaisedAmount),
		OccurredAt: *result.EndedAt,
	})
	return &result, nil
}

// Refund returns donor's whole contribution to an ended campaign. A donor can
// be refunded once.
func (e *Engine) Refund(ctx context.Context, id uint64, donor domain.Address) (*domain.Contribution, error) {
	var (
		outcome transferOutcome
		result  domain.Contribution
	)
	err := e.store.Update(ledgerContext(ctx), id, func(tx domain.CampaignTx) error {
		c := tx.Campaign()
		if err := refundable(c); err != nil {
			return err
		}
		contrib, err := tx.Contribution(donor)
		if err != nil {
			return err
		}
		if !IsDonor(contrib, donor) {
			return domain.ErrNoDonationFound
		}
		if contrib.Refunded {
			return domain.ErrAlreadyRefunded
		}
		if err := e.guardOutflow(ctx, c.ID); err != nil {
			return err
		}

		entry := domain.Reconciliation{
			CampaignID: c.ID,
			Kind:       domain.ReconcileRefund,
			Party:      donor,
			Amount:     contrib.Total,
		}
		if err := outcome.track(e.tokens.Transfer(ctx, donor, contrib.Total)); err != nil {
			return e.settle(ctx, &outcome, entry, err)
		}
		e.settleOnAbort(ctx, tx, &outcome, entry)
		if result, err = tx.MarkRefunded(donor, e.now()); err != nil {
			return e.settle(ctx, &outcome, entry, fmt.Errorf("mark refunded: %w", err))
		}
		return nil
	})
	if outcome.journaled != nil {
		return nil, outcome.journaled
	}
	if err != nil {
		return nil, err
	}

	e.publish(domain.Event{
		Kind:         domain.EventDonationRefunded,
		CampaignID:   id,
		Counterparty: addrPtr(donor),
		Amount:       amountPtr(result.Total),
		TxRef:        outcome.receipt.Ref,
		OccurredAt:   *result.RefundedAt,
	})
	return &result, nil
}

// CanRefund reports whether Refund would currently be accepted for donor:
// the campaign ended undisbursed, donor has an unrefunded contribution and no
// reconciliation entry is open on the campaign.
func (e *Engine) CanRefund(ctx context.Context, id uint64, donor domain.Address) (bool, error) {
	c, err := e.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if refundable(*c) != nil {
		return false, nil
	}
	open, err := e.journal.HasOpen(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check reconciliation journal: %w", err)
	}
	if open {
		return false, nil
	}
	contrib, err := e.store.Contribution(ctx, id, donor)
	if errors.Is(err, domain.ErrNoDonationFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return IsDonor(contrib, donor) && !contrib.Refunded, nil
}

// IsDonor reports whether caller has a recorded contribution on campaign id.
func (e *Engine) IsDonor(ctx context.Context, id uint64, caller domain.Address) (bool, error) {
	contrib, err := e.store.Contribution(ctx, id, caller)
	if errors.Is(err, domain.ErrNoDonationFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return IsDonor(contrib, caller), nil
}

func refundable(c domain.Campaign) error {
	switch {
	case c.Disbursed:
		return domain.ErrCampaignAlreadyDisbursed
	case c.Active:
		return domain.ErrCampaignStillActive
	}
	return nil
}
