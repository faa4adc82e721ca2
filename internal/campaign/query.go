package campaign

import (
	"context"
	"time"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

// Details is the read model of one campaign.
type Details struct {
	Campaign        domain.Campaign
	ProgressPercent uint64
	TimeRemaining   time.Duration
	DonationCount   uint64
}

func (e *Engine) details(c domain.Campaign, now time.Time) Details {
	remaining := c.Deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return Details{
		Campaign:        c,
		ProgressPercent: ledger.PercentOf(c.RaisedAmount, c.TargetAmount),
		TimeRemaining:   remaining,
		DonationCount:   c.DonationCount,
	}
}

// Details returns the campaign with its derived progress figures.
func (e *Engine) Details(ctx context.Context, id uint64) (Details, error) {
	c, err := e.store.Get(ctx, id)
	if err != nil {
		return Details{}, err
	}
	return e.details(*c, e.now()), nil
}

// List returns details for every campaign in id order.
func (e *Engine) List(ctx context.Context) ([]Details, error) {
	campaigns, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]Details, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, e.details(c, now))
	}
	return out, nil
}

// Count returns the number of campaigns ever created.
func (e *Engine) Count(ctx context.Context) (uint64, error) {
	return e.store.Count(ctx)
}

// Donations lists donations to campaign id in the order they were accepted.
func (e *Engine) Donations(ctx context.Context, id uint64) ([]domain.Donation, error) {
	return e.store.ListDonations(ctx, id)
}

// Contribution returns donor's aggregate on campaign id.
func (e *Engine) Contribution(ctx context.Context, id uint64, donor domain.Address) (*domain.Contribution, error) {
	return e.store.Contribution(ctx, id, donor)
}

// Stats summarizes the whole ledger.
type Stats struct {
	Campaigns      uint64
	Active         uint64
	GoalReached    uint64
	Disbursed      uint64
	Ended          uint64
	Donations      uint64
	TotalRaised    ledger.Amount
	TotalDisbursed ledger.Amount
	TotalRefunded  ledger.Amount
}

// Stats aggregates every campaign. Totals saturate at the amount maximum.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	campaigns, err := e.store.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, c := range campaigns {
		s.Campaigns++
		switch c.State() {
		case domain.StateActive:
			s.Active++
		case domain.StateDisbursed:
			s.Disbursed++
		case domain.StateEnded:
			s.Ended++
		}
		if c.GoalReached {
			s.GoalReached++
		}
		s.Donations += c.DonationCount
		s.TotalRaised = saturatingAdd(s.TotalRaised, c.RaisedAmount)
		s.TotalDisbursed = saturatingAdd(s.TotalDisbursed, c.DisbursedAmount)
		s.TotalRefunded = saturatingAdd(s.TotalRefunded, c.RefundedAmount)
	}
	return s, nil
}

func saturatingAdd(a, b ledger.Amount) ledger.Amount {
	sum, err := ledger.Add(a, b)
	if err != nil {
		return ledger.MaxAmount
	}
	return sum
}
