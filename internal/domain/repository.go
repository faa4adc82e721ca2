package domain

import (
	"context"
	"time"

	"crowdfund/internal/ledger"
)

// CampaignStore owns campaign records and their donations.
type CampaignStore interface {
	// Create validates input, assigns the next id (starting at 1) and stores
	// the record.
	Create(ctx context.Context, in NewCampaign, now time.Time) (uint64, error)
	Get(ctx context.Context, id uint64) (*Campaign, error)
	List(ctx context.Context) ([]Campaign, error)
	Count(ctx context.Context) (uint64, error)
	// ListDonations returns donations in insertion order.
	ListDonations(ctx context.Context, id uint64) ([]Donation, error)
	Contribution(ctx context.Context, id uint64, donor Address) (*Contribution, error)
	// Update runs fn as a single unit of work on one campaign. Writers on the
	// same campaign are serialized for the whole call. Mutations made through
	// the CampaignTx become visible together when fn returns nil and are
	// discarded otherwise.
	Update(ctx context.Context, id uint64, fn func(tx CampaignTx) error) error
}

// CampaignTx is the write handle passed to CampaignStore.Update. Its mutators
// check structural existence only; business rules belong to the caller.
type CampaignTx interface {
	Campaign() Campaign
	Contribution(donor Address) (*Contribution, error)
	// RecordDonation appends d, adds it to the raised amount, counts a new
	// donor and flips GoalReached in one step.
	RecordDonation(d Donation) (Campaign, error)
	MarkDisbursed(amount ledger.Amount, now time.Time) error
	MarkEnded(now time.Time) error
	MarkRefunded(donor Address, now time.Time) (Contribution, error)
	// OnAbort registers fn to run when the unit of work fails after the
	// Update callback returned nil, for example on a failed commit. fn runs
	// before Update returns, while the campaign is still locked.
	OnAbort(fn func(cause error))
}

// ReconciliationJournal keeps transfers that need a human to reconcile them.
type ReconciliationJournal interface {
	Flag(ctx context.Context, entry *Reconciliation) error
	HasOpen(ctx context.Context, campaignID uint64) (bool, error)
	List(ctx context.Context, includeResolved bool) ([]Reconciliation, error)
	Resolve(ctx context.Context, id string, note string, now time.Time) error
}

// EventRepository persists the audit trail.
type EventRepository interface {
	Append(ctx context.Context, e Event) error
	ListByCampaign(ctx context.Context, campaignID uint64) ([]Event, error)
}
