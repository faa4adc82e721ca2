package campaign

import (
	"context"
	"sync"
	"time"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

// MemoryStore is an in-process CampaignStore.
//
// Each record has its own writer lock, held for the whole Update call, so
// writers on different campaigns run concurrently. Committed state sits
// behind mu; readers copy it under RLock and never see a staged change.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*memRecord // index = id-1
}

type memRecord struct {
	writer sync.Mutex

	campaign      domain.Campaign
	donations     []domain.Donation
	contributions map[domain.Address]domain.Contribution
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Create(_ context.Context, in domain.NewCampaign, now time.Time) (uint64, error) {
	if err := in.Validate(now); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uint64(len(s.records)) + 1
	s.records = append(s.records, &memRecord{
		campaign:      in.Build(id, now),
		contributions: make(map[domain.Address]domain.Contribution),
	})
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id uint64) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.recordLocked(id)
	if err != nil {
		return nil, err
	}
	c := rec.campaign
	return &c, nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Campaign, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.campaign)
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records)), nil
}

func (s *MemoryStore) ListDonations(_ context.Context, id uint64) ([]domain.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.recordLocked(id)
	if err != nil {
		return nil, err
	}
	return append([]domain.Donation(nil), rec.donations...), nil
}

func (s *MemoryStore) Contribution(_ context.Context, id uint64, donor domain.Address) (*domain.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.recordLocked(id)
	if err != nil {
		return nil, err
	}
	c, ok := rec.contributions[donor]
	if !ok {
		return nil, domain.ErrNoDonationFound
	}
	return &c, nil
}

func (s *MemoryStore) Update(_ context.Context, id uint64, fn func(tx domain.CampaignTx) error) error {
	s.mu.RLock()
	rec, err := s.recordLocked(id)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	rec.writer.Lock()
	defer rec.writer.Unlock()

	// Only the writer mutates rec, so reading it here without mu is safe.
	tx := &memTx{rec: rec, campaign: rec.campaign, staged: map[domain.Address]domain.Contribution{}}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	rec.campaign = tx.campaign
	rec.donations = append(rec.donations, tx.donations...)
	for donor, c := range tx.staged {
		rec.contributions[donor] = c
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) recordLocked(id uint64) (*memRecord, error) {
	if id == 0 || id > uint64(len(s.records)) {
		return nil, domain.ErrCampaignNotFound
	}
	return s.records[id-1], nil
}

// memTx stages changes for one Update call.
type memTx struct {
	rec       *memRecord
	campaign  domain.Campaign
	donations []domain.Donation
	staged    map[domain.Address]domain.Contribution
}

func (t *memTx) Campaign() domain.Campaign {
	return t.campaign
}

func (t *memTx) Contribution(donor domain.Address) (*domain.Contribution, error) {
	c, ok := t.lookup(donor)
	if !ok {
		return nil, domain.ErrNoDonationFound
	}
	return &c, nil
}

func (t *memTx) lookup(donor domain.Address) (domain.Contribution, bool) {
	if c, ok := t.staged[donor]; ok {
		return c, true
	}
	c, ok := t.rec.contributions[donor]
	return c, ok
}

func (t *memTx) RecordDonation(d domain.Donation) (domain.Campaign, error) {
	raised, err := ledger.Add(t.campaign.RaisedAmount, d.Amount)
	if err != nil {
		return t.campaign, err
	}
	contrib, seen := t.lookup(d.Donor)
	total, err := ledger.Add(contrib.Total, d.Amount)
	if err != nil {
		return t.campaign, err
	}

	d.CampaignID = t.campaign.ID
	next := t.campaign
	next.RaisedAmount = raised
	next.DonationCount++
	if !seen {
		next.DonorCount++
		contrib = domain.Contribution{CampaignID: next.ID, Donor: d.Donor}
	}
	if !next.RaisedAmount.LessThan(next.TargetAmount) {
		next.GoalReached = true
	}
	contrib.Total = total

	t.campaign = next
	t.donations = append(t.donations, d)
	t.staged[d.Donor] = contrib
	return next, nil
}

// OnAbort never fires: applying staged changes in memory cannot fail.
func (t *memTx) OnAbort(func(cause error)) {}

func (t *memTx) MarkDisbursed(amount ledger.Amount, now time.Time) error {
	at := now.UTC()
	t.campaign.Disbursed = true
	t.campaign.Active = false
	t.campaign.DisbursedAmount = amount
	t.campaign.DisbursedAt = &at
	return nil
}

func (t *memTx) MarkEnded(now time.Time) error {
	at := now.UTC()
	t.campaign.Active = false
	t.campaign.EndedAt = &at
	return nil
}

func (t *memTx) MarkRefunded(donor domain.Address, now time.Time) (domain.Contribution, error) {
	c, ok := t.lookup(donor)
	if !ok {
		return domain.Contribution{}, domain.ErrNoDonationFound
	}
	refunded, err := ledger.Add(t.campaign.RefundedAmount, c.Total)
	if err != nil {
		return domain.Contribution{}, err
	}
	at := now.UTC()
	c.Refunded = true
	c.RefundedAt = &at
	t.campaign.RefundedAmount = refunded
	t.staged[donor] = c
	return c, nil
}

var _ domain.CampaignStore = (*MemoryStore)(nil)
