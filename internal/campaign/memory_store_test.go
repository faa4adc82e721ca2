package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

func seedStore(t *testing.T) (*MemoryStore, uint64, time.Time) {
	t.Helper()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	id, err := s.Create(context.Background(), domain.NewCampaign{
		Creator:      creator,
		Beneficiary:  beneficiary,
		Title:        "  Library roof  ",
		TargetAmount: ledger.NewAmount(100),
		Deadline:     now.Add(time.Hour),
	}, now)
	require.NoError(t, err)
	return s, id, now
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s, id, now := seedStore(t)
	assert.Equal(t, uint64(1), id)

	c, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Library roof", c.Title)
	assert.Equal(t, now, c.CreatedAt)
	assert.True(t, c.Active)

	_, err = s.Get(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
	_, err = s.Get(context.Background(), 2)
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)

	err = s.Update(context.Background(), 2, func(domain.CampaignTx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
}

func TestMemoryStoreUpdateDiscardsOnError(t *testing.T) {
	s, id, now := seedStore(t)
	boom := errors.New("boom")

	err := s.Update(context.Background(), id, func(tx domain.CampaignTx) error {
		_, err := tx.RecordDonation(domain.Donation{Donor: alice, Amount: ledger.NewAmount(100), Timestamp: now})
		require.NoError(t, err)
		assert.True(t, tx.Campaign().GoalReached)
		require.NoError(t, tx.MarkDisbursed(ledger.NewAmount(100), now))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	c, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, c.RaisedAmount.IsZero())
	assert.False(t, c.GoalReached)
	assert.False(t, c.Disbursed)
	donations, err := s.ListDonations(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, donations)
	_, err = s.Contribution(context.Background(), id, alice)
	assert.ErrorIs(t, err, domain.ErrNoDonationFound)
}

func TestMemoryStoreReadersSeeCommittedStateOnly(t *testing.T) {
	s, id, now := seedStore(t)

	err := s.Update(context.Background(), id, func(tx domain.CampaignTx) error {
		_, err := tx.RecordDonation(domain.Donation{Donor: alice, Amount: ledger.NewAmount(40), Timestamp: now})
		require.NoError(t, err)

		// Mid-transaction snapshot.
		c, err := s.Get(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, c.RaisedAmount.IsZero())
		donations, err := s.ListDonations(context.Background(), id)
		require.NoError(t, err)
		assert.Empty(t, donations)

		contrib, err := tx.Contribution(alice)
		require.NoError(t, err)
		assert.Equal(t, ledger.NewAmount(40), contrib.Total)
		return nil
	})
	require.NoError(t, err)

	c, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ledger.NewAmount(40), c.RaisedAmount)
	assert.Equal(t, uint64(1), c.DonorCount)
}

func TestMemoryStoreListDonationsReturnsCopy(t *testing.T) {
	s, id, now := seedStore(t)
	require.NoError(t, s.Update(context.Background(), id, func(tx domain.CampaignTx) error {
		_, err := tx.RecordDonation(domain.Donation{Donor: bob, Amount: ledger.NewAmount(5), Timestamp: now})
		return err
	}))

	first, err := s.ListDonations(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Amount = ledger.NewAmount(999)

	second, err := s.ListDonations(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ledger.NewAmount(5), second[0].Amount)
	assert.Equal(t, id, second[0].CampaignID)
}

func TestMemoryStoreMarkRefunded(t *testing.T) {
	s, id, now := seedStore(t)
	require.NoError(t, s.Update(context.Background(), id, func(tx domain.CampaignTx) error {
		_, err := tx.RecordDonation(domain.Donation{Donor: alice, Amount: ledger.NewAmount(30), Timestamp: now})
		return err
	}))

	err := s.Update(context.Background(), id, func(tx domain.CampaignTx) error {
		require.NoError(t, tx.MarkEnded(now))
		_, err := tx.MarkRefunded(bob, now)
		assert.ErrorIs(t, err, domain.ErrNoDonationFound)
		contrib, err := tx.MarkRefunded(alice, now)
		require.NoError(t, err)
		assert.True(t, contrib.Refunded)
		return nil
	})
	require.NoError(t, err)

	c, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnded, c.State())
	assert.Equal(t, ledger.NewAmount(30), c.RefundedAmount)
	contrib, err := s.Contribution(context.Background(), id, alice)
	require.NoError(t, err)
	assert.True(t, contrib.Refunded)
	require.NotNil(t, contrib.RefundedAt)
}

func TestMemoryJournalLifecycle(t *testing.T) {
	j := NewMemoryJournal()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := &domain.Reconciliation{CampaignID: 3, Kind: domain.ReconcileRefund, Party: alice, Amount: ledger.NewAmount(7), CreatedAt: now}
	require.NoError(t, j.Flag(context.Background(), entry))
	require.NotEmpty(t, entry.ID)

	open, err := j.HasOpen(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, open)
	open, err = j.HasOpen(context.Background(), 4)
	require.NoError(t, err)
	assert.False(t, open)

	require.NoError(t, j.Resolve(context.Background(), entry.ID, "paid", now))
	assert.ErrorIs(t, j.Resolve(context.Background(), entry.ID, "again", now), domain.ErrNotFound)
	assert.ErrorIs(t, j.Resolve(context.Background(), "missing", "", now), domain.ErrNotFound)

	pending, err := j.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, pending)
	all, err := j.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "paid", all[0].Note)
}
