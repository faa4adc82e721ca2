package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfund/internal/domain"
	"crowdfund/internal/events"
	"crowdfund/internal/ledger"
	"crowdfund/internal/token"
)

var (
	custody     = domain.Address{0xcc}
	creator     = domain.Address{0xc1}
	beneficiary = domain.Address{0xbe}
	alice       = domain.Address{0xa1}
	bob         = domain.Address{0xb0}
	mallory     = domain.Address{0x66}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine  *Engine
	store   *MemoryStore
	journal *MemoryJournal
	tokens  *token.Memory
	events  *events.Recorded
	clock   *fakeClock
}

type harnessOption func(*harness, *Options)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		store:   NewMemoryStore(),
		journal: NewMemoryJournal(),
		tokens:  token.NewMemory(custody),
		events:  &events.Recorded{},
		clock:   &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	o := Options{
		Store:   h.store,
		Journal: h.journal,
		Tokens:  h.tokens,
		Events:  h.events,
		Clock:   h.clock.Now,
	}
	for _, opt := range opts {
		opt(h, &o)
	}
	engine, err := NewEngine(o)
	require.NoError(t, err)
	h.engine = engine
	return h
}

func withTokens(svc token.Service) harnessOption {
	return func(_ *harness, o *Options) { o.Tokens = svc }
}

func withStore(store domain.CampaignStore) harnessOption {
	return func(_ *harness, o *Options) { o.Store = store }
}

func (h *harness) create(t *testing.T, target uint64, lifetime time.Duration) *domain.Campaign {
	t.Helper()
	c, err := h.engine.CreateCampaign(context.Background(), domain.NewCampaign{
		Creator:      creator,
		Beneficiary:  beneficiary,
		Title:        "Community garden",
		Description:  "Seeds and tools",
		TargetAmount: ledger.NewAmount(target),
		Deadline:     h.clock.Now().Add(lifetime),
	})
	require.NoError(t, err)
	return c
}

func (h *harness) fund(t *testing.T, donor domain.Address, units uint64) {
	t.Helper()
	require.NoError(t, h.tokens.Mint(donor, ledger.NewAmount(units)))
	h.tokens.Approve(donor, custody, ledger.NewAmount(units))
}

func (h *harness) donate(t *testing.T, id uint64, donor domain.Address, units uint64) {
	t.Helper()
	h.fund(t, donor, units)
	_, err := h.engine.Donate(context.Background(), id, donor, ledger.NewAmount(units))
	require.NoError(t, err)
}

func (h *harness) campaign(t *testing.T, id uint64) domain.Campaign {
	t.Helper()
	c, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	assertInvariants(t, *c)
	return *c
}

func assertInvariants(t *testing.T, c domain.Campaign) {
	t.Helper()
	if c.Disbursed {
		assert.False(t, c.Active, "disbursed campaign must be inactive")
	}
	assert.Equal(t, !c.RaisedAmount.LessThan(c.TargetAmount), c.GoalReached, "goalReached must mirror raised >= target")
}

const month = 30 * 24 * time.Hour

func TestNewEngineRequiresCollaborators(t *testing.T) {
	_, err := NewEngine(Options{Tokens: token.NewMemory(custody)})
	assert.Error(t, err)
	_, err = NewEngine(Options{Store: NewMemoryStore()})
	assert.Error(t, err)
}

func TestCreateCampaignAssignsSequentialIDsAndEmitsEvent(t *testing.T) {
	h := newHarness(t)
	first := h.create(t, 1000, month)
	second := h.create(t, 50, month)

	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, uint64(2), second.ID)
	assert.True(t, first.Active)
	assert.False(t, first.Disbursed)
	assert.True(t, first.RaisedAmount.IsZero())
	assert.Equal(t, h.clock.Now(), first.CreatedAt)

	evs := h.events.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventCampaignCreated, evs[0].Kind)
	assert.Equal(t, creator, *evs[0].Actor)
	assert.Equal(t, beneficiary, *evs[0].Counterparty)
	assert.Equal(t, ledger.NewAmount(1000), *evs[0].Amount)
	assert.Equal(t, "Community garden", evs[0].Title)

	count, err := h.engine.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestCreateCampaignValidation(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	cases := []struct {
		name string
		in   domain.NewCampaign
		want error
	}{
		{"zero target", domain.NewCampaign{Beneficiary: beneficiary, Deadline: now.Add(time.Hour)}, domain.ErrInvalidTargetAmount},
		{"deadline now", domain.NewCampaign{Beneficiary: beneficiary, TargetAmount: ledger.NewAmount(1), Deadline: now}, domain.ErrInvalidDeadline},
		{"deadline past", domain.NewCampaign{Beneficiary: beneficiary, TargetAmount: ledger.NewAmount(1), Deadline: now.Add(-time.Second)}, domain.ErrInvalidDeadline},
		{"zero beneficiary", domain.NewCampaign{TargetAmount: ledger.NewAmount(1), Deadline: now.Add(time.Hour)}, domain.ErrInvalidBeneficiary},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.CreateCampaign(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
	count, err := h.engine.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, h.events.Events())
}

func TestDonationsFromTwoDonors(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 1000, month)

	h.donate(t, c.ID, alice, 100)
	h.donate(t, c.ID, bob, 200)

	got := h.campaign(t, c.ID)
	assert.Equal(t, ledger.NewAmount(300), got.RaisedAmount)
	assert.Equal(t, uint64(2), got.DonorCount)
	assert.False(t, got.GoalReached)

	details, err := h.engine.Details(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), details.ProgressPercent)
	assert.Equal(t, uint64(2), details.DonationCount)
	assert.Equal(t, month, details.TimeRemaining)

	assert.Equal(t, ledger.NewAmount(300), h.tokens.BalanceOf(custody))
	assert.True(t, h.tokens.BalanceOf(alice).IsZero())
}

func TestRepeatDonorCountedOnce(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 1000, month)

	h.donate(t, c.ID, alice, 100)
	h.donate(t, c.ID, alice, 50)

	got := h.campaign(t, c.ID)
	assert.Equal(t, uint64(1), got.DonorCount)
	assert.Equal(t, uint64(2), got.DonationCount)

	contrib, err := h.engine.Contribution(context.Background(), c.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, ledger.NewAmount(150), contrib.Total)

	donations, err := h.engine.Donations(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, donations, 2)
	assert.Equal(t, ledger.NewAmount(100), donations[0].Amount)
	assert.Equal(t, ledger.NewAmount(50), donations[1].Amount)
	assert.NotEmpty(t, donations[0].TxRef)
	assert.NotEqual(t, donations[0].ID, donations[1].ID)
}

func TestExactGoalFlipsAndAutoDisburses(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 1000, month)

	h.donate(t, c.ID, alice, 400)
	h.donate(t, c.ID, bob, 600)

	got := h.campaign(t, c.ID)
	assert.True(t, got.GoalReached)
	assert.Equal(t, []domain.EventKind{
		domain.EventCampaignCreated,
		domain.EventDonationReceived,
		domain.EventDonationReceived,
		domain.EventGoalReached,
	}, h.events.Kinds())

	disbursed, err := h.engine.AutoDisburse(context.Background(), c.ID, creator)
	require.NoError(t, err)
	assert.True(t, disbursed.Disbursed)
	assert.False(t, disbursed.Active)
	assert.Equal(t, ledger.NewAmount(1000), disbursed.DisbursedAmount)
	assert.Equal(t, domain.StateDisbursed, disbursed.State())
	assert.Equal(t, ledger.NewAmount(1000), h.tokens.BalanceOf(beneficiary))
	assert.True(t, h.tokens.BalanceOf(custody).IsZero())
	assertInvariants(t, h.campaign(t, c.ID))

	last := h.events.Events()[len(h.events.Events())-1]
	assert.Equal(t, domain.EventFundsDisbursed, last.Kind)
	assert.Equal(t, domain.DisburseOnGoal, last.Mode)
	assert.Equal(t, beneficiary, *last.Counterparty)
}

func TestDisburseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 100, month)
	h.donate(t, c.ID, alice, 100)
	_, err := h.engine.AutoDisburse(context.Background(), c.ID, creator)
	require.NoError(t, err)
	before := h.campaign(t, c.ID)

	_, err = h.engine.AutoDisburse(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrCampaignAlreadyDisbursed)
	h.clock.Advance(2 * month)
	_, err = h.engine.ManualDisburse(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrCampaignAlreadyDisbursed)
	_, err = h.engine.EndCampaign(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrCampaignAlreadyDisbursed)

	assert.Equal(t, before, h.campaign(t, c.ID))
	assert.Equal(t, ledger.NewAmount(100), h.tokens.BalanceOf(beneficiary))
}

func TestAutoDisburseBeforeGoal(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 1000, month)
	h.donate(t, c.ID, alice, 999)
	before := h.campaign(t, c.ID)

	_, err := h.engine.AutoDisburse(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrGoalNotReached)
	assert.Equal(t, domain.KindState, domain.KindOf(err))
	assert.Equal(t, before, h.campaign(t, c.ID))
	assert.True(t, h.tokens.BalanceOf(beneficiary).IsZero())
}

func TestNonCreatorIsRejectedInEveryState(t *testing.T) {
	h := newHarness(t)
	active := h.create(t, 100, month)
	reached := h.create(t, 100, month)
	h.donate(t, reached.ID, alice, 100)

	ops := map[string]func(id uint64) error{
		"auto": func(id uint64) error {
			_, err := h.engine.AutoDisburse(context.Background(), id, mallory)
			return err
		},
		"manual": func(id uint64) error {
			_, err := h.engine.ManualDisburse(context.Background(), id, mallory)
			return err
		},
		"end": func(id uint64) error {
			_, err := h.engine.EndCampaign(context.Background(), id, mallory)
			return err
		},
	}
	check := func(stage string) {
		for name, op := range ops {
			for _, id := range []uint64{active.ID, reached.ID} {
				err := op(id)
				assert.ErrorIs(t, err, domain.ErrNotCreator, "%s %s campaign %d", stage, name, id)
				assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))
			}
		}
	}

	check("before deadline")
	h.clock.Advance(2 * month)
	check("after deadline")

	_, err := h.engine.AutoDisburse(context.Background(), reached.ID, creator)
	require.NoError(t, err)
	_, err = h.engine.EndCampaign(context.Background(), active.ID, creator)
	require.NoError(t, err)
	check("terminal")
}

func TestEndCampaignAndRefund(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 1000, month)
	h.donate(t, c.ID, alice, 100)
	h.donate(t, c.ID, alice, 150)
	h.donate(t, c.ID, bob, 40)

	ok, err := h.engine.CanRefund(context.Background(), c.ID, alice)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = h.engine.Refund(context.Background(), c.ID, alice)
	assert.ErrorIs(t, err, domain.ErrCampaignStillActive)

	_, err = h.engine.EndCampaign(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrDeadlineNotReached)

	h.clock.Advance(month)
	ended, err := h.engine.EndCampaign(context.Background(), c.ID, creator)
	require.NoError(t, err)
	assert.False(t, ended.Active)
	assert.False(t, ended.Disbursed)
	assert.Equal(t, domain.StateEnded, ended.State())
	require.NotNil(t, ended.EndedAt)

	_, err = h.engine.EndCampaign(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrCampaignNotActive)

	ok, err = h.engine.CanRefund(context.Background(), c.ID, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	contrib, err := h.engine.Refund(context.Background(), c.ID, alice)
	require.NoError(t, err)
	assert.True(t, contrib.Refunded)
	assert.Equal(t, ledger.NewAmount(250), contrib.Total)
	assert.Equal(t, ledger.NewAmount(250), h.tokens.BalanceOf(alice))
	assert.Equal(t, ledger.NewAmount(40), h.tokens.BalanceOf(custody))

	_, err = h.engine.Refund(context.Background(), c.ID, alice)
	assert.ErrorIs(t, err, domain.ErrAlreadyRefunded)
	assert.Equal(t, ledger.NewAmount(250), h.tokens.BalanceOf(alice))

	ok, err = h.engine.CanRefund(context.Background(), c.ID, alice)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.engine.Refund(context.Background(), c.ID, mallory)
	assert.ErrorIs(t, err, domain.ErrNoDonationFound)
	ok, err = h.engine.CanRefund(context.Background(), c.ID, mallory)
	require.NoError(t, err)
	assert.False(t, ok)

	got := h.campaign(t, c.ID)
	assert.Equal(t, ledger.NewAmount(290), got.RaisedAmount)
	assert.Equal(t, ledger.NewAmount(250), got.RefundedAmount)
	assert.Equal(t, ledger.NewAmount(40), got.Custody())

	_, err = h.engine.ManualDisburse(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrCampaignNotActive)

	kinds := h.events.Kinds()
	assert.Contains(t, kinds, domain.EventCampaignEnded)
	assert.Equal(t, domain.EventDonationRefunded, kinds[len(kinds)-1])
}

func TestRefundAfterDisbursement(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 100, month)
	h.donate(t, c.ID, alice, 100)
	_, err := h.engine.AutoDisburse(context.Background(), c.ID, creator)
	require.NoError(t, err)

	_, err = h.engine.Refund(context.Background(), c.ID, alice)
	assert.ErrorIs(t, err, domain.ErrCampaignAlreadyDisbursed)
	ok, err := h.engine.CanRefund(context.Background(), c.ID, alice)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManualDisburseAfterDeadlineWithoutGoal(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 1000, month)
	h.donate(t, c.ID, alice, 300)

	_, err := h.engine.ManualDisburse(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrDeadlineNotReached)

	h.clock.Advance(month)
	got, err := h.engine.ManualDisburse(context.Background(), c.ID, creator)
	require.NoError(t, err)
	assert.True(t, got.Disbursed)
	assert.False(t, got.GoalReached)
	assert.Equal(t, ledger.NewAmount(300), h.tokens.BalanceOf(beneficiary))

	last := h.events.Events()[len(h.events.Events())-1]
	assert.Equal(t, domain.DisburseAfterDeadline, last.Mode)
}

func TestZeroRaisedDisbursementSkipsTransfer(t *testing.T) {
	tokens := &scriptedTokens{Memory: token.NewMemory(custody), transferErr: errors.New("must not be called")}
	h := newHarness(t, withTokens(tokens))
	c := h.create(t, 1000, month)
	h.clock.Advance(month)

	got, err := h.engine.ManualDisburse(context.Background(), c.ID, creator)
	require.NoError(t, err)
	assert.True(t, got.Disbursed)
	assert.True(t, got.DisbursedAmount.IsZero())
	assert.Zero(t, tokens.transfers)
}

func TestWithdrawDispatchesOnMode(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 1000, month)
	h.donate(t, c.ID, alice, 10)

	_, err := h.engine.Withdraw(context.Background(), c.ID, creator, true)
	assert.ErrorIs(t, err, domain.ErrGoalNotReached)
	_, err = h.engine.Withdraw(context.Background(), c.ID, creator, false)
	assert.ErrorIs(t, err, domain.ErrDeadlineNotReached)

	h.clock.Advance(month)
	got, err := h.engine.Withdraw(context.Background(), c.ID, creator, false)
	require.NoError(t, err)
	assert.True(t, got.Disbursed)
}

func TestDonateRejections(t *testing.T) {
	h := newHarness(t)
	open := h.create(t, 1000, month)
	short := h.create(t, 1000, time.Hour)
	ended := h.create(t, 1000, time.Hour)
	h.fund(t, alice, 1000)

	h.clock.Advance(time.Hour)
	_, err := h.engine.EndCampaign(context.Background(), ended.ID, creator)
	require.NoError(t, err)

	cases := []struct {
		name   string
		id     uint64
		amount uint64
		want   error
	}{
		{"unknown campaign", 99, 10, domain.ErrCampaignNotFound},
		{"zero id", 0, 10, domain.ErrCampaignNotFound},
		{"zero amount", open.ID, 0, domain.ErrInvalidAmount},
		{"deadline reached", short.ID, 10, domain.ErrCampaignExpired},
		{"ended", ended.ID, 10, domain.ErrCampaignNotActive},
		{"allowance exceeded", open.ID, 1001, domain.ErrTransferFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Donate(context.Background(), tc.id, alice, ledger.NewAmount(tc.amount))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.Equal(t, ledger.NewAmount(1000), h.tokens.BalanceOf(alice))
	donations, err := h.engine.Donations(context.Background(), open.ID)
	require.NoError(t, err)
	assert.Empty(t, donations)
	assert.True(t, h.campaign(t, open.ID).RaisedAmount.IsZero())
}

func TestDonateOverflowRejectedBeforeTransfer(t *testing.T) {
	h := newHarness(t)
	c, err := h.engine.CreateCampaign(context.Background(), domain.NewCampaign{
		Creator:      creator,
		Beneficiary:  beneficiary,
		TargetAmount: ledger.MaxAmount,
		Deadline:     h.clock.Now().Add(month),
	})
	require.NoError(t, err)

	require.NoError(t, h.tokens.Mint(alice, ledger.MaxAmount))
	h.tokens.Approve(alice, custody, ledger.MaxAmount)
	_, err = h.engine.Donate(context.Background(), c.ID, alice, ledger.MaxAmount)
	require.NoError(t, err)
	assert.True(t, h.campaign(t, c.ID).GoalReached)

	h.fund(t, bob, 1)
	_, err = h.engine.Donate(context.Background(), c.ID, bob, ledger.NewAmount(1))
	assert.ErrorIs(t, err, domain.ErrOverflow)
	assert.Equal(t, domain.KindResource, domain.KindOf(err))
	assert.Equal(t, ledger.NewAmount(1), h.tokens.BalanceOf(bob))
	assert.Equal(t, ledger.MaxAmount, h.campaign(t, c.ID).RaisedAmount)
}

func TestDonateTransferFailureLeavesNoTrace(t *testing.T) {
	tokens := &scriptedTokens{Memory: token.NewMemory(custody), transferFromErr: domain.ErrTransferFailed}
	h := newHarness(t, withTokens(tokens))
	c := h.create(t, 100, month)
	require.NoError(t, tokens.Mint(alice, ledger.NewAmount(50)))
	tokens.Approve(alice, custody, ledger.NewAmount(50))

	_, err := h.engine.Donate(context.Background(), c.ID, alice, ledger.NewAmount(50))
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	got := h.campaign(t, c.ID)
	assert.True(t, got.RaisedAmount.IsZero())
	assert.Zero(t, got.DonorCount)
	entries, err := h.journal.List(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDonateLedgerFailureAfterTransferIsJournaled(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	h := newHarness(t, withStore(store))
	h.store = store.MemoryStore
	c := h.create(t, 100, month)
	h.fund(t, alice, 60)

	store.failRecord = errors.New("disk full")
	_, err := h.engine.Donate(context.Background(), c.ID, alice, ledger.NewAmount(60))
	require.ErrorIs(t, err, domain.ErrReconciliationRequired)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))

	// Funds moved, ledger untouched.
	assert.Equal(t, ledger.NewAmount(60), h.tokens.BalanceOf(custody))
	assert.True(t, h.campaign(t, c.ID).RaisedAmount.IsZero())

	entries, err := h.journal.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, domain.ReconcileDonation, entry.Kind)
	assert.Equal(t, alice, entry.Party)
	assert.Equal(t, ledger.NewAmount(60), entry.Amount)
	assert.NotEmpty(t, entry.TxRef)
	assert.Contains(t, entry.Cause, "disk full")
	assert.Equal(t, domain.EventReconciliationFlagged, h.events.Kinds()[len(h.events.Kinds())-1])

	// Outflows stay blocked until someone resolves the entry.
	store.failRecord = nil
	h.clock.Advance(month)
	_, err = h.engine.ManualDisburse(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrReconciliationPending)
	assert.False(t, h.campaign(t, c.ID).Disbursed)

	require.NoError(t, h.journal.Resolve(context.Background(), entry.ID, "credited by hand", h.clock.Now()))
	_, err = h.engine.ManualDisburse(context.Background(), c.ID, creator)
	require.NoError(t, err)
}

func TestDisburseTransferFailureKeepsCampaignActive(t *testing.T) {
	tokens := &scriptedTokens{Memory: token.NewMemory(custody)}
	h := newHarness(t, withTokens(tokens))
	c := h.create(t, 100, month)
	require.NoError(t, tokens.Mint(alice, ledger.NewAmount(100)))
	tokens.Approve(alice, custody, ledger.NewAmount(100))
	_, err := h.engine.Donate(context.Background(), c.ID, alice, ledger.NewAmount(100))
	require.NoError(t, err)

	tokens.transferErr = domain.ErrTransferFailed
	_, err = h.engine.AutoDisburse(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)
	got := h.campaign(t, c.ID)
	assert.True(t, got.Active)
	assert.False(t, got.Disbursed)

	tokens.transferErr = nil
	_, err = h.engine.AutoDisburse(context.Background(), c.ID, creator)
	require.NoError(t, err)
}

func TestUnconfirmedRefundIsJournaled(t *testing.T) {
	tokens := &scriptedTokens{Memory: token.NewMemory(custody)}
	h := newHarness(t, withTokens(tokens))
	c := h.create(t, 100, month)
	require.NoError(t, tokens.Mint(alice, ledger.NewAmount(30)))
	tokens.Approve(alice, custody, ledger.NewAmount(30))
	_, err := h.engine.Donate(context.Background(), c.ID, alice, ledger.NewAmount(30))
	require.NoError(t, err)
	h.clock.Advance(month)
	_, err = h.engine.EndCampaign(context.Background(), c.ID, creator)
	require.NoError(t, err)

	tokens.transferErr = domain.ErrTransferUnconfirmed
	_, err = h.engine.Refund(context.Background(), c.ID, alice)
	require.ErrorIs(t, err, domain.ErrReconciliationRequired)
	assert.ErrorIs(t, err, domain.ErrTransferUnconfirmed)

	contrib, err := h.engine.Contribution(context.Background(), c.ID, alice)
	require.NoError(t, err)
	assert.False(t, contrib.Refunded)

	tokens.transferErr = nil
	_, err = h.engine.Refund(context.Background(), c.ID, alice)
	assert.ErrorIs(t, err, domain.ErrReconciliationPending)
}

func TestLostLedgerWriteBlocksOutflowsWhileJournaling(t *testing.T) {
	cases := map[string]struct {
		setup   func(t *testing.T, h *harness, id uint64)
		outflow func(h *harness, id uint64) error
		party   domain.Address
		paid    uint64
	}{
		"disbursement": {
			setup: func(t *testing.T, h *harness, id uint64) {
				h.donate(t, id, alice, 100)
			},
			outflow: func(h *harness, id uint64) error {
				_, err := h.engine.AutoDisburse(context.Background(), id, creator)
				return err
			},
			party: beneficiary,
			paid:  100,
		},
		"refund": {
			setup: func(t *testing.T, h *harness, id uint64) {
				h.donate(t, id, alice, 30)
				h.clock.Advance(month)
				_, err := h.engine.EndCampaign(context.Background(), id, creator)
				require.NoError(t, err)
			},
			outflow: func(h *harness, id uint64) error {
				_, err := h.engine.Refund(context.Background(), id, alice)
				return err
			},
			party: alice,
			paid:  30,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := &failingStore{MemoryStore: NewMemoryStore()}
			journal := &stallingJournal{}
			h := newHarness(t, withStore(store), func(h *harness, o *Options) {
				journal.MemoryJournal = h.journal
				o.Journal = journal
			})
			h.store = store.MemoryStore
			c := h.create(t, 100, month)
			tc.setup(t, h, c.ID)
			store.failMark = errors.New("write timeout")

			second := make(chan error, 1)
			var once sync.Once
			journal.onFlag = func() {
				once.Do(func() {
					go func() { second <- tc.outflow(h, c.ID) }()
					select {
					case err := <-second:
						t.Errorf("second outflow finished while the first was being journaled: %v", err)
						second <- err
					case <-time.After(50 * time.Millisecond):
					}
				})
			}

			err := tc.outflow(h, c.ID)
			require.ErrorIs(t, err, domain.ErrReconciliationRequired)
			select {
			case err := <-second:
				assert.ErrorIs(t, err, domain.ErrReconciliationPending)
			case <-time.After(time.Second):
				t.Fatal("second outflow never finished")
			}

			assert.Equal(t, ledger.NewAmount(tc.paid), h.tokens.BalanceOf(tc.party))
			entries, err := h.journal.List(context.Background(), false)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, tc.party, entries[0].Party)
			assert.Contains(t, entries[0].Cause, "write timeout")
		})
	}
}

func TestDisburseCommitFailureIsJournaled(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	h := newHarness(t, withStore(store))
	h.store = store.MemoryStore
	c := h.create(t, 100, month)
	h.donate(t, c.ID, alice, 100)

	store.failCommit = errors.New("connection reset")
	_, err := h.engine.AutoDisburse(context.Background(), c.ID, creator)
	require.ErrorIs(t, err, domain.ErrReconciliationRequired)
	assert.Equal(t, ledger.NewAmount(100), h.tokens.BalanceOf(beneficiary))
	got := h.campaign(t, c.ID)
	assert.True(t, got.Active)
	assert.False(t, got.Disbursed)

	entries, err := h.journal.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ReconcileDisbursement, entries[0].Kind)
	assert.Equal(t, beneficiary, entries[0].Party)
	assert.Equal(t, ledger.NewAmount(100), entries[0].Amount)
	assert.NotEmpty(t, entries[0].TxRef)
	assert.Contains(t, entries[0].Cause, "connection reset")

	store.failCommit = nil
	_, err = h.engine.AutoDisburse(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrReconciliationPending)
	assert.Equal(t, ledger.NewAmount(100), h.tokens.BalanceOf(beneficiary))
}

func TestFailedCallbackSkipsAbortHooks(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), failCommit: errors.New("connection reset")}
	h := newHarness(t, withStore(store))
	h.store = store.MemoryStore
	c := h.create(t, 1000, month)

	_, err := h.engine.AutoDisburse(context.Background(), c.ID, creator)
	assert.ErrorIs(t, err, domain.ErrGoalNotReached)
	entries, err := h.journal.List(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCanRefundFalseWhileReconciliationOpen(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 100, month)
	h.donate(t, c.ID, alice, 30)
	h.donate(t, c.ID, bob, 20)
	h.clock.Advance(month)
	_, err := h.engine.EndCampaign(context.Background(), c.ID, creator)
	require.NoError(t, err)

	entry := &domain.Reconciliation{
		CampaignID: c.ID,
		Kind:       domain.ReconcileRefund,
		Party:      bob,
		Amount:     ledger.NewAmount(20),
		CreatedAt:  h.clock.Now(),
	}
	require.NoError(t, h.journal.Flag(context.Background(), entry))

	ok, err := h.engine.CanRefund(context.Background(), c.ID, alice)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = h.engine.Refund(context.Background(), c.ID, alice)
	assert.ErrorIs(t, err, domain.ErrReconciliationPending)

	require.NoError(t, h.journal.Resolve(context.Background(), entry.ID, "bob paid by hand", h.clock.Now()))
	ok, err = h.engine.CanRefund(context.Background(), c.ID, alice)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentDonationsAreSerialized(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 1_000_000, month)

	const donors = 40
	const perDonor = 5
	addrs := make([]domain.Address, donors)
	for i := range addrs {
		addrs[i] = domain.Address{0x10, byte(i)}
		h.fund(t, addrs[i], 10*perDonor)
	}

	var wg sync.WaitGroup
	for _, donor := range addrs {
		for j := 0; j < perDonor; j++ {
			wg.Add(1)
			go func(d domain.Address) {
				defer wg.Done()
				_, err := h.engine.Donate(context.Background(), c.ID, d, ledger.NewAmount(10))
				assert.NoError(t, err)
			}(donor)
		}
	}
	wg.Wait()

	got := h.campaign(t, c.ID)
	assert.Equal(t, ledger.NewAmount(donors*perDonor*10), got.RaisedAmount)
	assert.Equal(t, uint64(donors), got.DonorCount)
	assert.Equal(t, uint64(donors*perDonor), got.DonationCount)

	donations, err := h.engine.Donations(context.Background(), c.ID)
	require.NoError(t, err)
	sum := ledger.Zero
	for _, d := range donations {
		sum, err = ledger.Add(sum, d.Amount)
		require.NoError(t, err)
	}
	assert.Equal(t, got.RaisedAmount, sum)
}

func TestRacingDisbursementsPayOnce(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 100, month)
	h.donate(t, c.ID, alice, 100)
	h.clock.Advance(month)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(goal bool) {
			defer wg.Done()
			_, err := h.engine.Withdraw(context.Background(), c.ID, creator, goal)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrCampaignAlreadyDisbursed)
		}(i%2 == 0)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, ledger.NewAmount(100), h.tokens.BalanceOf(beneficiary))
}

func TestDetailsClampsRemainingAndPercent(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 100, time.Hour)
	h.donate(t, c.ID, alice, 250)
	h.clock.Advance(3 * time.Hour)

	d, err := h.engine.Details(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), d.ProgressPercent)
	assert.Zero(t, d.TimeRemaining)

	_, err = h.engine.Details(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestListAndStats(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, 100, month)
	b := h.create(t, 1000, month)
	h.create(t, 10, month)
	h.donate(t, a.ID, alice, 100)
	h.donate(t, b.ID, bob, 300)
	_, err := h.engine.AutoDisburse(context.Background(), a.ID, creator)
	require.NoError(t, err)
	h.clock.Advance(month)
	_, err = h.engine.EndCampaign(context.Background(), b.ID, creator)
	require.NoError(t, err)
	_, err = h.engine.Refund(context.Background(), b.ID, bob)
	require.NoError(t, err)

	list, err := h.engine.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, uint64(100), list[0].ProgressPercent)
	assert.Equal(t, uint64(30), list[1].ProgressPercent)
	assert.Equal(t, uint64(3), list[2].Campaign.ID)

	stats, err := h.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Campaigns:      3,
		Active:         1,
		GoalReached:    1,
		Disbursed:      1,
		Ended:          1,
		Donations:      2,
		TotalRaised:    ledger.NewAmount(400),
		TotalDisbursed: ledger.NewAmount(100),
		TotalRefunded:  ledger.NewAmount(300),
	}, stats)
}

func TestIsDonor(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, 100, month)
	h.donate(t, c.ID, alice, 1)

	ok, err := h.engine.IsDonor(context.Background(), c.ID, alice)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = h.engine.IsDonor(context.Background(), c.ID, bob)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = h.engine.IsDonor(context.Background(), 7, bob)
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
}

// scriptedTokens fails Transfer or TransferFrom on demand.
type scriptedTokens struct {
	*token.Memory
	mu              sync.Mutex
	transferErr     error
	transferFromErr error
	transfers       int
}

func (s *scriptedTokens) Transfer(ctx context.Context, to domain.Address, amount ledger.Amount) (token.Receipt, error) {
	s.mu.Lock()
	s.transfers++
	err := s.transferErr
	s.mu.Unlock()
	if err != nil {
		return token.Receipt{Ref: "pending"}, err
	}
	return s.Memory.Transfer(ctx, to, amount)
}

func (s *scriptedTokens) TransferFrom(ctx context.Context, from, to domain.Address, amount ledger.Amount) (token.Receipt, error) {
	s.mu.Lock()
	err := s.transferFromErr
	s.mu.Unlock()
	if err != nil {
		return token.Receipt{}, err
	}
	return s.Memory.TransferFrom(ctx, from, to, amount)
}

// failingStore makes ledger writes inside Update fail after the engine has
// already moved funds. failCommit fails the unit of work after the callback
// succeeded, running the abort hooks while the campaign is still locked.
type failingStore struct {
	*MemoryStore
	failRecord error
	failMark   error
	failCommit error
}

func (s *failingStore) Update(ctx context.Context, id uint64, fn func(tx domain.CampaignTx) error) error {
	return s.MemoryStore.Update(ctx, id, func(tx domain.CampaignTx) error {
		ftx := &failingTx{CampaignTx: tx, failRecord: s.failRecord, failMark: s.failMark}
		if err := fn(ftx); err != nil {
			return err
		}
		if s.failCommit != nil {
			for _, hook := range ftx.onAbort {
				hook(s.failCommit)
			}
			return s.failCommit
		}
		return nil
	})
}

type failingTx struct {
	domain.CampaignTx
	failRecord error
	failMark   error
	onAbort    []func(error)
}

func (t *failingTx) RecordDonation(d domain.Donation) (domain.Campaign, error) {
	if t.failRecord != nil {
		return t.Campaign(), t.failRecord
	}
	return t.CampaignTx.RecordDonation(d)
}

func (t *failingTx) MarkDisbursed(amount ledger.Amount, now time.Time) error {
	if t.failMark != nil {
		return t.failMark
	}
	return t.CampaignTx.MarkDisbursed(amount, now)
}

func (t *failingTx) MarkRefunded(donor domain.Address, now time.Time) (domain.Contribution, error) {
	if t.failMark != nil {
		return domain.Contribution{}, t.failMark
	}
	return t.CampaignTx.MarkRefunded(donor, now)
}

func (t *failingTx) OnAbort(fn func(error)) {
	t.onAbort = append(t.onAbort, fn)
}

// stallingJournal calls onFlag before recording each entry.
type stallingJournal struct {
	*MemoryJournal
	onFlag func()
}

func (j *stallingJournal) Flag(ctx context.Context, entry *domain.Reconciliation) error {
	if j.onFlag != nil {
		j.onFlag()
	}
	return j.MemoryJournal.Flag(ctx, entry)
}
