// Package campaign implements the campaign ledger and its disbursement state
// machine.
//
// Every fund-moving operation runs inside CampaignStore.Update, so the
// precondition checks, the token transfer and the ledger write for one
// campaign happen under a single writer lock. A transfer whose ledger write
// is then lost is journaled for manual reconciliation, still under that lock,
// and never retried.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crowdfund/internal/domain"
	"crowdfund/internal/events"
	"crowdfund/internal/ledger"
	"crowdfund/internal/token"
)

// Options wires an Engine.
type Options struct {
	Store   domain.CampaignStore
	Journal domain.ReconciliationJournal
	Tokens  token.Service
	Events  events.Publisher
	Logger  *zerolog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Engine validates and applies campaign operations.
type Engine struct {
	store   domain.CampaignStore
	journal domain.ReconciliationJournal
	tokens  token.Service
	events  events.Publisher
	logger  zerolog.Logger
	now     func() time.Time
}

// NewEngine builds an engine. Store and Tokens are required.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("campaign: store is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("campaign: token service is required")
	}
	e := &Engine{
		store:   opts.Store,
		journal: opts.Journal,
		tokens:  opts.Tokens,
		events:  opts.Events,
		logger:  zerolog.Nop(),
		now:     opts.Clock,
	}
	if e.journal == nil {
		e.journal = NewMemoryJournal()
	}
	if e.events == nil {
		e.events = &events.Recorded{}
	}
	if opts.Logger != nil {
		e.logger = opts.Logger.With().Str("component", "campaign_engine").Logger()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Custody is the account that holds donated funds.
func (e *Engine) Custody() domain.Address {
	return e.tokens.Custody()
}

// CreateCampaign registers a campaign on behalf of in.Creator. Any identity
// may create one.
func (e *Engine) CreateCampaign(ctx context.Context, in domain.NewCampaign) (*domain.Campaign, error) {
	now := e.now()
	id, err := e.store.Create(ctx, in, now)
	if err != nil {
		return nil, err
	}
	c, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load created campaign %d: %w", id, err)
	}

	deadline := c.Deadline
	target := c.TargetAmount
	creator, beneficiary := c.Creator, c.Beneficiary
	e.publish(domain.Event{
		Kind:         domain.EventCampaignCreated,
		CampaignID:   c.ID,
		Actor:        &creator,
		Counterparty: &beneficiary,
		Title:        c.Title,
		Amount:       &target,
		Deadline:     &deadline,
		OccurredAt:   now,
	})
	return c, nil
}

func (e *Engine) publish(ev domain.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}
	ev.OccurredAt = ev.OccurredAt.UTC()
	e.events.Publish(ev)
}

// guardOutflow refuses to move funds out of a campaign with an open
// reconciliation entry; its ledger may not reflect what already left custody.
func (e *Engine) guardOutflow(ctx context.Context, id uint64) error {
	open, err := e.journal.HasOpen(ctx, id)
	if err != nil {
		return fmt.Errorf("check reconciliation journal: %w", err)
	}
	if open {
		return domain.ErrReconciliationPending
	}
	return nil
}

// transferOutcome tracks whether funds may have moved during a unit of work.
type transferOutcome struct {
	moved   bool
	receipt token.Receipt
	// journaled is the error returned to the caller once the unit of work
	// has been written to the reconciliation journal.
	journaled error
}

// track records the result of a token call and reports whether the unit of
// work must stop.
func (o *transferOutcome) track(receipt token.Receipt, err error) error {
	o.receipt = receipt
	switch {
	case err == nil:
		o.moved = true
		return nil
	case errors.Is(err, domain.ErrTransferUnconfirmed):
		// Possibly moved; the caller must journal it.
		o.moved = true
		return err
	default:
		return err
	}
}

// settle is called from inside a unit of work that failed. When funds may
// have moved it journals entry before the store releases the campaign, so a
// concurrent outflow waiting on the same campaign meets the open entry in
// guardOutflow. Otherwise cause is returned unchanged.
func (e *Engine) settle(ctx context.Context, o *transferOutcome, entry domain.Reconciliation, cause error) error {
	if o.journaled != nil {
		return o.journaled
	}
	if !o.moved {
		return cause
	}
	entry.TxRef = o.receipt.Ref
	o.journaled = e.flag(ctx, entry, cause)
	return o.journaled
}

// settleOnAbort journals entry if the store fails to commit after the
// callback returned.
func (e *Engine) settleOnAbort(ctx context.Context, tx domain.CampaignTx, o *transferOutcome, entry domain.Reconciliation) {
	tx.OnAbort(func(cause error) {
		_ = e.settle(ctx, o, entry, cause)
	})
}

// flag journals a transfer whose ledger effect was not committed and returns
// the error reported to the caller.
func (e *Engine) flag(ctx context.Context, entry domain.Reconciliation, cause error) error {
	entry.Cause = cause.Error()
	entry.CreatedAt = e.now().UTC()
	// The caller's context may be gone; the journal write must still happen.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	log := e.logger.Error().
		Err(cause).
		Str("kind", string(entry.Kind)).
		Uint64("campaign_id", entry.CampaignID).
		Str("party", entry.Party.Hex()).
		Str("amount", entry.Amount.String()).
		Str("tx_ref", entry.TxRef)

	if err := e.journal.Flag(jctx, &entry); err != nil {
		log.AnErr("journal_err", err).Msg("RECONCILIATION REQUIRED: journal write failed")
		return fmt.Errorf("%w: %w (journal: %v)", domain.ErrReconciliationRequired, cause, err)
	}
	log.Str("reconciliation_id", entry.ID).Msg("reconciliation required")

	party := entry.Party
	amount := entry.Amount
	e.publish(domain.Event{
		Kind:         domain.EventReconciliationFlagged,
		CampaignID:   entry.CampaignID,
		Counterparty: &party,
		Amount:       &amount,
		TxRef:        entry.TxRef,
		OccurredAt:   entry.CreatedAt,
	})
	return fmt.Errorf("%w (reconciliation %s): %w", domain.ErrReconciliationRequired, entry.ID, cause)
}

// ledgerContext detaches ledger writes from caller cancellation: once a
// transfer has been issued, the matching write must not be abandoned because
// a client disconnected.
func ledgerContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func amountPtr(a ledger.Amount) *ledger.Amount {
	return &a
}

func addrPtr(a domain.Address) *domain.Address {
	return &a
}
