// Package watchdog periodically inspects the ledger for conditions that need
// an operator: open reconciliation entries and active campaigns left running
// past their deadline.
package watchdog

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"crowdfund/internal/domain"
)

const defaultInterval = 30 * time.Second

// Gauges receives the sweep totals. *metrics.Collector implements it.
type Gauges interface {
	SetOpenReconciliations(n int)
	SetCampaignsPastDeadline(n int)
}

// CampaignLister is the read side of domain.CampaignStore the watchdog needs.
type CampaignLister interface {
	List(ctx context.Context) ([]domain.Campaign, error)
}

type Options struct {
	Campaigns CampaignLister
	Journal   domain.ReconciliationJournal
	Gauges    Gauges
	Logger    zerolog.Logger
	Interval  time.Duration
	Clock     func() time.Time
}

// Report is the outcome of one sweep.
type Report struct {
	OpenReconciliations []domain.Reconciliation
	PastDeadline        []domain.Campaign
}

type Watchdog struct {
	campaigns CampaignLister
	journal   domain.ReconciliationJournal
	gauges    Gauges
	logger    zerolog.Logger
	interval  time.Duration
	now       func() time.Time

	// alerted remembers entries already logged so each is reported once.
	alerted map[string]struct{}
}

func New(opts Options) (*Watchdog, error) {
	if opts.Campaigns == nil || opts.Journal == nil {
		return nil, errors.New("watchdog: campaigns and journal are required")
	}
	w := &Watchdog{
		campaigns: opts.Campaigns,
		journal:   opts.Journal,
		gauges:    opts.Gauges,
		logger:    opts.Logger.With().Str("component", "watchdog").Logger(),
		interval:  opts.Interval,
		now:       opts.Clock,
		alerted:   make(map[string]struct{}),
	}
	if w.interval <= 0 {
		w.interval = defaultInterval
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w, nil
}

// Run sweeps immediately and then on every interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context) error {
	w.logger.Info().Dur("interval", w.interval).Msg("watchdog: started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("watchdog: sweep failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs one inspection pass.
func (w *Watchdog) Sweep(ctx context.Context) (Report, error) {
	var report Report

	open, err := w.journal.List(ctx, false)
	if err != nil {
		return report, err
	}
	report.OpenReconciliations = open
	stillOpen := make(map[string]struct{}, len(open))
	for _, entry := range open {
		stillOpen[entry.ID] = struct{}{}
		if _, seen := w.alerted[entry.ID]; seen {
			continue
		}
		w.alerted[entry.ID] = struct{}{}
		w.logger.Error().
			Str("reconciliation_id", entry.ID).
			Uint64("campaign_id", entry.CampaignID).
			Str("kind", string(entry.Kind)).
			Str("party", entry.Party.Hex()).
			Str("amount", entry.Amount.String()).
			Str("tx_ref", entry.TxRef).
			Msg("watchdog: reconciliation awaiting review")
	}
	// Resolved entries leave the journal's open list for good.
	for id := range w.alerted {
		if _, ok := stillOpen[id]; !ok {
			delete(w.alerted, id)
		}
	}

	campaigns, err := w.campaigns.List(ctx)
	if err != nil {
		return report, err
	}
	now := w.now()
	for _, c := range campaigns {
		if c.State() == domain.StateActive && !now.Before(c.Deadline) {
			report.PastDeadline = append(report.PastDeadline, c)
		}
	}
	if n := len(report.PastDeadline); n > 0 {
		w.logger.Info().Int("count", n).Msg("watchdog: active campaigns past deadline")
	}

	if w.gauges != nil {
		w.gauges.SetOpenReconciliations(len(report.OpenReconciliations))
		w.gauges.SetCampaignsPastDeadline(len(report.PastDeadline))
	}
	return report, nil
}
