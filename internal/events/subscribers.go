package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crowdfund/internal/domain"
)

// AuditLogger writes every event to the structured log.
func AuditLogger(logger zerolog.Logger) Handler {
	l := logger.With().Str("component", "audit").Logger()
	return func(e domain.Event) {
		ev := l.Info()
		if e.Kind == domain.EventReconciliationFlagged {
			ev = l.Error()
		}
		ev = ev.Str("event_id", e.ID).
			Str("kind", string(e.Kind)).
			Uint64("campaign_id", e.CampaignID)
		if e.Actor != nil {
			ev = ev.Str("actor", e.Actor.Hex())
		}
		if e.Counterparty != nil {
			ev = ev.Str("counterparty", e.Counterparty.Hex())
		}
		if e.Amount != nil {
			ev = ev.Str("amount", e.Amount.String())
		}
		if e.Total != nil {
			ev = ev.Str("total", e.Total.String())
		}
		if e.Mode != "" {
			ev = ev.Str("mode", string(e.Mode))
		}
		if e.TxRef != "" {
			ev = ev.Str("tx_ref", e.TxRef)
		}
		ev.Time("occurred_at", e.OccurredAt).Msg("ledger event")
	}
}

// Recorder persists every event. Write failures are logged; the ledger change
// the event describes is already committed.
func Recorder(repo domain.EventRepository, logger zerolog.Logger) Handler {
	l := logger.With().Str("component", "event_recorder").Logger()
	return func(e domain.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Append(ctx, e); err != nil {
			l.Error().Err(err).Str("event_id", e.ID).Str("kind", string(e.Kind)).Msg("persist event failed")
		}
	}
}

// Recorded collects events in memory. Tests use it as a Publisher.
type Recorded struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorded) Publish(e domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of everything published so far.
func (r *Recorded) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Kinds returns the kinds in publish order.
func (r *Recorded) Kinds() []domain.EventKind {
	events := r.Events()
	out := make([]domain.EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}
