// Package events fans committed ledger changes out to audit subscribers.
package events

import (
	"fmt"

	evbus "github.com/asaskevich/EventBus"
	"github.com/rs/zerolog"

	"crowdfund/internal/domain"
)

// Publisher is what the campaign engine needs from the bus.
type Publisher interface {
	Publish(e domain.Event)
}

// Handler receives one event.
type Handler func(e domain.Event)

// Bus routes events by kind on top of asaskevich/EventBus.
type Bus struct {
	bus    evbus.Bus
	logger zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		bus:    evbus.New(),
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe runs h synchronously for every event of kind.
func (b *Bus) Subscribe(kind domain.EventKind, h Handler) error {
	if err := b.bus.Subscribe(string(kind), b.guard(kind, h)); err != nil {
		return fmt.Errorf("events: subscribe %s: %w", kind, err)
	}
	return nil
}

// SubscribeAll runs h synchronously for every kind.
func (b *Bus) SubscribeAll(h Handler) error {
	for _, kind := range domain.EventKinds {
		if err := b.Subscribe(kind, h); err != nil {
			return err
		}
	}
	return nil
}

// SubscribeAllAsync runs h on a background goroutine per kind. Deliveries for
// one kind are serialized.
func (b *Bus) SubscribeAllAsync(h Handler) error {
	for _, kind := range domain.EventKinds {
		if err := b.bus.SubscribeAsync(string(kind), b.guard(kind, h), true); err != nil {
			return fmt.Errorf("events: subscribe async %s: %w", kind, err)
		}
	}
	return nil
}

// Publish delivers e to the subscribers of its kind.
func (b *Bus) Publish(e domain.Event) {
	b.bus.Publish(string(e.Kind), e)
}

// Close waits for async subscribers to drain.
func (b *Bus) Close() {
	b.bus.WaitAsync()
}

// guard keeps a failing subscriber from unwinding into the engine after the
// ledger has already committed.
func (b *Bus) guard(kind domain.EventKind, h Handler) Handler {
	return func(e domain.Event) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error().
					Str("kind", string(kind)).
					Uint64("campaign_id", e.CampaignID).
					Interface("panic", r).
					Msg("event subscriber panicked")
			}
		}()
		h(e)
	}
}

var _ Publisher = (*Bus)(nil)
