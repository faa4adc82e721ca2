package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"crowdfund/internal/domain"
	"crowdfund/internal/infra"
	"crowdfund/internal/sqlinline"
)

// EventRepositoryPG stores the ledger audit trail as JSON payloads.
type EventRepositoryPG struct {
	db infra.SQLExecutor
}

// NewEventRepository creates a new EventRepositoryPG.
func NewEventRepository(db infra.SQLExecutor) *EventRepositoryPG {
	return &EventRepositoryPG{db: db}
}

// Append stores e. Replaying an event with a known id is a no-op.
func (r *EventRepositoryPG) Append(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = r.db.Exec(ctx, sqlinline.QInsertEvent, e.ID, string(e.Kind), int64(e.CampaignID), payload, e.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventRepositoryPG) ListByCampaign(ctx context.Context, campaignID uint64) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListEventsByCampaign, int64(campaignID))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	items := []domain.Event{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e domain.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var _ domain.EventRepository = (*EventRepositoryPG)(nil)
