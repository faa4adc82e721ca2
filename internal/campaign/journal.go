package campaign

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"crowdfund/internal/domain"
)

// MemoryJournal is an in-process ReconciliationJournal.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries map[string]domain.Reconciliation
}

// NewMemoryJournal returns an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]domain.Reconciliation)}
}

func (j *MemoryJournal) Flag(_ context.Context, entry *domain.Reconciliation) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[entry.ID] = *entry
	return nil
}

func (j *MemoryJournal) HasOpen(_ context.Context, campaignID uint64) (bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, e := range j.entries {
		if e.CampaignID == campaignID && e.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (j *MemoryJournal) List(_ context.Context, includeResolved bool) ([]domain.Reconciliation, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]domain.Reconciliation, 0, len(j.entries))
	for _, e := range j.entries {
		if includeResolved || e.Open() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

func (j *MemoryJournal) Resolve(_ context.Context, id string, note string, now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[id]
	if !ok || !e.Open() {
		return domain.ErrNotFound
	}
	at := now.UTC()
	e.ResolvedAt = &at
	e.Note = note
	j.entries[id] = e
	return nil
}

var _ domain.ReconciliationJournal = (*MemoryJournal)(nil)
