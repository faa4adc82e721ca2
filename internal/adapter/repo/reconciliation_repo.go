package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crowdfund/internal/domain"
	"crowdfund/internal/infra"
	"crowdfund/internal/sqlinline"
)

// ReconciliationRepositoryPG implements domain.ReconciliationJournal on
// PostgreSQL.
type ReconciliationRepositoryPG struct {
	db infra.SQLExecutor
}

// NewReconciliationRepository creates a new ReconciliationRepositoryPG.
func NewReconciliationRepository(db infra.SQLExecutor) *ReconciliationRepositoryPG {
	return &ReconciliationRepositoryPG{db: db}
}

func (r *ReconciliationRepositoryPG) Flag(ctx context.Context, entry *domain.Reconciliation) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, sqlinline.QInsertReconciliation,
		entry.ID,
		int64(entry.CampaignID),
		string(entry.Kind),
		addressText(entry.Party),
		numeric(entry.Amount),
		entry.TxRef,
		entry.Cause,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reconciliation: %w", err)
	}
	return nil
}

func (r *ReconciliationRepositoryPG) HasOpen(ctx context.Context, campaignID uint64) (bool, error) {
	var open bool
	if err := r.db.QueryRow(ctx, sqlinline.QHasOpenReconciliation, int64(campaignID)).Scan(&open); err != nil {
		return false, fmt.Errorf("check open reconciliations: %w", err)
	}
	return open, nil
}

func (r *ReconciliationRepositoryPG) List(ctx context.Context, includeResolved bool) ([]domain.Reconciliation, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListReconciliations, includeResolved)
	if err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	defer rows.Close()

	items := []domain.Reconciliation{}
	for rows.Next() {
		entry, err := scanReconciliation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ReconciliationRepositoryPG) Resolve(ctx context.Context, id string, note string, now time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, sqlinline.QResolveReconciliation, id, note, now.UTC())
	if err != nil {
		return fmt.Errorf("resolve reconciliation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.ReconciliationJournal = (*ReconciliationRepositoryPG)(nil)
