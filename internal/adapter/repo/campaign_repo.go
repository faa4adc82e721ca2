package repo

import (
	"context"
	"fmt"
	"time"

	"crowdfund/internal/domain"
	"crowdfund/internal/infra"
	"crowdfund/internal/ledger"
	"crowdfund/internal/sqlinline"
)

// CampaignRepositoryPG implements domain.CampaignStore on PostgreSQL.
//
// Update holds a row lock (SELECT ... FOR UPDATE) on the campaign for the
// whole unit of work, which serializes writers per campaign across
// processes.
type CampaignRepositoryPG struct {
	db infra.SQLDatabase
}

// NewCampaignRepository creates a new CampaignRepositoryPG.
func NewCampaignRepository(db infra.SQLDatabase) *CampaignRepositoryPG {
	return &CampaignRepositoryPG{db: db}
}

func (r *CampaignRepositoryPG) Create(ctx context.Context, in domain.NewCampaign, now time.Time) (uint64, error) {
	if err := in.Validate(now); err != nil {
		return 0, err
	}
	var id uint64
	err := r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		var next int64
		if err := tx.QueryRow(ctx, sqlinline.QNextCampaignID).Scan(&next); err != nil {
			return fmt.Errorf("allocate campaign id: %w", err)
		}
		c := in.Build(uint64(next), now)
		_, err := tx.Exec(ctx, sqlinline.QInsertCampaign,
			next,
			addressText(c.Creator),
			addressText(c.Beneficiary),
			c.Title,
			c.Description,
			c.ImageRef,
			numeric(c.TargetAmount),
			c.Deadline,
			c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert campaign: %w", err)
		}
		id = c.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *CampaignRepositoryPG) Get(ctx context.Context, id uint64) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRow(ctx, sqlinline.QGetCampaign, int64(id)))
	if infra.IsNoRows(err) {
		return nil, domain.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign %d: %w", id, err)
	}
	return c, nil
}

func (r *CampaignRepositoryPG) List(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListCampaigns)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	items := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		items = append(items, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *CampaignRepositoryPG) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, sqlinline.QCountCampaigns).Scan(&n); err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return uint64(n), nil
}

func (r *CampaignRepositoryPG) ListDonations(ctx context.Context, id uint64) ([]domain.Donation, error) {
	if err := r.ensureExists(ctx, id); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, sqlinline.QListDonations, int64(id))
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	items := []domain.Donation{}
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *CampaignRepositoryPG) Contribution(ctx context.Context, id uint64, donor domain.Address) (*domain.Contribution, error) {
	c, err := scanContribution(r.db.QueryRow(ctx, sqlinline.QGetContribution, int64(id), addressText(donor)))
	if infra.IsNoRows(err) {
		if err := r.ensureExists(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrNoDonationFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contribution: %w", err)
	}
	return c, nil
}

func (r *CampaignRepositoryPG) ensureExists(ctx context.Context, id uint64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, sqlinline.QCampaignExists, int64(id)).Scan(&exists); err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return domain.ErrCampaignNotFound
	}
	return nil
}

// Update holds an advisory lock on the campaign id for the whole unit of
// work and also locks the row. Abort hooks run under the advisory lock when
// the final write or the commit fails.
func (r *CampaignRepositoryPG) Update(ctx context.Context, id uint64, fn func(tx domain.CampaignTx) error) error {
	var tx *pgCampaignTx
	abort := func(cause error) {
		if tx != nil {
			tx.abort(cause)
		}
	}
	return r.db.InLockedTx(ctx, int64(id), func(exec infra.SQLExecutor) error {
		c, err := scanCampaign(exec.QueryRow(ctx, sqlinline.QLockCampaign, int64(id)))
		if infra.IsNoRows(err) {
			return domain.ErrCampaignNotFound
		}
		if err != nil {
			return fmt.Errorf("lock campaign %d: %w", id, err)
		}

		tx = &pgCampaignTx{ctx: ctx, exec: exec, campaign: *c, staged: map[domain.Address]domain.Contribution{}}
		if err := fn(tx); err != nil {
			return err
		}
		if !tx.dirty {
			return nil
		}
		if err := tx.flush(); err != nil {
			abort(err)
			return err
		}
		return nil
	}, abort)
}

// pgCampaignTx writes donations and contributions as it goes; they roll back
// with the transaction. The campaign row itself is written once in flush.
type pgCampaignTx struct {
	ctx      context.Context
	exec     infra.SQLExecutor
	campaign domain.Campaign
	staged   map[domain.Address]domain.Contribution
	dirty    bool
	onAbort  []func(error)
}

func (t *pgCampaignTx) Campaign() domain.Campaign {
	return t.campaign
}

func (t *pgCampaignTx) Contribution(donor domain.Address) (*domain.Contribution, error) {
	c, ok, err := t.lookup(donor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNoDonationFound
	}
	return &c, nil
}

func (t *pgCampaignTx) lookup(donor domain.Address) (domain.Contribution, bool, error) {
	if c, ok := t.staged[donor]; ok {
		return c, true, nil
	}
	c, err := scanContribution(t.exec.QueryRow(t.ctx, sqlinline.QGetContribution, int64(t.campaign.ID), addressText(donor)))
	if infra.IsNoRows(err) {
		return domain.Contribution{}, false, nil
	}
	if err != nil {
		return domain.Contribution{}, false, fmt.Errorf("get contribution: %w", err)
	}
	return *c, true, nil
}

func (t *pgCampaignTx) RecordDonation(d domain.Donation) (domain.Campaign, error) {
	raised, err := ledger.Add(t.campaign.RaisedAmount, d.Amount)
	if err != nil {
		return t.campaign, err
	}
	contrib, seen, err := t.lookup(d.Donor)
	if err != nil {
		return t.campaign, err
	}
	total, err := ledger.Add(contrib.Total, d.Amount)
	if err != nil {
		return t.campaign, err
	}

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

	_, err = t.exec.Exec(t.ctx, sqlinline.QInsertDonation,
		d.ID, int64(next.ID), addressText(d.Donor), numeric(d.Amount), d.TxRef, d.Timestamp.UTC())
	if err != nil {
		return t.campaign, fmt.Errorf("insert donation: %w", err)
	}
	if err := t.writeContribution(contrib); err != nil {
		return t.campaign, err
	}

	t.campaign = next
	t.dirty = true
	return next, nil
}

func (t *pgCampaignTx) MarkDisbursed(amount ledger.Amount, now time.Time) error {
	at := now.UTC()
	t.campaign.Disbursed = true
	t.campaign.Active = false
	t.campaign.DisbursedAmount = amount
	t.campaign.DisbursedAt = &at
	t.dirty = true
	return nil
}

func (t *pgCampaignTx) MarkEnded(now time.Time) error {
	at := now.UTC()
	t.campaign.Active = false
	t.campaign.EndedAt = &at
	t.dirty = true
	return nil
}

func (t *pgCampaignTx) MarkRefunded(donor domain.Address, now time.Time) (domain.Contribution, error) {
	c, ok, err := t.lookup(donor)
	if err != nil {
		return domain.Contribution{}, err
	}
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
	if err := t.writeContribution(c); err != nil {
		return domain.Contribution{}, err
	}
	t.campaign.RefundedAmount = refunded
	t.dirty = true
	return c, nil
}

func (t *pgCampaignTx) writeContribution(c domain.Contribution) error {
	_, err := t.exec.Exec(t.ctx, sqlinline.QUpsertContribution,
		int64(c.CampaignID), addressText(c.Donor), numeric(c.Total), c.Refunded, c.RefundedAt)
	if err != nil {
		return fmt.Errorf("upsert contribution: %w", err)
	}
	t.staged[c.Donor] = c
	return nil
}

func (t *pgCampaignTx) OnAbort(fn func(cause error)) {
	t.onAbort = append(t.onAbort, fn)
}

func (t *pgCampaignTx) abort(cause error) {
	for _, fn := range t.onAbort {
		fn(cause)
	}
	t.onAbort = nil
}

func (t *pgCampaignTx) flush() error {
	c := t.campaign
	tag, err := t.exec.Exec(t.ctx, sqlinline.QUpdateCampaignState,
		int64(c.ID),
		numeric(c.RaisedAmount),
		numeric(c.RefundedAmount),
		numeric(c.DisbursedAmount),
		int64(c.DonorCount),
		int64(c.DonationCount),
		c.GoalReached,
		c.Active,
		c.Disbursed,
		c.EndedAt,
		c.DisbursedAt,
	)
	if err != nil {
		return fmt.Errorf("update campaign %d: %w", c.ID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update campaign %d: %d rows affected", c.ID, tag.RowsAffected())
	}
	return nil
}

var _ domain.CampaignStore = (*CampaignRepositoryPG)(nil)
