package budget

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtscoaima/aima-sub007/internal/database"
	"github.com/mtscoaima/aima-sub007/internal/models"
)

type CampaignRepository struct {
	pool *pgxpool.Pool
}

func NewCampaignRepository(pool *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{pool: pool}
}

var _ CampaignRepo = (*CampaignRepository)(nil)

const campaignColumns = `id, owner_id, title, budget, status, created_at, updated_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Budget, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	return r.get(ctx, r.pool, id, false)
}

// GetForUpdateTx locks the campaign row for the rest of tx.
func (r *CampaignRepository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Campaign, error) {
	return r.get(ctx, tx, id, true)
}

func (r *CampaignRepository) get(ctx context.Context, db database.DBTX, id uuid.UUID, forUpdate bool) (*models.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	return scanCampaign(db.QueryRow(ctx, q, id))
}

func (r *CampaignRepository) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	tag, err := tx.Exec(ctx, `UPDATE campaigns SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCampaignNotFound
	}
	return nil
}
