package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtscoaima/aima-sub007/internal/database"
	"github.com/mtscoaima/aima-sub007/internal/models"
)

var (
	// ErrActiveReferrerExists is returned when the referred user already has an ACTIVE edge.
	ErrActiveReferrerExists = errors.New("user already has an active referrer")
	ErrEdgeNotFound         = errors.New("active referral edge not found")
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ EdgeStore = (*Repository)(nil)

// NewRepository returns a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindActiveReferrer returns the referrer of referredID through its ACTIVE edge.
// ok is false when there is none.
func (r *Repository) FindActiveReferrer(ctx context.Context, referredID uuid.UUID) (uuid.UUID, bool, error) {
	return findActiveReferrer(ctx, r.pool, referredID)
}

// FindActiveReferrerTx is FindActiveReferrer inside tx.
func (r *Repository) FindActiveReferrerTx(ctx context.Context, tx pgx.Tx, referredID uuid.UUID) (uuid.UUID, bool, error) {
	return findActiveReferrer(ctx, tx, referredID)
}

func findActiveReferrer(ctx context.Context, db database.DBTX, referredID uuid.UUID) (referrerID uuid.UUID, ok bool, err error) {
	err = db.QueryRow(ctx, `
		SELECT referrer_id FROM referral_edges
		WHERE referred_user_id = $1 AND status = 'ACTIVE'
	`, referredID).Scan(&referrerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return referrerID, true, nil
}

// FindActiveReferredUsers returns users directly referred, through ACTIVE edges,
// by any of referrerIDs. One round trip regardless of len(referrerIDs).
func (r *Repository) FindActiveReferredUsers(ctx context.Context, referrerIDs []uuid.UUID) ([]models.ReferredUser, error) {
	if len(referrerIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT e.referred_user_id, e.referrer_id, u.name, u.email, u.disabled, u.approval_pending, u.created_at
		FROM referral_edges e
		JOIN users u ON u.id = e.referred_user_id
		WHERE e.referrer_id = ANY($1) AND e.status = 'ACTIVE'
		ORDER BY u.created_at ASC
	`, referrerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ReferredUser
	for rows.Next() {
		var u models.ReferredUser
		if err := rows.Scan(&u.UserID, &u.ReferrerID, &u.Name, &u.Email, &u.Disabled, &u.ApprovalPending, &u.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockAttributionTx serialises edge creation for the rest of tx, so a cycle
// check and the insert that follows it see the same graph.
func (r *Repository) LockAttributionTx(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('referral_edges', 0))`)
	return err
}

func (r *Repository) CreateEdgeTx(ctx context.Context, tx pgx.Tx, referrerID, referredID uuid.UUID) (*models.ReferralEdge, error) {
	e := models.ReferralEdge{
		ID:             uuid.New(),
		ReferrerID:     referrerID,
		ReferredUserID: referredID,
		Status:         models.ReferralActive,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO referral_edges (id, referrer_id, referred_user_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, e.ID, e.ReferrerID, e.ReferredUserID, e.Status).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrActiveReferrerExists
		}
		return nil, fmt.Errorf("insert referral edge: %w", err)
	}
	return &e, nil
}

// Deactivate flips the ACTIVE edge of referredID to INACTIVE.
func (r *Repository) Deactivate(ctx context.Context, referredID uuid.UUID) (*models.ReferralEdge, error) {
	var e models.ReferralEdge
	err := r.pool.QueryRow(ctx, `
		UPDATE referral_edges SET status = 'INACTIVE', updated_at = now()
		WHERE referred_user_id = $1 AND status = 'ACTIVE'
		RETURNING id, referrer_id, referred_user_id, status, created_at, updated_at
	`, referredID).Scan(&e.ID, &e.ReferrerID, &e.ReferredUserID, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEdgeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
