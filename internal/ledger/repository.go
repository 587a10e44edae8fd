package ledger

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

// ErrDuplicateEntry is returned when an entry with the same (type, reference_id)
// already exists. Callers treat it as "this event was already recorded".
var ErrDuplicateEntry = errors.New("ledger entry already recorded")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append writes one entry in its own implicit transaction.
func (r *Repository) Append(ctx context.Context, e *models.LedgerEntry) error {
	return appendEntry(ctx, r.pool, e)
}

// AppendTx writes one entry inside the caller's transaction. A duplicate does
// not abort tx, so the caller may continue or roll back.
func (r *Repository) AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return appendEntry(ctx, tx, e)
}

func appendEntry(ctx context.Context, db database.DBTX, e *models.LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = models.EntryStatusCompleted
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	err := db.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, user_id, entry_type, subtype, reward_level, amount, description, reference_id, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (entry_type, reference_id) DO NOTHING
		RETURNING created_at
	`, e.ID, e.UserID, e.Type, e.Subtype, e.RewardLevel, e.Amount, e.Description, nullIfEmpty(e.ReferenceID), metadata, e.Status).Scan(&e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrDuplicateEntry, e.Type, e.ReferenceID)
	}
	return err
}

// Sums holds per-type completed totals for one user.
type Sums struct {
	Charge    int64
	Usage     int64
	Reserve   int64
	Unreserve int64
}

func (r *Repository) Sums(ctx context.Context, userID uuid.UUID) (Sums, error) {
	return sums(ctx, r.pool, userID)
}

// SumsTx reads the sums inside tx, after the caller took the user's advisory lock.
func (r *Repository) SumsTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (Sums, error) {
	return sums(ctx, tx, userID)
}

func sums(ctx context.Context, db database.DBTX, userID uuid.UUID) (Sums, error) {
	var s Sums
	err := db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'charge'), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'usage'), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'reserve'), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'unreserve'), 0)
		FROM ledger_entries
		WHERE user_id = $1 AND status = 'completed'
	`, userID).Scan(&s.Charge, &s.Usage, &s.Reserve, &s.Unreserve)
	return s, err
}

// LockUserTx serialises balance-changing writes for one user until tx ends.
func (r *Repository) LockUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID.String())
	return err
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, entry_type, subtype, reward_level, amount, description, reference_id, metadata, status, created_at
		FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var ref *string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Subtype, &e.RewardLevel, &e.Amount, &e.Description, &ref, &e.Metadata, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		if ref != nil {
			e.ReferenceID = *ref
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

// RewardTotals groups a user's referral income by the typed reward_level column.
func (r *Repository) RewardTotals(ctx context.Context, userID uuid.UUID) (models.RewardTotals, error) {
	totals := models.RewardTotals{ByLevel: map[int]int64{}}
	rows, err := r.pool.Query(ctx, `
		SELECT reward_level, COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = $1 AND entry_type = 'charge' AND status = 'completed'
		  AND subtype IN ('DIRECT_REWARD', 'INDIRECT_REWARD') AND reward_level IS NOT NULL
		GROUP BY reward_level
	`, userID)
	if err != nil {
		return totals, err
	}
	defer rows.Close()
	for rows.Next() {
		var level int
		var amount int64
		if err := rows.Scan(&level, &amount); err != nil {
			return totals, err
		}
		totals.ByLevel[level] = amount
		if models.RewardSubtype(level) == models.SubtypeDirectReward {
			totals.Direct += amount
		} else {
			totals.Indirect += amount
		}
		totals.Total += amount
	}
	return totals, rows.Err()
}

// PaymentTotals returns completed, non-reward charge totals for every id in one query.
// Ids with no payments are absent from the map.
func (r *Repository) PaymentTotals(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = ANY($1) AND entry_type = 'charge' AND status = 'completed'
		  AND subtype NOT IN ('DIRECT_REWARD', 'INDIRECT_REWARD')
		GROUP BY user_id
	`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var total int64
		if err := rows.Scan(&id, &total); err != nil {
			return nil, err
		}
		out[id] = total
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
