package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mtscoaima/aima-sub007/internal/models"
)

// ErrInvalidTopUp rejects a top-up without a positive amount or a reference id.
var ErrInvalidTopUp = errors.New("top-up needs a positive amount and a reference id")

// Store is the repository surface the service depends on.
type Store interface {
	Append(ctx context.Context, e *models.LedgerEntry) error
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	Sums(ctx context.Context, userID uuid.UUID) (Sums, error)
	SumsTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (Sums, error)
	LockUserTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.LedgerEntry, error)
	RewardTotals(ctx context.Context, userID uuid.UUID) (models.RewardTotals, error)
	PaymentTotals(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

var _ Store = (*Repository)(nil)

type Service interface {
	Append(ctx context.Context, e *models.LedgerEntry) error
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	// TopUp credits userID once per referenceID; a repeat returns ErrDuplicateEntry.
	TopUp(ctx context.Context, userID uuid.UUID, amount int64, referenceID, description string) (*models.LedgerEntry, error)
	Balance(ctx context.Context, userID uuid.UUID) (models.Balance, error)
	// LockedBalanceTx locks the user's balance for the rest of tx and returns it.
	LockedBalanceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (models.Balance, error)
	Entries(ctx context.Context, userID uuid.UUID, limit int) ([]*models.LedgerEntry, error)
	RewardTotals(ctx context.Context, userID uuid.UUID) (models.RewardTotals, error)
	PaymentTotals(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

type service struct {
	store Store
}

// NewService returns the ledger Service backed by store.
func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

func (s *service) Append(ctx context.Context, e *models.LedgerEntry) error {
	if err := checkEntry(e); err != nil {
		return err
	}
	return s.store.Append(ctx, e)
}

func (s *service) AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	if err := checkEntry(e); err != nil {
		return err
	}
	return s.store.AppendTx(ctx, tx, e)
}

// TopUpReferenceID namespaces an external payment reference among charge entries.
func TopUpReferenceID(referenceID string) string { return "topup_" + referenceID }

func (s *service) TopUp(ctx context.Context, userID uuid.UUID, amount int64, referenceID, description string) (*models.LedgerEntry, error) {
	if amount <= 0 || referenceID == "" {
		return nil, ErrInvalidTopUp
	}
	if description == "" {
		description = "Balance top-up"
	}
	e := &models.LedgerEntry{
		UserID:      userID,
		Type:        models.EntryCharge,
		Subtype:     models.SubtypeTopup,
		Amount:      amount,
		Description: description,
		ReferenceID: TopUpReferenceID(referenceID),
		Status:      models.EntryStatusCompleted,
	}
	if err := s.Append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	sums, err := s.store.Sums(ctx, userID)
	if err != nil {
		return models.Balance{}, err
	}
	return BalanceFromSums(sums), nil
}

func (s *service) LockedBalanceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (models.Balance, error) {
	if err := s.store.LockUserTx(ctx, tx, userID); err != nil {
		return models.Balance{}, fmt.Errorf("lock user balance: %w", err)
	}
	sums, err := s.store.SumsTx(ctx, tx, userID)
	if err != nil {
		return models.Balance{}, err
	}
	return BalanceFromSums(sums), nil
}

func (s *service) Entries(ctx context.Context, userID uuid.UUID, limit int) ([]*models.LedgerEntry, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

func (s *service) RewardTotals(ctx context.Context, userID uuid.UUID) (models.RewardTotals, error) {
	return s.store.RewardTotals(ctx, userID)
}

func (s *service) PaymentTotals(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	return s.store.PaymentTotals(ctx, userIDs)
}

// BalanceFromSums derives balance = charge - usage, reserved = reserve - unreserve.
func BalanceFromSums(s Sums) models.Balance {
	balance := s.Charge - s.Usage
	reserved := s.Reserve - s.Unreserve
	return models.Balance{
		Balance:   balance,
		Reserved:  reserved,
		Available: balance - reserved,
	}
}

func checkEntry(e *models.LedgerEntry) error {
	if e.UserID == uuid.Nil {
		return fmt.Errorf("ledger entry: missing user id")
	}
	if e.Amount < 0 {
		return fmt.Errorf("ledger entry: negative amount %d", e.Amount)
	}
	switch e.Type {
	case models.EntryCharge, models.EntryUsage, models.EntryReserve, models.EntryUnreserve:
	default:
		return fmt.Errorf("ledger entry: unknown type %q", e.Type)
	}
	return nil
}
