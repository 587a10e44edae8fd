package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mtscoaima/aima-sub007/internal/models"
)

var (
	ErrSelfReferral  = errors.New("a user cannot refer themselves")
	ErrReferralCycle = errors.New("referral would create a cycle")
)

// cycleCheckDepth is deeper than any reward chain so attribution can spot
// cycles the resolver would otherwise just truncate.
const cycleCheckDepth = 64

// EdgeStore is the write side of the referral graph. Attribution runs in one
// transaction holding the attribution lock.
type EdgeStore interface {
	ReferrerLookup
	Begin(ctx context.Context) (pgx.Tx, error)
	LockAttributionTx(ctx context.Context, tx pgx.Tx) error
	FindActiveReferrerTx(ctx context.Context, tx pgx.Tx, referredID uuid.UUID) (uuid.UUID, bool, error)
	CreateEdgeTx(ctx context.Context, tx pgx.Tx, referrerID, referredID uuid.UUID) (*models.ReferralEdge, error)
	Deactivate(ctx context.Context, referredID uuid.UUID) (*models.ReferralEdge, error)
}

type Service struct {
	store    EdgeStore
	resolver *Resolver
	log      *slog.Logger
}

// NewService returns a Service over store. log defaults to slog.Default().
func NewService(store EdgeStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, resolver: NewResolver(store, log), log: log}
}

// Attribute records that referrerID referred referredID. The cycle check and
// the insert share one locked transaction; a lookup error fails the call.
func (s *Service) Attribute(ctx context.Context, referrerID, referredID uuid.UUID) (*models.ReferralEdge, error) {
	if referrerID == referredID {
		return nil, ErrSelfReferral
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.store.LockAttributionTx(ctx, tx); err != nil {
		return nil, fmt.Errorf("lock referral graph: %w", err)
	}
	cycle, err := s.reaches(ctx, tx, referrerID, referredID)
	if err != nil {
		return nil, fmt.Errorf("cycle check: %w", err)
	}
	if cycle {
		return nil, ErrReferralCycle
	}
	edge, err := s.store.CreateEdgeTx(ctx, tx, referrerID, referredID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit referral edge: %w", err)
	}

	s.log.Info("referral attributed", "referrer_id", referrerID, "referred_user_id", referredID)
	return edge, nil
}

// reaches reports whether target is in from's upline.
func (s *Service) reaches(ctx context.Context, tx pgx.Tx, from, target uuid.UUID) (bool, error) {
	seen := map[uuid.UUID]bool{from: true}
	current := from
	for range cycleCheckDepth {
		referrer, ok, err := s.store.FindActiveReferrerTx(ctx, tx, current)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if referrer == target {
			return true, nil
		}
		if seen[referrer] {
			s.log.Warn("existing referral cycle in upline", "user_id", from, "at", referrer)
			return false, nil
		}
		seen[referrer] = true
		current = referrer
	}
	return false, nil
}

// Deactivate detaches referredID from its referrer, e.g. on fraud reversal.
func (s *Service) Deactivate(ctx context.Context, referredID uuid.UUID) (*models.ReferralEdge, error) {
	edge, err := s.store.Deactivate(ctx, referredID)
	if err != nil {
		return nil, err
	}
	s.log.Info("referral deactivated", "referrer_id", edge.ReferrerID, "referred_user_id", referredID)
	return edge, nil
}

// Chain exposes the upline for reporting.
func (s *Service) Chain(ctx context.Context, userID uuid.UUID, maxDepth int) []uuid.UUID {
	return s.resolver.ResolveChain(ctx, userID, maxDepth)
}
