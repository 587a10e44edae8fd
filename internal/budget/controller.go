// Package budget moves campaign budgets through the reserve, unreserve and
// usage ledger legs as campaigns are submitted, approved or rejected.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mtscoaima/aima-sub007/internal/models"
	"github.com/mtscoaima/aima-sub007/internal/monitoring"
	"github.com/mtscoaima/aima-sub007/internal/rewards"
)

var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrInvalidState      = errors.New("campaign is not in a valid state for this transition")
	ErrForbidden         = errors.New("not allowed to act on this campaign")
	ErrInsufficientFunds = errors.New("insufficient available balance")
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type CampaignRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Campaign, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// LedgerTx is the part of the ledger the controller writes through.
type LedgerTx interface {
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	LockedBalanceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (models.Balance, error)
}

type RewardEnqueuer interface {
	EnqueueTx(ctx context.Context, tx pgx.Tx, args rewards.DistributeRewardsArgs) error
}

// Actor is the authenticated caller of a transition.
type Actor struct {
	UserID uuid.UUID
	Admin  bool
}

type Result struct {
	CampaignID     uuid.UUID `json:"campaign_id"`
	Status         string    `json:"status"`
	Message        string    `json:"message"`
	AlreadyApplied bool      `json:"already_applied"`
}

type Controller struct {
	pool      TxBeginner
	campaigns CampaignRepo
	ledger    LedgerTx
	enqueuer  RewardEnqueuer
	log       *slog.Logger
}

// NewController wires the campaign transitions. log defaults to slog.Default().
func NewController(pool TxBeginner, campaigns CampaignRepo, ledger LedgerTx, enqueuer RewardEnqueuer, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{pool: pool, campaigns: campaigns, ledger: ledger, enqueuer: enqueuer, log: log}
}

func ReserveReferenceID(id uuid.UUID) string   { return "campaign_reserve_" + id.String() }
func UnreserveReferenceID(id uuid.UUID) string { return "campaign_unreserve_" + id.String() }
func UsageReferenceID(id uuid.UUID) string     { return "campaign_usage_" + id.String() }

// Reserve holds the campaign budget against the owner's available balance and
// submits the campaign for approval.
func (c *Controller) Reserve(ctx context.Context, campaignID uuid.UUID, actor Actor) (res Result, err error) {
	defer func() { observe("reserve", res, err) }()

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	camp, err := c.campaigns.GetForUpdateTx(ctx, tx, campaignID)
	if err != nil {
		return Result{}, err
	}
	if camp.OwnerID != actor.UserID {
		return Result{}, ErrForbidden
	}
	if camp.Status != models.CampaignDraft {
		return Result{}, fmt.Errorf("%w: reserve from %s", ErrInvalidState, camp.Status)
	}

	bal, err := c.ledger.LockedBalanceTx(ctx, tx, camp.OwnerID)
	if err != nil {
		return Result{}, err
	}
	if bal.Available < camp.Budget {
		return Result{}, fmt.Errorf("%w: available %d, budget %d", ErrInsufficientFunds, bal.Available, camp.Budget)
	}

	if err := c.ledger.AppendTx(ctx, tx, budgetEntry(camp, models.EntryReserve, models.SubtypeBudgetReserve,
		ReserveReferenceID(camp.ID), "Campaign budget reserved")); err != nil {
		return Result{}, fmt.Errorf("write reserve: %w", err)
	}
	if err := c.campaigns.UpdateStatusTx(ctx, tx, camp.ID, models.CampaignPendingApproval); err != nil {
		return Result{}, fmt.Errorf("update campaign status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit reserve: %w", err)
	}

	c.log.Info("campaign budget reserved", "campaign_id", camp.ID, "owner_id", camp.OwnerID, "budget", camp.Budget)
	return Result{CampaignID: camp.ID, Status: models.CampaignPendingApproval, Message: "campaign submitted for approval"}, nil
}

// Approve converts the reserved budget into usage and queues referral rewards
// on that usage. Approving an already approved campaign succeeds without
// writing anything.
func (c *Controller) Approve(ctx context.Context, campaignID uuid.UUID, actor Actor) (res Result, err error) {
	defer func() { observe("approve", res, err) }()

	if !actor.Admin {
		return Result{}, ErrForbidden
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	camp, err := c.campaigns.GetForUpdateTx(ctx, tx, campaignID)
	if err != nil {
		return Result{}, err
	}
	switch camp.Status {
	case models.CampaignApproved:
		c.log.Info("campaign already approved", "campaign_id", camp.ID, "actor_id", actor.UserID)
		return Result{CampaignID: camp.ID, Status: camp.Status, Message: "campaign already approved", AlreadyApplied: true}, nil
	case models.CampaignPendingApproval:
	default:
		return Result{}, fmt.Errorf("%w: approve from %s", ErrInvalidState, camp.Status)
	}

	// unreserve is always written before usage.
	if err := c.ledger.AppendTx(ctx, tx, budgetEntry(camp, models.EntryUnreserve, models.SubtypeBudgetRelease,
		UnreserveReferenceID(camp.ID), "Campaign budget released on approval")); err != nil {
		return Result{}, fmt.Errorf("write unreserve: %w", err)
	}
	usageRef := UsageReferenceID(camp.ID)
	if err := c.ledger.AppendTx(ctx, tx, budgetEntry(camp, models.EntryUsage, models.SubtypeBudgetUsage,
		usageRef, "Campaign budget used")); err != nil {
		return Result{}, fmt.Errorf("write usage: %w", err)
	}
	if err := c.campaigns.UpdateStatusTx(ctx, tx, camp.ID, models.CampaignApproved); err != nil {
		return Result{}, fmt.Errorf("update campaign status: %w", err)
	}
	if err := c.enqueuer.EnqueueTx(ctx, tx, rewards.DistributeRewardsArgs{
		UserID:            camp.OwnerID,
		UsageAmount:       camp.Budget,
		SourceReferenceID: usageRef,
	}); err != nil {
		return Result{}, fmt.Errorf("enqueue rewards: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit approval: %w", err)
	}

	c.log.Info("campaign approved", "campaign_id", camp.ID, "owner_id", camp.OwnerID, "budget", camp.Budget, "actor_id", actor.UserID)
	return Result{CampaignID: camp.ID, Status: models.CampaignApproved, Message: "campaign approved"}, nil
}

// Reject returns the reserved budget to the owner.
func (c *Controller) Reject(ctx context.Context, campaignID uuid.UUID, actor Actor) (res Result, err error) {
	defer func() { observe("reject", res, err) }()

	if !actor.Admin {
		return Result{}, ErrForbidden
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	camp, err := c.campaigns.GetForUpdateTx(ctx, tx, campaignID)
	if err != nil {
		return Result{}, err
	}
	switch camp.Status {
	case models.CampaignRejected:
		return Result{CampaignID: camp.ID, Status: camp.Status, Message: "campaign already rejected", AlreadyApplied: true}, nil
	case models.CampaignPendingApproval:
	default:
		return Result{}, fmt.Errorf("%w: reject from %s", ErrInvalidState, camp.Status)
	}

	if err := c.ledger.AppendTx(ctx, tx, budgetEntry(camp, models.EntryUnreserve, models.SubtypeBudgetRelease,
		UnreserveReferenceID(camp.ID), "Campaign budget released on rejection")); err != nil {
		return Result{}, fmt.Errorf("write unreserve: %w", err)
	}
	if err := c.campaigns.UpdateStatusTx(ctx, tx, camp.ID, models.CampaignRejected); err != nil {
		return Result{}, fmt.Errorf("update campaign status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit rejection: %w", err)
	}

	c.log.Info("campaign rejected", "campaign_id", camp.ID, "owner_id", camp.OwnerID, "actor_id", actor.UserID)
	return Result{CampaignID: camp.ID, Status: models.CampaignRejected, Message: "campaign rejected"}, nil
}

func budgetEntry(camp *models.Campaign, typ models.EntryType, subtype models.EntrySubtype, ref, desc string) *models.LedgerEntry {
	return &models.LedgerEntry{
		ID:          uuid.New(),
		UserID:      camp.OwnerID,
		Type:        typ,
		Subtype:     subtype,
		Amount:      camp.Budget,
		Description: desc,
		ReferenceID: ref,
		Metadata:    map[string]any{"campaignId": camp.ID.String()},
		Status:      models.EntryStatusCompleted,
	}
}

func observe(transition string, res Result, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case res.AlreadyApplied:
		result = "noop"
	}
	monitoring.CampaignTransitions.WithLabelValues(transition, result).Inc()
}
