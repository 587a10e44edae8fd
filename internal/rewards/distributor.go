package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/mtscoaima/aima-sub007/internal/commission"
	"github.com/mtscoaima/aima-sub007/internal/ledger"
	"github.com/mtscoaima/aima-sub007/internal/models"
	"github.com/mtscoaima/aima-sub007/internal/monitoring"
	"github.com/mtscoaima/aima-sub007/internal/schema"
)

// RewardResult describes one level that was paid by this call.
type RewardResult struct {
	Level       int                 `json:"level"`
	ReferrerID  uuid.UUID           `json:"referrer_id"`
	Amount      int64               `json:"amount"`
	LedgerEntry *models.LedgerEntry `json:"ledger_entry"`
}

type ChainResolver interface {
	ResolveChain(ctx context.Context, userID uuid.UUID, maxDepth int) []uuid.UUID
}

type SettingsLoader interface {
	Load(ctx context.Context) commission.Settings
}

// LedgerWriter commits one entry per call.
type LedgerWriter interface {
	Append(ctx context.Context, e *models.LedgerEntry) error
}

type Distributor struct {
	chain     ChainResolver
	settings  SettingsLoader
	ledger    LedgerWriter
	validator *schema.Validator
	maxDepth  int
	log       *slog.Logger
}

// NewDistributor returns a Distributor paying at most maxDepth levels;
// maxDepth <= 0 means commission.MaxLevels.
func NewDistributor(chain ChainResolver, settings SettingsLoader, ledger LedgerWriter, validator *schema.Validator, maxDepth int, log *slog.Logger) *Distributor {
	if log == nil {
		log = slog.Default()
	}
	if maxDepth <= 0 {
		maxDepth = commission.MaxLevels
	}
	return &Distributor{chain: chain, settings: settings, ledger: ledger, validator: validator, maxDepth: maxDepth, log: log}
}

// RewardReferenceID correlates a reward entry with the usage event it came from.
func RewardReferenceID(sourceReferenceID string, level int) string {
	return fmt.Sprintf("%s_reward_%d", sourceReferenceID, level)
}

// DistributeRewards pays commission on usageAmount to userID's upline.
//
// Each level is written independently: a failed level is logged and skipped
// and the remaining levels are still attempted. Levels already recorded for
// sourceReferenceID are skipped, so the call can be repeated safely. The
// returned error joins the per-level failures; the results list only the levels
// written by this call.
func (d *Distributor) DistributeRewards(ctx context.Context, userID uuid.UUID, usageAmount int64, sourceReferenceID string) ([]RewardResult, error) {
	chain := d.chain.ResolveChain(ctx, userID, d.maxDepth)
	if len(chain) == 0 {
		d.log.Debug("no referrer, nothing to distribute", "user_id", userID, "reference_id", sourceReferenceID)
		return nil, nil
	}

	s := d.settings.Load(ctx)
	levels, err := commission.CalculateRewards(usageAmount, s.FirstLevelRatePercent, s.NthLevelDenominator)
	if err != nil {
		d.log.Error("commission calculation rejected", "user_id", userID, "amount", usageAmount, "error", err)
		return nil, nil
	}

	var results []RewardResult
	var failures []error
	for _, lr := range levels {
		if lr.Level > len(chain) {
			break
		}
		referrerID := chain[lr.Level-1]
		entry, err := d.payLevel(ctx, userID, usageAmount, sourceReferenceID, referrerID, lr)
		switch {
		case err == nil:
			results = append(results, RewardResult{Level: lr.Level, ReferrerID: referrerID, Amount: lr.Amount, LedgerEntry: entry})
			monitoring.RewardsPaid.WithLabelValues(strconv.Itoa(lr.Level)).Inc()
			monitoring.RewardAmount.Add(float64(lr.Amount))
		case errors.Is(err, ledger.ErrDuplicateEntry):
			d.log.Debug("reward level already paid", "reference_id", RewardReferenceID(sourceReferenceID, lr.Level))
		default:
			d.log.Error("reward level failed",
				"level", lr.Level, "referrer_id", referrerID, "amount", lr.Amount,
				"reference_id", sourceReferenceID, "error", err)
			monitoring.RewardFailures.WithLabelValues(strconv.Itoa(lr.Level)).Inc()
			failures = append(failures, fmt.Errorf("level %d: %w", lr.Level, err))
		}
	}

	d.log.Info("rewards distributed",
		"user_id", userID, "reference_id", sourceReferenceID, "amount", usageAmount,
		"chain_length", len(chain), "paid_levels", len(results), "failed_levels", len(failures))
	return results, errors.Join(failures...)
}

func (d *Distributor) payLevel(ctx context.Context, userID uuid.UUID, usageAmount int64, sourceReferenceID string, referrerID uuid.UUID, lr commission.LevelReward) (*models.LedgerEntry, error) {
	metadata := map[string]any{
		"rewardLevel":         lr.Level,
		"originalReferenceId": sourceReferenceID,
		"originalUserId":      userID.String(),
		"originalAmount":      usageAmount,
	}
	if d.validator != nil {
		if err := d.validator.Validate(schema.RewardMetadata, metadata); err != nil {
			return nil, err
		}
	}
	level := lr.Level
	entry := &models.LedgerEntry{
		ID:          uuid.New(),
		UserID:      referrerID,
		Type:        models.EntryCharge,
		Subtype:     models.RewardSubtype(lr.Level),
		RewardLevel: &level,
		Amount:      lr.Amount,
		Description: fmt.Sprintf("Referral reward (level %d)", lr.Level),
		ReferenceID: RewardReferenceID(sourceReferenceID, lr.Level),
		Metadata:    metadata,
		Status:      models.EntryStatusCompleted,
	}
	if err := d.ledger.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
