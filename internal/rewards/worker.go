package rewards

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// DistributeRewardsArgs is the queued second phase of a usage event: commission
// fan-out runs after, and independently of, the committed budget transition.
type DistributeRewardsArgs struct {
	UserID            uuid.UUID `json:"user_id"`
	UsageAmount       int64     `json:"usage_amount"`
	SourceReferenceID string    `json:"source_reference_id"`
}

func (DistributeRewardsArgs) Kind() string { return "distribute_rewards" }

// InsertOpts makes a second enqueue of the same usage event a no-op.
func (DistributeRewardsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{UniqueOpts: river.UniqueOpts{ByArgs: true}}
}

// RewardDistributor is the contract the worker needs.
type RewardDistributor interface {
	DistributeRewards(ctx context.Context, userID uuid.UUID, usageAmount int64, sourceReferenceID string) ([]RewardResult, error)
}

type Worker struct {
	river.WorkerDefaults[DistributeRewardsArgs]
	distributor RewardDistributor
	log         *slog.Logger
}

// NewWorker returns a River worker that hands each job to d.
func NewWorker(d RewardDistributor, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{distributor: d, log: log}
}

// Work returns an error when any level failed so River retries the job;
// levels paid on an earlier attempt are skipped by the ledger's unique key.
func (w *Worker) Work(ctx context.Context, job *river.Job[DistributeRewardsArgs]) error {
	args := job.Args
	results, err := w.distributor.DistributeRewards(ctx, args.UserID, args.UsageAmount, args.SourceReferenceID)
	if err != nil {
		return fmt.Errorf("distribute rewards for %s (attempt %d, %d levels paid): %w",
			args.SourceReferenceID, job.Attempt, len(results), err)
	}
	w.log.Info("reward job done", "job_id", job.ID, "reference_id", args.SourceReferenceID, "paid_levels", len(results))
	return nil
}

// Enqueuer inserts reward jobs inside the caller's transaction, so a job exists
// exactly when the usage entry that seeds it was committed.
type Enqueuer struct {
	client      *river.Client[pgx.Tx]
	maxAttempts int
}

// NewEnqueuer inserts reward jobs through client, each allowed maxAttempts tries.
func NewEnqueuer(client *river.Client[pgx.Tx], maxAttempts int) *Enqueuer {
	return &Enqueuer{client: client, maxAttempts: maxAttempts}
}

func (e *Enqueuer) EnqueueTx(ctx context.Context, tx pgx.Tx, args DistributeRewardsArgs) error {
	_, err := e.client.InsertTx(ctx, tx, args, &river.InsertOpts{MaxAttempts: e.maxAttempts})
	return err
}
