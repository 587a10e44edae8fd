package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtscoaima/aima-sub007/internal/ledger"
	"github.com/mtscoaima/aima-sub007/internal/models"
	"github.com/mtscoaima/aima-sub007/internal/rewards"
)

// ---------------------------------------------------------------------------
// In-memory mocks. Writes are staged per transaction and only become visible
// on Commit, so a failed step leaves nothing behind.
// ---------------------------------------------------------------------------

type world struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]*models.Campaign
	entries   []*models.LedgerEntry
	jobs      []rewards.DistributeRewardsArgs
}

type stagedTx struct {
	w         *world
	status    map[uuid.UUID]string
	entries   []*models.LedgerEntry
	jobs      []rewards.DistributeRewardsArgs
	commitErr error
	done      bool
}

func (t *stagedTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *stagedTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	for id, s := range t.status {
		t.w.campaigns[id].Status = s
	}
	t.w.entries = append(t.w.entries, t.entries...)
	t.w.jobs = append(t.w.jobs, t.jobs...)
	t.done = true
	return nil
}
func (t *stagedTx) Rollback(context.Context) error { return nil }
func (t *stagedTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *stagedTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *stagedTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *stagedTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *stagedTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *stagedTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *stagedTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *stagedTx) Conn() *pgx.Conn { return nil }

type mockPool struct {
	w         *world
	commitErr error
	began     int
}

func (p *mockPool) Begin(context.Context) (pgx.Tx, error) {
	p.began++
	return &stagedTx{w: p.w, status: map[uuid.UUID]string{}, commitErr: p.commitErr}, nil
}

type mockCampaigns struct{ w *world }

func (m mockCampaigns) Get(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	c, ok := m.w.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	cp := *c
	return &cp, nil
}

func (m mockCampaigns) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Campaign, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s, ok := tx.(*stagedTx).status[id]; ok {
		c.Status = s
	}
	return c, nil
}

func (m mockCampaigns) UpdateStatusTx(_ context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	tx.(*stagedTx).status[id] = status
	return nil
}

type mockLedger struct {
	w       *world
	failRef string
}

func (m *mockLedger) AppendTx(_ context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	if m.failRef != "" && e.ReferenceID == m.failRef {
		return errors.New("injected ledger failure")
	}
	st := tx.(*stagedTx)
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	for _, existing := range append(append([]*models.LedgerEntry{}, m.w.entries...), st.entries...) {
		if existing.Type == e.Type && existing.ReferenceID == e.ReferenceID {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateEntry, e.ReferenceID)
		}
	}
	cp := *e
	st.entries = append(st.entries, &cp)
	return nil
}

func (m *mockLedger) LockedBalanceTx(_ context.Context, _ pgx.Tx, userID uuid.UUID) (models.Balance, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	var s ledger.Sums
	for _, e := range m.w.entries {
		if e.UserID != userID {
			continue
		}
		switch e.Type {
		case models.EntryCharge:
			s.Charge += e.Amount
		case models.EntryUsage:
			s.Usage += e.Amount
		case models.EntryReserve:
			s.Reserve += e.Amount
		case models.EntryUnreserve:
			s.Unreserve += e.Amount
		}
	}
	return ledger.BalanceFromSums(s), nil
}

type mockEnqueuer struct{ err error }

func (m mockEnqueuer) EnqueueTx(_ context.Context, tx pgx.Tx, args rewards.DistributeRewardsArgs) error {
	if m.err != nil {
		return m.err
	}
	st := tx.(*stagedTx)
	st.jobs = append(st.jobs, args)
	return nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type fixture struct {
	w      *world
	pool   *mockPool
	ledger *mockLedger
	enq    *mockEnqueuer
	ctrl   *Controller
	owner  uuid.UUID
	camp   uuid.UUID
	admin  Actor
}

func newFixture(t *testing.T, status string, budget, funds int64) *fixture {
	t.Helper()
	owner, camp := uuid.New(), uuid.New()
	w := &world{campaigns: map[uuid.UUID]*models.Campaign{
		camp: {ID: camp, OwnerID: owner, Title: "launch", Budget: budget, Status: status},
	}}
	if funds > 0 {
		w.entries = append(w.entries, &models.LedgerEntry{
			ID: uuid.New(), UserID: owner, Type: models.EntryCharge, Subtype: models.SubtypeTopup,
			Amount: funds, ReferenceID: "topup_" + owner.String(), Status: models.EntryStatusCompleted,
		})
	}
	if status == models.CampaignPendingApproval {
		w.entries = append(w.entries, &models.LedgerEntry{
			ID: uuid.New(), UserID: owner, Type: models.EntryReserve, Subtype: models.SubtypeBudgetReserve,
			Amount: budget, ReferenceID: ReserveReferenceID(camp), Status: models.EntryStatusCompleted,
		})
	}
	f := &fixture{w: w, owner: owner, camp: camp, admin: Actor{UserID: uuid.New(), Admin: true}}
	f.pool = &mockPool{w: w}
	f.ledger = &mockLedger{w: w}
	f.enq = &mockEnqueuer{}
	f.ctrl = NewController(f.pool, mockCampaigns{w: w}, f.ledger, f.enq, nil)
	return f
}

func (f *fixture) status() string {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return f.w.campaigns[f.camp].Status
}

func (f *fixture) balance(t *testing.T) models.Balance {
	t.Helper()
	b, err := f.ledger.LockedBalanceTx(context.Background(), nil, f.owner)
	require.NoError(t, err)
	return b
}

// ---------------------------------------------------------------------------
// Reserve
// ---------------------------------------------------------------------------

func TestReserve(t *testing.T) {
	f := newFixture(t, models.CampaignDraft, 3000, 5000)

	res, err := f.ctrl.Reserve(context.Background(), f.camp, Actor{UserID: f.owner})
	require.NoError(t, err)
	assert.Equal(t, models.CampaignPendingApproval, res.Status)
	assert.Equal(t, models.CampaignPendingApproval, f.status())

	b := f.balance(t)
	assert.Equal(t, int64(5000), b.Balance)
	assert.Equal(t, int64(3000), b.Reserved)
	assert.Equal(t, int64(2000), b.Available)

	last := f.w.entries[len(f.w.entries)-1]
	assert.Equal(t, models.EntryReserve, last.Type)
	assert.Equal(t, models.SubtypeBudgetReserve, last.Subtype)
	assert.Equal(t, "campaign_reserve_"+f.camp.String(), last.ReferenceID)
}

func TestReserve_InsufficientFunds(t *testing.T) {
	f := newFixture(t, models.CampaignDraft, 3000, 2999)

	_, err := f.ctrl.Reserve(context.Background(), f.camp, Actor{UserID: f.owner})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, models.CampaignDraft, f.status())
	assert.Len(t, f.w.entries, 1)
}

func TestReserve_Errors(t *testing.T) {
	t.Run("not owner", func(t *testing.T) {
		f := newFixture(t, models.CampaignDraft, 100, 1000)
		_, err := f.ctrl.Reserve(context.Background(), f.camp, Actor{UserID: uuid.New()})
		assert.ErrorIs(t, err, ErrForbidden)
	})
	t.Run("not draft", func(t *testing.T) {
		f := newFixture(t, models.CampaignPendingApproval, 100, 1000)
		_, err := f.ctrl.Reserve(context.Background(), f.camp, Actor{UserID: f.owner})
		assert.ErrorIs(t, err, ErrInvalidState)
	})
	t.Run("missing campaign", func(t *testing.T) {
		f := newFixture(t, models.CampaignDraft, 100, 1000)
		_, err := f.ctrl.Reserve(context.Background(), uuid.New(), Actor{UserID: f.owner})
		assert.ErrorIs(t, err, ErrCampaignNotFound)
	})
}

// ---------------------------------------------------------------------------
// Approve
// ---------------------------------------------------------------------------

func TestApprove(t *testing.T) {
	f := newFixture(t, models.CampaignPendingApproval, 3000, 5000)
	before := f.balance(t)
	require.Equal(t, int64(2000), before.Available)

	res, err := f.ctrl.Approve(context.Background(), f.camp, f.admin)
	require.NoError(t, err)
	assert.False(t, res.AlreadyApplied)
	assert.Equal(t, models.CampaignApproved, res.Status)
	assert.Equal(t, models.CampaignApproved, f.status())

	// unreserve then usage, both for the full budget
	written := f.w.entries[2:]
	require.Len(t, written, 2)
	assert.Equal(t, models.EntryUnreserve, written[0].Type)
	assert.Equal(t, models.SubtypeBudgetRelease, written[0].Subtype)
	assert.Equal(t, "campaign_unreserve_"+f.camp.String(), written[0].ReferenceID)
	assert.Equal(t, models.EntryUsage, written[1].Type)
	assert.Equal(t, models.SubtypeBudgetUsage, written[1].Subtype)
	assert.Equal(t, "campaign_usage_"+f.camp.String(), written[1].ReferenceID)
	for _, e := range written {
		assert.Equal(t, int64(3000), e.Amount)
		assert.Equal(t, f.owner, e.UserID)
	}

	after := f.balance(t)
	assert.Equal(t, int64(2000), after.Balance)
	assert.Equal(t, int64(0), after.Reserved)
	assert.Equal(t, before.Available, after.Available)

	require.Len(t, f.w.jobs, 1)
	assert.Equal(t, rewards.DistributeRewardsArgs{
		UserID: f.owner, UsageAmount: 3000, SourceReferenceID: "campaign_usage_" + f.camp.String(),
	}, f.w.jobs[0])
}

func TestApprove_SecondCallIsNoOp(t *testing.T) {
	f := newFixture(t, models.CampaignPendingApproval, 3000, 5000)

	_, err := f.ctrl.Approve(context.Background(), f.camp, f.admin)
	require.NoError(t, err)
	entries, jobs := len(f.w.entries), len(f.w.jobs)

	res, err := f.ctrl.Approve(context.Background(), f.camp, f.admin)
	require.NoError(t, err)
	assert.True(t, res.AlreadyApplied)
	assert.Equal(t, models.CampaignApproved, res.Status)
	assert.Len(t, f.w.entries, entries, "no ledger writes")
	assert.Len(t, f.w.jobs, jobs, "no second reward job")
}

func TestApprove_NonAdminForbidden(t *testing.T) {
	f := newFixture(t, models.CampaignPendingApproval, 3000, 5000)

	_, err := f.ctrl.Approve(context.Background(), f.camp, Actor{UserID: f.owner})
	require.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, f.pool.began)
	assert.Equal(t, models.CampaignPendingApproval, f.status())
}

func TestApprove_InvalidStates(t *testing.T) {
	for _, status := range []string{models.CampaignDraft, models.CampaignRejected} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t, status, 3000, 5000)
			_, err := f.ctrl.Approve(context.Background(), f.camp, f.admin)
			assert.ErrorIs(t, err, ErrInvalidState)
			assert.Equal(t, status, f.status())
			assert.Empty(t, f.w.jobs)
		})
	}
}

func TestApprove_NotFound(t *testing.T) {
	f := newFixture(t, models.CampaignPendingApproval, 3000, 5000)
	_, err := f.ctrl.Approve(context.Background(), uuid.New(), f.admin)
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestApprove_FailuresPersistNothing(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"unreserve write", func(f *fixture) { f.ledger.failRef = UnreserveReferenceID(f.camp) }},
		{"usage write", func(f *fixture) { f.ledger.failRef = UsageReferenceID(f.camp) }},
		{"enqueue", func(f *fixture) { f.enq.err = errors.New("queue down") }},
		{"commit", func(f *fixture) { f.pool.commitErr = errors.New("connection reset") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, models.CampaignPendingApproval, 3000, 5000)
			tc.setup(f)

			_, err := f.ctrl.Approve(context.Background(), f.camp, f.admin)
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrInvalidState)
			assert.Equal(t, models.CampaignPendingApproval, f.status())
			assert.Len(t, f.w.entries, 2)
			assert.Empty(t, f.w.jobs)
		})
	}
}

// ---------------------------------------------------------------------------
// Reject
// ---------------------------------------------------------------------------

func TestReject(t *testing.T) {
	f := newFixture(t, models.CampaignPendingApproval, 3000, 5000)

	res, err := f.ctrl.Reject(context.Background(), f.camp, f.admin)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignRejected, res.Status)
	assert.Equal(t, models.CampaignRejected, f.status())

	b := f.balance(t)
	assert.Equal(t, int64(5000), b.Balance)
	assert.Equal(t, int64(0), b.Reserved)
	assert.Equal(t, int64(5000), b.Available)
	assert.Empty(t, f.w.jobs)

	res, err = f.ctrl.Reject(context.Background(), f.camp, f.admin)
	require.NoError(t, err)
	assert.True(t, res.AlreadyApplied)
	assert.Len(t, f.w.entries, 3)
}

func TestReject_Errors(t *testing.T) {
	f := newFixture(t, models.CampaignPendingApproval, 3000, 5000)
	_, err := f.ctrl.Reject(context.Background(), f.camp, Actor{UserID: f.owner})
	assert.ErrorIs(t, err, ErrForbidden)

	g := newFixture(t, models.CampaignApproved, 3000, 5000)
	_, err = g.ctrl.Reject(context.Background(), g.camp, g.admin)
	assert.ErrorIs(t, err, ErrInvalidState)
}
