package referral

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttribute(t *testing.T) {
	g := newMemGraph()
	svc := NewService(g, nil)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	edge, err := svc.Attribute(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, a, edge.ReferrerID)
	assert.Equal(t, b, edge.ReferredUserID)

	_, err = svc.Attribute(ctx, b, c)
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{b, a}, svc.Chain(ctx, c, 0))
}

func TestAttribute_Rejections(t *testing.T) {
	g := newMemGraph()
	svc := NewService(g, nil)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Attribute(ctx, a, a)
	assert.ErrorIs(t, err, ErrSelfReferral)

	_, err = svc.Attribute(ctx, a, b)
	require.NoError(t, err)
	_, err = svc.Attribute(ctx, b, c)
	require.NoError(t, err)

	// c -> a would close a <- b <- c <- a.
	_, err = svc.Attribute(ctx, c, a)
	assert.ErrorIs(t, err, ErrReferralCycle)

	// b already has an active referrer.
	_, err = svc.Attribute(ctx, uuid.New(), b)
	assert.ErrorIs(t, err, ErrActiveReferrerExists)

	assert.Len(t, g.created, 2)
}

func TestDeactivate(t *testing.T) {
	g := newMemGraph()
	svc := NewService(g, nil)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, err := svc.Attribute(ctx, a, b)
	require.NoError(t, err)

	edge, err := svc.Deactivate(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, a, edge.ReferrerID)
	assert.Empty(t, svc.Chain(ctx, b, 0))

	_, err = svc.Deactivate(ctx, b)
	assert.ErrorIs(t, err, ErrEdgeNotFound)

	// Once inactive, the user may be attributed again.
	_, err = svc.Attribute(ctx, uuid.New(), b)
	assert.NoError(t, err)
}

func TestAttribute_LookupErrorFailsCycleCheck(t *testing.T) {
	g := newMemGraph()
	svc := NewService(g, nil)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Attribute(ctx, a, b)
	require.NoError(t, err)

	// The walk from b cannot see past b, so c -> ... -> b might be a cycle.
	g.failAt[b] = errors.New("connection reset")
	_, err = svc.Attribute(ctx, b, c)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReferralCycle)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Len(t, g.created, 1)
}

func TestAttribute_TakesLockAndReleasesIt(t *testing.T) {
	g := newMemGraph()
	svc := NewService(g, nil)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, err := svc.Attribute(ctx, a, b)
	require.NoError(t, err)
	_, err = svc.Attribute(ctx, b, a)
	require.ErrorIs(t, err, ErrReferralCycle)

	assert.Equal(t, 2, g.locks)
	assert.True(t, g.attribution.TryLock(), "lock released after commit and after rollback")
	g.attribution.Unlock()
}

func TestAttribute_ConcurrentOppositeEdges(t *testing.T) {
	for i := 0; i < 50; i++ {
		g := newMemGraph()
		svc := NewService(g, nil)
		a, b := uuid.New(), uuid.New()

		errs := make([]error, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); _, errs[0] = svc.Attribute(context.Background(), a, b) }()
		go func() { defer wg.Done(); _, errs[1] = svc.Attribute(context.Background(), b, a) }()
		wg.Wait()

		var ok, cycles int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrReferralCycle):
				cycles++
			}
		}
		require.Equal(t, 1, ok, "exactly one direction is recorded")
		require.Equal(t, 1, cycles)
		require.Len(t, g.created, 1)
	}
}
