package referral

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// DefaultMaxChainDepth guards the upward walk against cycles in historic data.
const DefaultMaxChainDepth = 10

// ReferrerLookup finds the single ACTIVE referrer of a user.
type ReferrerLookup interface {
	FindActiveReferrer(ctx context.Context, referredID uuid.UUID) (uuid.UUID, bool, error)
}

// Resolver walks the referral graph upward.
type Resolver struct {
	lookup ReferrerLookup
	log    *slog.Logger
}

// NewResolver returns a Resolver over lookup. log defaults to slog.Default().
func NewResolver(lookup ReferrerLookup, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{lookup: lookup, log: log}
}

// ResolveChain returns userID's ancestors, nearest referrer first, at most
// maxDepth of them. A user without a referrer yields an empty chain. A lookup
// error ends the walk and the ancestors found so far are returned. The walk
// also ends at the first user seen twice.
func (r *Resolver) ResolveChain(ctx context.Context, userID uuid.UUID, maxDepth int) []uuid.UUID {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxChainDepth
	}
	chain := make([]uuid.UUID, 0, maxDepth)
	seen := map[uuid.UUID]bool{userID: true}
	current := userID
	for len(chain) < maxDepth {
		if ctx.Err() != nil {
			r.log.Warn("referral chain walk cancelled", "user_id", userID, "depth", len(chain), "error", ctx.Err())
			break
		}
		referrer, ok, err := r.lookup.FindActiveReferrer(ctx, current)
		if err != nil {
			r.log.Warn("referrer lookup failed, ending chain", "user_id", userID, "at", current, "error", err)
			break
		}
		if !ok {
			break
		}
		if seen[referrer] {
			r.log.Warn("referral cycle detected", "user_id", userID, "at", current, "referrer", referrer)
			break
		}
		seen[referrer] = true
		chain = append(chain, referrer)
		current = referrer
	}
	return chain
}
