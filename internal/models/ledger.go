package models

import (
	"time"

	"github.com/google/uuid"
)

// EntryType is the economic direction of a ledger entry.
type EntryType string

const (
	EntryCharge    EntryType = "charge"
	EntryUsage     EntryType = "usage"
	EntryReserve   EntryType = "reserve"
	EntryUnreserve EntryType = "unreserve"
)

// EntrySubtype tags what produced an entry. Reporting filters on this column,
// never on description text or metadata keys.
type EntrySubtype string

const (
	SubtypeTopup          EntrySubtype = "TOPUP"
	SubtypeDirectReward   EntrySubtype = "DIRECT_REWARD"
	SubtypeIndirectReward EntrySubtype = "INDIRECT_REWARD"
	SubtypeBudgetReserve  EntrySubtype = "BUDGET_RESERVE"
	SubtypeBudgetRelease  EntrySubtype = "BUDGET_RELEASE"
	SubtypeBudgetUsage    EntrySubtype = "BUDGET_USAGE"
)

// RewardSubtype returns DIRECT_REWARD for level 1 and INDIRECT_REWARD for deeper levels.
func RewardSubtype(level int) EntrySubtype {
	if level == 1 {
		return SubtypeDirectReward
	}
	return SubtypeIndirectReward
}

type EntryStatus string

const (
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusPending   EntryStatus = "pending"
)

// LedgerEntry is immutable once written. Amount is in the smallest currency unit.
type LedgerEntry struct {
	ID          uuid.UUID      `json:"id"`
	UserID      uuid.UUID      `json:"user_id"`
	Type        EntryType      `json:"type"`
	Subtype     EntrySubtype   `json:"subtype"`
	RewardLevel *int           `json:"reward_level,omitempty"`
	Amount      int64          `json:"amount"`
	Description string         `json:"description"`
	ReferenceID string         `json:"reference_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Status      EntryStatus    `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Balance is derived from ledger sums; it is never stored.
type Balance struct {
	Balance   int64 `json:"balance"`
	Reserved  int64 `json:"reserved"`
	Available int64 `json:"available"`
}

// RewardTotals splits a user's referral income by level.
type RewardTotals struct {
	Direct   int64         `json:"direct"`
	Indirect int64         `json:"indirect"`
	Total    int64         `json:"total"`
	ByLevel  map[int]int64 `json:"by_level"`
}
