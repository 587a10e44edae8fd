package models

import (
	"time"

	"github.com/google/uuid"
)

type ReferralStatus string

const (
	ReferralActive   ReferralStatus = "ACTIVE"
	ReferralInactive ReferralStatus = "INACTIVE"
)

// ReferralEdge links a referrer to a referred user. A referred user has at most
// one ACTIVE edge; edges are status-flipped, never deleted.
type ReferralEdge struct {
	ID             uuid.UUID      `json:"id"`
	ReferrerID     uuid.UUID      `json:"referrer_id"`
	ReferredUserID uuid.UUID      `json:"referred_user_id"`
	Status         ReferralStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ReferredUser is a user reached through an ACTIVE edge, joined with the
// account columns the downline report needs.
type ReferredUser struct {
	UserID          uuid.UUID
	ReferrerID      uuid.UUID
	Name            string
	Email           string
	Disabled        bool
	ApprovalPending bool
	JoinedAt        time.Time
}
