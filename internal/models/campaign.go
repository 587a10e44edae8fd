package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign status values driving the budget reservation lifecycle.
const (
	CampaignDraft           = "DRAFT"
	CampaignPendingApproval = "PENDING_APPROVAL"
	CampaignApproved        = "APPROVED"
	CampaignRejected        = "REJECTED"
)

type Campaign struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	Budget    int64     `json:"budget"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
