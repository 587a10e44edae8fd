package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mtscoaima/aima-sub007/internal/downline"
	"github.com/mtscoaima/aima-sub007/internal/models"
)

type DownlineBuilder interface {
	BuildTree(ctx context.Context, userID uuid.UUID) ([]*downline.DownlineNode, error)
}

type ReferralManager interface {
	Attribute(ctx context.Context, referrerID, referredID uuid.UUID) (*models.ReferralEdge, error)
	Deactivate(ctx context.Context, referredID uuid.UUID) (*models.ReferralEdge, error)
	Chain(ctx context.Context, userID uuid.UUID, maxDepth int) []uuid.UUID
}

type RewardReporter interface {
	RewardTotals(ctx context.Context, userID uuid.UUID) (models.RewardTotals, error)
}

// ReferralHandler serves the referral reporting and admin endpoints.
type ReferralHandler struct {
	Downline      DownlineBuilder
	Referrals     ReferralManager
	Rewards       RewardReporter
	ChainMaxDepth int
	Logger        *slog.Logger
}

type downlineResponse struct {
	Tree    []*downline.DownlineNode `json:"tree"`
	Summary downline.Summary         `json:"summary"`
}

// --- GET /referrals/downline ---

func (h *ReferralHandler) GetDownline(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	tree, err := h.Downline.BuildTree(r.Context(), p.UserID)
	if err != nil {
		writeErr(w, logger(h.Logger).With("user_id", p.UserID), err)
		return
	}
	writeOK(w, "", downlineResponse{Tree: tree, Summary: downline.Summarize(tree)})
}

// --- GET /referrals/rewards ---

func (h *ReferralHandler) GetRewards(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	totals, err := h.Rewards.RewardTotals(r.Context(), p.UserID)
	if err != nil {
		writeErr(w, logger(h.Logger).With("user_id", p.UserID), err)
		return
	}
	writeOK(w, "", totals)
}

// --- GET /referrals/chain ---

func (h *ReferralHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	chain := h.Referrals.Chain(r.Context(), p.UserID, h.ChainMaxDepth)
	if chain == nil {
		chain = []uuid.UUID{}
	}
	writeOK(w, "", map[string]any{"chain": chain})
}

type createReferralRequest struct {
	ReferrerID     uuid.UUID `json:"referrer_id"`
	ReferredUserID uuid.UUID `json:"referred_user_id"`
}

// --- POST /admin/referrals ---

func (h *ReferralHandler) CreateReferral(w http.ResponseWriter, r *http.Request) {
	var req createReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ReferrerID == uuid.Nil || req.ReferredUserID == uuid.Nil {
		writeFail(w, http.StatusBadRequest, "referrer_id and referred_user_id are required")
		return
	}
	edge, err := h.Referrals.Attribute(r.Context(), req.ReferrerID, req.ReferredUserID)
	if err != nil {
		writeErr(w, logger(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "referral created", Data: edge})
}

// --- POST /admin/referrals/{referredUserId}/deactivate ---

func (h *ReferralHandler) DeactivateReferral(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "referredUserId")
	if !ok {
		return
	}
	edge, err := h.Referrals.Deactivate(r.Context(), id)
	if err != nil {
		writeErr(w, logger(h.Logger), err)
		return
	}
	writeOK(w, "referral deactivated", edge)
}
