package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mtscoaima/aima-sub007/internal/budget"
)

// BudgetController abstracts the campaign budget transitions.
type BudgetController interface {
	Reserve(ctx context.Context, campaignID uuid.UUID, actor budget.Actor) (budget.Result, error)
	Approve(ctx context.Context, campaignID uuid.UUID, actor budget.Actor) (budget.Result, error)
	Reject(ctx context.Context, campaignID uuid.UUID, actor budget.Actor) (budget.Result, error)
}

// CampaignHandler serves the campaign budget endpoints.
type CampaignHandler struct {
	Budget BudgetController
	Logger *slog.Logger
}

type transition func(ctx context.Context, campaignID uuid.UUID, actor budget.Actor) (budget.Result, error)

// --- POST /campaigns/{id}/reserve ---

func (h *CampaignHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.Budget.Reserve)
}

// --- POST /admin/campaigns/{id}/approve ---

func (h *CampaignHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.Budget.Approve)
}

// --- POST /admin/campaigns/{id}/reject ---

func (h *CampaignHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.Budget.Reject)
}

func (h *CampaignHandler) run(w http.ResponseWriter, r *http.Request, fn transition) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	res, err := fn(r.Context(), id, budget.Actor{UserID: p.UserID, Admin: p.IsAdmin()})
	if err != nil {
		writeErr(w, logger(h.Logger).With("campaign_id", id), err)
		return
	}
	writeOK(w, res.Message, res)
}
