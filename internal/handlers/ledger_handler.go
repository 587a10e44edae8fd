package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/mtscoaima/aima-sub007/internal/models"
)

const (
	defaultEntriesLimit = 50
	maxEntriesLimit     = 200
)

type LedgerService interface {
	TopUp(ctx context.Context, userID uuid.UUID, amount int64, referenceID, description string) (*models.LedgerEntry, error)
	Balance(ctx context.Context, userID uuid.UUID) (models.Balance, error)
	Entries(ctx context.Context, userID uuid.UUID, limit int) ([]*models.LedgerEntry, error)
	RewardTotals(ctx context.Context, userID uuid.UUID) (models.RewardTotals, error)
}

type LedgerHandler struct {
	Ledger LedgerService
	Logger *slog.Logger
}

// --- GET /ledger/balance ---

func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	b, err := h.Ledger.Balance(r.Context(), p.UserID)
	if err != nil {
		writeErr(w, logger(h.Logger), err)
		return
	}
	writeOK(w, "", b)
}

// --- GET /ledger/entries?limit=N ---

func (h *LedgerHandler) Entries(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	limit := defaultEntriesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeFail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEntriesLimit)
	}
	entries, err := h.Ledger.Entries(r.Context(), p.UserID, limit)
	if err != nil {
		writeErr(w, logger(h.Logger), err)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeOK(w, "", entries)
}

type topUpRequest struct {
	UserID      uuid.UUID `json:"user_id"`
	Amount      int64     `json:"amount"`
	ReferenceID string    `json:"reference_id"`
	Description string    `json:"description"`
}

// --- POST /admin/ledger/topups ---
// reference_id is the payment's external id; replaying it yields 409.

func (h *LedgerHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == uuid.Nil {
		writeFail(w, http.StatusBadRequest, "user_id is required")
		return
	}
	e, err := h.Ledger.TopUp(r.Context(), req.UserID, req.Amount, req.ReferenceID, req.Description)
	if err != nil {
		writeErr(w, logger(h.Logger), err)
		return
	}
	logger(h.Logger).Info("balance topped up", "user_id", e.UserID, "amount", e.Amount, "reference_id", e.ReferenceID)
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "balance topped up", Data: e})
}
