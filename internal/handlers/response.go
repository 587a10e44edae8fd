package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mtscoaima/aima-sub007/internal/budget"
	"github.com/mtscoaima/aima-sub007/internal/commission"
	"github.com/mtscoaima/aima-sub007/internal/ledger"
	"github.com/mtscoaima/aima-sub007/internal/middleware"
	"github.com/mtscoaima/aima-sub007/internal/referral"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// writeErr maps domain errors to status codes. Unknown errors are logged and
// reported as 500 without detail.
func writeErr(w http.ResponseWriter, log *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		writeFail(w, status, "internal error")
		return
	}
	writeFail(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, budget.ErrCampaignNotFound), errors.Is(err, referral.ErrEdgeNotFound):
		return http.StatusNotFound
	case errors.Is(err, budget.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, budget.ErrInvalidState),
		errors.Is(err, budget.ErrInsufficientFunds),
		errors.Is(err, referral.ErrActiveReferrerExists),
		errors.Is(err, referral.ErrReferralCycle),
		errors.Is(err, ledger.ErrDuplicateEntry):
		return http.StatusConflict
	case errors.Is(err, referral.ErrSelfReferral),
		errors.Is(err, commission.ErrInvalidSettings),
		errors.Is(err, ledger.ErrInvalidTopUp):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// principal returns the caller or writes 401.
func principal(w http.ResponseWriter, r *http.Request) (*middleware.Principal, bool) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		writeFail(w, http.StatusUnauthorized, "unauthenticated")
		return nil, false
	}
	return p, true
}

// uuidParam parses a chi path parameter or writes 400.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeFail(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
