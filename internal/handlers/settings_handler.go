package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mtscoaima/aima-sub007/internal/commission"
	"github.com/mtscoaima/aima-sub007/internal/schema"
)

// SettingsReader yields the raw stored document, nil when no row exists.
type SettingsReader interface {
	Get(ctx context.Context) ([]byte, error)
}

type SettingsSaver interface {
	Save(ctx context.Context, s commission.Settings) error
}

type SettingsHandler struct {
	Source    SettingsReader
	Store     SettingsSaver
	Validator *schema.Validator
	Logger    *slog.Logger
}

type commissionView struct {
	FirstLevelRatePercent json.Number `json:"firstLevelRatePercent"`
	NthLevelDenominator   int64       `json:"nthLevelDenominator"`
	Stored                bool        `json:"stored"`
}

func viewOf(s commission.Settings, stored bool) commissionView {
	return commissionView{
		FirstLevelRatePercent: json.Number(s.FirstLevelRatePercent.String()),
		NthLevelDenominator:   s.NthLevelDenominator,
		Stored:                stored,
	}
}

// --- GET /admin/settings/commission ---
// Returns the effective settings. stored is false when the defaults are in
// effect because the row is missing or invalid. Reading here is not a
// distribution, so the fallback counter is left alone.

func (h *SettingsHandler) GetCommission(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Source.Get(r.Context())
	if err != nil {
		writeErr(w, logger(h.Logger), err)
		return
	}
	if raw == nil {
		writeOK(w, "no commission settings stored, defaults in effect", viewOf(commission.DefaultSettings(), false))
		return
	}
	s, err := commission.Decode(raw, h.Validator)
	if err != nil {
		logger(h.Logger).Warn("stored commission settings are invalid", "error", err)
		writeOK(w, "stored commission settings are invalid, defaults in effect", viewOf(commission.DefaultSettings(), false))
		return
	}
	writeOK(w, "", viewOf(s, true))
}

// --- PUT /admin/settings/commission ---

func (h *SettingsHandler) PutCommission(w http.ResponseWriter, r *http.Request) {
	var s commission.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.Store.Save(r.Context(), s); err != nil {
		writeErr(w, logger(h.Logger), err)
		return
	}
	logger(h.Logger).Info("commission settings updated",
		"first_level_rate_percent", s.FirstLevelRatePercent.String(), "nth_level_denominator", s.NthLevelDenominator)
	writeOK(w, "commission settings updated", s)
}
