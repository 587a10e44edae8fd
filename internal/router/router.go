package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtscoaima/aima-sub007/internal/handlers"
	"github.com/mtscoaima/aima-sub007/internal/middleware"
)

// Handlers groups everything mounted under /api/v1.
type Handlers struct {
	Campaigns *handlers.CampaignHandler
	Ledger    *handlers.LedgerHandler
	Referrals *handlers.ReferralHandler
	Settings  *handlers.SettingsHandler
}

// New returns the service's http.Handler: /healthz and /metrics at the root,
// the authenticated API under /api/v1 and its admin surface under /api/v1/admin.
func New(h Handlers, tokens middleware.TokenValidator) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.JWTAuth(tokens))

		r.Post("/campaigns/{id}/reserve", h.Campaigns.Reserve)

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/balance", h.Ledger.Balance)
			r.Get("/entries", h.Ledger.Entries)
		})

		r.Route("/referrals", func(r chi.Router) {
			r.Get("/downline", h.Referrals.GetDownline)
			r.Get("/rewards", h.Referrals.GetRewards)
			r.Get("/chain", h.Referrals.GetChain)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Post("/campaigns/{id}/approve", h.Campaigns.Approve)
			r.Post("/campaigns/{id}/reject", h.Campaigns.Reject)

			r.Post("/ledger/topups", h.Ledger.TopUp)

			r.Post("/referrals", h.Referrals.CreateReferral)
			r.Post("/referrals/{referredUserId}/deactivate", h.Referrals.DeactivateReferral)

			r.Get("/settings/commission", h.Settings.GetCommission)
			r.Put("/settings/commission", h.Settings.PutCommission)
		})
	})
	return r
}
