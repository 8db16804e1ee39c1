package sale_api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ktu-bizconnect/internal/utils"
)

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.RequestLogger)

	r.Get("/healthz", h.Health)

	if h.UploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.UploadsDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/quick-sales", func(r chi.Router) {
			r.Get("/", h.ListSales)
			r.Post("/", h.CreateSale)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSale)
				r.Get("/bids", h.ListBids)
				r.Post("/bids", h.PlaceBid)
				r.Get("/highest", h.GetHighest)
				r.Get("/events", h.Events)
				r.Get("/qr", h.QRCode)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.Auth.RequireAdmin)
				r.Post("/logout", h.Logout)

				r.Route("/quick-sales", func(r chi.Router) {
					r.Get("/", h.AdminListSales)
					r.Get("/{id}", h.AdminGetSale)
					r.Get("/{id}/summary.pdf", h.SummaryPDF)
					r.Put("/{id}", h.UpdateSale)
					r.Post("/{id}/finalize", h.FinalizeSale)
					r.Delete("/{id}", h.DeleteSale)
				})

				if h.Analytics != nil {
					h.Analytics.RegisterRoutes(r)
				}
			})
		})
	})

	return r
}

// Health pings every registered dependency.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.HealthChecks))
	healthy := true
	for name, check := range h.HealthChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	if !healthy {
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.APIResponse{
			Success:   false,
			Message:   "service degraded",
			Code:      "UNAVAILABLE",
			Data:      checks,
			Timestamp: time.Now().UTC(),
		})
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "ok", checks)
}
