package analytics_api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ktu-bizconnect/internal/analytics"
	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/quicksale/sale_api"
	"ktu-bizconnect/internal/saleerrors"
	"ktu-bizconnect/internal/utils"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  logger,
	}
}

// RegisterRoutes registers the analytics routes on a chi router. The caller applies admin auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/overview", h.GetOverview)
		r.Get("/daily", h.GetDaily)
		r.Get("/quick-sales/{id}", h.GetSaleAnalytics)
	})
}

func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.Service.GetOverview(r.Context())
	if err != nil {
		h.writeError(w, "GetOverview", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "analytics overview", overview)
}

func (h *Handler) GetDaily(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, "GetDaily", saleerrors.Validation("days must be a positive integer"))
			return
		}
		days = n
	}

	metrics, err := h.Service.GetDaily(r.Context(), days)
	if err != nil {
		h.writeError(w, "GetDaily", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "daily analytics", metrics)
}

func (h *Handler) GetSaleAnalytics(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.CanonicalUUID(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, "GetSaleAnalytics", saleerrors.ErrSaleNotFound)
		return
	}

	result, err := h.Service.GetSaleAnalytics(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetSaleAnalytics", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "sale analytics", result)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status, code := sale_api.MapErrorToHTTP(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, status, "internal server error", code, "")
		return
	}
	utils.WriteError(w, status, saleerrors.Message(err), code, "")
}
