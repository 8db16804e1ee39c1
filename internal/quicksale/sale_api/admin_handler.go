package sale_api

import (
	"fmt"
	"net/http"

	"ktu-bizconnect/internal/auth"
	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/utils"
)

// ---------------- AUTH ----------------

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, "Login", err)
		return
	}
	if err := h.Service.Validator.ValidateLogin(&req); err != nil {
		h.writeError(w, "Login", err)
		return
	}

	resp, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, "Login", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "logged in", resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context(), auth.PrincipalFrom(r.Context())); err != nil {
		h.writeError(w, "Logout", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "logged out", nil)
}

// ---------------- SALES ----------------

func (h *Handler) AdminListSales(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		h.writeError(w, "AdminListSales", err)
		return
	}
	filter := models.ListFilter{Limit: limit, Offset: offset}
	if v := r.URL.Query().Get("status"); v != "" {
		status := models.SaleStatus(v)
		filter.Status = &status
	}

	sales, err := h.Service.ListAll(r.Context(), filter)
	if err != nil {
		h.writeError(w, "AdminListSales", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "quick sales retrieved", sales)
}

// AdminGetSale is the sale detail with bidder contacts unmasked.
func (h *Handler) AdminGetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}
	detail, err := h.Service.GetDetail(r.Context(), id, true)
	if err != nil {
		h.writeError(w, "AdminGetSale", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "quick sale retrieved", detail)
}

// SummaryPDF renders the printable hand-over sheet, including the winner's contact.
func (h *Handler) SummaryPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}
	detail, err := h.Service.GetDetail(r.Context(), id, true)
	if err != nil {
		h.writeError(w, "SummaryPDF", err)
		return
	}

	pdf, err := h.Summary.Generate(detail, h.SalePageURL(id), h.Service.Now())
	if err != nil {
		h.writeError(w, "SummaryPDF", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="quick-sale-%s.pdf"`, id))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) UpdateSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}

	var req models.UpdateQuickSaleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, "UpdateSale", err)
		return
	}

	sale, err := h.Service.UpdateSale(r.Context(), id, req)
	if err != nil {
		h.writeError(w, "UpdateSale", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "quick sale updated", sale)
}

func (h *Handler) FinalizeSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}

	result, err := h.Service.Finalize(r.Context(), id)
	if err != nil {
		h.writeError(w, "FinalizeSale", err)
		return
	}

	message := "quick sale finalized"
	if result.AlreadyFinalized {
		message = "quick sale was already finalized"
	}
	if p := auth.PrincipalFrom(r.Context()); p != nil && !result.AlreadyFinalized {
		h.Logger.LogSecurity("FINALIZE", p.Subject+" finalized quick sale "+id)
	}
	utils.WriteSuccess(w, http.StatusOK, message, result)
}

func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteSale(r.Context(), id); err != nil {
		h.writeError(w, "DeleteSale", err)
		return
	}
	if p := auth.PrincipalFrom(r.Context()); p != nil {
		h.Logger.LogSecurity("DELETE", p.Subject+" deleted quick sale "+id)
	}
	utils.WriteSuccess(w, http.StatusOK, "quick sale deleted", map[string]string{"id": id})
}
