package sale_api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"

	"ktu-bizconnect/internal/saleerrors"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

// QRCode renders a PNG QR code pointing at the public sale page, for posters around campus.
func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}

	size := defaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > maxQRSize {
			h.writeError(w, "QRCode", saleerrors.Validation("size must be between 64 and %d", maxQRSize))
			return
		}
		size = n
	}

	if _, err := h.Service.GetSale(r.Context(), id); err != nil {
		h.writeError(w, "QRCode", err)
		return
	}

	png, err := qrcode.Encode(h.SalePageURL(id), qrcode.Medium, size)
	if err != nil {
		h.writeError(w, "QRCode", fmt.Errorf("encode QR code: %w", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) SalePageURL(id string) string {
	return strings.TrimRight(h.PublicBaseURL, "/") + "/quick-sales/" + id
}
