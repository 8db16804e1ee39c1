package sale_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ktu-bizconnect/internal/auth"
	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/quicksale"
	"ktu-bizconnect/internal/quicksale/summary"
	"ktu-bizconnect/internal/saleerrors"
	"ktu-bizconnect/internal/sse"
	"ktu-bizconnect/internal/utils"
)

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = 64 << 20
	defaultPageSize  = 50
	maxPageSize      = 100
)

type Handler struct {
	Service       *quicksale.Service
	Auth          *auth.Authenticator
	Emitter       *sse.SaleEventEmitter
	Logger        *logger.Logger
	PublicBaseURL string
	TickInterval  time.Duration
	UploadsDir    string // served at /uploads when images are stored locally
	Summary       *summary.PDFGenerator
	Analytics     RouteRegistrar // mounted under /api/admin when set
	HealthChecks  map[string]func(ctx context.Context) error
}

// RouteRegistrar adds routes to a router; used for admin-only extensions.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

func NewHandler(svc *quicksale.Service, authenticator *auth.Authenticator, emitter *sse.SaleEventEmitter, log *logger.Logger) *Handler {
	return &Handler{
		Service:      svc,
		Auth:         authenticator,
		Emitter:      emitter,
		Logger:       log,
		TickInterval: time.Second,
		Summary:      summary.NewPDFGenerator(nil),
		HealthChecks: map[string]func(ctx context.Context) error{},
	}
}

// ---------------- PUBLIC ----------------

// CreateSale accepts either a JSON body or multipart/form-data with the JSON in a "sale"
// field and product photos in "images_<product index>" file fields.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQuickSaleRequest
	var images []quicksale.ImageUpload

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			h.writeError(w, "CreateSale", saleerrors.Validation("invalid multipart body: %v", err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		if err := json.Unmarshal([]byte(r.FormValue("sale")), &req); err != nil {
			h.writeError(w, "CreateSale", decodeErr(err))
			return
		}

		var files []multipart.File
		defer func() {
			for _, f := range files {
				f.Close()
			}
		}()
		for field, headers := range r.MultipartForm.File {
			product, err := productIndex(field)
			if err != nil {
				h.writeError(w, "CreateSale", err)
				return
			}
			for _, fh := range headers {
				f, err := fh.Open()
				if err != nil {
					h.writeError(w, "CreateSale", fmt.Errorf("open %s: %w", fh.Filename, err))
					return
				}
				files = append(files, f)
				images = append(images, quicksale.ImageUpload{Product: product, Filename: fh.Filename, Content: f})
			}
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, "CreateSale", err)
		return
	}

	detail, err := h.Service.CreateSale(r.Context(), req, images)
	if err != nil {
		h.writeError(w, "CreateSale", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "quick sale created", detail)
}

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		h.writeError(w, "ListSales", err)
		return
	}
	sales, err := h.Service.ListActive(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "ListSales", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "quick sales retrieved", sales)
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}
	detail, err := h.Service.GetDetail(r.Context(), id, false)
	if err != nil {
		h.writeError(w, "GetSale", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "quick sale retrieved", detail)
}

func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}
	bids, err := h.Service.GetBids(r.Context(), id, false)
	if err != nil {
		h.writeError(w, "ListBids", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "bids retrieved", bids)
}

func (h *Handler) GetHighest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}
	highest, err := h.Service.GetHighest(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetHighest", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "highest bid retrieved", map[string]any{
		"sale_id":     id,
		"highest_bid": highest,
	})
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}

	var req models.PlaceBidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, "PlaceBid", err)
		return
	}

	bid, err := h.Service.PlaceBid(r.Context(), id, req)
	if err != nil {
		h.writeError(w, "PlaceBid", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "bid placed", bid)
}

// ---------------- HELPERS ----------------

// saleID reads {id} from the path. Anything that is not a UUID cannot be a sale.
func (h *Handler) saleID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := utils.CanonicalUUID(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, "saleID", saleerrors.ErrSaleNotFound)
		return "", false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return decodeErr(err)
	}
	return nil
}

func decodeErr(err error) error {
	// Money reports its own validation errors from UnmarshalJSON
	if errors.Is(err, saleerrors.ErrValidation) {
		return err
	}
	if errors.Is(err, io.EOF) {
		return saleerrors.Validation("request body is empty")
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return saleerrors.Validation("%s has the wrong type", typeErr.Field)
	}
	return saleerrors.Validation("invalid request body: %v", err)
}

func productIndex(field string) (int, error) {
	suffix, ok := strings.CutPrefix(field, "images_")
	if !ok {
		return 0, saleerrors.Validation("unexpected file field %q, use images_<product index>", field)
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0, saleerrors.Validation("unexpected file field %q, use images_<product index>", field)
	}
	return n, nil
}

func paging(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, saleerrors.Validation("limit must be a positive integer")
		}
		limit = min(limit, maxPageSize)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, saleerrors.Validation("offset must be zero or more")
		}
	}
	return limit, offset, nil
}
