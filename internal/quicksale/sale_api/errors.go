package sale_api

import (
	"errors"
	"fmt"
	"net/http"

	"ktu-bizconnect/internal/saleerrors"
	"ktu-bizconnect/internal/utils"
)

// MapErrorToHTTP maps an error kind to its status code and response code.
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, saleerrors.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, saleerrors.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, saleerrors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, saleerrors.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status, code := MapErrorToHTTP(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, status, "internal server error", code, "")
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))
	utils.WriteError(w, status, saleerrors.Message(err), code, "")
}
