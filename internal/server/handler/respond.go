package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	shared "github.com/ramonsune/custodia-360-sub010/internal/shared/domain"
)

const MissingDatastore = "missing datastore configuration"

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorReply{OK: false, Error: msg})
}

// WriteErr maps service errors to a status code. Unexpected errors are logged
// and reported without detail.
func WriteErr(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &verr), errors.Is(err, shared.ErrInvalid):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrNotExist):
		WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, shared.ErrConflict):
		WriteError(w, http.StatusConflict, "conflict")
	case errors.Is(err, shared.ErrForbidden):
		WriteError(w, http.StatusForbidden, "forbidden")
	default:
		if logger != nil {
			logger.Error().Err(err).Msg("request failed")
		}
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// DecodeJSON decodes the body into v and validates it.
func DecodeJSON(r *http.Request, v any, validate *validator.Validate) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalid, err)
	}
	return validate.StructCtx(r.Context(), v)
}
