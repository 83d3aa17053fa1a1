package v1

import (
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tinoosan/daybook/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "bad_request") }
func unprocessable(w http.ResponseWriter, msg, code string) {
	writeErr(w, http.StatusUnprocessableEntity, msg, code)
}

// writeServiceErr maps domain errors onto status codes. Unknown errors are
// logged and reported as 500 without detail.
func (s *Server) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *errs.ValidationError
		nf *errs.NotFoundError
		ce *errs.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		unprocessable(w, ve.Error(), "invalid_"+ve.Field)
	case errors.Is(err, errs.ErrInvalid), errors.Is(err, errs.ErrUnprocessable):
		unprocessable(w, err.Error(), "validation_error")
	case errors.As(err, &nf):
		writeErr(w, http.StatusNotFound, nf.Error(), "not_found")
	case errors.Is(err, errs.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", "not_found")
	case errors.As(err, &ce):
		writeErr(w, http.StatusConflict, err.Error(), ce.Code)
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error(), "conflict")
	default:
		s.log.Error("request failed", "req_id", chimw.GetReqID(r.Context()), "method", r.Method, "path", r.URL.Path, "err", err)
		writeErr(w, http.StatusInternalServerError, "internal error", "internal")
	}
}
