package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"envelope/internal/core"
	"envelope/internal/log"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// errorStatus maps ledger errors to a status and a stable error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrClosedAccount):
		return http.StatusConflict, "account_closed"
	case errors.Is(err, core.ErrMonthOutOfOrder):
		return http.StatusConflict, "month_out_of_order"
	case errors.Is(err, core.ErrReserved):
		return http.StatusConflict, "reserved"
	case errors.Is(err, core.ErrInvalidTransaction),
		errors.Is(err, core.ErrInvalidAllocation),
		errors.Is(err, core.ErrInvalidGoal),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidAccountKind),
		errors.Is(err, core.ErrInvalidSettings):
		return http.StatusUnprocessableEntity, "invalid"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// fail writes err as a JSON error. Server faults are logged and their
// details withheld from the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}
