package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"envelope/internal/core"
	"envelope/internal/ledger"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed input that never reached the ledger.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	if dec.More() {
		return badRequest("body must hold a single JSON object")
	}
	return nil
}

// idParam parses a positive integer URL parameter.
func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

// monthParam parses a "YYYY-MM" URL parameter.
func monthParam(r *http.Request) (core.MonthKey, error) {
	return core.ParseMonthKey(chi.URLParam(r, "month"))
}

// optionalID parses an id query value; empty means unset.
func optionalID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id %q", raw)
	}
	return id, nil
}

// parseDate reads dates in ISO form (YYYY-MM-DD).
func parseDate(s string) (core.Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return core.Date{}, fmt.Errorf("date %q: %w", s, core.ErrInvalidDate)
	}
	return core.DateOf(t), nil
}

// parseAmount reads a decimal amount string such as "-12.34".
func parseAmount(field, s string) (core.Money, error) {
	m, err := core.ParseMilliunits(s)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", field, s, err)
	}
	return m, nil
}

func viewParam(r *http.Request) ledger.View {
	if v, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted")); v {
		return ledger.IncludeDeleted
	}
	return ledger.ActiveOnly
}

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
