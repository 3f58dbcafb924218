package http

import (
	"net/http"

	"envelope/internal/core"
	"envelope/internal/log"
)

func (s *Server) presenter() presenter {
	return presenter{settings: s.svc.Budget().Settings()}
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	b := s.svc.Budget()
	body := map[string]any{
		"name":               b.Name(),
		"settings":           settings(b.Settings()),
		"inflow_category_id": int64(b.InflowCategory()),
	}
	if latest, ok := b.LatestMonth(); ok {
		body["latest_month"] = latest.String()
	}
	writeJSON(w, http.StatusOK, body)
}

type settingsRequest struct {
	Currency   string `json:"currency"`
	DateFormat string `json:"date_format"`
}

// handlePutSettings switches the currency preset and optionally the date layout.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	st, err := core.SettingsFor(core.CurrencyISOCode(req.Currency))
	if err != nil {
		fail(w, r, err)
		return
	}
	if req.DateFormat != "" {
		st.DateFormat = core.DateFormat(req.DateFormat)
	}
	if err := s.svc.SetSettings(r.Context(), st); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings(st))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Verify(r.Context()); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Budget verification failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "inconsistent", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "consistent"})
}
