package http

import (
	"net/http"

	"envelope/internal/core"
)

func (s *Server) handleListMonths(w http.ResponseWriter, r *http.Request) {
	p := s.presenter()
	months := s.svc.Budget().Months()
	out := make([]monthView, len(months))
	for i, m := range months {
		out[i] = p.month(m)
	}
	writeJSON(w, http.StatusOK, out)
}

type advanceMonthRequest struct {
	Month string `json:"month"`
}

// handleAdvanceMonth opens the month after the latest one.
func (s *Server) handleAdvanceMonth(w http.ResponseWriter, r *http.Request) {
	var req advanceMonthRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	key, err := core.ParseMonthKey(req.Month)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.AdvanceMonth(r.Context(), key); err != nil {
		fail(w, r, err)
		return
	}
	m, err := s.svc.Budget().Month(key)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.presenter().month(m))
}

func (s *Server) handleMonthReport(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	rep, err := s.svc.MonthReport(r.Context(), key)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.presenter().report(rep))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	d, err := s.svc.Dashboard(r.Context(), key)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.presenter().dashboard(d))
}

type registerRowView struct {
	ID       int64  `json:"id"`
	Date     string `json:"date"`
	Account  string `json:"account"`
	Payee    string `json:"payee,omitempty"`
	Category string `json:"category,omitempty"`
	Memo     string `json:"memo,omitempty"`
	Amount   money  `json:"amount"`
	Cleared  string `json:"cleared"`
}

// handleRegister returns the rows an export of the month would write.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	exp, err := s.svc.MonthExport(r.Context(), key)
	if err != nil {
		fail(w, r, err)
		return
	}
	p := presenter{settings: exp.Settings}
	rows := make([]registerRowView, len(exp.Register))
	for i, row := range exp.Register {
		rows[i] = registerRowView{
			ID: int64(row.ID), Date: p.settings.FormatDate(row.Date), Account: row.Account,
			Payee: row.Payee, Category: row.Category, Memo: row.Memo,
			Amount: p.money(row.Amount), Cleared: row.Cleared.String(),
		}
	}
	writeJSON(w, http.StatusOK, rows)
}

type noteRequest struct {
	Note string `json:"note"`
}

func (s *Server) handlePutMonthNote(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.SetMonthNote(r.Context(), key, sanitizeInput(req.Note)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type budgetedRequest struct {
	Budgeted string `json:"budgeted"`
}

func (s *Server) handleSetBudgeted(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req budgetedRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	amount, err := parseAmount("budgeted", req.Budgeted)
	if err != nil {
		fail(w, r, err)
		return
	}
	cid := core.CategoryID(id)
	if err := s.svc.SetBudgeted(r.Context(), cid, key, amount); err != nil {
		fail(w, r, err)
		return
	}
	cm, err := s.svc.Budget().CategoryMonth(cid, key)
	if err != nil {
		fail(w, r, err)
		return
	}
	p := s.presenter()
	writeJSON(w, http.StatusOK, map[string]any{
		"category_id": id,
		"month":       key.String(),
		"budgeted":    p.money(cm.Budgeted),
		"activity":    p.money(cm.Activity),
		"balance":     p.money(cm.Balance),
	})
}
