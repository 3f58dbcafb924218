package http

import (
	"context"
	"net/http"

	"envelope/internal/core"
	"envelope/internal/ledger"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	p := s.presenter()
	accounts := s.svc.Budget().Accounts(viewParam(r))
	out := make([]accountView, len(accounts))
	for i, a := range accounts {
		out[i] = p.account(a)
	}
	writeJSON(w, http.StatusOK, out)
}

type createAccountRequest struct {
	Name            string `json:"name"`
	Kind            string `json:"kind"`
	OnBudget        bool   `json:"on_budget"`
	Note            string `json:"note"`
	StartingBalance string `json:"starting_balance"`
	Date            string `json:"date"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	kind, err := core.ParseAccountKind(req.Kind)
	if err != nil {
		fail(w, r, err)
		return
	}
	na := ledger.NewAccount{
		Name:     sanitizeInput(req.Name),
		Kind:     kind,
		OnBudget: req.OnBudget,
		Note:     sanitizeInput(req.Note),
	}
	if req.StartingBalance != "" {
		if na.StartingBalance, err = parseAmount("starting_balance", req.StartingBalance); err != nil {
			fail(w, r, err)
			return
		}
		if na.Date, err = parseDate(req.Date); err != nil {
			fail(w, r, err)
			return
		}
	}

	id, err := s.svc.AddAccount(r.Context(), na)
	if err != nil {
		fail(w, r, err)
		return
	}
	a, err := s.svc.Budget().Account(id, ledger.ActiveOnly)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.presenter().account(a))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	rep, err := s.svc.Budget().AccountReport(core.AccountID(id))
	if err != nil {
		fail(w, r, err)
		return
	}
	p := s.presenter()
	writeJSON(w, http.StatusOK, struct {
		accountView
		Transactions []transactionView `json:"transactions"`
	}{p.account(rep.Account), p.transactions(rep.Transactions)})
}

// accountAction adapts a body-less account operation to a handler answering 204.
func accountAction(fn func(context.Context, core.AccountID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			fail(w, r, err)
			return
		}
		if err := fn(r.Context(), core.AccountID(id)); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	n, err := s.svc.Reconcile(r.Context(), core.AccountID(id))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reconciled": n})
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListPayees(w http.ResponseWriter, r *http.Request) {
	payees := s.svc.Budget().Payees(viewParam(r))
	out := make([]payeeView, len(payees))
	for i, py := range payees {
		out[i] = payee(py)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePayee(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	id, err := s.svc.AddPayee(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		fail(w, r, err)
		return
	}
	py, err := s.svc.Budget().Payee(id, ledger.ActiveOnly)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payee(py))
}

func (s *Server) handleDeletePayee(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.DeletePayee(r.Context(), core.PayeeID(id)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
