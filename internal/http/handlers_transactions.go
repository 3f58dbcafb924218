package http

import (
	"net/http"

	"envelope/internal/core"
	"envelope/internal/ledger"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.TransactionFilter{View: viewParam(r)}
	account, err := optionalID(q.Get("account"))
	if err != nil {
		fail(w, r, err)
		return
	}
	category, err := optionalID(q.Get("category"))
	if err != nil {
		fail(w, r, err)
		return
	}
	payee, err := optionalID(q.Get("payee"))
	if err != nil {
		fail(w, r, err)
		return
	}
	f.Account, f.Category, f.Payee = core.AccountID(account), core.CategoryID(category), core.PayeeID(payee)
	if raw := q.Get("from"); raw != "" {
		if f.From, err = parseDate(raw); err != nil {
			fail(w, r, err)
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if f.To, err = parseDate(raw); err != nil {
			fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.presenter().transactions(s.svc.Budget().Transactions(f)))
}

type transactionRequest struct {
	Date              string `json:"date"`
	Amount            string `json:"amount"`
	AccountID         int64  `json:"account_id"`
	PayeeID           int64  `json:"payee_id"`
	CategoryID        int64  `json:"category_id"`
	TransferAccountID int64  `json:"transfer_account_id"`
	Memo              string `json:"memo"`
	Cleared           string `json:"cleared"`
	Approved          bool   `json:"approved"`
	FlagColor         string `json:"flag_color"`
}

func (req transactionRequest) transaction() (core.Transaction, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	cleared, err := core.ParseClearedStatus(req.Cleared)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Date:            date,
		Amount:          amount,
		Account:         core.AccountID(req.AccountID),
		Payee:           core.PayeeID(req.PayeeID),
		Category:        core.CategoryID(req.CategoryID),
		TransferAccount: core.AccountID(req.TransferAccountID),
		Memo:            sanitizeInput(req.Memo),
		Cleared:         cleared,
		Approved:        req.Approved,
		FlagColor:       core.FlagColor(req.FlagColor),
	}, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	tx, err := req.transaction()
	if err != nil {
		fail(w, r, err)
		return
	}
	stored, err := s.svc.RecordTransaction(r.Context(), tx)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.presenter().transaction(stored))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	tx, err := s.svc.Budget().Transaction(core.TransactionID(id), viewParam(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.presenter().transaction(tx))
}

// handleUpdateTransaction replaces every field of a transaction.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	tx, err := req.transaction()
	if err != nil {
		fail(w, r, err)
		return
	}
	stored, err := s.svc.UpdateTransaction(r.Context(), core.TransactionID(id), tx)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.presenter().transaction(stored))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.DeleteTransaction(r.Context(), core.TransactionID(id)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type approveRequest struct {
	Approved bool `json:"approved"`
}

func (s *Server) handleApproveTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req approveRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.ApproveTransaction(r.Context(), core.TransactionID(id), req.Approved); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
