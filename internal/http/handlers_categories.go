package http

import (
	"net/http"

	"envelope/internal/core"
	"envelope/internal/ledger"
)

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.svc.Budget().CategoryGroups(viewParam(r))
	out := make([]groupView, len(groups))
	for i, g := range groups {
		out[i] = group(g)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	id, err := s.svc.AddCategoryGroup(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		fail(w, r, err)
		return
	}
	g, err := s.svc.Budget().CategoryGroup(id, ledger.ActiveOnly)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group(g))
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.DeleteCategoryGroup(r.Context(), core.CategoryGroupID(id)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	p := s.presenter()
	cats := s.svc.Budget().Categories(viewParam(r))
	out := make([]categoryView, len(cats))
	for i, c := range cats {
		out[i] = p.category(c)
	}
	writeJSON(w, http.StatusOK, out)
}

type createCategoryRequest struct {
	GroupID int64  `json:"group_id"`
	Name    string `json:"name"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	id, err := s.svc.AddCategory(r.Context(), core.CategoryGroupID(req.GroupID), sanitizeInput(req.Name))
	if err != nil {
		fail(w, r, err)
		return
	}
	s.writeCategory(w, r, id, http.StatusCreated)
}

func (s *Server) writeCategory(w http.ResponseWriter, r *http.Request, id core.CategoryID, status int) {
	c, err := s.svc.Budget().Category(id, ledger.ActiveOnly)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, status, s.presenter().category(c))
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	s.writeCategory(w, r, core.CategoryID(id), http.StatusOK)
}

type patchCategoryRequest struct {
	Hidden *bool   `json:"hidden"`
	Note   *string `json:"note"`
}

func (s *Server) handlePatchCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req patchCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	cid := core.CategoryID(id)
	if req.Hidden != nil {
		if err := s.svc.HideCategory(r.Context(), cid, *req.Hidden); err != nil {
			fail(w, r, err)
			return
		}
	}
	if req.Note != nil {
		if err := s.svc.SetCategoryNote(r.Context(), cid, sanitizeInput(*req.Note)); err != nil {
			fail(w, r, err)
			return
		}
	}
	s.writeCategory(w, r, cid, http.StatusOK)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.DeleteCategory(r.Context(), core.CategoryID(id)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type goalRequest struct {
	Kind           string `json:"kind"`
	Target         string `json:"target"`
	ByMonth        string `json:"by_month"`
	FundingBalance string `json:"funding_balance"`
}

func (req goalRequest) goal() (core.Goal, error) {
	kind, err := core.ParseGoalKind(req.Kind)
	if err != nil {
		return core.Goal{}, err
	}
	g := core.Goal{Kind: kind}
	switch kind {
	case core.TargetCategoryBalance, core.TargetCategoryBalanceByDate:
		if g.Target, err = parseAmount("target", req.Target); err != nil {
			return core.Goal{}, err
		}
		if kind == core.TargetCategoryBalanceByDate {
			if g.ByMonth, err = core.ParseMonthKey(req.ByMonth); err != nil {
				return core.Goal{}, err
			}
		}
	case core.MonthlyFunding:
		if g.FundingBalance, err = parseAmount("funding_balance", req.FundingBalance); err != nil {
			return core.Goal{}, err
		}
	}
	return g, nil
}

func (s *Server) handlePutGoal(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req goalRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	g, err := req.goal()
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.SetGoal(r.Context(), core.CategoryID(id), g); err != nil {
		fail(w, r, err)
		return
	}
	s.writeCategory(w, r, core.CategoryID(id), http.StatusOK)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.ClearGoal(r.Context(), core.CategoryID(id)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
