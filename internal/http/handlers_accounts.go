package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	in, err := req.toNewAccount()
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	a, err := s.svc.Accounts.CreateAccount(r.Context(), in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, newAccountResponse(a))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	includeArchived, err := parseBoolParam(r.URL.Query(), "include_archived", false)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	accounts, err := s.svc.Accounts.ListAccounts(r.Context(), includeArchived)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newList(accounts, newAccountResponse))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Accounts.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newAccountResponse(a))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Accounts.DeleteAccount(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArchiveAccount(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := s.svc.Accounts.SetArchived(r.Context(), id, archived); err != nil {
			writeError(w, r, log.OpUpdate, err)
			return
		}
		a, err := s.svc.Accounts.GetAccount(r.Context(), id)
		if err != nil {
			writeError(w, r, log.OpRead, err)
			return
		}
		writeJSON(w, r, http.StatusOK, newAccountResponse(a))
	}
}

// handleBalanceCheck compares the stored balance with the journal. It never
// repairs; that is fintrack-maint's job.
func (s *Server) handleBalanceCheck(w http.ResponseWriter, r *http.Request) {
	if s.svc.Balances == nil {
		writeJSON(w, r, http.StatusNotImplemented, errorResponse{Error: "balance checks are not enabled"})
		return
	}
	d, err := s.svc.Balances.Check(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpReconcile, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newDriftResponse(d))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	typ := core.CategoryType(strings.ToLower(strings.TrimSpace(req.Type)))
	c, err := s.svc.Accounts.CreateCategory(r.Context(), sanitizeInput(req.Name), typ)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, newCategoryResponse(c))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.svc.Accounts.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newList(categories, newCategoryResponse))
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Accounts.GetCategory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newCategoryResponse(c))
}
