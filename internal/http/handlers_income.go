package http

import (
	"net/http"

	"github.com/splvrdge/savr/internal/core"
	"github.com/splvrdge/savr/internal/log"
	"github.com/splvrdge/savr/internal/middleware/auth"
)

func (s *Server) handleAddIncome(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	requester := auth.UserIDFromContext(r.Context())

	// Ownership is checked before the body is read.
	if err := core.Authorize(requester, userID); err != nil {
		s.fail(w, r, log.OpAddIncome, userID, err)
		return
	}
	entry, err := DecodeEntry(w, r)
	if err != nil {
		s.fail(w, r, log.OpAddIncome, userID, err)
		return
	}

	income, err := s.ledger.AddIncome(r.Context(), requester, userID, entry)
	if err != nil {
		s.fail(w, r, log.OpAddIncome, userID, err)
		return
	}
	Created(income, "Income added successfully").Write(w)
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	incomes, err := s.ledger.ListIncomes(r.Context(), auth.UserIDFromContext(r.Context()), userID)
	if err != nil {
		s.fail(w, r, log.OpListIncomes, userID, err)
		return
	}
	if incomes == nil {
		incomes = []core.Income{}
	}
	OK(incomes).Write(w)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	requester := auth.UserIDFromContext(r.Context())

	id, err := PathID(r, "incomeID")
	if err != nil {
		s.fail(w, r, log.OpUpdateIncome, requester, err)
		return
	}
	entry, err := DecodeEntry(w, r)
	if err != nil {
		s.fail(w, r, log.OpUpdateIncome, requester, err)
		return
	}

	income, err := s.ledger.UpdateIncome(r.Context(), requester, id, entry)
	if err != nil {
		s.fail(w, r, log.OpUpdateIncome, requester, err)
		return
	}
	OK(income).Message("Income updated successfully").Write(w)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	requester := auth.UserIDFromContext(r.Context())

	id, err := PathID(r, "incomeID")
	if err != nil {
		s.fail(w, r, log.OpDeleteIncome, requester, err)
		return
	}
	if err := s.ledger.DeleteIncome(r.Context(), requester, id); err != nil {
		s.fail(w, r, log.OpDeleteIncome, requester, err)
		return
	}
	NewJSONResponse().Message("Income deleted successfully").Write(w)
}
