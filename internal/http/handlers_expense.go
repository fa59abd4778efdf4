package http

import (
	"net/http"

	"github.com/splvrdge/savr/internal/core"
	"github.com/splvrdge/savr/internal/log"
	"github.com/splvrdge/savr/internal/middleware/auth"
)

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	requester := auth.UserIDFromContext(r.Context())

	// Ownership is checked before the body is read.
	if err := core.Authorize(requester, userID); err != nil {
		s.fail(w, r, log.OpAddExpense, userID, err)
		return
	}
	entry, err := DecodeEntry(w, r)
	if err != nil {
		s.fail(w, r, log.OpAddExpense, userID, err)
		return
	}

	expense, err := s.ledger.AddExpense(r.Context(), requester, userID, entry)
	if err != nil {
		s.fail(w, r, log.OpAddExpense, userID, err)
		return
	}
	Created(expense, "Expense added successfully").Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	expenses, err := s.ledger.ListExpenses(r.Context(), auth.UserIDFromContext(r.Context()), userID)
	if err != nil {
		s.fail(w, r, log.OpListExpenses, userID, err)
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	OK(expenses).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	requester := auth.UserIDFromContext(r.Context())

	id, err := PathID(r, "expenseID")
	if err != nil {
		s.fail(w, r, log.OpDeleteExpense, requester, err)
		return
	}
	if err := s.ledger.DeleteExpense(r.Context(), requester, id); err != nil {
		s.fail(w, r, log.OpDeleteExpense, requester, err)
		return
	}
	NewJSONResponse().Message("Expense deleted successfully").Write(w)
}
