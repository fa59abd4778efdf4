package http

import (
	"net/http"

	"github.com/splvrdge/savr/internal/log"
	"github.com/splvrdge/savr/internal/middleware/auth"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	summary, err := s.reporting.GetSummary(r.Context(), auth.UserIDFromContext(r.Context()), userID)
	if err != nil {
		s.fail(w, r, log.OpGetSummary, userID, err)
		return
	}
	OK(summary).Write(w)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	rec, err := s.reporting.Reconcile(r.Context(), auth.UserIDFromContext(r.Context()), userID)
	if err != nil {
		s.fail(w, r, log.OpReconcile, userID, err)
		return
	}
	if !rec.Consistent {
		s.logger.WarnContext(r.Context(), "Cached summary drifted from ledger",
			log.FieldUserID, userID,
			"drift_income", rec.Drift.TotalIncome.String(),
			"drift_expenses", rec.Drift.TotalExpenses.String(),
			"drift_balance", rec.Drift.CurrentBalance.String())
	}
	OK(rec).Write(w)
}

// handleTransactionHistory serves the merged income and expense history.
// Query: start_date, end_date (YYYY-MM-DD), type, category, limit, offset.
func (s *Server) handleTransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	filter, err := ParseHistoryFilter(r.URL.Query())
	if err != nil {
		s.fail(w, r, log.OpTransactionHistory, userID, err)
		return
	}

	page, err := s.reporting.GetTransactionHistory(r.Context(), auth.UserIDFromContext(r.Context()), userID, filter)
	if err != nil {
		s.fail(w, r, log.OpTransactionHistory, userID, err)
		return
	}
	OK(page).Write(w)
}

func (s *Server) handleTransactionDetails(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	id, err := PathID(r, "transactionID")
	if err != nil {
		s.fail(w, r, log.OpTransactionDetails, userID, err)
		return
	}

	tx, err := s.reporting.GetTransactionDetails(r.Context(), auth.UserIDFromContext(r.Context()), userID, id)
	if err != nil {
		s.fail(w, r, log.OpTransactionDetails, userID, err)
		return
	}
	OK(tx).Write(w)
}
