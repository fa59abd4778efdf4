package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/splvrdge/savr/internal/core"
	"github.com/splvrdge/savr/internal/storage"
)

const (
	DefaultHistoryLimit = 50
	DefaultHistoryMax   = 100
)

var (
	errNegativeOffset = fmt.Errorf("%w: offset must not be negative", core.ErrValidation)
	errDateRange      = fmt.Errorf("%w: end_date is before start_date", core.ErrValidation)
)

// ReportingService reads summaries and transaction history. It never writes
// and runs its queries on the pool without a transaction.
type ReportingService struct {
	repo     *storage.Repository
	maxLimit int
}

// NewReportingService creates a reporting service. maxLimit caps the page
// size of the history; values <= 0 select DefaultHistoryMax.
func NewReportingService(repo *storage.Repository, maxLimit int) *ReportingService {
	if maxLimit <= 0 {
		maxLimit = DefaultHistoryMax
	}
	return &ReportingService{repo: repo, maxLimit: maxLimit}
}

// GetSummary recomputes the user's figures from the live incomes and expenses.
func (s *ReportingService) GetSummary(ctx context.Context, requester, userID string) (core.Summary, error) {
	if err := core.Authorize(requester, userID); err != nil {
		return core.Summary{}, fmt.Errorf("get summary: %w", err)
	}
	summary, err := s.computeSummary(ctx, userID)
	if err != nil {
		return core.Summary{}, fmt.Errorf("get summary: %w", err)
	}
	return summary, nil
}

func (s *ReportingService) computeSummary(ctx context.Context, userID string) (core.Summary, error) {
	q := s.repo.Queries()

	var (
		incomes  storage.IncomeTotals
		expenses storage.ExpenseTotals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incomes, err = q.GetIncomeTotals(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = q.GetExpenseTotals(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Summary{}, err
	}

	return core.Summary{
		UserID:          userID,
		TotalIncome:     core.Money{Cents: incomes.TotalCents},
		TotalExpenses:   core.Money{Cents: expenses.TotalCents},
		CurrentBalance:  core.Money{Cents: incomes.TotalCents - expenses.TotalCents},
		NetSavings:      core.Money{Cents: expenses.SavingsCents},
		LastIncomeDate:  incomes.Last,
		LastExpenseDate: expenses.Last,
	}, nil
}

// GetTransactionHistory merges incomes and expenses into one
// timestamp-descending list and returns the requested page of it.
func (s *ReportingService) GetTransactionHistory(ctx context.Context, requester, userID string, f core.HistoryFilter) (core.HistoryPage, error) {
	if err := core.Authorize(requester, userID); err != nil {
		return core.HistoryPage{}, fmt.Errorf("transaction history: %w", err)
	}
	f, err := s.normalizeFilter(f)
	if err != nil {
		return core.HistoryPage{}, fmt.Errorf("transaction history: %w", err)
	}

	q := s.repo.Queries()
	var incomes, expenses []core.Transaction
	g, gctx := errgroup.WithContext(ctx)
	if f.Includes(core.TransactionIncome) {
		g.Go(func() error {
			var err error
			incomes, err = q.ListIncomeHistory(gctx, userID, f)
			return err
		})
	}
	if f.Includes(core.TransactionExpense) {
		g.Go(func() error {
			var err error
			expenses, err = q.ListExpenseHistory(gctx, userID, f)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return core.HistoryPage{}, fmt.Errorf("transaction history: %w", err)
	}

	merged := mergeHistory(incomes, expenses)
	return core.HistoryPage{
		Transactions: paginate(merged, f.Offset, f.Limit),
		Total:        len(merged),
		Limit:        f.Limit,
		Offset:       f.Offset,
	}, nil
}

func (s *ReportingService) normalizeFilter(f core.HistoryFilter) (core.HistoryFilter, error) {
	if f.Offset < 0 {
		return f, errNegativeOffset
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return f, errDateRange
	}
	if _, err := core.ParseTransactionType(string(f.Type)); err != nil {
		return f, err
	}
	switch {
	case f.Limit <= 0:
		f.Limit = min(DefaultHistoryLimit, s.maxLimit)
	case f.Limit > s.maxLimit:
		f.Limit = s.maxLimit
	}
	return f, nil
}

// mergeHistory builds the sorted history: newest first, later projection rows
// first within the same second.
func mergeHistory(incomes, expenses []core.Transaction) []core.Transaction {
	merged := make([]core.Transaction, 0, len(incomes)+len(expenses))
	merged = append(merged, incomes...)
	merged = append(merged, expenses...)

	slices.SortFunc(merged, func(a, b core.Transaction) int {
		if c := b.Timestamp.Compare(a.Timestamp.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return merged
}

func paginate(all []core.Transaction, offset, limit int) []core.Transaction {
	if offset >= len(all) {
		return []core.Transaction{}
	}
	end := min(offset+limit, len(all))
	return all[offset:end]
}

// GetTransactionDetails returns one projection row owned by the user.
func (s *ReportingService) GetTransactionDetails(ctx context.Context, requester, userID string, transactionID int64) (core.Transaction, error) {
	if err := core.Authorize(requester, userID); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction details: %w", err)
	}
	t, err := s.repo.Queries().GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction details: %w", err)
	}
	return t, nil
}

// Reconcile compares the cached summary row against the recomputed view. A
// user without a cached row is compared against zeros.
func (s *ReportingService) Reconcile(ctx context.Context, requester, userID string) (core.Reconciliation, error) {
	if err := core.Authorize(requester, userID); err != nil {
		return core.Reconciliation{}, fmt.Errorf("reconcile: %w", err)
	}

	cached, err := s.repo.Queries().GetSummary(ctx, userID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		cached = core.Summary{UserID: userID}
	case err != nil:
		return core.Reconciliation{}, fmt.Errorf("reconcile: %w", err)
	}

	computed, err := s.computeSummary(ctx, userID)
	if err != nil {
		return core.Reconciliation{}, fmt.Errorf("reconcile: %w", err)
	}
	return core.NewReconciliation(cached, computed), nil
}
