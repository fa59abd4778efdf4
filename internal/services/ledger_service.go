package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/splvrdge/savr/internal/amqp"
	"github.com/splvrdge/savr/internal/core"
	"github.com/splvrdge/savr/internal/storage"
)

// EventPublisher announces committed ledger mutations.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// LedgerService keeps incomes, expenses, the transaction projection and the
// cached summary row consistent. Every mutation is one database transaction.
type LedgerService struct {
	repo      *storage.Repository
	publisher EventPublisher
	now       func() time.Time
}

type LedgerOption func(*LedgerService)

// WithClock overrides the clock used for server-assigned timestamps.
func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

// NewLedgerService creates a ledger service. publisher may be nil, in which
// case no events are emitted.
func NewLedgerService(repo *storage.Repository, publisher EventPublisher, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) timestamp() core.Timestamp {
	return core.NewTimestamp(s.now())
}

// prepare authorizes the caller and normalizes the entry. Authorization comes
// first so that a foreign caller never learns whether its payload was valid.
func prepare(requester, userID string, entry core.Entry) (core.Entry, error) {
	if err := core.Authorize(requester, userID); err != nil {
		return core.Entry{}, err
	}
	entry = entry.Normalize()
	if err := entry.Validate(); err != nil {
		return core.Entry{}, err
	}
	return entry, nil
}

// AddIncome records an income, its projection row and its summary
// contribution.
func (s *LedgerService) AddIncome(ctx context.Context, requester, userID string, entry core.Entry) (core.Income, error) {
	entry, err := prepare(requester, userID, entry)
	if err != nil {
		return core.Income{}, fmt.Errorf("add income: %w", err)
	}

	var income core.Income
	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		income, err = q.CreateIncome(ctx, storage.CreateEntryParams{
			UserID:      userID,
			AmountCents: entry.Amount.Cents,
			Description: entry.Description,
			Category:    entry.Category,
			Timestamp:   s.timestamp(),
		})
		if err != nil {
			return err
		}
		if _, err := q.CreateTransaction(ctx, income.Transaction()); err != nil {
			return err
		}
		return q.ApplyIncomeToSummary(ctx, userID, income.Amount.Cents, income.Timestamp)
	})
	if err != nil {
		return core.Income{}, fmt.Errorf("add income: %w", err)
	}

	slog.InfoContext(ctx, "Income added",
		"user_id", userID,
		"income_id", income.ID,
		"amount", income.Amount.String())
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventIncomeCreated, userID, income.ID, income.Amount.Cents, income.Amount.Cents, income.Category))

	return income, nil
}

// UpdateIncome replaces the mutable fields of an income. The summary moves the
// balance and net savings by the amount delta; total income is left as is and
// surfaces as drift in Reconcile.
func (s *LedgerService) UpdateIncome(ctx context.Context, requester string, incomeID int64, entry core.Entry) (core.Income, error) {
	entry = entry.Normalize()
	if err := entry.Validate(); err != nil {
		return core.Income{}, fmt.Errorf("update income %d: %w", incomeID, err)
	}

	var (
		updated core.Income
		delta   int64
	)
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		existing, err := q.GetIncomeForUpdate(ctx, incomeID)
		if err != nil {
			return err
		}
		if err := core.Authorize(requester, existing.UserID); err != nil {
			return err
		}

		now := s.timestamp()
		delta = entry.Amount.Cents - existing.Amount.Cents
		params := storage.UpdateEntryParams{
			ID:          incomeID,
			AmountCents: entry.Amount.Cents,
			Description: entry.Description,
			Category:    entry.Category,
			UpdatedAt:   now,
		}
		if err := q.UpdateIncome(ctx, params); err != nil {
			return err
		}
		if err := q.UpdateTransactionForIncome(ctx, params); err != nil {
			return err
		}
		if err := q.AdjustSummaryForIncomeUpdate(ctx, existing.UserID, delta, now); err != nil {
			return err
		}

		updated = existing
		updated.Amount = entry.Amount
		updated.Description = entry.Description
		updated.Category = entry.Category
		updated.UpdatedAt = now
		return nil
	})
	if err != nil {
		return core.Income{}, fmt.Errorf("update income %d: %w", incomeID, err)
	}

	slog.InfoContext(ctx, "Income updated",
		"user_id", updated.UserID,
		"income_id", incomeID,
		"delta_cents", delta)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventIncomeUpdated, updated.UserID, incomeID, updated.Amount.Cents, delta, updated.Category))

	return updated, nil
}

// DeleteIncome removes an income together with its projection row and
// subtracts it from the summary.
func (s *LedgerService) DeleteIncome(ctx context.Context, requester string, incomeID int64) error {
	var deleted core.Income
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		existing, err := q.GetIncomeForUpdate(ctx, incomeID)
		if err != nil {
			return err
		}
		if err := core.Authorize(requester, existing.UserID); err != nil {
			return err
		}
		// Projection first: it references the income.
		if err := q.DeleteTransactionForIncome(ctx, incomeID); err != nil {
			return err
		}
		if err := q.DeleteIncome(ctx, incomeID); err != nil {
			return err
		}
		deleted = existing
		return q.RemoveIncomeFromSummary(ctx, existing.UserID, existing.Amount.Cents, s.timestamp())
	})
	if err != nil {
		return fmt.Errorf("delete income %d: %w", incomeID, err)
	}

	slog.InfoContext(ctx, "Income deleted", "user_id", deleted.UserID, "income_id", incomeID)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventIncomeDeleted, deleted.UserID, incomeID, deleted.Amount.Cents, -deleted.Amount.Cents, deleted.Category))

	return nil
}

// ListIncomes returns the user's incomes, newest first.
func (s *LedgerService) ListIncomes(ctx context.Context, requester, userID string) ([]core.Income, error) {
	if err := core.Authorize(requester, userID); err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	incomes, err := s.repo.Queries().ListIncomes(ctx, userID, core.HistoryFilter{})
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	return incomes, nil
}

// AddExpense records an expense, its projection row and its summary
// contribution.
func (s *LedgerService) AddExpense(ctx context.Context, requester, userID string, entry core.Entry) (core.Expense, error) {
	entry, err := prepare(requester, userID, entry)
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}

	var expense core.Expense
	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		expense, err = q.CreateExpense(ctx, storage.CreateEntryParams{
			UserID:      userID,
			AmountCents: entry.Amount.Cents,
			Description: entry.Description,
			Category:    entry.Category,
			Timestamp:   s.timestamp(),
		})
		if err != nil {
			return err
		}
		if _, err := q.CreateTransaction(ctx, expense.Transaction()); err != nil {
			return err
		}
		return q.ApplyExpenseToSummary(ctx, userID, expense.Amount.Cents, expense.Timestamp)
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense added",
		"user_id", userID,
		"expense_id", expense.ID,
		"amount", expense.Amount.String())
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventExpenseCreated, userID, expense.ID, expense.Amount.Cents, -expense.Amount.Cents, expense.Category))

	return expense, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, requester string, expenseID int64) error {
	var deleted core.Expense
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		existing, err := q.GetExpenseForUpdate(ctx, expenseID)
		if err != nil {
			return err
		}
		if err := core.Authorize(requester, existing.UserID); err != nil {
			return err
		}
		if err := q.DeleteTransactionForExpense(ctx, expenseID); err != nil {
			return err
		}
		if err := q.DeleteExpense(ctx, expenseID); err != nil {
			return err
		}
		deleted = existing
		return q.RemoveExpenseFromSummary(ctx, existing.UserID, existing.Amount.Cents, s.timestamp())
	})
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", expenseID, err)
	}

	slog.InfoContext(ctx, "Expense deleted", "user_id", deleted.UserID, "expense_id", expenseID)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventExpenseDeleted, deleted.UserID, expenseID, deleted.Amount.Cents, deleted.Amount.Cents, deleted.Category))

	return nil
}

func (s *LedgerService) ListExpenses(ctx context.Context, requester, userID string) ([]core.Expense, error) {
	if err := core.Authorize(requester, userID); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	expenses, err := s.repo.Queries().ListExpenses(ctx, userID, core.HistoryFilter{})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// publish is best effort: the mutation is already committed.
func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", ev.Type,
			"user_id", ev.UserID,
			"entry_id", ev.EntryID,
			"error", err)
	}
}
