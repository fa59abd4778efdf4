package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// DefaultCategory is assigned to entries submitted without a category.
const DefaultCategory = "Other"

const (
	maxDescriptionLen = 200
	maxCategoryLen    = 50
)

// SavingsCategories are the expense categories counted as net savings.
var SavingsCategories = []string{"Savings", "Investment"}

type (
	TransactionType string

	// Entry is the user-supplied part of an income or expense.
	Entry struct {
		Amount      Money
		Description string
		Category    string
	}

	Income struct {
		ID          int64     `json:"id"`
		UserID      string    `json:"user_id"`
		Amount      Money     `json:"amount"`
		Description string    `json:"description"`
		Category    string    `json:"category"`
		Timestamp   Timestamp `json:"timestamp"`
		CreatedAt   Timestamp `json:"created_at"`
		UpdatedAt   Timestamp `json:"updated_at"`
	}

	Expense struct {
		ID          int64     `json:"id"`
		UserID      string    `json:"user_id"`
		Amount      Money     `json:"amount"`
		Description string    `json:"description"`
		Category    string    `json:"category"`
		Timestamp   Timestamp `json:"timestamp"`
		CreatedAt   Timestamp `json:"created_at"`
		UpdatedAt   Timestamp `json:"updated_at"`
	}

	// Transaction is a row of the unified financial data projection, or an
	// item of a merged history page.
	Transaction struct {
		ID          int64           `json:"id"`
		UserID      string          `json:"user_id"`
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		Timestamp   Timestamp       `json:"timestamp"`
		IncomeID    *int64          `json:"income_id,omitempty"`
		ExpenseID   *int64          `json:"expense_id,omitempty"`
		CreatedAt   Timestamp       `json:"created_at"`
		UpdatedAt   Timestamp       `json:"updated_at"`
	}
)

// ParseTransactionType accepts "income", "expense" or the empty string (any type).
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TransactionIncome, TransactionExpense:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown transaction type %q", ErrValidation, s)
	}
}

// Normalize trims the free-text fields and applies the default category.
func (e Entry) Normalize() Entry {
	e.Description = strings.TrimSpace(e.Description)
	e.Category = strings.TrimSpace(e.Category)
	if e.Category == "" {
		e.Category = DefaultCategory
	}
	return e
}

func (e Entry) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(e.Description) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if utf8.RuneCountInString(e.Category) > maxCategoryLen {
		return ErrCategoryTooLong
	}
	return nil
}

// Transaction converts an income to its projection row.
func (i Income) Transaction() Transaction {
	id := i.ID
	return Transaction{
		UserID:      i.UserID,
		Type:        TransactionIncome,
		Amount:      i.Amount,
		Description: i.Description,
		Category:    i.Category,
		Timestamp:   i.Timestamp,
		IncomeID:    &id,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

// Transaction converts an expense to its projection row.
func (e Expense) Transaction() Transaction {
	id := e.ID
	return Transaction{
		UserID:      e.UserID,
		Type:        TransactionExpense,
		Amount:      e.Amount,
		Description: e.Description,
		Category:    e.Category,
		Timestamp:   e.Timestamp,
		ExpenseID:   &id,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
