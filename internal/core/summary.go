package core

import "time"

// Summary holds per-user aggregates. It is used both for the incrementally
// maintained user_financial_summary row and for the view recomputed from the
// incomes and expenses tables.
type Summary struct {
	UserID          string    `json:"user_id"`
	TotalIncome     Money     `json:"total_income"`
	TotalExpenses   Money     `json:"total_expenses"`
	CurrentBalance  Money     `json:"current_balance"`
	NetSavings      Money     `json:"net_savings"`
	LastIncomeDate  Timestamp `json:"last_income_date"`
	LastExpenseDate Timestamp `json:"last_expense_date"`
	CreatedAt       Timestamp `json:"created_at,omitzero"`
	UpdatedAt       Timestamp `json:"updated_at,omitzero"`
}

// HistoryFilter narrows a transaction history query. Zero values mean "no
// filter"; End is inclusive of the whole day.
type HistoryFilter struct {
	Start    time.Time
	End      time.Time
	Type     TransactionType
	Category string
	Limit    int
	Offset   int
}

// Includes reports whether transactions of type t can appear in the result.
func (f HistoryFilter) Includes(t TransactionType) bool {
	return f.Type == "" || f.Type == t
}

// HistoryPage is one page of the merged, timestamp-descending history.
type HistoryPage struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total"`
	Limit        int           `json:"limit"`
	Offset       int           `json:"offset"`
}

// Drift is the difference cached − computed for each reconciled figure.
type Drift struct {
	CurrentBalance Money `json:"current_balance"`
	TotalIncome    Money `json:"total_income"`
	TotalExpenses  Money `json:"total_expenses"`
}

func (d Drift) IsZero() bool {
	return d.CurrentBalance.Cents == 0 && d.TotalIncome.Cents == 0 && d.TotalExpenses.Cents == 0
}

// Reconciliation compares the cached summary row with the recomputed view.
type Reconciliation struct {
	UserID     string  `json:"user_id"`
	Cached     Summary `json:"cached"`
	Computed   Summary `json:"computed"`
	Drift      Drift   `json:"drift"`
	Consistent bool    `json:"consistent"`
}

func NewReconciliation(cached, computed Summary) Reconciliation {
	drift := Drift{
		CurrentBalance: cached.CurrentBalance.Sub(computed.CurrentBalance),
		TotalIncome:    cached.TotalIncome.Sub(computed.TotalIncome),
		TotalExpenses:  cached.TotalExpenses.Sub(computed.TotalExpenses),
	}
	return Reconciliation{
		UserID:     computed.UserID,
		Cached:     cached,
		Computed:   computed,
		Drift:      drift,
		Consistent: drift.IsZero(),
	}
}
