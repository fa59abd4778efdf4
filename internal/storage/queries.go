package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/splvrdge/savr/internal/core"
)

const (
	tableIncomes  = "incomes"
	tableExpenses = "expenses"
)

// entryRow is the shared shape of the incomes and expenses tables.
type entryRow struct {
	ID          int64
	UserID      string
	AmountCents int64
	Description string
	Category    string
	Timestamp   core.Timestamp
	CreatedAt   core.Timestamp
	UpdatedAt   core.Timestamp
}

func (r entryRow) income() core.Income {
	return core.Income{
		ID:          r.ID,
		UserID:      r.UserID,
		Amount:      core.Money{Cents: r.AmountCents},
		Description: r.Description,
		Category:    r.Category,
		Timestamp:   r.Timestamp,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r entryRow) expense() core.Expense {
	return core.Expense(r.income())
}

const entryColumns = `id, user_id, amount_cents, description, category, timestamp, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (entryRow, error) {
	var r entryRow
	err := row.Scan(&r.ID, &r.UserID, &r.AmountCents, &r.Description, &r.Category, &r.Timestamp, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// CreateEntryParams carries the columns of a new income or expense row.
type CreateEntryParams struct {
	UserID      string
	AmountCents int64
	Description string
	Category    string
	Timestamp   core.Timestamp
}

// UpdateEntryParams carries the mutable columns of an income or expense row.
type UpdateEntryParams struct {
	ID          int64
	AmountCents int64
	Description string
	Category    string
	UpdatedAt   core.Timestamp
}

func (q *Queries) createEntry(ctx context.Context, table string, arg CreateEntryParams) (entryRow, error) {
	query := `INSERT INTO ` + table + ` (user_id, amount_cents, description, category, timestamp, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + entryColumns
	return scanEntry(q.queryRow(ctx, query,
		arg.UserID, arg.AmountCents, arg.Description, arg.Category, arg.Timestamp, arg.Timestamp, arg.Timestamp))
}

func (q *Queries) getEntry(ctx context.Context, table string, id int64, lock bool) (entryRow, error) {
	query := `SELECT ` + entryColumns + ` FROM ` + table + ` WHERE id = ?`
	if lock {
		query += q.forUpdate()
	}
	r, err := scanEntry(q.queryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return entryRow{}, core.ErrNotFound
	}
	return r, err
}

func (q *Queries) updateEntry(ctx context.Context, table string, arg UpdateEntryParams) (int64, error) {
	return q.exec(ctx, `UPDATE `+table+`
SET amount_cents = ?, description = ?, category = ?, updated_at = ?
WHERE id = ?`, arg.AmountCents, arg.Description, arg.Category, arg.UpdatedAt, arg.ID)
}

func (q *Queries) deleteEntry(ctx context.Context, table string, id int64) (int64, error) {
	return q.exec(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
}

// entryFilter builds the WHERE clause shared by the entry listings. Columns
// are qualified with alias when it is not empty.
func entryFilter(alias, userID string, f core.HistoryFilter) (string, []any) {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}
	var (
		where = []string{col("user_id") + " = ?"}
		args  = []any{userID}
	)
	if !f.Start.IsZero() {
		where = append(where, col("timestamp")+" >= ?")
		args = append(args, core.NewTimestamp(f.Start))
	}
	if !f.End.IsZero() {
		where = append(where, col("timestamp")+" < ?")
		args = append(args, core.NewTimestamp(f.End.AddDate(0, 0, 1)))
	}
	if f.Category != "" {
		where = append(where, col("category")+" = ?")
		args = append(args, f.Category)
	}
	return strings.Join(where, " AND "), args
}

// listEntries returns a user's rows, most recent first, narrowed by the date
// range and category of f. Type, limit and offset are not applied here.
func (q *Queries) listEntries(ctx context.Context, table, userID string, f core.HistoryFilter) ([]entryRow, error) {
	where, args := entryFilter("", userID, f)
	query := `SELECT ` + entryColumns + ` FROM ` + table +
		` WHERE ` + where +
		` ORDER BY timestamp DESC, id DESC`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entryRow
	for rows.Next() {
		r, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// listHistory returns the entries of table as history rows. The row id is the
// projection id, so it resolves through GetTransaction; the entry id travels
// in income_id or expense_id.
func (q *Queries) listHistory(ctx context.Context, table, refColumn, userID string, f core.HistoryFilter) ([]core.Transaction, error) {
	where, args := entryFilter("s", userID, f)
	query := `SELECT d.id, s.user_id, d.type, s.amount_cents, s.description, s.category, s.timestamp,
d.income_id, d.expense_id, s.created_at, s.updated_at
FROM ` + table + ` s JOIN user_financial_data d ON d.` + refColumn + ` = s.id
WHERE ` + where + `
ORDER BY s.timestamp DESC, d.id DESC`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListIncomeHistory returns the user's incomes as history rows.
func (q *Queries) ListIncomeHistory(ctx context.Context, userID string, f core.HistoryFilter) ([]core.Transaction, error) {
	out, err := q.listHistory(ctx, tableIncomes, "income_id", userID, f)
	if err != nil {
		return nil, fmt.Errorf("list income history: %w", err)
	}
	return out, nil
}

// ListExpenseHistory returns the user's expenses as history rows.
func (q *Queries) ListExpenseHistory(ctx context.Context, userID string, f core.HistoryFilter) ([]core.Transaction, error) {
	out, err := q.listHistory(ctx, tableExpenses, "expense_id", userID, f)
	if err != nil {
		return nil, fmt.Errorf("list expense history: %w", err)
	}
	return out, nil
}

func (q *Queries) CreateIncome(ctx context.Context, arg CreateEntryParams) (core.Income, error) {
	r, err := q.createEntry(ctx, tableIncomes, arg)
	if err != nil {
		return core.Income{}, fmt.Errorf("insert income: %w", err)
	}
	return r.income(), nil
}

// GetIncomeForUpdate loads an income and, on engines with row locks, locks it
// until the surrounding transaction ends.
func (q *Queries) GetIncomeForUpdate(ctx context.Context, id int64) (core.Income, error) {
	r, err := q.getEntry(ctx, tableIncomes, id, true)
	if err != nil {
		return core.Income{}, fmt.Errorf("get income %d: %w", id, err)
	}
	return r.income(), nil
}

func (q *Queries) GetIncome(ctx context.Context, id int64) (core.Income, error) {
	r, err := q.getEntry(ctx, tableIncomes, id, false)
	if err != nil {
		return core.Income{}, fmt.Errorf("get income %d: %w", id, err)
	}
	return r.income(), nil
}

func (q *Queries) UpdateIncome(ctx context.Context, arg UpdateEntryParams) error {
	n, err := q.updateEntry(ctx, tableIncomes, arg)
	if err != nil {
		return fmt.Errorf("update income %d: %w", arg.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update income %d: %w", arg.ID, core.ErrNotFound)
	}
	return nil
}

func (q *Queries) DeleteIncome(ctx context.Context, id int64) error {
	n, err := q.deleteEntry(ctx, tableIncomes, id)
	if err != nil {
		return fmt.Errorf("delete income %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete income %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (q *Queries) ListIncomes(ctx context.Context, userID string, f core.HistoryFilter) ([]core.Income, error) {
	rows, err := q.listEntries(ctx, tableIncomes, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	out := make([]core.Income, len(rows))
	for i, r := range rows {
		out[i] = r.income()
	}
	return out, nil
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateEntryParams) (core.Expense, error) {
	r, err := q.createEntry(ctx, tableExpenses, arg)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return r.expense(), nil
}

func (q *Queries) GetExpenseForUpdate(ctx context.Context, id int64) (core.Expense, error) {
	r, err := q.getEntry(ctx, tableExpenses, id, true)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return r.expense(), nil
}

func (q *Queries) DeleteExpense(ctx context.Context, id int64) error {
	n, err := q.deleteEntry(ctx, tableExpenses, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete expense %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (q *Queries) ListExpenses(ctx context.Context, userID string, f core.HistoryFilter) ([]core.Expense, error) {
	rows, err := q.listEntries(ctx, tableExpenses, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	out := make([]core.Expense, len(rows))
	for i, r := range rows {
		out[i] = r.expense()
	}
	return out, nil
}

const transactionColumns = `id, user_id, type, amount_cents, description, category, timestamp, income_id, expense_id, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t         core.Transaction
		typ       string
		cents     int64
		incomeID  sql.NullInt64
		expenseID sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.UserID, &typ, &cents, &t.Description, &t.Category, &t.Timestamp, &incomeID, &expenseID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Amount = core.Money{Cents: cents}
	if incomeID.Valid {
		t.IncomeID = &incomeID.Int64
	}
	if expenseID.Valid {
		t.ExpenseID = &expenseID.Int64
	}
	return t, nil
}

// CreateTransaction inserts a projection row.
func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	created, err := scanTransaction(q.queryRow(ctx, `INSERT INTO user_financial_data
(user_id, type, amount_cents, description, category, timestamp, income_id, expense_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING `+transactionColumns,
		t.UserID, string(t.Type), t.Amount.Cents, t.Description, t.Category, t.Timestamp,
		nullableID(t.IncomeID), nullableID(t.ExpenseID), t.CreatedAt, t.UpdatedAt))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert financial data: %w", err)
	}
	return created, nil
}

// UpdateTransactionForIncome mirrors an income update onto its projection row.
func (q *Queries) UpdateTransactionForIncome(ctx context.Context, arg UpdateEntryParams) error {
	n, err := q.exec(ctx, `UPDATE user_financial_data
SET amount_cents = ?, description = ?, category = ?, updated_at = ?
WHERE income_id = ?`, arg.AmountCents, arg.Description, arg.Category, arg.UpdatedAt, arg.ID)
	if err != nil {
		return fmt.Errorf("update financial data for income %d: %w", arg.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update financial data for income %d: projection row missing", arg.ID)
	}
	return nil
}

func (q *Queries) DeleteTransactionForIncome(ctx context.Context, incomeID int64) error {
	if _, err := q.exec(ctx, `DELETE FROM user_financial_data WHERE income_id = ?`, incomeID); err != nil {
		return fmt.Errorf("delete financial data for income %d: %w", incomeID, err)
	}
	return nil
}

func (q *Queries) DeleteTransactionForExpense(ctx context.Context, expenseID int64) error {
	if _, err := q.exec(ctx, `DELETE FROM user_financial_data WHERE expense_id = ?`, expenseID); err != nil {
		return fmt.Errorf("delete financial data for expense %d: %w", expenseID, err)
	}
	return nil
}

// GetTransaction looks a projection row up by id, scoped to its owner.
func (q *Queries) GetTransaction(ctx context.Context, userID string, id int64) (core.Transaction, error) {
	t, err := scanTransaction(q.queryRow(ctx,
		`SELECT `+transactionColumns+` FROM user_financial_data WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

// GetTransactionByIncome returns the projection row of an income.
func (q *Queries) GetTransactionByIncome(ctx context.Context, incomeID int64) (core.Transaction, error) {
	t, err := scanTransaction(q.queryRow(ctx,
		`SELECT `+transactionColumns+` FROM user_financial_data WHERE income_id = ?`, incomeID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("get transaction for income %d: %w", incomeID, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction for income %d: %w", incomeID, err)
	}
	return t, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

const summaryColumns = `user_id, current_balance_cents, total_income_cents, total_expenses_cents, net_savings_cents,
last_income_date, last_expense_date, created_at, updated_at`

// GetSummary returns the cached summary row of a user.
func (q *Queries) GetSummary(ctx context.Context, userID string) (core.Summary, error) {
	var (
		s                                     core.Summary
		balance, income, expenses, netSavings int64
	)
	err := q.queryRow(ctx, `SELECT `+summaryColumns+` FROM user_financial_summary WHERE user_id = ?`, userID).
		Scan(&s.UserID, &balance, &income, &expenses, &netSavings, &s.LastIncomeDate, &s.LastExpenseDate, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Summary{}, fmt.Errorf("get summary for %s: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return core.Summary{}, fmt.Errorf("get summary for %s: %w", userID, err)
	}
	s.CurrentBalance = core.Money{Cents: balance}
	s.TotalIncome = core.Money{Cents: income}
	s.TotalExpenses = core.Money{Cents: expenses}
	s.NetSavings = core.Money{Cents: netSavings}
	return s, nil
}

// ApplyIncomeToSummary creates the summary row with the income as its only
// contribution, or adds the income to an existing row.
func (q *Queries) ApplyIncomeToSummary(ctx context.Context, userID string, amountCents int64, at core.Timestamp) error {
	_, err := q.exec(ctx, `INSERT INTO user_financial_summary
(user_id, current_balance_cents, total_income_cents, total_expenses_cents, net_savings_cents, last_income_date, created_at, updated_at)
VALUES (?, ?, ?, 0, 0, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
	current_balance_cents = user_financial_summary.current_balance_cents + excluded.current_balance_cents,
	total_income_cents = user_financial_summary.total_income_cents + excluded.total_income_cents,
	last_income_date = excluded.last_income_date,
	updated_at = excluded.updated_at`,
		userID, amountCents, amountCents, at, at, at)
	if err != nil {
		return fmt.Errorf("upsert summary income for %s: %w", userID, err)
	}
	return nil
}

// ApplyExpenseToSummary is the expense counterpart of ApplyIncomeToSummary.
func (q *Queries) ApplyExpenseToSummary(ctx context.Context, userID string, amountCents int64, at core.Timestamp) error {
	_, err := q.exec(ctx, `INSERT INTO user_financial_summary
(user_id, current_balance_cents, total_income_cents, total_expenses_cents, net_savings_cents, last_expense_date, created_at, updated_at)
VALUES (?, ?, 0, ?, 0, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
	current_balance_cents = user_financial_summary.current_balance_cents + excluded.current_balance_cents,
	total_expenses_cents = user_financial_summary.total_expenses_cents + excluded.total_expenses_cents,
	last_expense_date = excluded.last_expense_date,
	updated_at = excluded.updated_at`,
		userID, -amountCents, amountCents, at, at, at)
	if err != nil {
		return fmt.Errorf("upsert summary expense for %s: %w", userID, err)
	}
	return nil
}

// AdjustSummaryForIncomeUpdate applies the amount delta of an edited income:
// balance and net savings move by delta, total income is left alone.
func (q *Queries) AdjustSummaryForIncomeUpdate(ctx context.Context, userID string, deltaCents int64, at core.Timestamp) error {
	n, err := q.exec(ctx, `UPDATE user_financial_summary
SET current_balance_cents = current_balance_cents + ?,
	net_savings_cents = net_savings_cents + ?,
	last_income_date = ?,
	updated_at = ?
WHERE user_id = ?`, deltaCents, deltaCents, at, at, userID)
	if err != nil {
		return fmt.Errorf("adjust summary for %s: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("adjust summary for %s: summary row missing", userID)
	}
	return nil
}

// RemoveIncomeFromSummary subtracts a deleted income.
func (q *Queries) RemoveIncomeFromSummary(ctx context.Context, userID string, amountCents int64, at core.Timestamp) error {
	n, err := q.exec(ctx, `UPDATE user_financial_summary
SET current_balance_cents = current_balance_cents - ?,
	total_income_cents = total_income_cents - ?,
	updated_at = ?
WHERE user_id = ?`, amountCents, amountCents, at, userID)
	if err != nil {
		return fmt.Errorf("remove income from summary for %s: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("remove income from summary for %s: summary row missing", userID)
	}
	return nil
}

// RemoveExpenseFromSummary gives a deleted expense back to the balance.
func (q *Queries) RemoveExpenseFromSummary(ctx context.Context, userID string, amountCents int64, at core.Timestamp) error {
	n, err := q.exec(ctx, `UPDATE user_financial_summary
SET current_balance_cents = current_balance_cents + ?,
	total_expenses_cents = total_expenses_cents - ?,
	updated_at = ?
WHERE user_id = ?`, amountCents, amountCents, at, userID)
	if err != nil {
		return fmt.Errorf("remove expense from summary for %s: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("remove expense from summary for %s: summary row missing", userID)
	}
	return nil
}

// IncomeTotals aggregates a user's incomes.
type IncomeTotals struct {
	TotalCents int64
	Last       core.Timestamp
}

func (q *Queries) GetIncomeTotals(ctx context.Context, userID string) (IncomeTotals, error) {
	var t IncomeTotals
	err := q.queryRow(ctx, `SELECT COALESCE(SUM(amount_cents), 0), MAX(timestamp)
FROM incomes WHERE user_id = ?`, userID).Scan(&t.TotalCents, &t.Last)
	if err != nil {
		return IncomeTotals{}, fmt.Errorf("sum incomes for %s: %w", userID, err)
	}
	return t, nil
}

// ExpenseTotals aggregates a user's expenses, with the savings buckets apart.
type ExpenseTotals struct {
	TotalCents   int64
	SavingsCents int64
	Last         core.Timestamp
}

func (q *Queries) GetExpenseTotals(ctx context.Context, userID string) (ExpenseTotals, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(core.SavingsCategories)), ", ")
	args := make([]any, 0, len(core.SavingsCategories)+1)
	for _, c := range core.SavingsCategories {
		args = append(args, c)
	}
	args = append(args, userID)

	var t ExpenseTotals
	err := q.queryRow(ctx, `SELECT
	COALESCE(SUM(amount_cents), 0),
	COALESCE(SUM(CASE WHEN category IN (`+placeholders+`) THEN amount_cents ELSE 0 END), 0),
	MAX(timestamp)
FROM expenses WHERE user_id = ?`, args...).Scan(&t.TotalCents, &t.SavingsCents, &t.Last)
	if err != nil {
		return ExpenseTotals{}, fmt.Errorf("sum expenses for %s: %w", userID, err)
	}
	return t, nil
}
