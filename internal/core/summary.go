package core

import (
	"sort"
)

// Category health thresholds, in percent of the planned amount.
const (
	WarningThreshold = 85.0

	trendWindow = 12
)

type CategoryStatus string

const (
	StatusOK      CategoryStatus = "ok"
	StatusWarning CategoryStatus = "warning"
	StatusOver    CategoryStatus = "over"
)

// CategoryRow is one line of the budget table for a month.
type CategoryRow struct {
	Category    string         `json:"category"`
	Color       string         `json:"color"`
	Budgeted    Money          `json:"budgeted"`
	Actual      Money          `json:"actual"`
	Remaining   Money          `json:"remaining"`
	PercentUsed float64        `json:"percentUsed"`
	Status      CategoryStatus `json:"status"`
	Manual      bool           `json:"manual"`
}

// MonthOverview is a compact summary for a specific month.
type MonthOverview struct {
	Month            Month         `json:"month"`
	Income           Money         `json:"income"`
	Budgeted         Money         `json:"budgeted"`
	Actual           Money         `json:"actual"`
	Remaining        Money         `json:"remaining"`
	Balance          Money         `json:"balance"`
	Utilization      float64       `json:"utilization"`
	TransactionCount int           `json:"transactionCount"`
	Categories       []CategoryRow `json:"categories"`
}

// TrendPoint is the income and expense total of one month.
type TrendPoint struct {
	Month   Month `json:"month"`
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
	Net     Money `json:"net"`
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	Amount Money  `json:"amount"`
}

// MonthlyIncome sums income transactions dated in m.
func MonthlyIncome(txs []Transaction, m Month) Money {
	return sumWhere(txs, func(t Transaction) bool { return t.Type == Income && t.InMonth(m) })
}

// MonthlyExpenses sums expense transactions dated in m.
func MonthlyExpenses(txs []Transaction, m Month) Money {
	return sumWhere(txs, func(t Transaction) bool { return t.Type == Expense && t.InMonth(m) })
}

// DerivedSpend sums expense transactions of one category in m.
func DerivedSpend(txs []Transaction, m Month, category string) Money {
	return sumWhere(txs, func(t Transaction) bool {
		return t.Type == Expense && t.Category == category && t.InMonth(m)
	})
}

// CategoryActual is the manual override when present, else the derived spend.
func CategoryActual(s State, m Month, category string) Money {
	derived := DerivedSpend(s.Transactions, m, category)
	mb, _ := s.Budget(m)
	if b, ok := mb.Find(category); ok {
		return b.Actual(derived)
	}
	return derived
}

// BudgetUtilization is 100*actual/budgeted, or 0 without a plan.
func BudgetUtilization(actual, budgeted Money) float64 {
	if budgeted.Cents <= 0 {
		return 0
	}
	return float64(actual.Cents) / float64(budgeted.Cents) * 100
}

// StatusFor classifies spending against the plan.
func StatusFor(actual, budgeted Money) CategoryStatus {
	switch {
	case actual.Cents > budgeted.Cents:
		return StatusOver
	case BudgetUtilization(actual, budgeted) > WarningThreshold:
		return StatusWarning
	default:
		return StatusOK
	}
}

// BuildMonthOverview aggregates income, plan and spend for month m over
// every known category.
func BuildMonthOverview(s State, m Month) MonthOverview {
	mb, _ := s.Budget(m)
	ov := MonthOverview{
		Month:      m,
		Income:     MonthlyIncome(s.Transactions, m),
		Budgeted:   mb.TotalBudgeted(),
		Categories: []CategoryRow{},
	}
	for _, t := range s.Transactions {
		if t.InMonth(m) {
			ov.TransactionCount++
		}
	}
	for _, cat := range s.AllCategories() {
		row := categoryRow(s, mb, m, cat)
		ov.Actual = ov.Actual.Add(row.Actual)
		ov.Categories = append(ov.Categories, row)
	}
	ov.Remaining = ov.Budgeted.Sub(ov.Actual)
	ov.Balance = ov.Income.Sub(ov.Actual)
	ov.Utilization = BudgetUtilization(ov.Actual, ov.Budgeted)
	return ov
}

func categoryRow(s State, mb MonthlyBudget, m Month, cat string) CategoryRow {
	derived := DerivedSpend(s.Transactions, m, cat)
	row := CategoryRow{Category: cat, Color: CategoryColor(cat), Actual: derived}
	if b, ok := mb.Find(cat); ok {
		row.Budgeted = b.Budgeted
		row.Actual = b.Actual(derived)
		row.Manual = b.ManualActual != nil
	}
	row.Remaining = row.Budgeted.Sub(row.Actual)
	row.PercentUsed = BudgetUtilization(row.Actual, row.Budgeted)
	row.Status = StatusFor(row.Actual, row.Budgeted)
	return row
}

// CategoryHealth returns the rows of m that have a plan or any spend.
func CategoryHealth(s State, m Month) []CategoryRow {
	rows := []CategoryRow{}
	for _, row := range BuildMonthOverview(s, m).Categories {
		if row.Budgeted.IsZero() && row.Actual.IsZero() {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// SpendingMix groups the expense transactions of m by category, largest first.
func SpendingMix(s State, m Month) []CategoryAmount {
	totals := map[string]Money{}
	var order []string
	for _, t := range s.Transactions {
		if t.Type != Expense || !t.InMonth(m) {
			continue
		}
		if _, ok := totals[t.Category]; !ok {
			order = append(order, t.Category)
		}
		totals[t.Category] = totals[t.Category].Add(t.Amount)
	}
	out := make([]CategoryAmount, 0, len(order))
	for _, cat := range order {
		if totals[cat].Cents <= 0 {
			continue
		}
		out = append(out, CategoryAmount{Name: cat, Color: CategoryColor(cat), Amount: totals[cat]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.Cents > out[j].Amount.Cents })
	return out
}

// Trend returns one point per month seen in transactions or budgets,
// oldest first, limited to the latest twelve.
func Trend(s State) []TrendPoint {
	seen := map[Month]struct{}{}
	for _, t := range s.Transactions {
		seen[t.Date.MonthKey()] = struct{}{}
	}
	for _, mb := range s.MonthlyBudgets {
		seen[mb.Month] = struct{}{}
	}
	months := make([]Month, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })
	if len(months) > trendWindow {
		months = months[len(months)-trendWindow:]
	}
	points := make([]TrendPoint, 0, len(months))
	for _, m := range months {
		points = append(points, trendPoint(s, m))
	}
	return points
}

// History returns one point per budgeted month, newest first.
func History(s State) []TrendPoint {
	months := make([]Month, 0, len(s.MonthlyBudgets))
	for _, mb := range s.MonthlyBudgets {
		months = append(months, mb.Month)
	}
	sort.Slice(months, func(i, j int) bool { return months[i] > months[j] })
	points := make([]TrendPoint, 0, len(months))
	for _, m := range months {
		points = append(points, trendPoint(s, m))
	}
	return points
}

func trendPoint(s State, m Month) TrendPoint {
	p := TrendPoint{
		Month:   m,
		Income:  MonthlyIncome(s.Transactions, m),
		Expense: MonthlyExpenses(s.Transactions, m),
	}
	p.Net = p.Income.Sub(p.Expense)
	return p
}

// GoalPercent is the progress of g in percent, capped at 100.
func GoalPercent(g SavingsGoal) float64 {
	p := BudgetUtilization(g.Current, g.Target)
	if p > 100 {
		return 100
	}
	return p
}

func sumWhere(txs []Transaction, keep func(Transaction) bool) Money {
	var total Money
	for _, t := range txs {
		if keep(t) {
			total = total.Add(t.Amount)
		}
	}
	return total
}
