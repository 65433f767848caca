package services

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"zenbudget/internal/core"
	"zenbudget/internal/reconcile"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrGoalNotFound        = errors.New("goal not found")
	ErrInvalidGoal         = errors.New("invalid goal")
	ErrInvalidBudget       = errors.New("invalid budget")
	ErrUnknownCategory     = errors.New("category is not registered")
	ErrUnknownAction       = errors.New("unknown action")
)

// Action is a state transition request handled by Reducer.
type Action interface {
	Kind() string
}

type (
	// EnsureMonth seeds the month with default budgets for every known
	// category, or adds the categories it is missing.
	EnsureMonth struct {
		Month core.Month
	}

	AddTransaction struct {
		Candidate reconcile.Candidate
	}

	ImportTransactions struct {
		Candidates []reconcile.Candidate
	}

	DeleteTransaction struct {
		ID string
	}

	// UpdateBudget replaces the plan of one category in one month.
	// A nil ManualActual clears any override.
	UpdateBudget struct {
		Month        core.Month
		Category     string
		Budgeted     core.Money
		ManualActual *core.Money
	}

	AddCategory struct {
		Name string
	}

	// AddGoal creates a savings goal. An empty Color gets a generated one.
	AddGoal struct {
		Name   string
		Target core.Money
		Color  string
	}

	// ContributeToGoal adds Amount (negative for withdrawals) to a goal.
	ContributeToGoal struct {
		ID     string
		Amount core.Money
	}

	Reset struct{}
)

func (EnsureMonth) Kind() string        { return "ensure_month" }
func (AddTransaction) Kind() string     { return "add_transaction" }
func (ImportTransactions) Kind() string { return "import_transactions" }
func (DeleteTransaction) Kind() string  { return "delete_transaction" }
func (UpdateBudget) Kind() string       { return "update_budget" }
func (AddCategory) Kind() string        { return "add_category" }
func (AddGoal) Kind() string            { return "add_goal" }
func (ContributeToGoal) Kind() string   { return "contribute_to_goal" }
func (Reset) Kind() string              { return "reset" }

// Outcome describes what a transition did.
type Outcome struct {
	Changed       bool
	Added         []core.Transaction
	Deleted       *core.Transaction
	Report        *reconcile.Report
	NewCategories []string
	Goal          *core.SavingsGoal
	Reset         bool
}

// Reducer computes the next state for an action. It never mutates its input
// and returns the input unchanged alongside any error.
type Reducer struct {
	rec   *reconcile.Reconciler
	newID func() string
}

// NewReducer returns a Reducer. A nil newID uses random UUIDs.
func NewReducer(newID func() string) *Reducer {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Reducer{rec: reconcile.New(newID), newID: newID}
}

func (r *Reducer) Reduce(s core.State, a Action) (core.State, Outcome, error) {
	switch a := a.(type) {
	case EnsureMonth:
		return r.ensureMonth(s, a)
	case AddTransaction:
		next, t, grown, err := r.rec.Add(s, a.Candidate)
		if err != nil {
			return s, Outcome{}, fmt.Errorf("add transaction: %w", err)
		}
		return next, Outcome{Changed: true, Added: []core.Transaction{t}, NewCategories: grown}, nil
	case ImportTransactions:
		next, rep := r.rec.Import(s, a.Candidates)
		return next, Outcome{
			Changed:       rep.Imported() > 0,
			Added:         rep.Accepted,
			Report:        &rep,
			NewCategories: rep.NewCategories,
		}, nil
	case DeleteTransaction:
		return r.deleteTransaction(s, a)
	case UpdateBudget:
		return r.updateBudget(s, a)
	case AddCategory:
		return r.addCategory(s, a)
	case AddGoal:
		return r.addGoal(s, a)
	case ContributeToGoal:
		return r.contribute(s, a)
	case Reset:
		return core.EmptyState(), Outcome{Changed: true, Reset: true}, nil
	default:
		return s, Outcome{}, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
}

func (r *Reducer) ensureMonth(s core.State, a EnsureMonth) (core.State, Outcome, error) {
	if err := a.Month.Validate(); err != nil {
		return s, Outcome{}, err
	}
	mb, idx := s.Budget(a.Month)
	have := make(map[string]struct{}, len(mb.Budgets))
	for _, b := range mb.Budgets {
		have[b.Category] = struct{}{}
	}
	var missing []core.CategoryBudget
	for _, cat := range s.AllCategories() {
		if _, ok := have[cat]; !ok {
			missing = append(missing, core.CategoryBudget{Category: cat, Budgeted: core.DefaultBudget(cat)})
		}
	}
	if idx >= 0 && len(missing) == 0 {
		return s, Outcome{}, nil
	}

	next := s.Clone()
	if idx < 0 {
		next.MonthlyBudgets = append(next.MonthlyBudgets, core.MonthlyBudget{
			Month:   a.Month,
			Budgets: append([]core.CategoryBudget{}, missing...),
		})
	} else {
		next.MonthlyBudgets[idx].Budgets = append(next.MonthlyBudgets[idx].Budgets, missing...)
	}
	return next, Outcome{Changed: true}, nil
}

func (r *Reducer) deleteTransaction(s core.State, a DeleteTransaction) (core.State, Outcome, error) {
	for i, t := range s.Transactions {
		if t.ID != a.ID {
			continue
		}
		next := s.Clone()
		next.Transactions = append(next.Transactions[:i], next.Transactions[i+1:]...)
		deleted := t
		return next, Outcome{Changed: true, Deleted: &deleted}, nil
	}
	return s, Outcome{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, a.ID)
}

func (r *Reducer) updateBudget(s core.State, a UpdateBudget) (core.State, Outcome, error) {
	category := strings.TrimSpace(a.Category)
	if category == "" {
		return s, Outcome{}, fmt.Errorf("%w: %w", ErrInvalidBudget, core.ErrEmptyCategory)
	}
	if a.Budgeted.Cents < 0 || (a.ManualActual != nil && a.ManualActual.Cents < 0) {
		return s, Outcome{}, fmt.Errorf("%w: %w", ErrInvalidBudget, core.ErrInvalidAmount)
	}

	next, _, err := r.ensureMonth(s, EnsureMonth{Month: a.Month})
	if err != nil {
		return s, Outcome{}, err
	}
	if !slices.Contains(s.AllCategories(), category) {
		return s, Outcome{}, fmt.Errorf("%w: %w: %q", ErrInvalidBudget, ErrUnknownCategory, category)
	}
	next = next.Clone()

	entry := core.CategoryBudget{Category: category, Budgeted: a.Budgeted}
	if a.ManualActual != nil {
		v := *a.ManualActual
		entry.ManualActual = &v
	}

	_, idx := next.Budget(a.Month)
	budgets := next.MonthlyBudgets[idx].Budgets
	replaced := false
	for i := range budgets {
		if budgets[i].Category == category {
			budgets[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		budgets = append(budgets, entry)
	}
	next.MonthlyBudgets[idx].Budgets = budgets
	return next, Outcome{Changed: true}, nil
}

func (r *Reducer) addCategory(s core.State, a AddCategory) (core.State, Outcome, error) {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return s, Outcome{}, core.ErrEmptyCategory
	}
	cats := core.NewCategorySet(s.CustomCategories)
	if !cats.Grow(name) {
		return s, Outcome{}, nil
	}
	next := s.Clone()
	next.CustomCategories = cats.Custom()
	return next, Outcome{Changed: true, NewCategories: []string{name}}, nil
}

func (r *Reducer) addGoal(s core.State, a AddGoal) (core.State, Outcome, error) {
	g := core.SavingsGoal{
		ID:     r.newID(),
		Name:   strings.TrimSpace(a.Name),
		Target: a.Target,
		Color:  strings.TrimSpace(a.Color),
	}
	if g.Color == "" {
		g.Color = goalColor(len(s.Goals))
	}
	if err := g.Validate(); err != nil {
		return s, Outcome{}, fmt.Errorf("%w: %w", ErrInvalidGoal, err)
	}
	next := s.Clone()
	next.Goals = append(next.Goals, g)
	return next, Outcome{Changed: true, Goal: &g}, nil
}

func (r *Reducer) contribute(s core.State, a ContributeToGoal) (core.State, Outcome, error) {
	for i, g := range s.Goals {
		if g.ID != a.ID {
			continue
		}
		g.Current = g.Current.Add(a.Amount)
		if g.Current.Cents < 0 {
			return s, Outcome{}, fmt.Errorf("%w: contribution leaves %s below zero", ErrInvalidGoal, g.Name)
		}
		next := s.Clone()
		next.Goals[i] = g
		return next, Outcome{Changed: !a.Amount.IsZero(), Goal: &g}, nil
	}
	return s, Outcome{}, fmt.Errorf("%w: %s", ErrGoalNotFound, a.ID)
}

// goalColor spreads hues with the golden angle so consecutive goals differ.
func goalColor(n int) string {
	return fmt.Sprintf("hsl(%d, 70%%, 50%%)", (n*137)%360)
}
