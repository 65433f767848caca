package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"zenbudget/internal/amqp"
	"zenbudget/internal/cache"
	"zenbudget/internal/core"
	"zenbudget/internal/log"
	"zenbudget/internal/reconcile"
	"zenbudget/internal/storage"
)

var (
	// ErrSaveFailed is returned alongside a successful transition whose
	// state could not be persisted. The change stays applied in memory.
	ErrSaveFailed = errors.New("changes applied but could not be saved")

	// ErrStatementUnreadable is returned with an empty import when the
	// advisor could not turn a bank statement into transactions.
	ErrStatementUnreadable = errors.New("bank statement could not be parsed")

	ErrAdvisorUnavailable = errors.New("AI advisor is not configured")
)

// EventPublisher announces committed state changes.
type EventPublisher interface {
	PublishStateEvent(ctx context.Context, ev *amqp.StateEvent) error
}

// Advisor produces AI suggestions. Implementations never fail: they return
// fallback values instead. ParseCSV reports ok=false when it fell back.
type Advisor interface {
	Insights(ctx context.Context, month core.Month, revision uint64, s core.State) string
	Categorize(ctx context.Context, description string, categories []string) string
	ParseCSV(ctx context.Context, csvText string, categories []string) (candidates []reconcile.Candidate, ok bool)
}

type Options struct {
	Store     storage.StateStore
	Publisher EventPublisher
	Advisor   Advisor
	NewID     func() string
	CacheSize int
	CacheTTL  time.Duration
	Logger    *log.Logger
}

// GoalView is a savings goal with its progress.
type GoalView struct {
	core.SavingsGoal
	Percent float64 `json:"percent"`
}

// MonthView is everything the dashboard shows for one month.
type MonthView struct {
	Overview core.MonthOverview    `json:"overview"`
	Health   []core.CategoryRow    `json:"health"`
	Mix      []core.CategoryAmount `json:"mix"`
	Goals    []GoalView            `json:"goals"`
}

// BudgetService owns the application state. Transitions are serialised and
// each committed change is persisted before the next one starts.
type BudgetService struct {
	mu         sync.Mutex
	state      core.State
	revision   uint64
	loadNotice error

	reducer   *Reducer
	store     storage.StateStore
	publisher EventPublisher
	advisor   Advisor
	views     *cache.LRUCache[any]
	logger    *log.Logger
	events    *log.StructuredLogger
}

// NewBudgetService loads the stored state. A corrupt store does not fail
// construction: the service starts from the default state and LoadNotice
// reports the problem.
func NewBudgetService(ctx context.Context, opts Options) (*BudgetService, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("create budget service: nil state store")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.FromContext(ctx)
	}
	logger = logger.WithComponent(log.ComponentBudget)

	s := &BudgetService{
		reducer:   NewReducer(opts.NewID),
		store:     opts.Store,
		publisher: opts.Publisher,
		advisor:   opts.Advisor,
		views:     cache.NewLRUCache[any](opts.CacheSize, opts.CacheTTL),
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
	}

	state, err := storage.LoadState(ctx, opts.Store)
	if err != nil {
		logger.WarnContext(ctx, "Stored state unreadable, starting from defaults", "error", err)
		s.loadNotice = err
	}
	s.state = state

	logger.InfoContext(ctx, "Budget state loaded",
		"transactions", len(state.Transactions),
		"months", len(state.MonthlyBudgets),
		"custom_categories", len(state.CustomCategories),
		"goals", len(state.Goals))
	return s, nil
}

// Views exposes the memoisation cache for periodic cleanup.
func (s *BudgetService) Views() *cache.LRUCache[any] {
	return s.views
}

// LoadNotice reports a corrupt store detected at startup, if any.
func (s *BudgetService) LoadNotice() error {
	return s.loadNotice
}

// State returns a copy of the current state.
func (s *BudgetService) State() core.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *BudgetService) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

func (s *BudgetService) snapshot() (core.State, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), s.revision
}

// Apply runs one transition. On a reducer error the state is unchanged. On a
// save failure the new state is kept and ErrSaveFailed is returned.
func (s *BudgetService) Apply(ctx context.Context, a Action) (core.State, Outcome, error) {
	s.mu.Lock()
	next, out, err := s.reducer.Reduce(s.state, a)
	if err != nil {
		s.mu.Unlock()
		return core.State{}, out, err
	}
	if !out.Changed {
		cur := s.state.Clone()
		s.mu.Unlock()
		return cur, out, nil
	}

	s.state = next
	s.revision++
	rev := s.revision
	s.views.Purge()
	saveErr := storage.SaveState(ctx, s.store, next)
	snapshot := next.Clone()
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "State transition applied",
		log.FieldAction, a.Kind(),
		log.FieldRevision, rev)

	s.publish(ctx, rev, out)

	if saveErr != nil {
		fields := log.NewFields().WithErrorType(log.ErrorTypeDatabase)
		fields[log.FieldAction] = a.Kind()
		fields[log.FieldRevision] = rev
		s.events.LogError(ctx, "Failed to persist state", saveErr, log.ComponentStorage, log.OpUpdate, fields)
		return snapshot, out, fmt.Errorf("%w: %v", ErrSaveFailed, saveErr)
	}
	return snapshot, out, nil
}

func (s *BudgetService) publish(ctx context.Context, rev uint64, out Outcome) {
	if s.publisher == nil {
		return
	}
	var events []*amqp.StateEvent
	switch {
	case out.Reset:
		events = append(events, amqp.NewStateReset(rev))
	case out.Deleted != nil:
		events = append(events, amqp.NewTransactionDeleted(rev, out.Deleted.ID))
	case len(out.Added) > 0:
		events = append(events, amqp.NewTransactionsAdded(rev, out.Added))
	}
	for _, ev := range events {
		if err := s.publisher.PublishStateEvent(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish state event",
				"type", ev.Type,
				log.FieldRevision, rev,
				log.FieldError, err)
		}
	}
}

// Categories returns core followed by custom categories.
func (s *BudgetService) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AllCategories()
}

// Transactions lists the transactions of month, or all of them when month
// is empty, newest first.
func (s *BudgetService) Transactions(month core.Month) []core.Transaction {
	s.mu.Lock()
	var txs []core.Transaction
	if month == "" {
		txs = append([]core.Transaction{}, s.state.Transactions...)
	} else {
		txs = s.state.TransactionsIn(month)
	}
	s.mu.Unlock()

	if txs == nil {
		txs = []core.Transaction{}
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.After(txs[j].Date.Time) })
	return txs
}

// AddTransaction stores a manual entry. With autoCategorize and no category
// the advisor picks one from the description.
func (s *BudgetService) AddTransaction(ctx context.Context, c reconcile.Candidate, autoCategorize bool) (core.Transaction, []string, error) {
	if autoCategorize && c.CategoryText() == "" && s.advisor != nil {
		if desc := c.DescriptionText(); desc != "" {
			c = c.WithCategory(s.advisor.Categorize(ctx, desc, s.Categories()))
		}
	}

	_, out, err := s.Apply(ctx, AddTransaction{Candidate: c})
	if err != nil && !errors.Is(err, ErrSaveFailed) {
		return core.Transaction{}, nil, err
	}
	t := out.Added[0]
	s.events.LogTransactionAdded(ctx, t.ID, t.Description, t.Amount.Cents, t.Category, string(t.Type))
	return t, out.NewCategories, err
}

// Import reconciles a batch of candidates atomically.
func (s *BudgetService) Import(ctx context.Context, batch []reconcile.Candidate) (reconcile.Report, error) {
	_, out, err := s.Apply(ctx, ImportTransactions{Candidates: batch})
	if out.Report == nil {
		return reconcile.Report{}, err
	}
	rep := *out.Report
	s.events.LogImport(ctx, rep.Imported(), len(rep.Duplicates), len(rep.Rejected), rep.NewCategories)
	return rep, err
}

// ImportCSV asks the advisor to extract candidates from a bank statement
// and imports them. The AI call runs outside the state lock. An unreadable
// statement yields an empty report and ErrStatementUnreadable.
func (s *BudgetService) ImportCSV(ctx context.Context, csvText string) (reconcile.Report, error) {
	if s.advisor == nil {
		return reconcile.Report{}, ErrAdvisorUnavailable
	}
	candidates, ok := s.advisor.ParseCSV(ctx, csvText, s.Categories())
	if !ok {
		s.logger.WarnContext(ctx, "Bank statement import produced no transactions", log.FieldOperation, log.OpImport)
		return reconcile.Report{NewCategories: []string{}}, ErrStatementUnreadable
	}
	return s.Import(ctx, candidates)
}

func (s *BudgetService) DeleteTransaction(ctx context.Context, id string) error {
	_, _, err := s.Apply(ctx, DeleteTransaction{ID: id})
	return err
}

func (s *BudgetService) UpdateBudget(ctx context.Context, u UpdateBudget) (core.MonthlyBudget, error) {
	next, _, err := s.Apply(ctx, u)
	if err != nil && !errors.Is(err, ErrSaveFailed) {
		return core.MonthlyBudget{}, err
	}
	mb, _ := next.Budget(u.Month)
	return mb, err
}

// AddCategory registers a custom category and returns all categories.
func (s *BudgetService) AddCategory(ctx context.Context, name string) ([]string, error) {
	next, _, err := s.Apply(ctx, AddCategory{Name: name})
	if err != nil && !errors.Is(err, ErrSaveFailed) {
		return nil, err
	}
	return next.AllCategories(), err
}

func (s *BudgetService) AddGoal(ctx context.Context, g AddGoal) (core.SavingsGoal, error) {
	_, out, err := s.Apply(ctx, g)
	if err != nil && !errors.Is(err, ErrSaveFailed) {
		return core.SavingsGoal{}, err
	}
	return *out.Goal, err
}

func (s *BudgetService) Contribute(ctx context.Context, id string, amount core.Money) (core.SavingsGoal, error) {
	_, out, err := s.Apply(ctx, ContributeToGoal{ID: id, Amount: amount})
	if err != nil && !errors.Is(err, ErrSaveFailed) {
		return core.SavingsGoal{}, err
	}
	return *out.Goal, err
}

// Reset wipes every transaction, budget, category and goal.
func (s *BudgetService) Reset(ctx context.Context) error {
	_, _, err := s.Apply(ctx, Reset{})
	if err == nil || errors.Is(err, ErrSaveFailed) {
		s.logger.WarnContext(ctx, "Budget state reset", log.FieldOperation, log.OpReset)
	}
	return err
}

// Month returns the dashboard view of month, seeding its budget first.
func (s *BudgetService) Month(ctx context.Context, month core.Month) (MonthView, error) {
	if err := month.Validate(); err != nil {
		return MonthView{}, err
	}
	_, _, notice := s.Apply(ctx, EnsureMonth{Month: month})
	if notice != nil && !errors.Is(notice, ErrSaveFailed) {
		return MonthView{}, notice
	}

	view := cachedView(s, "month:"+string(month), func(st core.State) MonthView {
		goals := make([]GoalView, 0, len(st.Goals))
		for _, g := range st.Goals {
			goals = append(goals, GoalView{SavingsGoal: g, Percent: core.GoalPercent(g)})
		}
		return MonthView{
			Overview: core.BuildMonthOverview(st, month),
			Health:   core.CategoryHealth(st, month),
			Mix:      core.SpendingMix(st, month),
			Goals:    goals,
		}
	})
	return view, notice
}

func (s *BudgetService) Trend() []core.TrendPoint {
	return cachedView(s, "trend", core.Trend)
}

func (s *BudgetService) History() []core.TrendPoint {
	return cachedView(s, "history", core.History)
}

// Insights returns the advisor's commentary on month.
func (s *BudgetService) Insights(ctx context.Context, month core.Month) (string, error) {
	if err := month.Validate(); err != nil {
		return "", err
	}
	if s.advisor == nil {
		return "", ErrAdvisorUnavailable
	}
	state, rev := s.snapshot()
	return s.advisor.Insights(ctx, month, rev, state), nil
}

// Categorize suggests a category for a description.
func (s *BudgetService) Categorize(ctx context.Context, description string) (string, error) {
	if s.advisor == nil {
		return "", ErrAdvisorUnavailable
	}
	return s.advisor.Categorize(ctx, description, s.Categories()), nil
}

// cachedView memoises build by revision so any committed change invalidates it.
func cachedView[T any](s *BudgetService, name string, build func(core.State) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%d:%s", s.revision, name)
	if v, ok := s.views.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed
		}
	}
	v := build(s.state)
	s.views.Set(key, v)
	return v
}
