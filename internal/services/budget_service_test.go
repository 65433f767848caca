package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"zenbudget/internal/amqp"
	"zenbudget/internal/core"
	"zenbudget/internal/reconcile"
	"zenbudget/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.StateEvent
	err    error
}

func (p *recordingPublisher) PublishStateEvent(_ context.Context, ev *amqp.StateEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type stubAdvisor struct {
	category     string
	candidates   []reconcile.Candidate
	unreadable   bool
	insights     string
	calls        int
	lastRevision uint64
}

func (a *stubAdvisor) Insights(_ context.Context, _ core.Month, revision uint64, _ core.State) string {
	a.calls++
	a.lastRevision = revision
	return a.insights
}

func (a *stubAdvisor) Categorize(context.Context, string, []string) string {
	a.calls++
	return a.category
}

func (a *stubAdvisor) ParseCSV(context.Context, string, []string) ([]reconcile.Candidate, bool) {
	a.calls++
	if a.unreadable {
		return []reconcile.Candidate{}, false
	}
	return a.candidates, true
}

func newTestService(t *testing.T, store storage.StateStore, opts Options) *BudgetService {
	t.Helper()
	if store == nil {
		store = storage.NewMemoryStore()
		if err := storage.SaveState(context.Background(), store, core.EmptyState()); err != nil {
			t.Fatal(err)
		}
	}
	opts.Store = store
	if opts.NewID == nil {
		opts.NewID = seqIDs()
	}
	svc, err := NewBudgetService(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBudgetService() error = %v", err)
	}
	return svc
}

func TestNewBudgetService_SeedsDefaultState(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore(), Options{})
	if got := len(svc.State().Transactions); got != 93 {
		t.Fatalf("transactions = %d, want 93", got)
	}
	if svc.LoadNotice() != nil {
		t.Fatalf("LoadNotice() = %v", svc.LoadNotice())
	}
}

func TestNewBudgetService_CorruptStore(t *testing.T) {
	store := storage.NewMemoryStore()
	_ = store.Save(context.Background(), []byte("{{{"))
	svc := newTestService(t, store, Options{})
	if !errors.Is(svc.LoadNotice(), storage.ErrCorruptState) {
		t.Fatalf("LoadNotice() = %v", svc.LoadNotice())
	}
	if got := len(svc.State().Transactions); got != 93 {
		t.Fatalf("transactions = %d, want seeded default", got)
	}
}

func TestNewBudgetService_NilStore(t *testing.T) {
	if _, err := NewBudgetService(context.Background(), Options{}); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestBudgetService_ApplyPersistsAndPublishes(t *testing.T) {
	store := storage.NewMemoryStore()
	_ = storage.SaveState(context.Background(), store, core.EmptyState())
	pub := &recordingPublisher{}
	svc := newTestService(t, store, Options{Publisher: pub})
	ctx := context.Background()

	tx, grown, err := svc.AddTransaction(ctx, reconcile.NewCandidate("2025-11-05", "Paint", "12.40", core.Expense, "Hobby Fund"), false)
	if err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}
	if tx.ID != "id-1" || len(grown) != 1 {
		t.Fatalf("tx = %+v, grown = %v", tx, grown)
	}
	if err := svc.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	want := []amqp.EventType{amqp.EventTransactionsAdded, amqp.EventTransactionDeleted, amqp.EventStateReset}
	if len(pub.events) != len(want) {
		t.Fatalf("events = %d, want %d", len(pub.events), len(want))
	}
	for i, ev := range pub.events {
		if ev.Type != want[i] || ev.Revision != uint64(i+1) {
			t.Errorf("event %d = %s rev %d", i, ev.Type, ev.Revision)
		}
	}

	reloaded, err := storage.LoadState(ctx, store)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if len(reloaded.Transactions) != 0 || len(reloaded.CustomCategories) != 0 {
		t.Fatalf("persisted state = %+v", reloaded)
	}
}

func TestBudgetService_SaveFailureKeepsState(t *testing.T) {
	store := storage.NewMemoryStore()
	_ = storage.SaveState(context.Background(), store, core.EmptyState())
	store.Err = errors.New("disk full")
	svc := newTestService(t, store, Options{})

	_, err := svc.Import(context.Background(), []reconcile.Candidate{
		reconcile.NewCandidate("2025-11-05", "Paint", "12", core.Expense, "Other"),
	})
	if !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("Import() error = %v, want ErrSaveFailed", err)
	}
	if got := len(svc.State().Transactions); got != 1 {
		t.Fatalf("in-memory transactions = %d, want 1", got)
	}
	if svc.Revision() != 1 {
		t.Fatalf("revision = %d", svc.Revision())
	}
}

func TestBudgetService_FailedTransitionLeavesStateUntouched(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(t, nil, Options{Publisher: pub})
	before := svc.State()

	if err := svc.DeleteTransaction(context.Background(), "missing"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("error = %v", err)
	}
	if svc.Revision() != 0 || len(pub.events) != 0 {
		t.Fatal("failed transition was committed")
	}
	if len(svc.State().Transactions) != len(before.Transactions) {
		t.Fatal("state changed")
	}
}

func TestBudgetService_ImportIsIdempotent(t *testing.T) {
	svc := newTestService(t, nil, Options{})
	ctx := context.Background()
	batch := []reconcile.Candidate{
		reconcile.NewCandidate("2025-11-01", "Coffee Shop", "50", core.Expense, "Dining & Entertainment"),
		reconcile.NewCandidate("2025-11-02", "New Vendor", "30", core.Expense, "Hobby Fund"),
	}

	first, err := svc.Import(ctx, batch)
	if err != nil || first.Imported() != 2 {
		t.Fatalf("first import = %+v, %v", first, err)
	}
	rev := svc.Revision()
	second, err := svc.Import(ctx, batch)
	if err != nil || second.Imported() != 0 || len(second.Duplicates) != 2 {
		t.Fatalf("second import = %+v, %v", second, err)
	}
	if svc.Revision() != rev {
		t.Fatal("no-op import bumped revision")
	}
}

func TestBudgetService_AutoCategorize(t *testing.T) {
	adv := &stubAdvisor{category: "Groceries & Household"}
	svc := newTestService(t, nil, Options{Advisor: adv})

	tx, _, err := svc.AddTransaction(context.Background(), reconcile.NewCandidate("2025-11-05", "KROGER #415", "25.08", core.Expense, ""), true)
	if err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}
	if tx.Category != "Groceries & Household" {
		t.Fatalf("category = %q", tx.Category)
	}

	tx, _, _ = svc.AddTransaction(context.Background(), reconcile.NewCandidate("2025-11-06", "Vet", "80", core.Expense, ""), false)
	if tx.Category != core.CategoryOther {
		t.Fatalf("category without auto = %q, want Other", tx.Category)
	}
	if adv.calls != 1 {
		t.Fatalf("advisor calls = %d, want 1", adv.calls)
	}
}

func TestBudgetService_ImportCSV(t *testing.T) {
	adv := &stubAdvisor{candidates: []reconcile.Candidate{
		reconcile.NewCandidate("2025-11-05", "ALDI", "84.78", core.Expense, "Groceries & Household"),
		reconcile.NewCandidate("2025-11-05", "refund", "-3", core.Expense, "Other"),
	}}
	svc := newTestService(t, nil, Options{Advisor: adv})

	rep, err := svc.ImportCSV(context.Background(), "date,desc,amount\n...")
	if err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}
	if rep.Imported() != 1 || len(rep.Rejected) != 1 {
		t.Fatalf("report = %+v", rep)
	}

	noAdvisor := newTestService(t, nil, Options{})
	if _, err := noAdvisor.ImportCSV(context.Background(), "x"); !errors.Is(err, ErrAdvisorUnavailable) {
		t.Fatalf("error without advisor = %v", err)
	}
}

func TestBudgetService_ImportCSVUnreadableStatement(t *testing.T) {
	svc := newTestService(t, nil, Options{Advisor: &stubAdvisor{unreadable: true}})
	rev := svc.Revision()

	rep, err := svc.ImportCSV(context.Background(), "garbage")
	if !errors.Is(err, ErrStatementUnreadable) {
		t.Fatalf("ImportCSV() error = %v, want ErrStatementUnreadable", err)
	}
	if rep.Imported() != 0 || len(rep.Duplicates) != 0 || len(rep.Rejected) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if svc.Revision() != rev {
		t.Fatal("unreadable statement changed the state")
	}
}

func TestBudgetService_MonthViewSeedsAndCaches(t *testing.T) {
	svc := newTestService(t, nil, Options{})
	ctx := context.Background()

	view, err := svc.Month(ctx, "2025-11")
	if err != nil {
		t.Fatalf("Month() error = %v", err)
	}
	if len(view.Overview.Categories) != len(core.CoreCategories) {
		t.Fatalf("rows = %d", len(view.Overview.Categories))
	}
	if view.Overview.Budgeted.Cents != 760000 {
		t.Fatalf("seeded budget total = %d, want 760000", view.Overview.Budgeted.Cents)
	}
	rev := svc.Revision()

	if _, err := svc.Month(ctx, "2025-11"); err != nil {
		t.Fatal(err)
	}
	hits, _ := svc.Views().Stats()
	if hits != 1 || svc.Revision() != rev {
		t.Fatalf("hits = %d, revision %d -> %d", hits, rev, svc.Revision())
	}

	if _, err := svc.UpdateBudget(ctx, UpdateBudget{Month: "2025-11", Category: "Travel / Events", Budgeted: core.NewMoney(100, 0)}); err != nil {
		t.Fatal(err)
	}
	view, _ = svc.Month(ctx, "2025-11")
	if view.Overview.Budgeted.Cents != 770000 {
		t.Fatalf("budget total after update = %d, want 770000", view.Overview.Budgeted.Cents)
	}

	if _, err := svc.Month(ctx, "November"); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("bad month error = %v", err)
	}
}

func TestBudgetService_GoalsAndCategories(t *testing.T) {
	svc := newTestService(t, nil, Options{})
	ctx := context.Background()

	g, err := svc.AddGoal(ctx, AddGoal{Name: "Emergency", Target: core.NewMoney(1000, 0)})
	if err != nil {
		t.Fatal(err)
	}
	g, err = svc.Contribute(ctx, g.ID, core.NewMoney(1500, 0))
	if err != nil || g.Current.Cents != 150000 {
		t.Fatalf("Contribute() = %+v, %v", g, err)
	}
	view, _ := svc.Month(ctx, "2025-11")
	if len(view.Goals) != 1 || view.Goals[0].Percent != 100 {
		t.Fatalf("goal views = %+v", view.Goals)
	}

	cats, err := svc.AddCategory(ctx, "Pets")
	if err != nil || cats[len(cats)-1] != "Pets" {
		t.Fatalf("AddCategory() = %v, %v", cats, err)
	}
	if got := svc.Categories(); len(got) != len(core.CoreCategories)+1 {
		t.Fatalf("Categories() = %v", got)
	}
}

func TestBudgetService_TransactionsNewestFirst(t *testing.T) {
	svc := newTestService(t, nil, Options{})
	ctx := context.Background()
	for _, d := range []string{"2025-11-02", "2025-11-20", "2025-10-31"} {
		if _, _, err := svc.AddTransaction(ctx, reconcile.NewCandidate(d, "x "+d, "1", core.Expense, "Other"), false); err != nil {
			t.Fatal(err)
		}
	}
	nov := svc.Transactions("2025-11")
	if len(nov) != 2 || nov[0].Date.String() != "2025-11-20" {
		t.Fatalf("November = %+v", nov)
	}
	if all := svc.Transactions(""); len(all) != 3 || all[2].Date.String() != "2025-10-31" {
		t.Fatalf("all = %+v", all)
	}
}

func TestBudgetService_Insights(t *testing.T) {
	adv := &stubAdvisor{insights: "Spend less on dining."}
	svc := newTestService(t, nil, Options{Advisor: adv})

	text, err := svc.Insights(context.Background(), "2025-11")
	if err != nil || text != "Spend less on dining." {
		t.Fatalf("Insights() = %q, %v", text, err)
	}
	if adv.lastRevision != svc.Revision() {
		t.Fatalf("insights revision = %d, want %d", adv.lastRevision, svc.Revision())
	}
	if _, err := svc.AddCategory(context.Background(), "Pets"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Insights(context.Background(), "2025-11"); err != nil {
		t.Fatal(err)
	}
	if adv.lastRevision != svc.Revision() {
		t.Fatalf("insights after change used revision %d, want %d", adv.lastRevision, svc.Revision())
	}
	cat, err := svc.Categorize(context.Background(), "Shell gas")
	if err != nil || cat != "" {
		t.Fatalf("Categorize() = %q, %v", cat, err)
	}
}

func TestBudgetService_ConcurrentImports(t *testing.T) {
	svc := newTestService(t, nil, Options{NewID: func() string { return "" }})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Import(ctx, []reconcile.Candidate{
				reconcile.NewCandidate("2025-11-01", "Same row", "10", core.Expense, "Other"),
			})
		}()
	}
	wg.Wait()

	if got := len(svc.State().Transactions); got != 1 {
		t.Fatalf("transactions after concurrent identical imports = %d, want 1", got)
	}
}
