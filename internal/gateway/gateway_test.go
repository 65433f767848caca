package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"zenbudget/internal/core"
	"zenbudget/internal/reconcile"
)

type fakeGenerator struct {
	mu     sync.Mutex
	answer string
	err    error
	reqs   []GenerateRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return g.answer, g.err
}

func (g *fakeGenerator) last() GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reqs[len(g.reqs)-1]
}

func sampleTx(date, desc, cat string, units int64) core.Transaction {
	d, _ := core.ParseDate(date)
	return core.Transaction{ID: desc, Date: d, Description: desc, Category: cat, Amount: core.NewMoney(units, 0), Type: core.Expense}
}

func TestService_InsightsPrompt(t *testing.T) {
	gen := &fakeGenerator{answer: "1. Cook at home."}
	svc := NewService(gen)

	text, err := svc.Insights(context.Background(), InsightsPayload{
		CurrentMonth: "2025-11",
		Transactions: []core.Transaction{
			sampleTx("2025-11-03", "KROGER", "Groceries & Household", 25),
			sampleTx("2025-10-03", "OLD", "Groceries & Household", 99),
		},
		MonthlyBudgets: []core.MonthlyBudget{{
			Month:   "2025-11",
			Budgets: []core.CategoryBudget{{Category: "Groceries & Household", Budgeted: core.NewMoney(1000, 0)}},
		}},
	})
	if err != nil || text != "1. Cook at home." {
		t.Fatalf("Insights() = %q, %v", text, err)
	}

	req := gen.last()
	if req.Tier != TierPro || req.SystemInstruction != advisorInstruction || req.Schema != nil {
		t.Fatalf("request = %+v", req)
	}
	for _, want := range []string{
		"Analyze my family budget for 2025-11.",
		`[{"category":"Groceries & Household","budgeted":1000.00}]`,
		`[{"category":"Groceries & Household","amount":25.00,"type":"expense","desc":"KROGER"}]`,
		"Provide 3 concise, actionable financial tips",
	} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, req.Prompt)
		}
	}
	if strings.Contains(req.Prompt, "OLD") {
		t.Error("prompt includes a transaction from another month")
	}
}

func TestService_InsightsEmptyAnswer(t *testing.T) {
	svc := NewService(&fakeGenerator{answer: "  "})
	text, err := svc.Insights(context.Background(), InsightsPayload{CurrentMonth: "2025-11"})
	if err != nil || text != noInsightsText {
		t.Fatalf("Insights() = %q, %v", text, err)
	}
}

func TestService_Categorize(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		want    string
		wantErr bool
	}{
		{"plain json", `{"category":"Groceries & Household"}`, "Groceries & Household", false},
		{"fenced json", "```json\n{\"category\":\"Debt Payments\"}\n```", "Debt Payments", false},
		{"empty answer", "", "Other", false},
		{"missing field", `{}`, "Other", false},
		{"garbage", `{"category":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{answer: tt.answer}
			got, err := NewService(gen).Categorize(context.Background(), CategorizePayload{
				Description:   "KROGER #415",
				AllCategories: []string{"Groceries & Household", "Other"},
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("Categorize() = %q, want %q", got, tt.want)
			}
			req := gen.last()
			if req.Tier != TierFlash || req.Schema != categorySchema {
				t.Fatalf("request = %+v", req)
			}
			want := `Categorize this transaction description into one of these: Groceries & Household, Other. Description: "KROGER #415"`
			if req.Prompt != want {
				t.Fatalf("prompt = %q", req.Prompt)
			}
		})
	}
}

func TestService_ParseCSVTruncatesInput(t *testing.T) {
	gen := &fakeGenerator{answer: `[{"date":"2025-11-01","description":"x","amount":1,"type":"expense","category":"Other"}]`}
	csv := strings.Repeat("a", 8000) + "TAIL"

	raw, err := NewService(gen).ParseCSV(context.Background(), ParseCSVPayload{CSVText: csv, AllCategories: []string{"Other"}})
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if !json.Valid(raw) {
		t.Fatalf("result is not JSON: %s", raw)
	}
	req := gen.last()
	if strings.Contains(req.Prompt, "TAIL") {
		t.Error("CSV text was not truncated")
	}
	if !strings.Contains(req.Prompt, "4. Category: Map to one of: Other.") {
		t.Error("prompt lacks the category list")
	}
	if req.Schema != transactionsSchema || req.Tier != TierPro {
		t.Fatalf("request = %+v", req)
	}
}

func TestService_ParseCSVAnswers(t *testing.T) {
	tests := []struct {
		answer  string
		want    string
		wantErr bool
	}{
		{"", "[]", false},
		{"```\n[]\n```", "[]", false},
		{"[{", "", true},
	}
	for _, tt := range tests {
		raw, err := NewService(&fakeGenerator{answer: tt.answer}).ParseCSV(context.Background(), ParseCSVPayload{})
		if (err != nil) != tt.wantErr {
			t.Fatalf("answer %q: error = %v", tt.answer, err)
		}
		if !tt.wantErr && string(raw) != tt.want {
			t.Fatalf("answer %q: got %s", tt.answer, raw)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go: [1,2] hope it helps", `[1,2]`},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func post(t *testing.T, h http.Handler, method, body string) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	req := httptest.NewRequest(method, "/api/gemini", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var e ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &e)
	return rec, e
}

func TestHandler_Errors(t *testing.T) {
	failing := NewHandler(NewService(&fakeGenerator{err: errors.New("quota exceeded")}), 0)

	tests := []struct {
		name       string
		h          http.Handler
		method     string
		body       string
		wantStatus int
		wantError  string
	}{
		{"non post", failing, http.MethodGet, "", http.StatusMethodNotAllowed, "Method not allowed"},
		{"missing key", NewHandler(nil, 0), http.MethodPost, `{"action":"insights"}`, http.StatusInternalServerError, "Missing GEMINI_API_KEY (set it in the server environment)"},
		{"missing action", failing, http.MethodPost, `{"payload":{}}`, http.StatusBadRequest, "Missing action"},
		{"empty body", failing, http.MethodPost, ``, http.StatusBadRequest, "Missing action"},
		{"unknown action", failing, http.MethodPost, `{"action":"summarize"}`, http.StatusBadRequest, "Unknown action: summarize"},
		{"bad payload", failing, http.MethodPost, `{"action":"categorize","payload":{"description":5}}`, http.StatusBadRequest, "Invalid payload"},
		{"model failure", failing, http.MethodPost, `{"action":"categorize","payload":{"description":"x"}}`, http.StatusInternalServerError, "Gemini request failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, e := post(t, tt.h, tt.method, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if e.Error != tt.wantError {
				t.Fatalf("error = %q, want %q", e.Error, tt.wantError)
			}
		})
	}

	_, e := post(t, failing, http.MethodPost, `{"action":"categorize","payload":{"description":"x"}}`)
	if e.Details != "quota exceeded" {
		t.Fatalf("details = %q", e.Details)
	}
}

func TestHandler_BodyLimit(t *testing.T) {
	h := NewHandler(NewService(&fakeGenerator{}), 16)
	rec, _ := post(t, h, http.MethodPost, `{"action":"parseCsv","payload":{"csvText":"`+strings.Repeat("x", 64)+`"}}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestClientAgainstHandler(t *testing.T) {
	gen := &fakeGenerator{answer: `{"category":"Debt Payments"}`}
	srv := httptest.NewServer(NewHandler(NewService(gen), 0))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	cat, err := c.Categorize(context.Background(), CategorizePayload{Description: "VISA PAYMENT", AllCategories: []string{"Debt Payments"}})
	if err != nil || cat != "Debt Payments" {
		t.Fatalf("Categorize() = %q, %v", cat, err)
	}

	gen.answer = "Keep going."
	text, err := c.Insights(context.Background(), InsightsPayload{CurrentMonth: "2025-11"})
	if err != nil || text != "Keep going." {
		t.Fatalf("Insights() = %q, %v", text, err)
	}

	gen.answer = `[{"date":"2025-11-01","description":"x","amount":5,"type":"expense","category":"Other"}]`
	raw, err := c.ParseCSV(context.Background(), ParseCSVPayload{CSVText: "a,b"})
	if err != nil || !bytes.HasPrefix(raw, []byte("[")) {
		t.Fatalf("ParseCSV() = %s, %v", raw, err)
	}

	gen.err = errors.New("boom")
	_, err = c.Categorize(context.Background(), CategorizePayload{Description: "x"})
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Status != http.StatusInternalServerError || remote.Details != "boom" {
		t.Fatalf("error = %#v", err)
	}
}

type fakeBackend struct {
	insights   string
	category   string
	csv        json.RawMessage
	err        error
	mu         sync.Mutex
	calls      int
	release    chan struct{}
	lastMonth  core.Month
	lastTxsLen int
}

func (b *fakeBackend) Insights(_ context.Context, p InsightsPayload) (string, error) {
	b.mu.Lock()
	b.calls++
	b.lastMonth = p.CurrentMonth
	b.lastTxsLen = len(p.Transactions)
	b.mu.Unlock()
	if b.release != nil {
		<-b.release
	}
	return b.insights, b.err
}

func (b *fakeBackend) Categorize(context.Context, CategorizePayload) (string, error) {
	return b.category, b.err
}

func (b *fakeBackend) ParseCSV(context.Context, ParseCSVPayload) (json.RawMessage, error) {
	return b.csv, b.err
}

func TestAdvisor_Fallbacks(t *testing.T) {
	ctx := context.Background()
	s := core.EmptyState()

	failing := NewAdvisor(&fakeBackend{err: errors.New("offline")}, nil)
	if got := failing.Insights(ctx, "2025-11", 1, s); got != "Failed to generate AI insights. Please try again." {
		t.Errorf("Insights fallback = %q", got)
	}
	if got := failing.Categorize(ctx, "SHELL OIL", nil); got != "Other" {
		t.Errorf("Categorize fallback = %q", got)
	}
	if got, ok := failing.ParseCSV(ctx, "a,b", nil); ok || got == nil || len(got) != 0 {
		t.Errorf("ParseCSV fallback = %v, %v", got, ok)
	}

	empty := NewAdvisor(&fakeBackend{csv: json.RawMessage(`{"oops":true}`)}, nil)
	if got := empty.Insights(ctx, "2025-11", 1, s); got != "No insights available at the moment." {
		t.Errorf("empty insights = %q", got)
	}
	if got := empty.Categorize(ctx, "x", nil); got != "Other" {
		t.Errorf("empty category = %q", got)
	}
	if got, ok := empty.ParseCSV(ctx, "a,b", nil); ok || len(got) != 0 {
		t.Errorf("non-array CSV answer = %v, %v", got, ok)
	}
}

func TestAdvisor_ParseCSVFeedsReconciler(t *testing.T) {
	a := NewAdvisor(&fakeBackend{csv: json.RawMessage(`[
		{"date":"2025-11-01","description":"ALDI","amount":84.78,"type":"expense","category":"Groceries & Household"},
		{"date":"2025-11-02","description":"bad","amount":-1,"type":"expense","category":"Other"}
	]`)}, nil)
	got, ok := a.ParseCSV(context.Background(), "csv", nil)
	if !ok || len(got) != 2 {
		t.Fatalf("candidates = %d", len(got))
	}
	_, rep := reconcile.New(nil).Import(core.EmptyState(), got)
	if rep.Imported() != 1 || len(rep.Rejected) != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestAdvisor_InsightsSharesConcurrentCalls(t *testing.T) {
	b := &fakeBackend{insights: "tips", release: make(chan struct{})}
	a := NewAdvisor(b, nil)
	s := core.EmptyState()
	s.Transactions = []core.Transaction{sampleTx("2025-11-02", "x", "Other", 1), sampleTx("2025-12-02", "y", "Other", 1)}

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.Insights(context.Background(), "2025-11", 7, s)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(b.release)
	wg.Wait()

	for _, r := range results {
		if r != "tips" {
			t.Fatalf("result = %q", r)
		}
	}
	if b.calls > 5 || b.calls < 1 {
		t.Fatalf("backend calls = %d", b.calls)
	}
	if b.lastMonth != "2025-11" || b.lastTxsLen != 1 {
		t.Fatalf("payload month %s with %d transactions", b.lastMonth, b.lastTxsLen)
	}
}

func TestAdvisor_InsightsSurvivesCancelledLeader(t *testing.T) {
	b := &fakeBackend{insights: "tips", release: make(chan struct{})}
	a := NewAdvisor(b, nil)
	s := core.EmptyState()

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leader := make(chan string)
	go func() { leader <- a.Insights(leaderCtx, "2025-11", 3, s) }()
	waitForCalls(t, b, 1)

	follower := make(chan string)
	go func() { follower <- a.Insights(context.Background(), "2025-11", 3, s) }()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	if got := <-leader; got != insightsFailedText {
		t.Fatalf("cancelled caller = %q", got)
	}
	close(b.release)
	if got := <-follower; got != "tips" {
		t.Fatalf("live caller = %q, want tips", got)
	}
	if b.calls != 1 {
		t.Fatalf("backend calls = %d, want 1", b.calls)
	}
}

func TestAdvisor_InsightsKeyedByRevision(t *testing.T) {
	b := &fakeBackend{insights: "tips", release: make(chan struct{})}
	a := NewAdvisor(b, nil)
	s := core.EmptyState()

	done := make(chan string, 2)
	go func() { done <- a.Insights(context.Background(), "2025-11", 1, s) }()
	waitForCalls(t, b, 1)
	go func() { done <- a.Insights(context.Background(), "2025-11", 2, s) }()
	waitForCalls(t, b, 2)

	close(b.release)
	<-done
	<-done
}

func TestAdvisor_CallTimeout(t *testing.T) {
	b := &blockingBackend{}
	a := NewAdvisor(b, nil).WithTimeout(20 * time.Millisecond)
	if got := a.Insights(context.Background(), "2025-11", 1, core.EmptyState()); got != insightsFailedText {
		t.Fatalf("Insights after timeout = %q", got)
	}
	if got, ok := a.ParseCSV(context.Background(), "a,b", nil); ok || len(got) != 0 {
		t.Fatalf("ParseCSV after timeout = %v, %v", got, ok)
	}
}

// waitForCalls blocks until the backend has seen n insight calls.
func waitForCalls(t *testing.T, b *fakeBackend, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		calls := b.calls
		b.mu.Unlock()
		if calls >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("backend saw fewer than %d calls", n)
}

type blockingBackend struct{}

func (blockingBackend) Insights(ctx context.Context, _ InsightsPayload) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingBackend) Categorize(ctx context.Context, _ CategorizePayload) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingBackend) ParseCSV(ctx context.Context, _ ParseCSVPayload) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
