package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"zenbudget/internal/core"
	"zenbudget/internal/log"
	"zenbudget/internal/reconcile"
)

const (
	insightsFailedText = "Failed to generate AI insights. Please try again."

	defaultCallTimeout = 60 * time.Second
)

// Advisor wraps a Backend with the fallbacks callers rely on: it never
// returns an error. Concurrent identical requests share one backend call.
type Advisor struct {
	backend Backend
	timeout time.Duration
	logger  *log.Logger
	group   singleflight.Group
}

func NewAdvisor(backend Backend, logger *log.Logger) *Advisor {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &Advisor{
		backend: backend,
		timeout: defaultCallTimeout,
		logger:  logger.WithComponent(log.ComponentGateway),
	}
}

// WithTimeout bounds every backend call made by the advisor.
func (a *Advisor) WithTimeout(d time.Duration) *Advisor {
	if d > 0 {
		a.timeout = d
	}
	return a
}

// shared runs fn once for every concurrent caller using key. The call is
// detached from the caller that started it so a cancelled request does not
// fail the others; each caller still stops waiting when its own ctx ends.
func (a *Advisor) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := a.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Insights returns tips for month as of the given state revision, or a
// fixed message when the backend fails.
func (a *Advisor) Insights(ctx context.Context, month core.Month, revision uint64, s core.State) string {
	key := fmt.Sprintf("insights:%d:%s", revision, month)
	v, err := a.shared(ctx, key, func(callCtx context.Context) (any, error) {
		return a.backend.Insights(callCtx, InsightsPayload{
			Transactions:   s.TransactionsIn(month),
			MonthlyBudgets: s.MonthlyBudgets,
			CurrentMonth:   month,
		})
	})
	if err != nil {
		a.logger.WarnContext(ctx, "AI insights failed", log.FieldMonth, month, log.FieldError, err)
		return insightsFailedText
	}
	text, _ := v.(string)
	if strings.TrimSpace(text) == "" {
		return noInsightsText
	}
	return text
}

// Categorize suggests a category for description, or "Other".
func (a *Advisor) Categorize(ctx context.Context, description string, categories []string) string {
	key := "categorize:" + strings.Join(categories, "\x1f") + "\x1e" + description
	v, err := a.shared(ctx, key, func(callCtx context.Context) (any, error) {
		return a.backend.Categorize(callCtx, CategorizePayload{Description: description, AllCategories: categories})
	})
	if err != nil {
		a.logger.WarnContext(ctx, "AI categorization failed", log.FieldDescription, description, log.FieldError, err)
		return fallbackCategory
	}
	cat, _ := v.(string)
	if cat = strings.TrimSpace(cat); cat == "" {
		return fallbackCategory
	}
	return cat
}

// ParseCSV returns the candidates the model found in csvText. ok is false
// when the backend failed or answered with something other than a list, in
// which case no candidates are returned.
func (a *Advisor) ParseCSV(ctx context.Context, csvText string, categories []string) (candidates []reconcile.Candidate, ok bool) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.backend.ParseCSV(callCtx, ParseCSVPayload{CSVText: csvText, AllCategories: categories})
	if err != nil {
		a.logger.WarnContext(ctx, "AI CSV parsing failed", log.FieldOperation, log.OpParse, log.FieldError, err)
		return []reconcile.Candidate{}, false
	}
	candidates, err = reconcile.ParseCandidates(raw)
	if err != nil {
		a.logger.WarnContext(ctx, "AI CSV answer is not a list", log.FieldOperation, log.OpParse, log.FieldError, err)
		return []reconcile.Candidate{}, false
	}
	return candidates, true
}
