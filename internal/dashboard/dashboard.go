// Package dashboard computes the per-user spending dashboard: month expenses,
// budget utilization, the full monthly series, category breakdown and derived
// insights. All computation is read-only and recomputed per request.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"finsight/internal/models"
)

// ErrInvalidPeriod is returned for a month outside 1-12 or a year that cannot
// form a calendar date.
var ErrInvalidPeriod = errors.New("invalid period")

// Store is the set of read queries the engine needs. *storage.DB satisfies it.
type Store interface {
	ExpensesForMonth(ctx context.Context, userID int64, year, month int) ([]models.Expense, error)
	CategoryTotalsForMonth(ctx context.Context, userID int64, year, month int) ([]models.CategoryTotal, error)
	MonthlyTotals(ctx context.Context, userID int64) ([]models.MonthTotal, error)
	AvailableMonths(ctx context.Context, userID int64) ([]models.YearMonth, error)
	BudgetsForUser(ctx context.Context, userID int64) ([]models.Budget, error)
}

// BudgetStatus reports one budget's utilization for the selected month.
type BudgetStatus struct {
	BudgetID     int64
	CategoryName string
	LimitCents   int64
	SpentCents   int64
	PercentUsed  float64
	Exceeded     bool
}

// MonthPoint is one step of the all-history monthly series.
type MonthPoint struct {
	Year       int
	Month      int
	Label      string // "Jan 2006"
	TotalCents int64
}

// Payload is the fully aggregated dashboard for one user and month.
type Payload struct {
	Year      int
	Month     int
	MonthName string

	Expenses          []models.Expense
	Budgets           []BudgetStatus
	MonthlySeries     []MonthPoint
	CategoryBreakdown []models.CategoryTotal
	AvailableMonths   []models.YearMonth
	Insights          []string
}

// Result is either a payload to render or a redirect to another month.
// Exactly one of the two fields is set.
type Result struct {
	Redirect *models.YearMonth
	Payload  *Payload
}

// ValidatePeriod rejects periods that cannot form a calendar date.
func ValidatePeriod(year, month int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, month)
	}
	if year < 1 || year > 9999 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, year)
	}
	return nil
}

// Compute aggregates a user's expenses for the selected month. When the month
// is empty but other months have expenses, it returns a redirect to the most
// recent non-empty month instead of an empty payload.
func Compute(ctx context.Context, store Store, userID int64, year, month int) (*Result, error) {
	if err := ValidatePeriod(year, month); err != nil {
		return nil, err
	}

	expenses, err := store.ExpensesForMonth(ctx, userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("expenses for month: %w", err)
	}

	available, err := store.AvailableMonths(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("available months: %w", err)
	}

	if len(expenses) == 0 && len(available) > 0 {
		latest := available[0]
		return &Result{Redirect: &latest}, nil
	}

	breakdown, err := store.CategoryTotalsForMonth(ctx, userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}

	budgets, err := store.BudgetsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("budgets: %w", err)
	}

	monthly, err := store.MonthlyTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}

	spentByCategory := make(map[int64]int64, len(breakdown))
	for _, t := range breakdown {
		spentByCategory[t.CategoryID] = t.TotalCents
	}

	statuses := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		spent := spentByCategory[b.CategoryID]
		statuses = append(statuses, BudgetStatus{
			BudgetID:     b.ID,
			CategoryName: b.CategoryName,
			LimitCents:   b.LimitCents,
			SpentCents:   spent,
			PercentUsed:  percentUsed(spent, b.LimitCents),
			Exceeded:     spent > b.LimitCents,
		})
	}

	series := make([]MonthPoint, 0, len(monthly))
	for _, m := range monthly {
		series = append(series, MonthPoint{
			Year:       m.Year,
			Month:      m.Month,
			Label:      monthLabel(m.Year, m.Month),
			TotalCents: m.TotalCents,
		})
	}

	p := &Payload{
		Year:              year,
		Month:             month,
		MonthName:         time.Month(month).String(),
		Expenses:          expenses,
		Budgets:           statuses,
		MonthlySeries:     series,
		CategoryBreakdown: breakdown,
		AvailableMonths:   available,
	}
	p.Insights = insights(breakdown, statuses, series)

	return &Result{Payload: p}, nil
}

// percentUsed is spent/limit as a percentage rounded to two decimal places.
// A zero limit yields zero.
func percentUsed(spentCents, limitCents int64) float64 {
	if limitCents == 0 {
		return 0
	}
	return math.Round(float64(spentCents)/float64(limitCents)*10000) / 100
}

func monthLabel(year, month int) string {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006")
}

// insights applies the three heuristic rules in fixed order. Each rule
// contributes at most one string.
func insights(breakdown []models.CategoryTotal, budgets []BudgetStatus, series []MonthPoint) []string {
	var out []string

	// Rule 1: highest spending category. The first category in iteration
	// order wins ties.
	if len(breakdown) > 0 {
		top := breakdown[0]
		for _, t := range breakdown[1:] {
			if t.TotalCents > top.TotalCents {
				top = t
			}
		}
		out = append(out, fmt.Sprintf("Your highest spending category this month is %s.", top.CategoryName))
	}

	// Rule 2: budget warnings, one per budget, exceeded takes priority.
	for _, b := range budgets {
		switch {
		case b.PercentUsed >= 100:
			out = append(out, fmt.Sprintf("You have exceeded your %s budget.", b.CategoryName))
		case b.PercentUsed >= 80:
			out = append(out, fmt.Sprintf("You are close to exceeding your %s budget.", b.CategoryName))
		}
	}

	// Rule 3: three strictly increasing trailing months. Ties do not count.
	if n := len(series); n >= 3 &&
		series[n-1].TotalCents > series[n-2].TotalCents &&
		series[n-2].TotalCents > series[n-3].TotalCents {
		out = append(out, "Your expenses have increased for the last 3 consecutive months.")
	}

	return out
}
