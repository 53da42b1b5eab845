package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"finsight/internal/dashboard"
	"finsight/internal/models"
	"finsight/internal/money"
)

// ExpenseRow is one expense formatted for display.
type ExpenseRow struct {
	ID          int64
	Date        string
	Category    string
	Amount      string
	Description string
}

// BudgetRow is one budget's utilization formatted for display.
type BudgetRow struct {
	ID          int64
	Category    string
	Limit       string
	Spent       string
	PercentUsed string
	Exceeded    bool
	Warning     bool
}

// SeriesRow is one month of the all-history series formatted for display.
type SeriesRow struct {
	Label string
	Total string
}

// BreakdownRow is one category total formatted for display.
type BreakdownRow struct {
	Category string
	Total    string
}

// MonthOption is one entry of the month selector.
type MonthOption struct {
	Year     int
	Month    int
	Label    string
	Selected bool
}

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Username  string
	Year      int
	Month     int
	MonthName string

	Expenses        []ExpenseRow
	Budgets         []BudgetRow
	Series          []SeriesRow
	Breakdown       []BreakdownRow
	AvailableMonths []MonthOption
	Insights        []string
}

// Dashboard renders the aggregated dashboard for the selected month.
// Malformed or out-of-range month/year parameters fall back to the current
// period so the page is always renderable.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if v := r.URL.Query().Get("year"); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := r.URL.Query().Get("month"); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			month = m
		}
	}

	res, err := dashboard.Compute(r.Context(), h.db, user.ID, year, month)
	if errors.Is(err, dashboard.ErrInvalidPeriod) {
		slog.WarnContext(r.Context(), "Invalid dashboard period", "year", year, "month", month, "user_id", user.ID)
		year, month = now.Year(), int(now.Month())
		res, err = dashboard.Compute(r.Context(), h.db, user.ID, year, month)
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Dashboard computation failed", "error", err, "user_id", user.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if res.Redirect != nil {
		target := fmt.Sprintf("%s?month=%d&year=%d", dashboardPath, res.Redirect.Month, res.Redirect.Year)
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	h.render(w, "dashboard.html", dashboardViewModel(user, res.Payload))
}

func dashboardViewModel(user *models.User, p *dashboard.Payload) DashboardViewModel {
	vm := DashboardViewModel{
		Username:  user.Username,
		Year:      p.Year,
		Month:     p.Month,
		MonthName: p.MonthName,
		Insights:  p.Insights,
	}
	for _, e := range p.Expenses {
		vm.Expenses = append(vm.Expenses, expenseRow(e))
	}
	for _, b := range p.Budgets {
		vm.Budgets = append(vm.Budgets, BudgetRow{
			ID:          b.BudgetID,
			Category:    b.CategoryName,
			Limit:       money.FormatCents(b.LimitCents),
			Spent:       money.FormatCents(b.SpentCents),
			PercentUsed: strconv.FormatFloat(b.PercentUsed, 'f', 2, 64),
			Exceeded:    b.Exceeded,
			Warning:     !b.Exceeded && b.PercentUsed >= 80,
		})
	}
	for _, m := range p.MonthlySeries {
		vm.Series = append(vm.Series, SeriesRow{Label: m.Label, Total: money.FormatCents(m.TotalCents)})
	}
	for _, t := range p.CategoryBreakdown {
		vm.Breakdown = append(vm.Breakdown, BreakdownRow{Category: t.CategoryName, Total: money.FormatCents(t.TotalCents)})
	}
	for _, am := range p.AvailableMonths {
		vm.AvailableMonths = append(vm.AvailableMonths, MonthOption{
			Year:     am.Year,
			Month:    am.Month,
			Label:    time.Date(am.Year, time.Month(am.Month), 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006"),
			Selected: am.Year == p.Year && am.Month == p.Month,
		})
	}
	return vm
}

func expenseRow(e models.Expense) ExpenseRow {
	return ExpenseRow{
		ID:          e.ID,
		Date:        e.Date.Format("2006-01-02"),
		Category:    e.CategoryName,
		Amount:      money.FormatCents(e.AmountCents),
		Description: e.Description,
	}
}

// MonthlySummaryViewModel is the data passed to the monthly summary template.
type MonthlySummaryViewModel struct {
	Rows []SeriesRow
}

// MonthlySummary renders the full monthly series across the user's history.
func (h *Handlers) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	totals, err := h.db.MonthlyTotals(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Monthly totals failed", "error", err, "user_id", user.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	vm := MonthlySummaryViewModel{}
	for _, t := range totals {
		label := time.Date(t.Year, time.Month(t.Month), 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006")
		vm.Rows = append(vm.Rows, SeriesRow{Label: label, Total: money.FormatCents(t.TotalCents)})
	}
	h.render(w, "monthly_summary.html", vm)
}

// ExportCSV streams all of the user's expenses as a CSV attachment.
func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	expenses, err := h.db.AllExpensesForUser(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "CSV export failed", "error", err, "user_id", user.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="expenses.csv"`)

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Category", "Amount", "Description"}); err != nil {
		slog.ErrorContext(r.Context(), "CSV write failed", "error", err)
		return
	}
	for _, e := range expenses {
		row := []string{
			e.Date.Format("2006-01-02"),
			e.CategoryName,
			money.FormatCents(e.AmountCents),
			e.Description,
		}
		if err := cw.Write(row); err != nil {
			slog.ErrorContext(r.Context(), "CSV write failed", "error", err)
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.ErrorContext(r.Context(), "CSV flush failed", "error", err)
	}
}
