package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"finsight/internal/models"
	"finsight/internal/money"
)

// Form handling is an explicit parse -> validate -> construct step: each form
// type keeps the raw submitted strings (so invalid input can be redisplayed)
// and validation returns the typed values together with per-field errors.

const maxDescriptionLen = 200

// ExpenseForm holds the raw add-expense form input.
type ExpenseForm struct {
	Category    string
	Amount      string
	Date        string
	Description string
}

type parsedExpense struct {
	CategoryID  int64
	AmountCents int64
	Date        time.Time
	Description string
}

func readExpenseForm(r *http.Request) ExpenseForm {
	return ExpenseForm{
		Category:    strings.TrimSpace(r.FormValue("category")),
		Amount:      strings.TrimSpace(r.FormValue("amount")),
		Date:        strings.TrimSpace(r.FormValue("date")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
}

func (f ExpenseForm) validate(categories []models.Category) (parsedExpense, map[string]string) {
	errs := make(map[string]string)
	var p parsedExpense

	p.CategoryID = validateCategory(f.Category, categories, errs)

	cents, err := money.ParseCents(f.Amount)
	if err != nil || cents == 0 {
		errs["amount"] = "Enter a positive amount"
	}
	p.AmountCents = cents

	date, err := time.Parse("2006-01-02", f.Date)
	if err != nil {
		errs["date"] = "Enter a valid date"
	}
	p.Date = date

	if len(f.Description) > maxDescriptionLen {
		errs["description"] = "Description is too long (max 200 characters)"
	}
	p.Description = f.Description

	if len(errs) > 0 {
		return parsedExpense{}, errs
	}
	return p, nil
}

// BudgetForm holds the raw set-budget form input.
type BudgetForm struct {
	Category string
	Limit    string
}

type parsedBudget struct {
	CategoryID int64
	LimitCents int64
}

func readBudgetForm(r *http.Request) BudgetForm {
	return BudgetForm{
		Category: strings.TrimSpace(r.FormValue("category")),
		Limit:    strings.TrimSpace(r.FormValue("monthly_limit")),
	}
}

func (f BudgetForm) validate(categories []models.Category) (parsedBudget, map[string]string) {
	errs := make(map[string]string)
	var p parsedBudget

	p.CategoryID = validateCategory(f.Category, categories, errs)

	// A zero limit is allowed; it simply means any spending exceeds it.
	cents, err := money.ParseCents(f.Limit)
	if err != nil {
		errs["monthly_limit"] = "Enter a valid amount"
	}
	p.LimitCents = cents

	if len(errs) > 0 {
		return parsedBudget{}, errs
	}
	return p, nil
}

func validateCategory(value string, categories []models.Category, errs map[string]string) int64 {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		errs["category"] = "Choose a category"
		return 0
	}
	for _, c := range categories {
		if c.ID == id {
			return id
		}
	}
	errs["category"] = "Choose a category"
	return 0
}
