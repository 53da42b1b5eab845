package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"finsight/internal/models"
	"finsight/internal/storage"
)

// BudgetFormViewModel is the data passed to the set-budget template.
type BudgetFormViewModel struct {
	Categories []models.Category
	Form       BudgetForm
	Errors     map[string]string
}

// SetBudgetForm renders an empty set-budget form.
func (h *Handlers) SetBudgetForm(w http.ResponseWriter, r *http.Request) {
	categories, err := h.db.ListCategories(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List categories failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.render(w, "set_budget.html", BudgetFormViewModel{Categories: categories})
}

// SetBudget validates the submitted form and creates a budget. A duplicate
// (user, category) budget is a validation error, not a crash.
func (h *Handlers) SetBudget(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	categories, err := h.db.ListCategories(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List categories failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	form := readBudgetForm(r)
	parsed, fieldErrs := form.validate(categories)
	if fieldErrs != nil {
		h.renderStatus(w, http.StatusUnprocessableEntity, "set_budget.html", BudgetFormViewModel{
			Categories: categories,
			Form:       form,
			Errors:     fieldErrs,
		})
		return
	}

	_, err = h.db.CreateBudget(r.Context(), user.ID, parsed.CategoryID, parsed.LimitCents)
	if errors.Is(err, storage.ErrDuplicateBudget) {
		h.renderStatus(w, http.StatusUnprocessableEntity, "set_budget.html", BudgetFormViewModel{
			Categories: categories,
			Form:       form,
			Errors:     map[string]string{"category": "You already have a budget for this category"},
		})
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Create budget failed", "error", err, "user_id", user.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
}

// DeleteBudget deletes a single budget after an ownership check. There is no
// confirmation step for budgets.
func (h *Handlers) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	switch err := h.db.DeleteBudget(r.Context(), user.ID, id); {
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
	case err != nil:
		slog.ErrorContext(r.Context(), "Delete budget failed", "error", err, "user_id", user.ID, "budget_id", id)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	default:
		http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
	}
}
