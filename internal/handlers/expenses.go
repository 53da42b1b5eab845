package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"finsight/internal/models"
	"finsight/internal/storage"
)

// ExpenseFormViewModel is the data passed to the add-expense template.
type ExpenseFormViewModel struct {
	Categories []models.Category
	Form       ExpenseForm
	Errors     map[string]string
}

// AddExpenseForm renders an empty add-expense form.
func (h *Handlers) AddExpenseForm(w http.ResponseWriter, r *http.Request) {
	categories, err := h.db.ListCategories(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List categories failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.render(w, "add_expense.html", ExpenseFormViewModel{Categories: categories})
}

// AddExpense validates the submitted form and creates an expense owned by
// the session user. Invalid input redisplays the form with field errors.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
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

	form := readExpenseForm(r)
	parsed, fieldErrs := form.validate(categories)
	if fieldErrs != nil {
		h.renderStatus(w, http.StatusUnprocessableEntity, "add_expense.html", ExpenseFormViewModel{
			Categories: categories,
			Form:       form,
			Errors:     fieldErrs,
		})
		return
	}

	// Ownership comes from the session, never from the client.
	if _, err := h.db.CreateExpense(r.Context(), user.ID, parsed.CategoryID, parsed.AmountCents, parsed.Description, parsed.Date); err != nil {
		slog.ErrorContext(r.Context(), "Create expense failed", "error", err, "user_id", user.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
}

// ConfirmDeleteViewModel is the data passed to the delete confirmation page.
type ConfirmDeleteViewModel struct {
	Expense ExpenseRow
}

// DeleteExpenseConfirm renders a confirmation page for deleting one expense.
// Expenses owned by other users are reported as not found.
func (h *Handlers) DeleteExpenseConfirm(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	expense, err := h.db.GetExpenseForUser(r.Context(), user.ID, id)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Get expense failed", "error", err, "user_id", user.ID, "expense_id", id)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, "confirm_delete.html", ConfirmDeleteViewModel{Expense: expenseRow(*expense)})
}

// DeleteExpense deletes a single expense after an ownership check.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	switch err := h.db.DeleteExpense(r.Context(), user.ID, id); {
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
	case err != nil:
		slog.ErrorContext(r.Context(), "Delete expense failed", "error", err, "user_id", user.ID, "expense_id", id)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	default:
		http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
	}
}
