package storage

import (
	"context"
	"testing"
	"time"

	"finsight/internal/auth"
	"finsight/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// DBTestSuite provides a test suite for database operations
type DBTestSuite struct {
	suite.Suite
	ctx  context.Context
	db   *DB
	user *models.User
}

// SetupTest runs before each test
func (suite *DBTestSuite) SetupTest() {
	suite.ctx = context.Background()

	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	user, err := db.CreateUser(suite.ctx, "testuser", "hash")
	require.NoError(suite.T(), err, "failed to create test user")
	suite.user = user
}

// TearDownTest runs after each test
func (suite *DBTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *DBTestSuite) date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func (suite *DBTestSuite) addExpense(userID, categoryID, cents int64, description string, date time.Time) int64 {
	id, err := suite.db.CreateExpense(suite.ctx, userID, categoryID, cents, description, date)
	require.NoError(suite.T(), err, "failed to create expense: %s", description)
	return id
}

func (suite *DBTestSuite) TestListCategoriesSeeded() {
	categories, err := suite.db.ListCategories(suite.ctx)
	require.NoError(suite.T(), err)
	require.NotEmpty(suite.T(), categories, "migrations should seed categories")

	assert.Equal(suite.T(), "Food", categories[0].Name)

	names := make(map[string]bool, len(categories))
	for _, c := range categories {
		names[c.Name] = true
	}
	for _, want := range []string{"Food", "Transport", "Utilities", "Other"} {
		assert.True(suite.T(), names[want], "missing seeded category %s", want)
	}
}

func (suite *DBTestSuite) TestCreateAndGetExpense() {
	id := suite.addExpense(suite.user.ID, 1, 1250, "Lunch", suite.date(2025, 3, 15))

	exp, err := suite.db.GetExpenseForUser(suite.ctx, suite.user.ID, id)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1250), exp.AmountCents)
	assert.Equal(suite.T(), "Lunch", exp.Description)
	assert.Equal(suite.T(), "Food", exp.CategoryName)
	assert.Equal(suite.T(), 2025, exp.Date.Year())
	assert.Equal(suite.T(), time.March, exp.Date.Month())
}

func (suite *DBTestSuite) TestGetExpenseOtherUser() {
	other, err := suite.db.CreateUser(suite.ctx, "other", "hash")
	require.NoError(suite.T(), err)

	id := suite.addExpense(other.ID, 1, 1000, "Not yours", suite.date(2025, 3, 15))

	_, err = suite.db.GetExpenseForUser(suite.ctx, suite.user.ID, id)
	assert.ErrorIs(suite.T(), err, ErrNotFound, "expenses of other users should look missing")
}

func (suite *DBTestSuite) TestDeleteExpense() {
	id := suite.addExpense(suite.user.ID, 1, 1000, "Doomed", suite.date(2025, 3, 15))

	require.NoError(suite.T(), suite.db.DeleteExpense(suite.ctx, suite.user.ID, id))

	_, err := suite.db.GetExpenseForUser(suite.ctx, suite.user.ID, id)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	// Deleting again reports not found.
	assert.ErrorIs(suite.T(), suite.db.DeleteExpense(suite.ctx, suite.user.ID, id), ErrNotFound)
}

func (suite *DBTestSuite) TestDeleteExpenseOtherUser() {
	other, err := suite.db.CreateUser(suite.ctx, "other", "hash")
	require.NoError(suite.T(), err)

	id := suite.addExpense(other.ID, 1, 1000, "Not yours", suite.date(2025, 3, 15))

	assert.ErrorIs(suite.T(), suite.db.DeleteExpense(suite.ctx, suite.user.ID, id), ErrNotFound)

	// Still there for its owner.
	_, err = suite.db.GetExpenseForUser(suite.ctx, other.ID, id)
	assert.NoError(suite.T(), err)
}

func (suite *DBTestSuite) TestExpensesForMonth() {
	suite.addExpense(suite.user.ID, 1, 1000, "March early", suite.date(2025, 3, 2))
	suite.addExpense(suite.user.ID, 2, 2000, "March late", suite.date(2025, 3, 20))
	suite.addExpense(suite.user.ID, 1, 3000, "February", suite.date(2025, 2, 10))
	suite.addExpense(suite.user.ID, 1, 4000, "March last year", suite.date(2024, 3, 10))

	other, err := suite.db.CreateUser(suite.ctx, "other", "hash")
	require.NoError(suite.T(), err)
	suite.addExpense(other.ID, 1, 9999, "Other user's March", suite.date(2025, 3, 5))

	expenses, err := suite.db.ExpensesForMonth(suite.ctx, suite.user.ID, 2025, 3)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), expenses, 2, "only the owner's expenses for the exact year and month")

	// Newest first.
	assert.Equal(suite.T(), "March late", expenses[0].Description)
	assert.Equal(suite.T(), "March early", expenses[1].Description)
}

func (suite *DBTestSuite) TestCategoryTotalsForMonth() {
	suite.addExpense(suite.user.ID, 1, 1000, "Groceries", suite.date(2025, 3, 2))
	suite.addExpense(suite.user.ID, 1, 500, "Snacks", suite.date(2025, 3, 8))
	suite.addExpense(suite.user.ID, 2, 300, "Bus", suite.date(2025, 3, 9))
	suite.addExpense(suite.user.ID, 1, 7000, "February groceries", suite.date(2025, 2, 2))

	totals, err := suite.db.CategoryTotalsForMonth(suite.ctx, suite.user.ID, 2025, 3)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), totals, 2)

	assert.Equal(suite.T(), "Food", totals[0].CategoryName)
	assert.Equal(suite.T(), int64(1500), totals[0].TotalCents)
	assert.Equal(suite.T(), "Transport", totals[1].CategoryName)
	assert.Equal(suite.T(), int64(300), totals[1].TotalCents)
}

func (suite *DBTestSuite) TestMonthlyTotals() {
	suite.addExpense(suite.user.ID, 1, 1000, "Jan", suite.date(2025, 1, 10))
	suite.addExpense(suite.user.ID, 1, 1500, "Feb", suite.date(2025, 2, 10))
	suite.addExpense(suite.user.ID, 2, 500, "Feb bus", suite.date(2025, 2, 20))
	suite.addExpense(suite.user.ID, 1, 9000, "Earlier", suite.date(2024, 12, 31))

	totals, err := suite.db.MonthlyTotals(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), totals, 3)

	// Chronological order, oldest first.
	assert.Equal(suite.T(), models.MonthTotal{Year: 2024, Month: 12, TotalCents: 9000}, totals[0])
	assert.Equal(suite.T(), models.MonthTotal{Year: 2025, Month: 1, TotalCents: 1000}, totals[1])
	assert.Equal(suite.T(), models.MonthTotal{Year: 2025, Month: 2, TotalCents: 2000}, totals[2])
}

func (suite *DBTestSuite) TestAvailableMonths() {
	suite.addExpense(suite.user.ID, 1, 1000, "Jan", suite.date(2025, 1, 10))
	suite.addExpense(suite.user.ID, 1, 1000, "Jan again", suite.date(2025, 1, 20))
	suite.addExpense(suite.user.ID, 1, 1000, "Mar", suite.date(2025, 3, 10))
	suite.addExpense(suite.user.ID, 1, 1000, "Last Nov", suite.date(2024, 11, 1))

	months, err := suite.db.AvailableMonths(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)

	// Most recent first, no duplicates.
	assert.Equal(suite.T(), []models.YearMonth{
		{Year: 2025, Month: 3},
		{Year: 2025, Month: 1},
		{Year: 2024, Month: 11},
	}, months)
}

func (suite *DBTestSuite) TestAllExpensesForUser() {
	suite.addExpense(suite.user.ID, 1, 1000, "Second", suite.date(2025, 2, 10))
	suite.addExpense(suite.user.ID, 1, 1000, "First", suite.date(2025, 1, 10))
	suite.addExpense(suite.user.ID, 1, 1000, "Third", suite.date(2025, 3, 10))

	all, err := suite.db.AllExpensesForUser(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), all, 3)

	// Oldest first for export.
	assert.Equal(suite.T(), "First", all[0].Description)
	assert.Equal(suite.T(), "Second", all[1].Description)
	assert.Equal(suite.T(), "Third", all[2].Description)
}

func (suite *DBTestSuite) TestBudgets() {
	id, err := suite.db.CreateBudget(suite.ctx, suite.user.ID, 1, 18000)
	require.NoError(suite.T(), err)

	budgets, err := suite.db.BudgetsForUser(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), budgets, 1)
	assert.Equal(suite.T(), id, budgets[0].ID)
	assert.Equal(suite.T(), "Food", budgets[0].CategoryName)
	assert.Equal(suite.T(), int64(18000), budgets[0].LimitCents)
}

func (suite *DBTestSuite) TestDuplicateBudget() {
	_, err := suite.db.CreateBudget(suite.ctx, suite.user.ID, 1, 18000)
	require.NoError(suite.T(), err)

	_, err = suite.db.CreateBudget(suite.ctx, suite.user.ID, 1, 20000)
	assert.ErrorIs(suite.T(), err, ErrDuplicateBudget)

	// Same category for a different user is fine.
	other, err := suite.db.CreateUser(suite.ctx, "other", "hash")
	require.NoError(suite.T(), err)
	_, err = suite.db.CreateBudget(suite.ctx, other.ID, 1, 20000)
	assert.NoError(suite.T(), err)
}

func (suite *DBTestSuite) TestDeleteBudget() {
	id, err := suite.db.CreateBudget(suite.ctx, suite.user.ID, 1, 18000)
	require.NoError(suite.T(), err)

	other, err := suite.db.CreateUser(suite.ctx, "other", "hash")
	require.NoError(suite.T(), err)
	assert.ErrorIs(suite.T(), suite.db.DeleteBudget(suite.ctx, other.ID, id), ErrNotFound,
		"budgets of other users should look missing")

	require.NoError(suite.T(), suite.db.DeleteBudget(suite.ctx, suite.user.ID, id))

	budgets, err := suite.db.BudgetsForUser(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), budgets)
}

func (suite *DBTestSuite) TestUsers() {
	count, err := suite.db.UserCount(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)

	got, err := suite.db.GetUserByUsername(suite.ctx, "testuser")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.user.ID, got.ID)

	_, err = suite.db.GetUserByUsername(suite.ctx, "ghost")
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	_, err = suite.db.CreateUser(suite.ctx, "testuser", "hash")
	assert.Error(suite.T(), err, "usernames are unique")
}

// SessionTestSuite provides a test suite for session operations
type SessionTestSuite struct {
	suite.Suite
	ctx  context.Context
	db   *DB
	user *models.User
}

// SetupTest runs before each test
func (suite *SessionTestSuite) SetupTest() {
	suite.ctx = context.Background()

	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	password, err := auth.HashPassword("testpass")
	require.NoError(suite.T(), err, "failed to hash password")

	user, err := suite.db.CreateUser(suite.ctx, "testuser", password)
	require.NoError(suite.T(), err, "failed to create test user")
	suite.user = user
}

// TearDownTest runs after each test
func (suite *SessionTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *SessionTestSuite) TestCreateAndValidateSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	expiresAt := time.Now().Add(30 * 24 * time.Hour)
	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, expiresAt)
	require.NoError(suite.T(), err)

	sessionUser, err := suite.db.ValidateSession(suite.ctx, token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "testuser", sessionUser.Username)
}

func (suite *SessionTestSuite) TestValidateUnknownToken() {
	_, err := suite.db.ValidateSession(suite.ctx, "no-such-token")
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *SessionTestSuite) TestExpiredSessionIsInvalid() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, time.Now().Add(-time.Hour))
	require.NoError(suite.T(), err)

	_, err = suite.db.ValidateSession(suite.ctx, token)
	assert.ErrorIs(suite.T(), err, ErrNotFound, "expired session should be treated as missing")
}

func (suite *SessionTestSuite) TestRenewSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, time.Now().Add(30*24*time.Hour))
	require.NoError(suite.T(), err)

	originalInfo, err := suite.db.ValidateSessionWithInfo(suite.ctx, token)
	require.NoError(suite.T(), err)

	newExpiry := time.Now().Add(60 * 24 * time.Hour)
	err = suite.db.RenewSession(suite.ctx, token, newExpiry)
	require.NoError(suite.T(), err)

	updatedInfo, err := suite.db.ValidateSessionWithInfo(suite.ctx, token)
	require.NoError(suite.T(), err)

	assert.True(suite.T(), updatedInfo.ExpiresAt.After(originalInfo.ExpiresAt),
		"ExpiresAt should be extended after renewal")
}

func (suite *SessionTestSuite) TestDeleteSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, time.Now().Add(30*24*time.Hour))
	require.NoError(suite.T(), err)

	_, err = suite.db.ValidateSession(suite.ctx, token)
	require.NoError(suite.T(), err, "session should exist before deletion")

	require.NoError(suite.T(), suite.db.DeleteSession(suite.ctx, token))

	_, err = suite.db.ValidateSession(suite.ctx, token)
	assert.ErrorIs(suite.T(), err, ErrNotFound, "expected error after deleting session")
}

func (suite *SessionTestSuite) TestCleanExpiredSessions() {
	live, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)
	dead, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.db.CreateSession(suite.ctx, live, suite.user.ID, time.Now().Add(time.Hour)))
	require.NoError(suite.T(), suite.db.CreateSession(suite.ctx, dead, suite.user.ID, time.Now().Add(-time.Hour)))

	require.NoError(suite.T(), suite.db.CleanExpiredSessions(suite.ctx))

	_, err = suite.db.ValidateSession(suite.ctx, live)
	assert.NoError(suite.T(), err, "live session should survive cleanup")
	_, err = suite.db.ValidateSession(suite.ctx, dead)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

// Test suite runners
func TestDBSuite(t *testing.T) {
	suite.Run(t, new(DBTestSuite))
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
